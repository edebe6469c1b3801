// Package ingest runs the document pipeline: validate, archive the original,
// extract text, chunk, embed and index. Uploads return as soon as the
// document record exists; the heavy stages run on background workers.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ragchat-app/ragchat/internal/core"
	"github.com/ragchat-app/ragchat/internal/core/chunker"
	"github.com/ragchat-app/ragchat/internal/models"
)

// Limits are the synchronous upload checks. Violations reject the upload
// before any record is written.
type Limits struct {
	MaxFileSize  int64 // bytes
	AllowedTypes []string
}

type job struct {
	doc  *models.Document
	data []byte
}

// Ingestor owns the pipeline and its bounded job queue.
type Ingestor struct {
	db       core.DbClient
	storage  core.ObjectClient
	extract  core.Extractor
	embedder core.EmbeddingProvider
	index    core.VectorIndex
	splitter *chunker.Splitter
	limits   Limits
	log      *zap.Logger

	jobs chan job
}

// NewIngestor constructs the ingestor with a bounded job queue (64).
func NewIngestor(
	db core.DbClient,
	storage core.ObjectClient,
	extract core.Extractor,
	embedder core.EmbeddingProvider,
	index core.VectorIndex,
	splitter *chunker.Splitter,
	limits Limits,
	log *zap.Logger,
) *Ingestor {
	return &Ingestor{
		db:       db,
		storage:  storage,
		extract:  extract,
		embedder: embedder,
		index:    index,
		splitter: splitter,
		limits:   limits,
		log:      log,
		jobs:     make(chan job, 64),
	}
}

// Start runs workers reading from the job queue until ctx is cancelled.
func (i *Ingestor) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case j := <-i.jobs:
					i.process(gctx, j)
				}
			}
		})
	}
	go func() {
		_ = g.Wait()
	}()
}

// Validate applies the upload limits and returns the normalized file type.
func (i *Ingestor) Validate(filename string, size int64) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("%w: file is empty", core.ErrValidation)
	}
	if size > i.limits.MaxFileSize {
		return "", fmt.Errorf("%w: file size %d exceeds limit of %d bytes",
			core.ErrValidation, size, i.limits.MaxFileSize)
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" {
		return "", fmt.Errorf("%w: filename %q has no extension", core.ErrValidation, filename)
	}
	for _, allowed := range i.limits.AllowedTypes {
		if ext == allowed {
			return ext, nil
		}
	}
	return "", fmt.Errorf("%w: file type %q not allowed (allowed: %s)",
		core.ErrValidation, ext, strings.Join(i.limits.AllowedTypes, ", "))
}

// Upload validates the file, archives the original, persists a pending
// document and schedules processing. The returned document is in status
// "pending"; poll it for completion.
func (i *Ingestor) Upload(ctx context.Context, userID, filename, contentType string, data []byte) (*models.Document, error) {
	fileType, err := i.Validate(filename, int64(len(data)))
	if err != nil {
		return nil, err
	}

	docID := uuid.NewString()
	key := objectKey(userID, docID, filename)

	// Archiving is best-effort: a storage hiccup must not block ingestion.
	url, err := i.storage.UploadFile(ctx, key, data, contentType)
	if err != nil {
		i.log.Warn("failed to archive original, continuing without storage url",
			zap.String("document_id", docID),
			zap.Error(err))
		url = ""
	}

	doc := &models.Document{
		ID:               docID,
		UserID:           userID,
		Filename:         sanitizeFilename(filename),
		OriginalFilename: filename,
		FileType:         fileType,
		FileSize:         int64(len(data)),
		StorageURL:       url,
		Status:           models.StatusPending,
	}
	if err := i.db.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	i.Enqueue(doc, data)
	return doc, nil
}

// Enqueue schedules a document for processing. Blocks when the queue is full.
func (i *Ingestor) Enqueue(doc *models.Document, data []byte) {
	i.jobs <- job{doc: doc, data: data}
}

// Recover re-queues documents left pending or processing by an earlier run.
// The job queue is in-memory only, so a crash strands in-flight documents;
// those with an archived original are replayed from storage, the rest are
// marked failed. Call after Start so workers drain the re-queued jobs.
func (i *Ingestor) Recover(ctx context.Context) error {
	docs, err := i.db.ListDocumentsByStatus(ctx, models.StatusPending, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("list interrupted documents: %w", err)
	}
	for n := range docs {
		doc := docs[n]
		log := i.log.With(
			zap.String("document_id", doc.ID),
			zap.String("user_id", doc.UserID))
		if doc.StorageURL == "" {
			i.fail(ctx, log, doc.ID, errors.New("processing interrupted and no archived original to retry"))
			continue
		}
		data, err := i.storage.GetFile(ctx, objectKeyFromURL(doc.StorageURL))
		if err != nil {
			i.fail(ctx, log, doc.ID, fmt.Errorf("processing interrupted and archived original unavailable: %v", err))
			continue
		}
		log.Info("re-queueing interrupted document")
		i.Enqueue(&doc, data)
	}
	return nil
}

// objectKey creates a consistent storage key layout.
func objectKey(userID, docID, filename string) string {
	return path.Join("users", userID, "documents", docID, sanitizeFilename(filename))
}

func sanitizeFilename(filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Base(filename)
}

// objectKeyFromURL extracts the object key from a virtual-hosted style URL.
func objectKeyFromURL(u string) string {
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	if i := strings.Index(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return ""
}
