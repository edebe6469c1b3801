package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ragchat-app/ragchat/internal/core"
	"github.com/ragchat-app/ragchat/internal/models"
)

// processTimeout bounds one document's pipeline run. A hung provider call
// must not pin a worker past this budget.
const processTimeout = 10 * time.Minute

// process runs the heavy stages for one document: extract, chunk, embed,
// index, persist. Any failure marks the document failed with the reason and
// rolls back vectors written for it.
func (i *Ingestor) process(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()

	doc := j.doc
	log := i.log.With(
		zap.String("document_id", doc.ID),
		zap.String("user_id", doc.UserID),
		zap.String("filename", doc.Filename))

	if err := i.db.UpdateDocumentStatus(ctx, doc.ID, models.StatusProcessing, ""); err != nil {
		log.Error("failed to mark document processing", zap.Error(err))
		return
	}

	text, err := i.extract.Extract(ctx, j.data, doc.OriginalFilename)
	if err != nil {
		i.fail(ctx, log, doc.ID, fmt.Errorf("extract: %w", err))
		return
	}

	chunks := i.splitter.Chunk(text)
	if len(chunks) == 0 {
		i.fail(ctx, log, doc.ID, fmt.Errorf("%w: document produced no chunks", core.ErrExtraction))
		return
	}

	texts := make([]string, len(chunks))
	for n, ch := range chunks {
		texts[n] = ch.Text
	}
	embedded, err := i.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		i.fail(ctx, log, doc.ID, fmt.Errorf("embed: %w", err))
		return
	}
	if len(embedded) < len(chunks) {
		log.Warn("some chunks could not be embedded",
			zap.Int("chunks", len(chunks)),
			zap.Int("embedded", len(embedded)))
	}

	// Persisted chunk indices are renumbered by position so they stay
	// contiguous 0..n-1 even when the embedder dropped some inputs.
	records := make([]core.VectorRecord, 0, len(embedded))
	rows := make([]models.DocumentChunk, 0, len(embedded))
	vectorIDs := make([]string, 0, len(embedded))
	for n, emb := range embedded {
		ch := chunks[emb.Index]
		vectorID := fmt.Sprintf("%s_chunk_%d", doc.ID, n)
		records = append(records, core.VectorRecord{
			ID:     vectorID,
			Values: emb.Values,
			Meta: core.VectorMeta{
				UserID:     doc.UserID,
				DocumentID: doc.ID,
				Filename:   doc.Filename,
				ChunkIndex: n,
				Text:       ch.Text,
			},
		})
		rows = append(rows, models.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			UserID:     doc.UserID,
			ChunkIndex: n,
			Content:    ch.Text,
			VectorID:   vectorID,
			TokenCount: ch.TokenCount,
		})
		vectorIDs = append(vectorIDs, vectorID)
	}

	if err := i.index.Upsert(ctx, records); err != nil {
		i.cleanupVectors(ctx, log, vectorIDs)
		i.fail(ctx, log, doc.ID, fmt.Errorf("index: %w", err))
		return
	}

	if err := i.db.InsertDocumentChunks(ctx, rows); err != nil {
		i.cleanupVectors(ctx, log, vectorIDs)
		i.fail(ctx, log, doc.ID, fmt.Errorf("persist chunks: %w", err))
		return
	}

	if err := i.db.CompleteDocument(ctx, doc.ID, len(rows), vectorIDs); err != nil {
		log.Error("failed to mark document completed", zap.Error(err))
		return
	}

	if err := i.db.AdjustAnalytics(ctx, doc.UserID, models.AnalyticsDelta{
		Documents:    1,
		StorageBytes: doc.FileSize,
	}); err != nil {
		log.Warn("failed to bump analytics", zap.Error(err))
	}

	log.Info("document ingested",
		zap.Int("chunks", len(rows)),
		zap.Int64("bytes", doc.FileSize))
}

func (i *Ingestor) fail(ctx context.Context, log *zap.Logger, docID string, cause error) {
	log.Error("ingestion failed", zap.Error(cause))
	if err := i.db.UpdateDocumentStatus(ctx, docID, models.StatusFailed, cause.Error()); err != nil {
		log.Error("failed to mark document failed", zap.Error(err))
	}
}

// cleanupVectors removes vectors written before a mid-pipeline failure so a
// failed document never contributes retrieval hits.
func (i *Ingestor) cleanupVectors(ctx context.Context, log *zap.Logger, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := i.index.Delete(ctx, ids); err != nil {
		log.Warn("failed to clean up vectors after ingestion failure",
			zap.Int("count", len(ids)),
			zap.Error(err))
	}
}
