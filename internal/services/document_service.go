package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ragchat-app/ragchat/internal/core"
	"github.com/ragchat-app/ragchat/internal/models"
)

// DocumentService covers the read and delete side of documents; uploads go
// through the ingest pipeline.
type DocumentService struct {
	db      core.DbClient
	storage core.ObjectClient
	index   core.VectorIndex
	log     *zap.Logger
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, index core.VectorIndex, log *zap.Logger) *DocumentService {
	return &DocumentService{db: db, storage: storage, index: index, log: log}
}

func (s *DocumentService) List(ctx context.Context, userID string) ([]models.Document, error) {
	return s.db.ListDocumentsByUser(ctx, userID)
}

// Get returns the document and its chunks when it belongs to userID.
func (s *DocumentService) Get(ctx context.Context, userID, documentID string) (*models.Document, []models.DocumentChunk, error) {
	doc, err := s.getOwned(ctx, userID, documentID)
	if err != nil {
		return nil, nil, err
	}
	chunks, err := s.db.GetChunksByDocument(ctx, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("load chunks: %w", err)
	}
	return doc, chunks, nil
}

// DocumentDeleteResult reports what a document deletion removed. Vector
// cleanup is best-effort, so VectorsDeleted may undercount when the index is
// unreachable.
type DocumentDeleteResult struct {
	VectorsDeleted int   `json:"vectors_deleted"`
	ChunksDeleted  int64 `json:"chunks_deleted"`
	StorageDeleted bool  `json:"storage_deleted"`
}

// Delete removes a document everywhere: vectors first, then chunk rows, the
// archived original and finally the document record.
func (s *DocumentService) Delete(ctx context.Context, userID, documentID string) (*DocumentDeleteResult, error) {
	doc, err := s.getOwned(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}

	res := &DocumentDeleteResult{}

	if len(doc.VectorIDs) > 0 {
		if err := s.index.Delete(ctx, doc.VectorIDs); err != nil {
			s.log.Warn("failed to delete vectors, continuing with db cleanup",
				zap.String("document_id", doc.ID),
				zap.Int("count", len(doc.VectorIDs)),
				zap.Error(err))
		} else {
			res.VectorsDeleted = len(doc.VectorIDs)
		}
	}

	chunks, err := s.db.DeleteChunksByDocument(ctx, doc.ID)
	if err != nil {
		return res, fmt.Errorf("delete chunks: %w", err)
	}
	res.ChunksDeleted = chunks

	if doc.StorageURL != "" {
		key := objectKeyFromURL(doc.StorageURL)
		if err := s.storage.DeleteFile(ctx, key); err != nil {
			s.log.Warn("failed to delete archived original",
				zap.String("document_id", doc.ID),
				zap.Error(err))
		} else {
			res.StorageDeleted = true
		}
	}

	if err := s.db.DeleteDocument(ctx, doc.ID); err != nil {
		return res, fmt.Errorf("delete document: %w", err)
	}

	if err := s.db.AdjustAnalytics(ctx, userID, models.AnalyticsDelta{
		Documents:    -1,
		StorageBytes: -doc.FileSize,
	}); err != nil {
		s.log.Warn("failed to adjust analytics after delete", zap.Error(err))
	}

	return res, nil
}

func (s *DocumentService) getOwned(ctx context.Context, userID, documentID string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.UserID != userID {
		return nil, fmt.Errorf("%w: document %s", core.ErrNotFound, documentID)
	}
	return doc, nil
}
