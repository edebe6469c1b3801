package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/ragchat-app/ragchat/internal/core"
	"github.com/ragchat-app/ragchat/internal/models"
)

// RetrievalService answers similarity queries over a user's indexed chunks.
// Retrieval is best-effort: embedding or index failures degrade to an empty
// result so the chat flow can still answer from conversation context alone.
type RetrievalService struct {
	embedder core.EmbeddingProvider
	index    core.VectorIndex
	db       core.DbClient
	topK     int
	log      *zap.Logger
}

func NewRetrievalService(embedder core.EmbeddingProvider, index core.VectorIndex, db core.DbClient, topK int, log *zap.Logger) *RetrievalService {
	if topK <= 0 {
		topK = 6
	}
	return &RetrievalService{embedder: embedder, index: index, db: db, topK: topK, log: log}
}

// SearchGlobal retrieves across all of the user's documents.
func (s *RetrievalService) SearchGlobal(ctx context.Context, userID, query string) []core.SearchHit {
	return s.search(ctx, userID, nil, query)
}

// SearchScoped retrieves only within the given document set.
func (s *RetrievalService) SearchScoped(ctx context.Context, userID string, documentIDs []string, query string) []core.SearchHit {
	if len(documentIDs) == 0 {
		return nil
	}
	return s.search(ctx, userID, documentIDs, query)
}

func (s *RetrievalService) search(ctx context.Context, userID string, documentIDs []string, query string) []core.SearchHit {
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		s.log.Warn("query embedding failed, answering without retrieval",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil
	}

	hits, err := s.index.Query(ctx, vec, s.topK, core.VectorFilter{
		UserID:      userID,
		DocumentIDs: documentIDs,
	})
	if err != nil {
		s.log.Warn("vector query failed, answering without retrieval",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil
	}

	if err := s.db.AdjustAnalytics(ctx, userID, models.AnalyticsDelta{Queries: 1}); err != nil {
		s.log.Warn("failed to bump query counter", zap.Error(err))
	}
	return hits
}

// SourcesFromHits converts retrieval hits to message citations.
func SourcesFromHits(hits []core.SearchHit) []models.Source {
	if len(hits) == 0 {
		return nil
	}
	out := make([]models.Source, 0, len(hits))
	for _, h := range hits {
		out = append(out, models.Source{
			DocumentID: h.Meta.DocumentID,
			Filename:   h.Meta.Filename,
			ChunkIndex: h.Meta.ChunkIndex,
			Score:      h.Score,
		})
	}
	return out
}
