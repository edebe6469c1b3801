package core

import "context"

// VectorMeta is the metadata payload stored alongside every vector. UserID is
// the sole access-control mechanism for retrieval: the index applies it
// server-side on every query.
type VectorMeta struct {
	UserID     string
	DocumentID string
	Filename   string
	ChunkIndex int
	Text       string
}

// VectorRecord is one upsert unit. ID is the deterministic composite
// "<documentID>_chunk_<i>"; upserting the same id again overwrites.
type VectorRecord struct {
	ID     string
	Values []float32
	Meta   VectorMeta
}

// SearchHit is one ranked query result, ordered by descending cosine
// similarity.
type SearchHit struct {
	ID    string
	Score float32
	Meta  VectorMeta
}

// VectorFilter restricts a query. UserID is mandatory; a non-empty
// DocumentIDs set additionally scopes the search to those documents.
type VectorFilter struct {
	UserID      string
	DocumentIDs []string
}

// IndexStats is informational only.
type IndexStats struct {
	VectorCount int64   `json:"vector_count"`
	Dimension   int     `json:"dimension"`
	Fullness    float64 `json:"index_fullness"`
}

// VectorIndex abstracts the similarity-search backend. All operations must be
// safe under concurrent invocation; an unreachable backend surfaces as
// ErrIndexUnavailable.
type VectorIndex interface {
	// EnsureCollection is idempotent create-if-absent. If an existing
	// collection's dimension differs from the configured one it is
	// destructively recreated.
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, records []VectorRecord) error
	Query(ctx context.Context, vector []float32, topK int, filter VectorFilter) ([]SearchHit, error)
	// Delete is best-effort; unknown ids are not an error.
	Delete(ctx context.Context, ids []string) error
	// DeleteByUser removes every vector owned by the user and reports how
	// many were removed.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	Stats(ctx context.Context) (IndexStats, error)
}
