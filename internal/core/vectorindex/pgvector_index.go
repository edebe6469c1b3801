// Package vectorindex implements the similarity-search backend on Postgres
// with the pgvector extension. A "collection" is one table holding ids,
// embeddings and the retrieval metadata; user and document filters run
// server-side in SQL so isolation never depends on client-side filtering.
package vectorindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/ragchat-app/ragchat/internal/core"
)

// upsertBatchSize bounds one write statement batch.
const upsertBatchSize = 100

var collectionNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var _ core.VectorIndex = (*PgVectorIndex)(nil)

// PgVectorIndex is a pgvector-backed core.VectorIndex.
type PgVectorIndex struct {
	db    *sql.DB
	table string
	dim   int
	log   *zap.Logger
}

func NewPgVectorIndex(db *sql.DB, collection string, dim int, log *zap.Logger) (*PgVectorIndex, error) {
	if !collectionNameRe.MatchString(collection) {
		return nil, fmt.Errorf("invalid collection name %q", collection)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dim)
	}
	return &PgVectorIndex{db: db, table: collection, dim: dim, log: log}, nil
}

// EnsureCollection creates the collection if absent. When the existing
// collection was created with a different dimension it is dropped and
// recreated, which deletes all stored vectors; the destructive path is
// logged loudly.
func (x *PgVectorIndex) EnsureCollection(ctx context.Context) error {
	if _, err := x.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return x.unavailable("create extension", err)
	}

	existing, err := x.existingDimension(ctx)
	if err != nil {
		return err
	}
	if existing > 0 && existing != x.dim {
		x.log.Warn("collection dimension mismatch, recreating collection and discarding all vectors",
			zap.String("collection", x.table),
			zap.Int("existing_dim", existing),
			zap.Int("configured_dim", x.dim))
		if _, err := x.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, x.table)); err != nil {
			return x.unavailable("drop collection", err)
		}
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          text PRIMARY KEY,
			embedding   vector(%d) NOT NULL,
			user_id     text NOT NULL,
			document_id text NOT NULL,
			filename    text NOT NULL DEFAULT '',
			chunk_index int  NOT NULL DEFAULT 0,
			content     text NOT NULL DEFAULT ''
		)`, x.table, x.dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_user_idx ON %s (user_id)`, x.table, x.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_document_idx ON %s (document_id)`, x.table, x.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, x.table, x.table),
	}
	for _, stmt := range stmts {
		if _, err := x.db.ExecContext(ctx, stmt); err != nil {
			return x.unavailable("create collection", err)
		}
	}
	return nil
}

// existingDimension reads the declared vector dimension of the collection,
// or 0 when the collection does not exist yet.
func (x *PgVectorIndex) existingDimension(ctx context.Context) (int, error) {
	const q = `
		SELECT a.atttypmod
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		WHERE c.relname = $1 AND a.attname = 'embedding'
	`
	var dim int
	err := x.db.QueryRowContext(ctx, q, x.table).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, x.unavailable("describe collection", err)
	}
	return dim, nil
}

// Upsert writes records in batches; the same id overwrites in place.
func (x *PgVectorIndex) Upsert(ctx context.Context, records []core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	q := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, user_id, document_id, filename, chunk_index, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			embedding   = EXCLUDED.embedding,
			user_id     = EXCLUDED.user_id,
			document_id = EXCLUDED.document_id,
			filename    = EXCLUDED.filename,
			chunk_index = EXCLUDED.chunk_index,
			content     = EXCLUDED.content
	`, x.table)

	for start := 0; start < len(records); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(records) {
			end = len(records)
		}

		tx, err := x.db.BeginTx(ctx, nil)
		if err != nil {
			return x.unavailable("upsert begin", err)
		}
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			_ = tx.Rollback()
			return x.unavailable("upsert prepare", err)
		}
		for _, r := range records[start:end] {
			if len(r.Values) != x.dim {
				stmt.Close()
				_ = tx.Rollback()
				return fmt.Errorf("vector %s has dimension %d, collection expects %d", r.ID, len(r.Values), x.dim)
			}
			if _, err := stmt.ExecContext(ctx,
				r.ID, pgvector.NewVector(r.Values),
				r.Meta.UserID, r.Meta.DocumentID, r.Meta.Filename, r.Meta.ChunkIndex, r.Meta.Text,
			); err != nil {
				stmt.Close()
				_ = tx.Rollback()
				return x.unavailable("upsert", err)
			}
		}
		stmt.Close()
		if err := tx.Commit(); err != nil {
			return x.unavailable("upsert commit", err)
		}
	}
	return nil
}

// Query returns the topK nearest records by cosine similarity, descending.
// The user filter (and document filter when present) is part of the SQL
// statement itself.
func (x *PgVectorIndex) Query(ctx context.Context, vector []float32, topK int, filter core.VectorFilter) ([]core.SearchHit, error) {
	if filter.UserID == "" {
		return nil, fmt.Errorf("query requires a user filter")
	}
	if topK <= 0 {
		topK = 1
	}

	vec := pgvector.NewVector(vector)
	var (
		rows *sql.Rows
		err  error
	)
	if len(filter.DocumentIDs) > 0 {
		q := fmt.Sprintf(`
			SELECT id, user_id, document_id, filename, chunk_index, content,
			       1 - (embedding <=> $1) AS score
			FROM %s
			WHERE user_id = $2 AND document_id = ANY($3)
			ORDER BY embedding <=> $1
			LIMIT $4
		`, x.table)
		rows, err = x.db.QueryContext(ctx, q, vec, filter.UserID, filter.DocumentIDs, topK)
	} else {
		q := fmt.Sprintf(`
			SELECT id, user_id, document_id, filename, chunk_index, content,
			       1 - (embedding <=> $1) AS score
			FROM %s
			WHERE user_id = $2
			ORDER BY embedding <=> $1
			LIMIT $3
		`, x.table)
		rows, err = x.db.QueryContext(ctx, q, vec, filter.UserID, topK)
	}
	if err != nil {
		return nil, x.unavailable("query", err)
	}
	defer rows.Close()

	var hits []core.SearchHit
	for rows.Next() {
		var h core.SearchHit
		if err := rows.Scan(&h.ID, &h.Meta.UserID, &h.Meta.DocumentID,
			&h.Meta.Filename, &h.Meta.ChunkIndex, &h.Meta.Text, &h.Score); err != nil {
			return nil, x.unavailable("query scan", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, x.unavailable("query rows", err)
	}
	return hits, nil
}

// Delete removes the given ids; unknown ids are silently ignored.
func (x *PgVectorIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, x.table)
	if _, err := x.db.ExecContext(ctx, q, ids); err != nil {
		return x.unavailable("delete", err)
	}
	return nil
}

// DeleteByUser removes every vector owned by userID.
func (x *PgVectorIndex) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, x.table)
	res, err := x.db.ExecContext(ctx, q, userID)
	if err != nil {
		return 0, x.unavailable("delete by user", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Stats reports the record count and configured dimension. Fullness has no
// meaning for a Postgres-backed collection and is always 0.
func (x *PgVectorIndex) Stats(ctx context.Context) (core.IndexStats, error) {
	var count int64
	q := fmt.Sprintf(`SELECT count(*) FROM %s`, x.table)
	if err := x.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
		return core.IndexStats{}, x.unavailable("stats", err)
	}
	return core.IndexStats{VectorCount: count, Dimension: x.dim}, nil
}

func (x *PgVectorIndex) unavailable(op string, err error) error {
	x.log.Error("vector index operation failed",
		zap.String("op", op),
		zap.String("collection", x.table),
		zap.Error(err))
	return fmt.Errorf("%w: %s: %v", core.ErrIndexUnavailable, op, err)
}
