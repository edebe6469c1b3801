package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ragchat-app/ragchat/internal/config"
	"github.com/ragchat-app/ragchat/internal/core"
	"github.com/ragchat-app/ragchat/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

// NewDatabaseClient opens the pool, verifies connectivity and applies the
// bootstrap schema. Lookups that find nothing return (nil, nil); callers
// decide whether absence is an error.
func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: sqlDB}, nil
}

// DB exposes the underlying pool so the vector index can share it.
func (c *DatabaseClient) DB() *sql.DB { return c.db }

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Implementing the db interface for users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	const q = `
		INSERT INTO users (id, email, name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.Email, user.Name, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, email, name, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *DatabaseClient) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	const q = `
		SELECT id, email, name, password_hash, created_at, updated_at
		FROM users WHERE id = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *DatabaseClient) DeleteUser(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

// Implementing the db interface for documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	now := time.Now().UTC()
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	vecIDs, err := stringsToJSON(doc.VectorIDs)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO documents
			(id, user_id, filename, original_filename, file_type, file_size,
			 chunk_count, vector_ids, storage_url, status, error_message,
			 uploaded_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = c.db.ExecContext(ctx, q,
		doc.ID, doc.UserID, doc.Filename, doc.OriginalFilename, doc.FileType, doc.FileSize,
		doc.ChunkCount, vecIDs, doc.StorageURL, doc.Status, doc.ErrorMessage,
		doc.UploadedAt, doc.UpdatedAt)
	return err
}

const documentColumns = `
	id, user_id, filename, original_filename, file_type, file_size,
	chunk_count, vector_ids, storage_url, status, error_message,
	uploaded_at, updated_at
`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var (
		d      models.Document
		vecIDs []byte
	)
	err := row.Scan(
		&d.ID, &d.UserID, &d.Filename, &d.OriginalFilename, &d.FileType, &d.FileSize,
		&d.ChunkCount, &vecIDs, &d.StorageURL, &d.Status, &d.ErrorMessage,
		&d.UploadedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if d.VectorIDs, err = stringsFromJSON(vecIDs); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (c *DatabaseClient) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE user_id = $1 ORDER BY uploaded_at DESC`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) ListDocumentsByStatus(ctx context.Context, statuses ...string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE status = ANY($1) ORDER BY uploaded_at`
	rows, err := c.db.QueryContext(ctx, q, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id, status, errMsg string) error {
	const q = `
		UPDATE documents
		SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, errMsg)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) CompleteDocument(ctx context.Context, id string, chunkCount int, vectorIDs []string) error {
	vecIDs, err := stringsToJSON(vectorIDs)
	if err != nil {
		return err
	}
	const q = `
		UPDATE documents
		SET status = $2, chunk_count = $3, vector_ids = $4, error_message = '', updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, models.StatusCompleted, chunkCount, vecIDs)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}

// Implementing the db interface for document chunks

// InsertDocumentChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, user_id, chunk_index, content, vector_id, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range chunks {
		ch := &chunks[i]
		if ch.CreatedAt.IsZero() {
			ch.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.UserID, ch.ChunkIndex, ch.Content, ch.VectorID, ch.TokenCount, ch.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, user_id, chunk_index, content, vector_id, token_count, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.UserID, &ch.ChunkIndex, &ch.Content, &ch.VectorID, &ch.TokenCount, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteChunksByDocument(ctx context.Context, documentID string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Implementing the db interface for conversations

func (c *DatabaseClient) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv == nil {
		return errors.New("nil conversation")
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}
	if conv.LastMessageAt.IsZero() {
		conv.LastMessageAt = now
	}
	docIDs, err := stringsToJSON(conv.DocumentIDs)
	if err != nil {
		return err
	}
	docNames, err := stringsToJSON(conv.DocumentNames)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO conversations
			(id, user_id, title, chat_type, document_ids, document_names,
			 message_count, is_active, created_at, updated_at, last_message_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = c.db.ExecContext(ctx, q,
		conv.ID, conv.UserID, conv.Title, conv.ChatType, docIDs, docNames,
		conv.MessageCount, conv.IsActive, conv.CreatedAt, conv.UpdatedAt, conv.LastMessageAt)
	return err
}

const conversationColumns = `
	id, user_id, title, chat_type, document_ids, document_names,
	message_count, is_active, created_at, updated_at, last_message_at
`

func scanConversation(row interface{ Scan(...any) error }) (*models.Conversation, error) {
	var (
		cv       models.Conversation
		docIDs   []byte
		docNames []byte
	)
	err := row.Scan(
		&cv.ID, &cv.UserID, &cv.Title, &cv.ChatType, &docIDs, &docNames,
		&cv.MessageCount, &cv.IsActive, &cv.CreatedAt, &cv.UpdatedAt, &cv.LastMessageAt,
	)
	if err != nil {
		return nil, err
	}
	if cv.DocumentIDs, err = stringsFromJSON(docIDs); err != nil {
		return nil, err
	}
	if cv.DocumentNames, err = stringsFromJSON(docNames); err != nil {
		return nil, err
	}
	return &cv, nil
}

func (c *DatabaseClient) GetConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	q := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	cv, err := scanConversation(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cv, err
}

func (c *DatabaseClient) ListConversationsByUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	q := `SELECT ` + conversationColumns + ` FROM conversations WHERE user_id = $1 ORDER BY last_message_at DESC`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		cv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cv)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) TouchConversation(ctx context.Context, id string, delta int, at time.Time) error {
	const q = `
		UPDATE conversations
		SET message_count = message_count + $2, last_message_at = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, delta, at)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("conversation not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) DeleteConversation(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	return err
}

// Implementing the db interface for messages

func (c *DatabaseClient) InsertMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	sources, err := sourcesToJSON(msg.Sources)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO messages
			(id, conversation_id, role, content, sources, response_time_ms, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = c.db.ExecContext(ctx, q,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, sources,
		msg.ResponseTimeMS, msg.TokenCount, msg.CreatedAt)
	return err
}

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	var (
		m       models.Message
		sources []byte
	)
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.Role, &m.Content, &sources,
		&m.ResponseTimeMS, &m.TokenCount, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if m.Sources, err = sourcesFromJSON(sources); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *DatabaseClient) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	const q = `
		SELECT id, conversation_id, role, content, sources, response_time_ms, token_count, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ListRecentMessages takes the newest limit rows and reverses them back into
// chronological order.
func (c *DatabaseClient) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	const q = `
		SELECT id, conversation_id, role, content, sources, response_time_ms, token_count, created_at
		FROM (
			SELECT id, conversation_id, role, content, sources, response_time_ms, token_count, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteMessagesByConversation(ctx context.Context, conversationID string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Implementing the db interface for analytics

func (c *DatabaseClient) GetAnalytics(ctx context.Context, userID string) (*models.UserAnalytics, error) {
	const q = `
		SELECT user_id, total_documents, total_conversations, total_messages,
		       total_queries, storage_used, last_activity, updated_at
		FROM user_analytics WHERE user_id = $1
	`
	var a models.UserAnalytics
	err := c.db.QueryRowContext(ctx, q, userID).Scan(
		&a.UserID, &a.TotalDocuments, &a.TotalConversations, &a.TotalMessages,
		&a.TotalQueries, &a.StorageUsed, &a.LastActivity, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AdjustAnalytics upserts the counters atomically. Negative deltas floor the
// stored values at zero so cleanup paths never drive counters below it.
func (c *DatabaseClient) AdjustAnalytics(ctx context.Context, userID string, delta models.AnalyticsDelta) error {
	const q = `
		INSERT INTO user_analytics
			(user_id, total_documents, total_conversations, total_messages,
			 total_queries, storage_used, last_activity, updated_at)
		VALUES ($1, GREATEST($2, 0), GREATEST($3, 0), GREATEST($4, 0),
		        GREATEST($5, 0), GREATEST($6, 0), now(), now())
		ON CONFLICT (user_id) DO UPDATE SET
			total_documents     = GREATEST(user_analytics.total_documents + $2, 0),
			total_conversations = GREATEST(user_analytics.total_conversations + $3, 0),
			total_messages      = GREATEST(user_analytics.total_messages + $4, 0),
			total_queries       = GREATEST(user_analytics.total_queries + $5, 0),
			storage_used        = GREATEST(user_analytics.storage_used + $6, 0),
			last_activity       = now(),
			updated_at          = now()
	`
	_, err := c.db.ExecContext(ctx, q, userID,
		delta.Documents, delta.Conversations, delta.Messages, delta.Queries, delta.StorageBytes)
	return err
}

func (c *DatabaseClient) DeleteAnalytics(ctx context.Context, userID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM user_analytics WHERE user_id = $1`, userID)
	return err
}
