package models

import (
	"time"
)

// Document processing statuses. Transitions are monotonic:
// pending -> processing -> completed | failed.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Chat types for conversations.
const (
	ChatTypeUniversal = "universal"
	ChatTypeDocument  = "document"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents one uploaded file and its processing state.
// ChunkCount == len(VectorIDs) once Status is "completed".
type Document struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	Filename         string    `db:"filename" json:"filename"`
	OriginalFilename string    `db:"original_filename" json:"original_filename"`
	FileType         string    `db:"file_type" json:"file_type"` // pdf, txt, docx, doc
	FileSize         int64     `db:"file_size" json:"file_size"` // bytes
	ChunkCount       int       `db:"chunk_count" json:"chunk_count"`
	VectorIDs        []string  `db:"vector_ids" json:"vector_ids"`
	StorageURL       string    `db:"storage_url" json:"storage_url"` // archived original in object storage
	Status           string    `db:"status" json:"status"`
	ErrorMessage     string    `db:"error_message" json:"error_message,omitempty"`
	UploadedAt       time.Time `db:"uploaded_at" json:"uploaded_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentChunk is one text chunk of a document, immutable after ingestion.
// Chunk indices are contiguous 0..n-1 per document; VectorID is globally
// unique (it doubles as the id of the record in the vector index).
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Content    string    `db:"content" json:"content"`
	VectorID   string    `db:"vector_id" json:"vector_id"`
	TokenCount int       `db:"token_count" json:"token_count"` // estimate, display only
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Conversation is one chat session. For document-scoped chats the selected
// document set is frozen at creation.
type Conversation struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	Title         string    `db:"title" json:"title"`
	ChatType      string    `db:"chat_type" json:"chat_type"`
	DocumentIDs   []string  `db:"document_ids" json:"document_ids,omitempty"`
	DocumentNames []string  `db:"document_names" json:"document_names,omitempty"`
	MessageCount  int       `db:"message_count" json:"message_count"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
}

// Source is one retrieval citation attached to an assistant message.
type Source struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// Message is a single chat message. Assistant messages carry retrieval
// sources, wall-clock latency and token usage; user messages leave them zero.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Role           string    `db:"role" json:"role"`
	Content        string    `db:"content" json:"content"`
	Sources        []Source  `db:"sources" json:"sources,omitempty"`
	ResponseTimeMS int64     `db:"response_time_ms" json:"response_time_ms,omitempty"`
	TokenCount     int       `db:"token_count" json:"token_count,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// UserAnalytics holds derived per-user counters. Eventually consistent;
// recomputable from the primary entities.
type UserAnalytics struct {
	UserID             string    `db:"user_id" json:"user_id"`
	TotalDocuments     int64     `db:"total_documents" json:"total_documents"`
	TotalConversations int64     `db:"total_conversations" json:"total_conversations"`
	TotalMessages      int64     `db:"total_messages" json:"total_messages"`
	TotalQueries       int64     `db:"total_queries" json:"total_queries"`
	StorageUsed        int64     `db:"storage_used" json:"storage_used"` // bytes
	LastActivity       time.Time `db:"last_activity" json:"last_activity"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// AnalyticsDelta is applied atomically to a user's counters. Negative deltas
// floor the stored value at zero.
type AnalyticsDelta struct {
	Documents     int64
	Conversations int64
	Messages      int64
	Queries       int64
	StorageBytes  int64
}
