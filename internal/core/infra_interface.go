package core

import (
	"context"
	"time"

	"github.com/ragchat-app/ragchat/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres so higher layers never depend on a specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)
	// ListDocumentsByStatus returns all documents in any of the given
	// statuses, across users. Used to sweep interrupted pipeline runs.
	ListDocumentsByStatus(ctx context.Context, statuses ...string) ([]models.Document, error)
	// UpdateDocumentStatus records a status transition; errMsg is stored for
	// "failed" and cleared otherwise.
	UpdateDocumentStatus(ctx context.Context, id, status, errMsg string) error
	// CompleteDocument marks the document completed with its final chunk
	// count and vector id list in one statement.
	CompleteDocument(ctx context.Context, id string, chunkCount int, vectorIDs []string) error
	DeleteDocument(ctx context.Context, id string) error

	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
	DeleteChunksByDocument(ctx context.Context, documentID string) (int64, error)

	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversationByID(ctx context.Context, id string) (*models.Conversation, error)
	ListConversationsByUser(ctx context.Context, userID string) ([]models.Conversation, error)
	// TouchConversation bumps message_count by delta and moves the
	// last-message and updated timestamps forward.
	TouchConversation(ctx context.Context, id string, delta int, at time.Time) error
	DeleteConversation(ctx context.Context, id string) error

	InsertMessage(ctx context.Context, msg *models.Message) error
	// ListMessages returns all messages in chronological order.
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	// ListRecentMessages returns the newest limit messages, still in
	// chronological order.
	ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	DeleteMessagesByConversation(ctx context.Context, conversationID string) (int64, error)

	GetAnalytics(ctx context.Context, userID string) (*models.UserAnalytics, error)
	AdjustAnalytics(ctx context.Context, userID string, delta models.AnalyticsDelta) error
	DeleteAnalytics(ctx context.Context, userID string) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage. Uploaded
// originals are archived there so the source file outlives processing.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	GetFile(ctx context.Context, key string) ([]byte, error)
	DeleteFile(ctx context.Context, key string) error
}

// Extractor turns raw file bytes into plain text. The filename's extension
// selects the parsing strategy.
type Extractor interface {
	Extract(ctx context.Context, data []byte, filename string) (string, error)
}

// EmailSender delivers plain-text email. Optional: when not configured,
// Enabled reports false and Send is never called on the core paths.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
	Enabled() bool
}
