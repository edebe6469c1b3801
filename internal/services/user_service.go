package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ragchat-app/ragchat/internal/core"
	"github.com/ragchat-app/ragchat/internal/models"
)

// UserService handles account lifecycle: registration, credential checks and
// full account deletion.
type UserService struct {
	db    core.DbClient
	index core.VectorIndex
	mail  core.EmailSender
	log   *zap.Logger
}

func NewUserService(db core.DbClient, index core.VectorIndex, mail core.EmailSender, log *zap.Logger) *UserService {
	return &UserService{db: db, index: index, mail: mail, log: log}
}

// Register creates the account and sends the welcome email best-effort.
func (s *UserService) Register(ctx context.Context, email, name, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", core.ErrValidation)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", core.ErrValidation)
	}

	existing, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: email already registered", core.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if s.mail.Enabled() {
		body := fmt.Sprintf("Hi %s,\n\nYour account is ready. Upload a document and start asking questions about it.\n", displayName(user))
		if err := s.mail.Send(ctx, user.Email, "Welcome", body); err != nil {
			s.log.Warn("welcome email failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	return user, nil
}

// Authenticate verifies the credentials and returns the user.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: unknown email", core.ErrNotFound)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, fmt.Errorf("%w: wrong password", core.ErrValidation)
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", core.ErrNotFound, userID)
	}
	return user, nil
}

// AccountDeleteResult reports what an account deletion removed per category.
type AccountDeleteResult struct {
	Documents     int   `json:"documents_deleted"`
	Chunks        int64 `json:"chunks_deleted"`
	Vectors       int64 `json:"vectors_deleted"`
	Conversations int   `json:"conversations_deleted"`
	Messages      int64 `json:"messages_deleted"`
}

// DeleteAccount removes the user and everything they own: vectors, chunks,
// documents, conversations, messages, analytics, then the user row.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) (*AccountDeleteResult, error) {
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}

	res := &AccountDeleteResult{}

	vectors, err := s.index.DeleteByUser(ctx, userID)
	if err != nil {
		s.log.Warn("failed to delete user vectors, continuing", zap.String("user_id", userID), zap.Error(err))
	} else {
		res.Vectors = vectors
	}

	docs, err := s.db.ListDocumentsByUser(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("list documents: %w", err)
	}
	for _, doc := range docs {
		chunks, err := s.db.DeleteChunksByDocument(ctx, doc.ID)
		if err != nil {
			return res, fmt.Errorf("delete chunks of %s: %w", doc.ID, err)
		}
		res.Chunks += chunks
		if err := s.db.DeleteDocument(ctx, doc.ID); err != nil {
			return res, fmt.Errorf("delete document %s: %w", doc.ID, err)
		}
		res.Documents++
	}

	convs, err := s.db.ListConversationsByUser(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("list conversations: %w", err)
	}
	for _, conv := range convs {
		msgs, err := s.db.DeleteMessagesByConversation(ctx, conv.ID)
		if err != nil {
			return res, fmt.Errorf("delete messages of %s: %w", conv.ID, err)
		}
		res.Messages += msgs
		if err := s.db.DeleteConversation(ctx, conv.ID); err != nil {
			return res, fmt.Errorf("delete conversation %s: %w", conv.ID, err)
		}
		res.Conversations++
	}

	if err := s.db.DeleteAnalytics(ctx, userID); err != nil {
		return res, fmt.Errorf("delete analytics: %w", err)
	}
	if err := s.db.DeleteUser(ctx, userID); err != nil {
		return res, fmt.Errorf("delete user: %w", err)
	}

	s.log.Info("account deleted",
		zap.String("user_id", userID),
		zap.Int("documents", res.Documents),
		zap.Int("conversations", res.Conversations))
	return res, nil
}

func displayName(u *models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
