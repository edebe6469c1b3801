package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ragchat-app/ragchat/internal/core"
	"github.com/ragchat-app/ragchat/internal/models"
)

// ConversationService manages chat sessions: creation, the send loop,
// listing, deletion and the email recap. Sends within one conversation are
// serialized with a per-conversation lock so history stays strictly ordered.
type ConversationService struct {
	db        core.DbClient
	retrieval *RetrievalService
	llm       core.LLMProvider
	mail      core.EmailSender

	historyLimit int
	log          *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewConversationService(db core.DbClient, retrieval *RetrievalService, llm core.LLMProvider, mail core.EmailSender, historyLimit int, log *zap.Logger) *ConversationService {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &ConversationService{
		db:           db,
		retrieval:    retrieval,
		llm:          llm,
		mail:         mail,
		historyLimit: historyLimit,
		log:          log,
		locks:        map[string]*sync.Mutex{},
	}
}

func (s *ConversationService) lockConversation(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *ConversationService) dropLock(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, id)
}

// Start creates a universal conversation covering all of the user's
// documents.
func (s *ConversationService) Start(ctx context.Context, userID, title string) (*models.Conversation, error) {
	return s.create(ctx, userID, title, models.ChatTypeUniversal, nil, nil)
}

// StartScoped creates a conversation restricted to the given documents. The
// document set is frozen at creation; documents uploaded later never enter
// this conversation's retrieval scope.
func (s *ConversationService) StartScoped(ctx context.Context, userID string, documentIDs []string, title string) (*models.Conversation, error) {
	if len(documentIDs) == 0 {
		return nil, fmt.Errorf("%w: a document-scoped conversation needs at least one document", core.ErrValidation)
	}

	names := make([]string, 0, len(documentIDs))
	for _, id := range documentIDs {
		doc, err := s.db.GetDocumentByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve document %s: %w", id, err)
		}
		switch {
		case doc == nil:
			names = append(names, placeholderName(id))
		case doc.UserID != userID:
			return nil, fmt.Errorf("%w: document %s does not belong to user", core.ErrValidation, id)
		default:
			names = append(names, doc.Filename)
		}
	}

	return s.create(ctx, userID, title, models.ChatTypeDocument, documentIDs, names)
}

func (s *ConversationService) create(ctx context.Context, userID, title, chatType string, documentIDs, documentNames []string) (*models.Conversation, error) {
	if strings.TrimSpace(title) == "" {
		title = "Chat - " + time.Now().Format("Jan 2, 2006")
	}

	conv := &models.Conversation{
		ID:            uuid.NewString(),
		UserID:        userID,
		Title:         title,
		ChatType:      chatType,
		DocumentIDs:   documentIDs,
		DocumentNames: documentNames,
		IsActive:      true,
	}
	if err := s.db.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	if err := s.db.AdjustAnalytics(ctx, userID, models.AnalyticsDelta{Conversations: 1}); err != nil {
		s.log.Warn("failed to bump conversation counter", zap.Error(err))
	}
	return conv, nil
}

// Get returns the conversation when it exists and belongs to userID.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	conv, err := s.db.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil || conv.UserID != userID {
		return nil, fmt.Errorf("%w: conversation %s", core.ErrNotFound, conversationID)
	}
	return conv, nil
}

func (s *ConversationService) List(ctx context.Context, userID string) ([]models.Conversation, error) {
	return s.db.ListConversationsByUser(ctx, userID)
}

// Messages returns the full transcript in chronological order.
func (s *ConversationService) Messages(ctx context.Context, userID, conversationID string) ([]models.Message, error) {
	if _, err := s.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.db.ListMessages(ctx, conversationID)
}

// Send runs one chat exchange: persist the user turn, retrieve context,
// call the LLM, persist and return the assistant turn. On LLM failure the
// user message stays recorded so the client can retry without resending.
func (s *ConversationService) Send(ctx context.Context, userID, conversationID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: message is empty", core.ErrValidation)
	}

	conv, err := s.Get(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	lock := s.lockConversation(conv.ID)
	lock.Lock()
	defer lock.Unlock()

	started := time.Now()

	// History is read before the new user turn is stored so the current
	// question is never duplicated into it.
	history, err := s.db.ListRecentMessages(ctx, conv.ID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	userMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        content,
	}
	if err := s.db.InsertMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	var hits []core.SearchHit
	if conv.ChatType == models.ChatTypeDocument {
		hits = s.retrieval.SearchScoped(ctx, userID, conv.DocumentIDs, content)
	} else {
		hits = s.retrieval.SearchGlobal(ctx, userID, content)
	}

	gen, err := s.llm.Generate(ctx, buildSystemPrompt(hits), historyFromMessages(history), content)
	if err != nil {
		// The user turn stays; count it so message_count matches the rows.
		if touchErr := s.db.TouchConversation(ctx, conv.ID, 1, userMsg.CreatedAt); touchErr != nil {
			s.log.Warn("failed to touch conversation after llm error", zap.Error(touchErr))
		}
		return nil, fmt.Errorf("%w: %v", core.ErrLLM, err)
	}

	assistantMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        gen.Text,
		Sources:        SourcesFromHits(hits),
		ResponseTimeMS: time.Since(started).Milliseconds(),
		TokenCount:     gen.Usage.TotalTokens,
	}
	if err := s.db.InsertMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	if err := s.db.TouchConversation(ctx, conv.ID, 2, assistantMsg.CreatedAt); err != nil {
		s.log.Warn("failed to touch conversation", zap.Error(err))
	}
	if err := s.db.AdjustAnalytics(ctx, userID, models.AnalyticsDelta{Messages: 1}); err != nil {
		s.log.Warn("failed to bump message counter", zap.Error(err))
	}

	return assistantMsg, nil
}

// DeleteResult reports what a conversation deletion removed.
type DeleteResult struct {
	MessagesDeleted int64 `json:"messages_deleted"`
}

// Delete removes the conversation and its messages.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) (*DeleteResult, error) {
	conv, err := s.Get(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	lock := s.lockConversation(conv.ID)
	lock.Lock()
	defer lock.Unlock()

	msgs, err := s.db.DeleteMessagesByConversation(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("delete messages: %w", err)
	}
	if err := s.db.DeleteConversation(ctx, conv.ID); err != nil {
		return nil, fmt.Errorf("delete conversation: %w", err)
	}
	s.dropLock(conv.ID)

	if err := s.db.AdjustAnalytics(ctx, userID, models.AnalyticsDelta{Conversations: -1}); err != nil {
		s.log.Warn("failed to adjust analytics after delete", zap.Error(err))
	}

	return &DeleteResult{MessagesDeleted: msgs}, nil
}

// SummarizeAndEmail generates a structured recap of the conversation and
// mails it to the user. When the LLM is unavailable the raw transcript is
// sent instead so the recap still goes out.
func (s *ConversationService) SummarizeAndEmail(ctx context.Context, userID, conversationID string) error {
	if !s.mail.Enabled() {
		return fmt.Errorf("%w: email is not configured", core.ErrValidation)
	}

	conv, err := s.Get(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%w: user %s", core.ErrNotFound, userID)
	}

	msgs, err := s.db.ListMessages(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if len(msgs) == 0 {
		return fmt.Errorf("%w: conversation has no messages", core.ErrValidation)
	}

	transcript := buildTranscript(msgs)
	body := transcript
	gen, err := s.llm.Generate(ctx, "", nil, summaryPrompt+transcript)
	if err != nil {
		s.log.Warn("summary generation failed, sending raw transcript",
			zap.String("conversation_id", conv.ID),
			zap.Error(err))
	} else if strings.TrimSpace(gen.Text) != "" {
		body = gen.Text
	}

	subject := "Conversation summary: " + conv.Title
	if err := s.mail.Send(ctx, user.Email, subject, body); err != nil {
		return fmt.Errorf("send summary email: %w", err)
	}
	return nil
}

func placeholderName(documentID string) string {
	if len(documentID) > 8 {
		documentID = documentID[:8]
	}
	return "Document " + documentID
}
