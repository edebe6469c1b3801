package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ragchat-app/ragchat/internal/models"
	"github.com/ragchat-app/ragchat/internal/services"
)

type ChatHandler struct {
	conversations *services.ConversationService
}

func NewChatHandler(conversations *services.ConversationService) *ChatHandler {
	return &ChatHandler{conversations: conversations}
}

type startConversationRequest struct {
	Title       string   `json:"title"`
	DocumentIDs []string `json:"document_ids"`
}

// Start creates a conversation. With document_ids it is scoped to that frozen
// set; without, it covers all of the user's documents.
func (h *ChatHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	var (
		conv *models.Conversation
		err  error
	)
	if len(req.DocumentIDs) > 0 {
		conv, err = h.conversations.StartScoped(r.Context(), userID, req.DocumentIDs, req.Title)
	} else {
		conv, err = h.conversations.Start(r.Context(), userID, req.Title)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	convs, err := h.conversations.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

type conversationDetail struct {
	*models.Conversation
	Messages []models.Message `json:"messages"`
}

func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	convID := chi.URLParam(r, "conversation_id")

	conv, err := h.conversations.Get(r.Context(), userID, convID)
	if err != nil {
		writeError(w, err)
		return
	}
	msgs, err := h.conversations.Messages(r.Context(), userID, convID)
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, conversationDetail{Conversation: conv, Messages: msgs})
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// Send runs one chat exchange and returns the assistant message with its
// sources.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	msg, err := h.conversations.Send(r.Context(), userID, chi.URLParam(r, "conversation_id"), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	res, err := h.conversations.Delete(r.Context(), userID, chi.URLParam(r, "conversation_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// EmailSummary mails a recap of the conversation to the account's address.
func (h *ChatHandler) EmailSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.conversations.SummarizeAndEmail(r.Context(), userID, chi.URLParam(r, "conversation_id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
