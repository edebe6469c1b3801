package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ragchat-app/ragchat/internal/core/ingest"
	"github.com/ragchat-app/ragchat/internal/models"
	"github.com/ragchat-app/ragchat/internal/services"
)

type DocumentHandler struct {
	ingestor  *ingest.Ingestor
	documents *services.DocumentService
}

func NewDocumentHandler(ingestor *ingest.Ingestor, documents *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{ingestor: ingestor, documents: documents}
}

// Upload accepts a multipart file, validates it and schedules processing.
// The response carries the pending document; poll it for status.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	doc, err := h.ingestor.Upload(r.Context(), userID, header.Filename, contentType, data)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	docs, err := h.documents.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

type documentDetail struct {
	*models.Document
	Chunks []models.DocumentChunk `json:"chunks"`
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	doc, chunks, err := h.documents.Get(r.Context(), userID, chi.URLParam(r, "document_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if chunks == nil {
		chunks = []models.DocumentChunk{}
	}
	writeJSON(w, http.StatusOK, documentDetail{Document: doc, Chunks: chunks})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	res, err := h.documents.Delete(r.Context(), userID, chi.URLParam(r, "document_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
