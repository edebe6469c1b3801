package handlers

import (
	"net/http"

	"github.com/ragchat-app/ragchat/internal/core"
	"github.com/ragchat-app/ragchat/internal/models"
)

type AnalyticsHandler struct {
	db    core.DbClient
	index core.VectorIndex
}

func NewAnalyticsHandler(db core.DbClient, index core.VectorIndex) *AnalyticsHandler {
	return &AnalyticsHandler{db: db, index: index}
}

// Get returns the caller's usage counters. A user with no activity yet gets
// zeroes rather than a 404.
func (h *AnalyticsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	stats, err := h.db.GetAnalytics(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if stats == nil {
		stats = &models.UserAnalytics{UserID: userID}
	}

	// The stored storage counter can drift when a delta write fails;
	// recompute it from the document rows on every read.
	docs, err := h.db.ListDocumentsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	var used int64
	for _, d := range docs {
		used += d.FileSize
	}
	stats.StorageUsed = used

	writeJSON(w, http.StatusOK, stats)
}

// IndexStats reports the size of the shared vector collection.
func (h *AnalyticsHandler) IndexStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	stats, err := h.index.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
