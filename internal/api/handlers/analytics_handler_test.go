package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	middleware "github.com/ragchat-app/ragchat/internal/api/middlewares"
	"github.com/ragchat-app/ragchat/internal/core"
	"github.com/ragchat-app/ragchat/internal/models"
)

type analyticsDB struct {
	core.DbClient

	stats *models.UserAnalytics
	docs  []models.Document
}

func (f *analyticsDB) GetAnalytics(context.Context, string) (*models.UserAnalytics, error) {
	return f.stats, nil
}

func (f *analyticsDB) ListDocumentsByUser(context.Context, string) ([]models.Document, error) {
	return f.docs, nil
}

type stubIndex struct {
	core.VectorIndex
}

func getAnalytics(t *testing.T, db *analyticsDB, userID string) models.UserAnalytics {
	t.Helper()
	h := NewAnalyticsHandler(db, &stubIndex{})
	req := httptest.NewRequest(http.MethodGet, "/api/analytics", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	rec := httptest.NewRecorder()
	h.Get(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.UserAnalytics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	return got
}

func TestAnalyticsGet_RecomputesStorageFromDocuments(t *testing.T) {
	// The stored counter drifted (a delete-side adjustment was lost); the
	// endpoint reports the sum over the actual document rows instead.
	db := &analyticsDB{
		stats: &models.UserAnalytics{UserID: "u1", TotalDocuments: 2, StorageUsed: 9999},
		docs: []models.Document{
			{ID: "d1", UserID: "u1", FileSize: 2048},
			{ID: "d2", UserID: "u1", FileSize: 512},
		},
	}

	got := getAnalytics(t, db, "u1")
	assert.Equal(t, int64(2560), got.StorageUsed)
	assert.Equal(t, int64(2), got.TotalDocuments)
}

func TestAnalyticsGet_NoActivityReturnsZeroes(t *testing.T) {
	got := getAnalytics(t, &analyticsDB{}, "u1")
	assert.Equal(t, "u1", got.UserID)
	assert.Zero(t, got.StorageUsed)
	assert.Zero(t, got.TotalDocuments)
}

func TestAnalyticsGet_RequiresUser(t *testing.T) {
	h := NewAnalyticsHandler(&analyticsDB{}, &stubIndex{})
	req := httptest.NewRequest(http.MethodGet, "/api/analytics", nil)
	rec := httptest.NewRecorder()
	h.Get(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
