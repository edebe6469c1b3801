package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ragchat-app/ragchat/internal/core"
	"github.com/ragchat-app/ragchat/internal/models"
)

// memStore is an in-memory core.DbClient for service tests.
type memStore struct {
	core.DbClient

	mu     sync.Mutex
	users  map[string]*models.User
	docs   map[string]*models.Document
	chunks []models.DocumentChunk
	convs  map[string]*models.Conversation
	msgs   []models.Message
	stats  map[string]*models.UserAnalytics
}

func newMemStore() *memStore {
	return &memStore{
		users: map[string]*models.User{},
		docs:  map[string]*models.Document{},
		convs: map[string]*models.Conversation{},
		stats: map[string]*models.UserAnalytics{},
	}
}

func (m *memStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *memStore) CreateDocument(_ context.Context, d *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.docs[d.ID] = &cp
	return nil
}

func (m *memStore) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) ListDocumentsByUser(_ context.Context, userID string) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, d := range m.docs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListDocumentsByStatus(_ context.Context, statuses ...string) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, d := range m.docs {
		for _, s := range statuses {
			if d.Status == s {
				out = append(out, *d)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *memStore) InsertDocumentChunks(_ context.Context, chunks []models.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memStore) GetChunksByDocument(_ context.Context, documentID string) ([]models.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DocumentChunk
	for _, ch := range m.chunks {
		if ch.DocumentID == documentID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (m *memStore) DeleteChunksByDocument(_ context.Context, documentID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []models.DocumentChunk
	var removed int64
	for _, ch := range m.chunks {
		if ch.DocumentID == documentID {
			removed++
			continue
		}
		kept = append(kept, ch)
	}
	m.chunks = kept
	return removed, nil
}

func (m *memStore) CreateConversation(_ context.Context, c *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.convs[c.ID] = &cp
	return nil
}

func (m *memStore) GetConversationByID(_ context.Context, id string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListConversationsByUser(_ context.Context, userID string) ([]models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Conversation
	for _, c := range m.convs {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) TouchConversation(_ context.Context, id string, delta int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return fmt.Errorf("conversation not found: %s", id)
	}
	c.MessageCount += delta
	c.LastMessageAt = at
	c.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) DeleteConversation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.convs, id)
	return nil
}

func (m *memStore) InsertMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	m.msgs = append(m.msgs, *msg)
	return nil
}

func (m *memStore) ListMessages(_ context.Context, conversationID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, msg := range m.msgs {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	all, _ := m.ListMessages(ctx, conversationID)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *memStore) DeleteMessagesByConversation(_ context.Context, conversationID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []models.Message
	var removed int64
	for _, msg := range m.msgs {
		if msg.ConversationID == conversationID {
			removed++
			continue
		}
		kept = append(kept, msg)
	}
	m.msgs = kept
	return removed, nil
}

func (m *memStore) GetAnalytics(_ context.Context, userID string) (*models.UserAnalytics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.stats[userID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) AdjustAnalytics(_ context.Context, userID string, delta models.AnalyticsDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.stats[userID]
	if !ok {
		a = &models.UserAnalytics{UserID: userID}
		m.stats[userID] = a
	}
	a.TotalDocuments = floorZero(a.TotalDocuments + delta.Documents)
	a.TotalConversations = floorZero(a.TotalConversations + delta.Conversations)
	a.TotalMessages = floorZero(a.TotalMessages + delta.Messages)
	a.TotalQueries = floorZero(a.TotalQueries + delta.Queries)
	a.StorageUsed = floorZero(a.StorageUsed + delta.StorageBytes)
	a.LastActivity = time.Now()
	return nil
}

func (m *memStore) DeleteAnalytics(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stats, userID)
	return nil
}

func floorZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// memIndex is an in-memory core.VectorIndex returning canned hits.
type memIndex struct {
	mu      sync.Mutex
	hits    []core.SearchHit
	err     error
	filters []core.VectorFilter
	deleted []string
	byUser  map[string]int64
}

func (f *memIndex) EnsureCollection(context.Context) error { return nil }
func (f *memIndex) Upsert(context.Context, []core.VectorRecord) error {
	return nil
}

func (f *memIndex) Query(_ context.Context, _ []float32, topK int, filter core.VectorFilter) ([]core.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.filters = append(f.filters, filter)
	hits := f.hits
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (f *memIndex) Delete(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *memIndex) DeleteByUser(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byUser[userID], nil
}

func (f *memIndex) Stats(context.Context) (core.IndexStats, error) {
	return core.IndexStats{VectorCount: int64(len(f.hits))}, nil
}

type memEmbedder struct {
	err error
}

func (f *memEmbedder) EmbedDocuments(_ context.Context, texts []string) ([]core.Embedded, error) {
	out := make([]core.Embedded, len(texts))
	for i := range texts {
		out[i] = core.Embedded{Index: i, Values: []float32{1}}
	}
	return out, nil
}

func (f *memEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1}, nil
}

func (f *memEmbedder) Dimension() int { return 1 }

type memLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	systems []string
	users   []string
	history [][]core.ChatTurn
}

func (f *memLLM) Generate(_ context.Context, system string, history []core.ChatTurn, user string) (*core.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.systems = append(f.systems, system)
	f.users = append(f.users, user)
	f.history = append(f.history, history)
	reply := f.reply
	if reply == "" {
		reply = "canned answer"
	}
	return &core.Generation{Text: reply, Usage: core.TokenUsage{TotalTokens: 42}}, nil
}

type memMailer struct {
	mu       sync.Mutex
	enabled  bool
	err      error
	to       []string
	subjects []string
	bodies   []string
}

func (f *memMailer) Enabled() bool { return f.enabled }

func (f *memMailer) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.to = append(f.to, to)
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, body)
	return nil
}

type memObjects struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (f *memObjects) UploadFile(_ context.Context, key string, _ []byte, _ string) (string, error) {
	return "https://bucket.s3.us-east-2.amazonaws.com/" + key, nil
}

func (f *memObjects) GetFile(context.Context, string) ([]byte, error) { return nil, nil }

func (f *memObjects) DeleteFile(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, key)
	return nil
}

var errBoom = errors.New("boom")
