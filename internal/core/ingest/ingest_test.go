package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ragchat-app/ragchat/internal/core"
	"github.com/ragchat-app/ragchat/internal/core/chunker"
	"github.com/ragchat-app/ragchat/internal/models"
)

type fakeDB struct {
	core.DbClient

	mu        sync.Mutex
	docs      map[string]*models.Document
	chunks    []models.DocumentChunk
	delta     models.AnalyticsDelta
	statuses  []string
	failChunk bool
}

func newFakeDB() *fakeDB {
	return &fakeDB{docs: map[string]*models.Document{}}
}

func (f *fakeDB) CreateDocument(_ context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDB) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id], nil
}

func (f *fakeDB) ListDocumentsByStatus(_ context.Context, statuses ...string) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Document
	for _, d := range f.docs {
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

func (f *fakeDB) UpdateDocumentStatus(_ context.Context, id, status, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	d.Status = status
	d.ErrorMessage = errMsg
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeDB) CompleteDocument(_ context.Context, id string, chunkCount int, vectorIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	d.Status = models.StatusCompleted
	d.ChunkCount = chunkCount
	d.VectorIDs = vectorIDs
	d.ErrorMessage = ""
	f.statuses = append(f.statuses, models.StatusCompleted)
	return nil
}

func (f *fakeDB) InsertDocumentChunks(_ context.Context, chunks []models.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failChunk {
		return errors.New("chunk insert refused")
	}
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeDB) AdjustAnalytics(_ context.Context, _ string, delta models.AnalyticsDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delta.Documents += delta.Documents
	f.delta.StorageBytes += delta.StorageBytes
	return nil
}

type fakeStorage struct {
	fail    bool
	keys    []string
	getData []byte
	getErr  error
	getKeys []string
}

func (f *fakeStorage) UploadFile(_ context.Context, key string, _ []byte, _ string) (string, error) {
	if f.fail {
		return "", errors.New("storage down")
	}
	f.keys = append(f.keys, key)
	return "https://bucket.example.com/" + key, nil
}

func (f *fakeStorage) GetFile(_ context.Context, key string) ([]byte, error) {
	f.getKeys = append(f.getKeys, key)
	return f.getData, f.getErr
}

func (f *fakeStorage) DeleteFile(context.Context, string) error { return nil }

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(context.Context, []byte, string) (string, error) {
	return f.text, f.err
}

type fakeEmbedder struct {
	skip        map[int]bool
	err         error
	sawDeadline bool
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([]core.Embedded, error) {
	_, f.sawDeadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	var out []core.Embedded
	for i := range texts {
		if f.skip[i] {
			continue
		}
		out = append(out, core.Embedded{Index: i, Values: []float32{1, 0, 0, 0}})
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func (f *fakeEmbedder) Dimension() int { return 4 }

type fakeIndex struct {
	mu         sync.Mutex
	records    map[string]core.VectorRecord
	failUpsert bool
	deleted    []string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{records: map[string]core.VectorRecord{}}
}

func (f *fakeIndex) EnsureCollection(context.Context) error { return nil }

func (f *fakeIndex) Upsert(_ context.Context, records []core.VectorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert {
		return core.ErrIndexUnavailable
	}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return nil
}

func (f *fakeIndex) Query(context.Context, []float32, int, core.VectorFilter) ([]core.SearchHit, error) {
	return nil, nil
}

func (f *fakeIndex) Delete(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.records, id)
	}
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeIndex) DeleteByUser(context.Context, string) (int64, error) { return 0, nil }
func (f *fakeIndex) Stats(context.Context) (core.IndexStats, error)      { return core.IndexStats{}, nil }

func newTestIngestor(db *fakeDB, storage *fakeStorage, ex *fakeExtractor, emb *fakeEmbedder, idx *fakeIndex) *Ingestor {
	return NewIngestor(db, storage, ex, emb, idx, chunker.New(1000, 200), Limits{
		MaxFileSize:  10 << 20,
		AllowedTypes: []string{"pdf", "txt", "docx", "doc"},
	}, zap.NewNop())
}

func TestUpload_RejectsInvalidFiles(t *testing.T) {
	db := newFakeDB()
	ing := newTestIngestor(db, &fakeStorage{}, &fakeExtractor{}, &fakeEmbedder{}, newFakeIndex())

	cases := []struct {
		name     string
		filename string
		data     []byte
	}{
		{"empty file", "notes.txt", nil},
		{"disallowed type", "image.png", []byte("x")},
		{"no extension", "README", []byte("x")},
		{"oversize", "big.pdf", make([]byte, 11<<20)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ing.Upload(context.Background(), "u1", tc.filename, "application/octet-stream", tc.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}

	// Rejected uploads never leave a document behind.
	assert.Empty(t, db.docs)
}

func TestUpload_CreatesPendingDocument(t *testing.T) {
	db := newFakeDB()
	storage := &fakeStorage{}
	ing := newTestIngestor(db, storage, &fakeExtractor{}, &fakeEmbedder{}, newFakeIndex())

	doc, err := ing.Upload(context.Background(), "u1", "my report.pdf", "application/pdf", []byte("%PDF"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, doc.Status)
	assert.Equal(t, "my_report.pdf", doc.Filename)
	assert.Equal(t, "my report.pdf", doc.OriginalFilename)
	assert.Equal(t, "pdf", doc.FileType)
	assert.Equal(t, int64(4), doc.FileSize)
	assert.Contains(t, doc.StorageURL, "users/u1/documents/"+doc.ID)
	require.Len(t, storage.keys, 1)
}

func TestUpload_StorageFailureIsNotFatal(t *testing.T) {
	db := newFakeDB()
	ing := newTestIngestor(db, &fakeStorage{fail: true}, &fakeExtractor{}, &fakeEmbedder{}, newFakeIndex())

	doc, err := ing.Upload(context.Background(), "u1", "notes.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)
	assert.Empty(t, doc.StorageURL)
	assert.Equal(t, models.StatusPending, doc.Status)
}

func TestProcess_Success(t *testing.T) {
	db := newFakeDB()
	idx := newFakeIndex()
	text := strings.Repeat("alpha beta gamma. ", 300)
	ing := newTestIngestor(db, &fakeStorage{}, &fakeExtractor{text: text}, &fakeEmbedder{}, idx)

	doc := &models.Document{ID: "d1", UserID: "u1", Filename: "notes.txt", OriginalFilename: "notes.txt", FileType: "txt", FileSize: int64(len(text)), Status: models.StatusPending}
	require.NoError(t, db.CreateDocument(context.Background(), doc))

	ing.process(context.Background(), job{doc: doc, data: []byte(text)})

	stored := db.docs["d1"]
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Equal(t, []string{models.StatusProcessing, models.StatusCompleted}, db.statuses)
	require.NotEmpty(t, stored.VectorIDs)
	assert.Equal(t, stored.ChunkCount, len(stored.VectorIDs))
	assert.Equal(t, len(db.chunks), stored.ChunkCount)

	// Vector ids follow the documentID_chunk_index scheme and carry metadata.
	for n, id := range stored.VectorIDs {
		assert.Equal(t, fmt.Sprintf("d1_chunk_%d", n), id)
		rec, ok := idx.records[id]
		require.True(t, ok)
		assert.Equal(t, "u1", rec.Meta.UserID)
		assert.Equal(t, "d1", rec.Meta.DocumentID)
		assert.Equal(t, n, rec.Meta.ChunkIndex)
		assert.NotEmpty(t, rec.Meta.Text)
	}

	assert.Equal(t, int64(1), db.delta.Documents)
	assert.Equal(t, int64(len(text)), db.delta.StorageBytes)
}

func TestProcess_PartialEmbeddingKeepsCoveredChunks(t *testing.T) {
	db := newFakeDB()
	idx := newFakeIndex()
	text := strings.Repeat("first paragraph here. ", 120) + "\n\n" + strings.Repeat("second paragraph here. ", 120)
	all := chunker.New(1000, 200).Chunk(text)
	require.Greater(t, len(all), 1)

	ing := newTestIngestor(db, &fakeStorage{}, &fakeExtractor{text: text}, &fakeEmbedder{skip: map[int]bool{0: true}}, idx)

	doc := &models.Document{ID: "d1", UserID: "u1", Filename: "a.txt", OriginalFilename: "a.txt", FileType: "txt", Status: models.StatusPending}
	require.NoError(t, db.CreateDocument(context.Background(), doc))

	ing.process(context.Background(), job{doc: doc, data: []byte(text)})

	stored := db.docs["d1"]
	assert.Equal(t, models.StatusCompleted, stored.Status)

	// The first chunk was dropped by the embedder: its text is gone but the
	// persisted rows are renumbered so indices stay contiguous from zero.
	require.Len(t, db.chunks, len(all)-1)
	assert.Equal(t, len(all)-1, stored.ChunkCount)
	for n, row := range db.chunks {
		assert.Equal(t, n, row.ChunkIndex)
		assert.Equal(t, fmt.Sprintf("d1_chunk_%d", n), row.VectorID)
		assert.NotEqual(t, all[0].Text, row.Content)
		rec, ok := idx.records[row.VectorID]
		require.True(t, ok)
		assert.Equal(t, n, rec.Meta.ChunkIndex)
	}
}

func TestProcess_BoundsProviderCalls(t *testing.T) {
	db := newFakeDB()
	emb := &fakeEmbedder{}
	ing := newTestIngestor(db, &fakeStorage{}, &fakeExtractor{text: "plenty of text to chunk"}, emb, newFakeIndex())

	doc := &models.Document{ID: "d1", UserID: "u1", Filename: "a.txt", OriginalFilename: "a.txt", FileType: "txt", Status: models.StatusPending}
	require.NoError(t, db.CreateDocument(context.Background(), doc))

	// The worker context has no deadline; process must add one per document.
	ing.process(context.Background(), job{doc: doc, data: []byte("x")})
	assert.True(t, emb.sawDeadline)
}

func TestProcess_ExtractFailure(t *testing.T) {
	db := newFakeDB()
	idx := newFakeIndex()
	ing := newTestIngestor(db, &fakeStorage{}, &fakeExtractor{err: fmt.Errorf("%w: broken file", core.ErrExtraction)}, &fakeEmbedder{}, idx)

	doc := &models.Document{ID: "d1", UserID: "u1", Filename: "a.pdf", OriginalFilename: "a.pdf", FileType: "pdf", Status: models.StatusPending}
	require.NoError(t, db.CreateDocument(context.Background(), doc))

	ing.process(context.Background(), job{doc: doc, data: []byte("x")})

	stored := db.docs["d1"]
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "broken file")
	assert.Empty(t, idx.records)
	assert.Zero(t, db.delta.Documents)
}

func TestProcess_EmptyTextFails(t *testing.T) {
	db := newFakeDB()
	ing := newTestIngestor(db, &fakeStorage{}, &fakeExtractor{text: "   \n  "}, &fakeEmbedder{}, newFakeIndex())

	doc := &models.Document{ID: "d1", UserID: "u1", Filename: "a.txt", OriginalFilename: "a.txt", FileType: "txt", Status: models.StatusPending}
	require.NoError(t, db.CreateDocument(context.Background(), doc))

	ing.process(context.Background(), job{doc: doc, data: []byte(" ")})

	assert.Equal(t, models.StatusFailed, db.docs["d1"].Status)
}

func TestProcess_EmbedFailure(t *testing.T) {
	db := newFakeDB()
	ing := newTestIngestor(db, &fakeStorage{}, &fakeExtractor{text: "plenty of text to chunk"}, &fakeEmbedder{err: core.ErrEmbedding}, newFakeIndex())

	doc := &models.Document{ID: "d1", UserID: "u1", Filename: "a.txt", OriginalFilename: "a.txt", FileType: "txt", Status: models.StatusPending}
	require.NoError(t, db.CreateDocument(context.Background(), doc))

	ing.process(context.Background(), job{doc: doc, data: []byte("x")})

	stored := db.docs["d1"]
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)
}

func TestProcess_ChunkPersistFailureCleansUpVectors(t *testing.T) {
	db := newFakeDB()
	db.failChunk = true
	idx := newFakeIndex()
	ing := newTestIngestor(db, &fakeStorage{}, &fakeExtractor{text: "some extracted text"}, &fakeEmbedder{}, idx)

	doc := &models.Document{ID: "d1", UserID: "u1", Filename: "a.txt", OriginalFilename: "a.txt", FileType: "txt", Status: models.StatusPending}
	require.NoError(t, db.CreateDocument(context.Background(), doc))

	ing.process(context.Background(), job{doc: doc, data: []byte("x")})

	assert.Equal(t, models.StatusFailed, db.docs["d1"].Status)
	// Vectors written before the failure were rolled back.
	assert.Empty(t, idx.records)
	assert.NotEmpty(t, idx.deleted)
}

func TestRecover_RequeuesFromArchivedOriginal(t *testing.T) {
	db := newFakeDB()
	storage := &fakeStorage{getData: []byte("archived bytes")}
	ing := newTestIngestor(db, storage, &fakeExtractor{}, &fakeEmbedder{}, newFakeIndex())

	stranded := &models.Document{
		ID: "d1", UserID: "u1", Filename: "a.txt", OriginalFilename: "a.txt", FileType: "txt",
		Status:     models.StatusProcessing,
		StorageURL: "https://bucket.example.com/users/u1/documents/d1/a.txt",
	}
	done := &models.Document{ID: "d2", UserID: "u1", Status: models.StatusCompleted}
	require.NoError(t, db.CreateDocument(context.Background(), stranded))
	require.NoError(t, db.CreateDocument(context.Background(), done))

	require.NoError(t, ing.Recover(context.Background()))

	require.Len(t, ing.jobs, 1)
	j := <-ing.jobs
	assert.Equal(t, "d1", j.doc.ID)
	assert.Equal(t, []byte("archived bytes"), j.data)
	assert.Equal(t, []string{"users/u1/documents/d1/a.txt"}, storage.getKeys)
}

func TestRecover_FailsUnreplayableDocuments(t *testing.T) {
	db := newFakeDB()
	storage := &fakeStorage{getErr: errors.New("object gone")}
	ing := newTestIngestor(db, storage, &fakeExtractor{}, &fakeEmbedder{}, newFakeIndex())

	noArchive := &models.Document{ID: "d1", UserID: "u1", Status: models.StatusPending}
	lostArchive := &models.Document{
		ID: "d2", UserID: "u1", Status: models.StatusProcessing,
		StorageURL: "https://bucket.example.com/users/u1/documents/d2/b.txt",
	}
	require.NoError(t, db.CreateDocument(context.Background(), noArchive))
	require.NoError(t, db.CreateDocument(context.Background(), lostArchive))

	require.NoError(t, ing.Recover(context.Background()))

	assert.Empty(t, ing.jobs)
	assert.Equal(t, models.StatusFailed, db.docs["d1"].Status)
	assert.Contains(t, db.docs["d1"].ErrorMessage, "interrupted")
	assert.Equal(t, models.StatusFailed, db.docs["d2"].Status)
	assert.Contains(t, db.docs["d2"].ErrorMessage, "object gone")
}

func TestValidate_AcceptsAllowedTypes(t *testing.T) {
	ing := newTestIngestor(newFakeDB(), &fakeStorage{}, &fakeExtractor{}, &fakeEmbedder{}, newFakeIndex())

	for _, name := range []string{"a.pdf", "b.TXT", "c.docx", "d.doc"} {
		ext, err := ing.Validate(name, 100)
		require.NoError(t, err, name)
		assert.NotEmpty(t, ext)
	}
}
