package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmsops/mms-ingest/internal/archive"
	"github.com/mmsops/mms-ingest/internal/objectstore"
	"github.com/mmsops/mms-ingest/internal/queue"
	"github.com/mmsops/mms-ingest/internal/schema"
	"github.com/mmsops/mms-ingest/internal/session"
)

const testAPIKey = "test-key"

type testServer struct {
	srv      *Server
	sessions *session.Manager
	queue    *queue.Queue
	objects  *objectstore.MemoryStore
	archives *archive.Coordinator
	registry *schema.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	sessions := session.NewManager(session.NewMemoryStore())
	q := queue.New(queue.NewMemoryStore(), sessions, time.Minute)
	objects := objectstore.NewMemoryStore()
	archives := archive.NewCoordinator(archive.NewMemoryStore(), sessions, objects)
	registry := schema.DefaultRegistry()

	srv := New(Config{
		Addr:          ":0",
		APIKey:        testAPIKey,
		Environment:   "test",
		MaxConcurrent: 4,
	}, Deps{
		Sessions: sessions,
		Queue:    q,
		Registry: registry,
		Archives: archives,
		Objects:  objects,
	})
	return &testServer{srv: srv, sessions: sessions, queue: q, objects: objects, archives: archives, registry: registry}
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("X-API-Key", testAPIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) doJSON(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return ts.do(t, method, path, body, "application/json")
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func multipartBody(t *testing.T, fileField, filename string, content []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile(fileField, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestAPIKey_Required(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/uploader/ping", nil)
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays open for probes.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPing(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/uploader/ping", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["environment"])
}

func TestBatchStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/uploader/batch-status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	q, ok := body["queue"].(map[string]any)
	require.True(t, ok, "missing queue object")
	assert.Contains(t, q, "active")
	assert.Contains(t, q, "waiting")
	assert.Contains(t, q, "completed")
	assert.Contains(t, q, "failed")
	assert.Equal(t, float64(4), body["maxConcurrent"])
	assert.Equal(t, false, body["isBusy"])
}

func TestStartUpload(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.doJSON(t, http.MethodPost, "/api/uploader/start", map[string]any{
		"fileName": "BANK_TDDF_2400_07112025_001.TSYSO",
		"fileSize": 1024,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	id, err := uuid.Parse(body["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "started", body["phase"])

	sess, err := ts.sessions.Store().Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseStarted, sess.Phase)
}

func TestStartUpload_MissingFileName(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.doJSON(t, http.MethodPost, "/api/uploader/start", map[string]any{"fileSize": 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func startSession(t *testing.T, ts *testServer) uuid.UUID {
	t.Helper()
	rec := ts.doJSON(t, http.MethodPost, "/api/uploader/start", map[string]any{
		"fileName": "BANK_TDDF_2400_07112025_001.TSYSO",
		"fileSize": 64,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	id, err := uuid.Parse(body["id"].(string))
	require.NoError(t, err)
	return id
}

func TestUpload_WholeFile(t *testing.T) {
	ts := newTestServer(t)
	id := startSession(t, ts)
	content := []byte("DT line one\nDT line two\n")

	body, contentType := multipartBody(t, "file", "x.TSYSO", content, nil)
	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/uploader/%s/upload", id), body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sess, err := ts.sessions.Store().Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseUploaded, sess.Phase)
	assert.Equal(t, 100, sess.UploadProgress)
	assert.NotEmpty(t, sess.StorageKey)

	rc, err := ts.objects.Get(context.Background(), sess.StorageKey)
	require.NoError(t, err)
	stored, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, content, stored)

	// Upload completion queues the file for processing.
	it, err := ts.queue.Store().Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusWaiting, it.Status)
}

func TestUpload_Chunked(t *testing.T) {
	ts := newTestServer(t)
	id := startSession(t, ts)
	chunks := [][]byte{[]byte("first-"), []byte("second-"), []byte("third")}

	// Send the middle chunk first; assembly must not depend on order.
	order := []int{1, 0, 2}
	for sent, idx := range order {
		body, contentType := multipartBody(t, "chunk", "chunk", chunks[idx], map[string]string{
			"chunkIndex":  fmt.Sprint(idx),
			"totalChunks": "3",
		})
		rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/uploader/%s/upload-chunk", id), body, contentType)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		if sent < len(order)-1 {
			progress := decodeBody[map[string]any](t, rec)
			assert.Equal(t, float64((sent+1)*100/3), progress["progress"])
		}
	}

	sess, err := ts.sessions.Store().Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseUploaded, sess.Phase)

	rc, err := ts.objects.Get(context.Background(), sess.StorageKey)
	require.NoError(t, err)
	stored, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "first-second-third", string(stored))
}

func TestUploadChunk_BadIndex(t *testing.T) {
	ts := newTestServer(t)
	id := startSession(t, ts)

	body, contentType := multipartBody(t, "chunk", "chunk", []byte("x"), map[string]string{
		"chunkIndex":  "5",
		"totalChunks": "3",
	})
	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/uploader/%s/upload-chunk", id), body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSessions_FilterAndPaginate(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := ts.sessions.Start(ctx, fmt.Sprintf("file-%d.TSYSO", i), 10, "TDDF", "tok", false)
		require.NoError(t, err)
	}
	_, err := ts.sessions.Start(ctx, "other.txt", 10, "ACH", "tok", false)
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/sessions?fileType=TDDF&limit=2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[struct {
		Sessions []session.Session `json:"sessions"`
		Total    int               `json:"total"`
	}](t, rec)
	assert.Equal(t, 3, body.Total)
	assert.Len(t, body.Sessions, 2)
}

func TestReprocess(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	s, err := ts.sessions.Start(ctx, "f.TSYSO", 10, "TDDF", "tok", false)
	require.NoError(t, err)
	_, err = ts.sessions.Fail(ctx, s.ID, 3, "decode aborted")
	require.NoError(t, err)

	rec := ts.doJSON(t, http.MethodPost, fmt.Sprintf("/api/sessions/%s/reprocess", s.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := ts.sessions.Store().Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseStarted, got.Phase)
	assert.Equal(t, 0, got.Attempts)

	it, err := ts.queue.Store().Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.DefaultPriority, it.Priority)
	assert.Equal(t, 0, it.Attempts)
}

func TestReprocess_NotFailed(t *testing.T) {
	ts := newTestServer(t)
	s, err := ts.sessions.Start(context.Background(), "f.TSYSO", 10, "TDDF", "tok", false)
	require.NoError(t, err)

	rec := ts.doJSON(t, http.MethodPost, fmt.Sprintf("/api/sessions/%s/reprocess", s.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBulkDelete(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	a, err := ts.sessions.Start(ctx, "a.TSYSO", 10, "TDDF", "tok", false)
	require.NoError(t, err)
	b, err := ts.sessions.Start(ctx, "b.TSYSO", 10, "TDDF", "tok", false)
	require.NoError(t, err)

	rec := ts.doJSON(t, http.MethodPost, "/api/sessions/bulk-delete", map[string]any{
		"ids": []string{a.ID.String(), b.ID.String()},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]int](t, rec)
	assert.Equal(t, 2, body["deleted"])

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/sessions/%s", a.ID), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStep6Batch(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	s, err := ts.sessions.Start(ctx, "BANK_TDDF_2400_07112025_001.TSYSO", 10, "TDDF", "tok", false)
	require.NoError(t, err)
	_, err = ts.sessions.Advance(ctx, s.ID, session.PhaseUploading, session.Update{})
	require.NoError(t, err)
	require.NoError(t, ts.sessions.Store().SetProgress(ctx, s.ID, 100))
	for _, p := range []session.Phase{session.PhaseUploaded, session.PhaseIdentified, session.PhaseEncoding, session.PhaseEncoded} {
		_, err = ts.sessions.Advance(ctx, s.ID, p, session.Update{})
		require.NoError(t, err)
	}
	require.NoError(t, ts.objects.Put(ctx, objectstore.UploadKey(s.ID.String()), strings.NewReader("DT\n")))
	_, err = ts.archives.Archive(ctx, s.ID)
	require.NoError(t, err)

	rec := ts.doJSON(t, http.MethodPost, "/api/sessions/step6", map[string]any{
		"fileIds": []string{s.ID.String()},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[map[string]int](t, rec)
	assert.Equal(t, 1, body["completed"])
}

func TestCreateSchema(t *testing.T) {
	ts := newTestServer(t)

	doc := `{
		"name": "custom-tddf-v9",
		"file_type": "TDDF",
		"version": 9,
		"is_active": true,
		"record_types": {
			"DT": {"width": 60, "fields": [
				{"name": "merchant", "start": 2, "length": 16, "kind": "string"},
				{"name": "amount", "start": 18, "length": 11, "kind": "fixedDecimal", "scale": 2}
			]}
		}
	}`
	rec := ts.do(t, http.MethodPost, "/api/schemas", strings.NewReader(doc), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The new active version resolves as latest.
	resolved, err := ts.registry.Resolve(schema.FileTypeTDDF, 0)
	require.NoError(t, err)
	assert.Equal(t, 9, resolved.Version)
}

func TestCreateSchema_Invalid(t *testing.T) {
	ts := newTestServer(t)

	doc := `{"name": "x", "file_type": "T", "version": 1, "record_types": {}}`
	rec := ts.do(t, http.MethodPost, "/api/schemas", strings.NewReader(doc), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchemaActivation(t *testing.T) {
	ts := newTestServer(t)

	var target *schema.Schema
	for _, s := range ts.registry.List() {
		if s.FileType == schema.FileTypeTDDF {
			target = s
		}
	}
	require.NotNil(t, target)

	rec := ts.doJSON(t, http.MethodPost, fmt.Sprintf("/api/schemas/%s/deactivate", target.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := ts.registry.Resolve(schema.FileTypeTDDF, 0)
	assert.Error(t, err, "no active TDDF schema should remain")

	rec = ts.doJSON(t, http.MethodPost, fmt.Sprintf("/api/schemas/%s/activate", target.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err = ts.registry.Resolve(schema.FileTypeTDDF, 0)
	assert.NoError(t, err)
}

func TestListArchives(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, ts.archives.Store().Save(ctx, &archive.Entry{
		FileID:          uuid.New(),
		ArchiveFilename: "a.TSYSO",
		ArchiveStatus:   archive.StatusArchived,
		Step6Status:     archive.Step6Pending,
		BusinessDay:     "2025-07-11",
	}))
	require.NoError(t, ts.archives.Store().Save(ctx, &archive.Entry{
		FileID:          uuid.New(),
		ArchiveFilename: "b.TSYSO",
		ArchiveStatus:   archive.StatusArchived,
		Step6Status:     archive.Step6Completed,
		BusinessDay:     "2025-07-14",
	}))

	rec := ts.do(t, http.MethodGet, "/api/archives?step6Status=pending", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[struct {
		Archives []archive.Entry `json:"archives"`
	}](t, rec)
	require.Len(t, body.Archives, 1)
	assert.Equal(t, "a.TSYSO", body.Archives[0].ArchiveFilename)
}

func TestBulkDelete_DropsPartialUpload(t *testing.T) {
	ts := newTestServer(t)
	id := startSession(t, ts)

	body, contentType := multipartBody(t, "chunk", "chunk", []byte("partial"), map[string]string{
		"chunkIndex":  "0",
		"totalChunks": "3",
	})
	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/uploader/%s/upload-chunk", id), body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.doJSON(t, http.MethodPost, "/api/sessions/bulk-delete", map[string]any{
		"ids": []string{id.String()},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	ts.srv.uploads.mu.Lock()
	_, held := ts.srv.uploads.pending[id]
	ts.srv.uploads.mu.Unlock()
	assert.False(t, held, "chunk state should be discarded on delete")
}
