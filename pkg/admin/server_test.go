package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenli/memekeeper/pkg/store"
)

type fakeConfigProvider struct {
	snapshot  json.RawMessage
	updated   json.RawMessage
	updateErr error
}

func (f *fakeConfigProvider) Snapshot() (json.RawMessage, error) {
	return f.snapshot, nil
}

func (f *fakeConfigProvider) Update(raw json.RawMessage) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = raw
	return nil
}

func newTestServer(t *testing.T) (*Server, *store.Store, *fakeConfigProvider) {
	t.Helper()

	st, err := store.Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	configs := &fakeConfigProvider{snapshot: json.RawMessage(`{"data_dir":"/tmp"}`)}

	s, err := NewServer(ServerOptions{}, st, configs, nil, zerolog.Nop())
	require.NoError(t, err)

	return s, st, configs
}

func seedRecord(t *testing.T, st *store.Store, payload, tags string) *store.Record {
	t.Helper()
	rec, err := st.Create(store.CreateParams{
		Payload: []byte(payload),
		TagText: tags,
		Source:  store.SourceManual,
	})
	require.NoError(t, err)
	return rec
}

func multipartUpload(t *testing.T, tags string, filename string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if tags != "" {
		require.NoError(t, writer.WriteField("tags", tags))
	}
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(payload)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func TestNewServer(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, _, _ := newTestServer(t)
		assert.Equal(t, 5000, s.options.Port)
		assert.Equal(t, "0.0.0.0", s.options.Host)
		assert.Equal(t, int64(defaultMaxUploadSize), s.options.MaxUploadSize)
	})

	t.Run("nil store", func(t *testing.T) {
		_, err := NewServer(ServerOptions{}, nil, &fakeConfigProvider{}, nil, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("nil config provider", func(t *testing.T) {
		st, err := store.Open(t.TempDir(), zerolog.Nop())
		require.NoError(t, err)
		_, err = NewServer(ServerOptions{}, st, nil, nil, zerolog.Nop())
		assert.Error(t, err)
	})
}

func TestHandleUpload(t *testing.T) {
	t.Run("successful upload", func(t *testing.T) {
		s, st, _ := newTestServer(t)

		body, contentType := multipartUpload(t, "dog:reaction to good news", "dog.jpg", []byte("image-bytes"))
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()

		s.handleUpload(w, req)

		require.Equal(t, http.StatusCreated, w.Code)

		var resp UploadResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "dog.jpg", resp.ID)
		assert.Equal(t, "dog:reaction to good news", resp.Tags)
		assert.Equal(t, 1, st.Count())
	})

	t.Run("duplicate content", func(t *testing.T) {
		s, st, _ := newTestServer(t)
		seedRecord(t, st, "same-bytes", "cat:whatever")

		body, contentType := multipartUpload(t, "cat:again", "cat.jpg", []byte("same-bytes"))
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()

		s.handleUpload(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("missing tags", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		body, contentType := multipartUpload(t, "", "dog.jpg", []byte("image-bytes"))
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()

		s.handleUpload(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		body, contentType := multipartUpload(t, "dog:something", "", nil)
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()

		s.handleUpload(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/upload", nil)
		w := httptest.NewRecorder()

		s.handleUpload(w, req)

		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestHandleDelete(t *testing.T) {
	t.Run("delete existing record", func(t *testing.T) {
		s, st, _ := newTestServer(t)
		rec := seedRecord(t, st, "payload", "dog:reaction")

		body, _ := json.Marshal(DeleteRequest{ID: rec.ID})
		req := httptest.NewRequest(http.MethodPost, "/delete", bytes.NewReader(body))
		w := httptest.NewRecorder()

		s.handleDelete(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, st.Count())
	})

	t.Run("unknown id", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		body, _ := json.Marshal(DeleteRequest{ID: "nope.jpg"})
		req := httptest.NewRequest(http.MethodPost, "/delete", bytes.NewReader(body))
		w := httptest.NewRecorder()

		s.handleDelete(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing id", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/delete", strings.NewReader(`{}`))
		w := httptest.NewRecorder()

		s.handleDelete(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleBatchDelete(t *testing.T) {
	s, st, _ := newTestServer(t)
	rec1 := seedRecord(t, st, "payload-1", "dog:one")
	rec2 := seedRecord(t, st, "payload-2", "cat:two")

	body, _ := json.Marshal(BatchDeleteRequest{IDs: []string{rec1.ID, "ghost.jpg", rec2.ID}})
	req := httptest.NewRequest(http.MethodPost, "/batch_delete", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleBatchDelete(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp BatchDeleteResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.ElementsMatch(t, []string{rec1.ID, rec2.ID}, resp.Deleted)
	assert.Equal(t, []string{"ghost.jpg"}, resp.Missing)
	assert.Equal(t, 0, st.Count())
}

func TestHandleUpdateTag(t *testing.T) {
	t.Run("update existing record", func(t *testing.T) {
		s, st, _ := newTestServer(t)
		rec := seedRecord(t, st, "payload", "dog:old description")

		body, _ := json.Marshal(UpdateTagRequest{ID: rec.ID, Tags: "dog:new description"})
		req := httptest.NewRequest(http.MethodPost, "/update_tag", bytes.NewReader(body))
		w := httptest.NewRecorder()

		s.handleUpdateTag(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		updated, err := st.Get(rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "dog:new description", updated.TagText)
	})

	t.Run("empty tags rejected", func(t *testing.T) {
		s, st, _ := newTestServer(t)
		rec := seedRecord(t, st, "payload", "dog:old")

		body, _ := json.Marshal(UpdateTagRequest{ID: rec.ID, Tags: "   "})
		req := httptest.NewRequest(http.MethodPost, "/update_tag", bytes.NewReader(body))
		w := httptest.NewRecorder()

		s.handleUpdateTag(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		body, _ := json.Marshal(UpdateTagRequest{ID: "nope.jpg", Tags: "cat:x"})
		req := httptest.NewRequest(http.MethodPost, "/update_tag", bytes.NewReader(body))
		w := httptest.NewRecorder()

		s.handleUpdateTag(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleList(t *testing.T) {
	s, st, _ := newTestServer(t)
	seedRecord(t, st, "payload-1", "dog:one")
	seedRecord(t, st, "payload-2", "cat:two")

	req := httptest.NewRequest(http.MethodGet, "/list", nil)
	w := httptest.NewRecorder()

	s.handleList(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp ListResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Records, 2)
	assert.NotEmpty(t, resp.Records[0].ID)
	assert.NotEmpty(t, resp.Records[0].Hash)
	assert.Equal(t, "manual", resp.Records[0].Source)
}

func TestHandleConfig(t *testing.T) {
	t.Run("get config", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/get_config", nil)
		w := httptest.NewRecorder()

		s.handleGetConfig(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data_dir":"/tmp"}`, w.Body.String())
	})

	t.Run("valid update", func(t *testing.T) {
		s, _, configs := newTestServer(t)

		doc := `{"ingest":{"cooldown_seconds":60},"reply":{"probability":0.5}}`
		req := httptest.NewRequest(http.MethodPost, "/update_config", strings.NewReader(doc))
		w := httptest.NewRecorder()

		s.handleUpdateConfig(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, doc, string(configs.updated))
	})

	t.Run("schema violation", func(t *testing.T) {
		s, _, configs := newTestServer(t)

		doc := `{"reply":{"probability":3}}`
		req := httptest.NewRequest(http.MethodPost, "/update_config", strings.NewReader(doc))
		w := httptest.NewRecorder()

		s.handleUpdateConfig(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, configs.updated)
	})

	t.Run("provider rejection", func(t *testing.T) {
		s, _, configs := newTestServer(t)
		configs.updateErr = fmt.Errorf("api key missing")

		doc := `{"ingest":{"cooldown_seconds":10}}`
		req := httptest.NewRequest(http.MethodPost, "/update_config", strings.NewReader(doc))
		w := httptest.NewRecorder()

		s.handleUpdateConfig(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestHandleImage(t *testing.T) {
	t.Run("serve stored payload", func(t *testing.T) {
		s, st, _ := newTestServer(t)
		rec := seedRecord(t, st, "jpeg-bytes", "dog:one")

		req := httptest.NewRequest(http.MethodGet, "/images/"+rec.ID, nil)
		w := httptest.NewRecorder()

		s.handleImage(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "jpeg-bytes", w.Body.String())
	})

	t.Run("unknown id", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/images/ghost.jpg", nil)
		w := httptest.NewRecorder()

		s.handleImage(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("path traversal rejected", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/images/..%2Fmemes.json", nil)
		w := httptest.NewRecorder()

		s.handleImage(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleHealth(t *testing.T) {
	s, st, _ := newTestServer(t)
	seedRecord(t, st, "payload", "dog:one")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, float64(1), resp["records"])
}

func TestWrapObserver(t *testing.T) {
	var gotEndpoint string
	var gotStatus int

	st, err := store.Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	s, err := NewServer(ServerOptions{
		Observer: func(endpoint string, status int) {
			gotEndpoint = endpoint
			gotStatus = status
		},
	}, st, &fakeConfigProvider{snapshot: json.RawMessage(`{}`)}, nil, zerolog.Nop())
	require.NoError(t, err)

	handler := s.wrap("/list", s.handleList)
	req := httptest.NewRequest(http.MethodGet, "/list", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	assert.Equal(t, "/list", gotEndpoint)
	assert.Equal(t, http.StatusOK, gotStatus)
}

func TestValidateConfigJSON(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		assert.NoError(t, ValidateConfigJSON([]byte(`{"ai":{"provider":"openai"}}`)))
	})

	t.Run("unknown top-level key", func(t *testing.T) {
		assert.Error(t, ValidateConfigJSON([]byte(`{"bogus":true}`)))
	})

	t.Run("bad provider enum", func(t *testing.T) {
		assert.Error(t, ValidateConfigJSON([]byte(`{"ai":{"provider":"llama"}}`)))
	})

	t.Run("not json", func(t *testing.T) {
		assert.Error(t, ValidateConfigJSON([]byte(`not json`)))
	})
}
