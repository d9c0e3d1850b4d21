package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tender-analyzer/internal/analysis"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	svc, err := New(Config{APIKey: "test-key", BaseURL: ts.URL, MaxRetries: 0}, nil)
	require.NoError(t, err)
	return svc
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	require.Error(t, err)
}

func TestUpload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ТС.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))

	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/files")
		assert.Contains(t, r.Header.Get("anthropic-beta"), "files-api-2025-04-14")
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))

		file, header, err := r.FormFile("file")
		if assert.NoError(t, err) {
			body, _ := io.ReadAll(file)
			assert.Equal(t, "%PDF-1.4", string(body))
			assert.Equal(t, "ТС.pdf", header.Filename)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":         "file_011",
			"type":       "file",
			"filename":   "ТС.pdf",
			"mime_type":  "application/pdf",
			"size_bytes": 8,
			"created_at": "2025-11-01T10:00:00Z",
		})
	})

	handle, err := svc.Upload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, analysis.FileHandle{ID: "file_011", Name: "ТС.pdf"}, handle)
}

func TestUploadMissingFile(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	_, err := svc.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/messages")
		raw, _ := io.ReadAll(r.Body)
		body := string(raw)
		assert.Contains(t, body, `"file_id":"file_1"`)
		assert.Contains(t, body, `"file_id":"file_2"`)
		assert.Contains(t, body, `"type":"document"`)
		assert.Contains(t, body, `"type":"file"`)
		assert.Contains(t, body, "проанализируй")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":   "msg_1",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": "Часть 1. "},
				{"type": "text", "text": "Часть 2."},
			},
			"model":       DefaultModel,
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 100, "output_tokens": 20},
		})
	})

	text, err := svc.Generate(context.Background(), "проанализируй", []analysis.FileHandle{{ID: "file_1"}, {ID: "file_2"}})
	require.NoError(t, err)
	assert.Equal(t, "Часть 1. Часть 2.", text)
}

func TestGenerateWrapsAPIError(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad file"}}`))
	})

	_, err := svc.Generate(context.Background(), "prompt", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
}
