package synthesis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ebailey78/scribe/internal/assert"
	"github.com/ebailey78/scribe/internal/testutils"
)

// TestOllamaGenerate tests the request shape and response decoding of the
// ollama client.
func TestOllamaGenerate(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotReq generateReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter,
		r *http.Request) {

		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("unable to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"response": "\n## Notes\r\n- item\n\n",
			"done":     true,
		})
	}))
	defer srv.Close()

	gen := NewOllama(OllamaConfig{
		URL: srv.URL + "/",
		Log: testutils.TestLoggerSys(t, "SYNT"),
	})
	res, err := gen.Generate(context.Background(), "Summarize this.",
		"[09:00:00] hello")
	assert.NilErr(t, err)
	assert.DeepEqual(t, res, "## Notes\n- item")

	assert.DeepEqual(t, gotPath, "/api/generate")
	assert.DeepEqual(t, gotReq.Model, DefaultModel)
	assert.DeepEqual(t, gotReq.Prompt, "[09:00:00] hello\n\nSummarize this.")
	assert.BoolIs(t, gotReq.Stream, false)
	assert.StrContains(t, gotReq.System, "expert technical secretary")
}

// TestOllamaServerError tests that non-200 replies surface as errors.
func TestOllamaServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter,
		_ *http.Request) {

		http.Error(w, `{"error":"model 'qwen3:8b' not found"}`,
			http.StatusNotFound)
	}))
	defer srv.Close()

	gen := NewOllama(OllamaConfig{URL: srv.URL, Model: "qwen3:8b"})
	_, err := gen.Generate(context.Background(), "prompt", "context")
	assert.NonNilErr(t, err)
	assert.StrContains(t, err.Error(), "not found")
}

// TestOllamaCustomModel tests that a configured model name is sent.
func TestOllamaCustomModel(t *testing.T) {
	t.Parallel()

	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter,
		r *http.Request) {

		var req generateReq
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		json.NewEncoder(w).Encode(generateResp{Response: "ok"})
	}))
	defer srv.Close()

	gen := NewOllama(OllamaConfig{URL: srv.URL, Model: "llama3.2:3b"})
	_, err := gen.Generate(context.Background(), "p", "c")
	assert.NilErr(t, err)
	assert.DeepEqual(t, gotModel, "llama3.2:3b")
}

// TestOllamaUnreachable tests the error path when no server listens.
func TestOllamaUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter,
		*http.Request) {
	}))
	url := srv.URL
	srv.Close()

	gen := NewOllama(OllamaConfig{URL: url})
	_, err := gen.Generate(context.Background(), "p", "c")
	assert.NonNilErr(t, err)
	assert.BoolIs(t, strings.Contains(err.Error(), "unable to query ollama"), true)
}
