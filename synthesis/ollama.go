package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/decred/slog"
	"github.com/ebailey78/scribe/internal/strescape"
)

const (
	generatePath = "/api/generate"

	// DefaultURL is the stock Ollama listen address.
	DefaultURL = "http://localhost:11434"

	// DefaultModel is the model used when the config names none.
	DefaultModel = "qwen3:8b"

	systemPrompt = "You are an expert technical secretary. Output strictly " +
		"in Logseq Markdown format."

	// Local generation on modest hardware is slow; individual calls get a
	// generous deadline.
	generateTimeout = 10 * time.Minute
)

// Generator produces model completions for the synthesis pipeline. prompt
// carries the instructions and contextText the material they apply to.
type Generator interface {
	Generate(ctx context.Context, prompt, contextText string) (string, error)
}

// OllamaConfig holds the ollama client configuration.
type OllamaConfig struct {
	// URL is the base address of the Ollama server. Defaults to
	// DefaultURL.
	URL string

	// Model selects the model to generate with. Defaults to DefaultModel.
	Model string

	// HTTPClient may replace the client used for requests.
	HTTPClient *http.Client

	Log slog.Logger
}

type ollamaClient struct {
	url   string
	model string
	c     *http.Client
	log   slog.Logger
}

// NewOllama creates a Generator backed by an Ollama server.
func NewOllama(cfg OllamaConfig) Generator {
	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}
	c := cfg.HTTPClient
	if c == nil {
		c = &http.Client{Timeout: generateTimeout}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	return &ollamaClient{
		url:   strings.TrimSuffix(url, "/"),
		model: model,
		c:     c,
		log:   log,
	}
}

type generateReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	System string `json:"system"`
}

type generateResp struct {
	Response string `json:"response"`
}

func (o *ollamaClient) Generate(ctx context.Context, prompt,
	contextText string) (string, error) {

	body, err := json.Marshal(generateReq{
		Model:  o.model,
		Prompt: contextText + "\n\n" + prompt,
		Stream: false,
		System: systemPrompt,
	})
	if err != nil {
		return "", err
	}

	url := o.url + generatePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url,
		bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	o.log.Debugf("Generating with %s (%d byte prompt)", o.model, len(body))
	resp, err := o.c.Do(req)
	if err != nil {
		return "", fmt.Errorf("unable to query ollama: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("unable to read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama request failed: %s: %s",
			resp.Status, errSnippet(data))
	}

	var gr generateResp
	if err := json.Unmarshal(data, &gr); err != nil {
		return "", fmt.Errorf("unable to decode ollama response: %w", err)
	}

	// Models pad replies with blank lines and occasionally CRLFs, both of
	// which mangle the assembled markdown.
	return strings.TrimSpace(strescape.CannonicalizeNL(gr.Response)), nil
}

// errSnippet trims an error body for inclusion in an error message.
func errSnippet(data []byte) string {
	const maxLen = 256
	s := strings.TrimSpace(string(data))
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
