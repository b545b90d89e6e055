package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/decred/slog"
	"github.com/ebailey78/scribe/internal/audio"
)

// transcriptionsPath is the OpenAI-compatible endpoint served by
// faster-whisper-server, speaches, LocalAI and the hosted API alike.
const transcriptionsPath = "/v1/audio/transcriptions"

// whisperRequestTimeout bounds one transcription call. Segments are at
// most a couple of minutes of audio, but CPU-only servers decode slower
// than realtime.
const whisperRequestTimeout = 5 * time.Minute

// WhisperConfig holds the configuration of the whisper HTTP backend.
type WhisperConfig struct {
	// URL is the base address of the transcription server (for example
	// http://127.0.0.1:8000). The transcriptions endpoint path is
	// appended.
	URL string

	// Model is the model name requested from the server.
	Model string

	// Language optionally pins the transcription language instead of
	// having the server detect it per segment.
	Language string

	// APIKey is sent as a bearer token when set. Local servers
	// generally do not need one.
	APIKey string

	// HTTPClient defaults to a client with whisperRequestTimeout.
	HTTPClient *http.Client

	Log slog.Logger
}

// whisperHTTP transcribes by posting WAV-encoded segments to an
// OpenAI-compatible server.
type whisperHTTP struct {
	cfg WhisperConfig
	c   *http.Client
	log slog.Logger
}

// NewWhisperHTTP creates the production whisper backend.
func NewWhisperHTTP(cfg WhisperConfig) (Transcriber, error) {
	if cfg.URL == "" {
		return nil, errors.New("transcription server url not set")
	}
	c := cfg.HTTPClient
	if c == nil {
		c = &http.Client{Timeout: whisperRequestTimeout}
	}
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	return &whisperHTTP{cfg: cfg, c: c, log: log}, nil
}

// whisperResp is the verbose_json response shape. Servers that only
// return the bare text still fill the Text field.
type whisperResp struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Text string `json:"text"`
	} `json:"segments"`
}

func (w *whisperHTTP) Transcribe(ctx context.Context, samples []float32,
	sampleRate int, opts Options) ([]Segment, error) {

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"model":           w.cfg.Model,
		"response_format": "verbose_json",
		"vad_filter":      strconv.FormatBool(opts.VADFilter),
	}
	if opts.VocabularyHint != "" {
		fields["prompt"] = opts.VocabularyHint
	}
	if w.cfg.Language != "" {
		fields["language"] = w.cfg.Language
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("unable to write form field: %w", err)
		}
	}

	fw, err := mw.CreateFormFile("file", "segment.wav")
	if err != nil {
		return nil, fmt.Errorf("unable to create form file: %w", err)
	}
	if err := audio.EncodeWAV(fw, samples, sampleRate); err != nil {
		return nil, fmt.Errorf("unable to encode segment: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("unable to finish form: %w", err)
	}

	url := strings.TrimSuffix(w.cfg.URL, "/") + transcriptionsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("unable to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if w.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)
	}

	w.log.Debugf("Transcribing %.1fs of audio via %s",
		float64(len(samples))/float64(sampleRate), url)

	resp, err := w.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	b, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("unable to read transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcription server: %s: %s",
			http.StatusText(resp.StatusCode), errSnippet(b))
	}

	var wr whisperResp
	if err := json.Unmarshal(b, &wr); err != nil {
		return nil, fmt.Errorf("unable to decode transcription response: %w", err)
	}

	segs := make([]Segment, 0, len(wr.Segments))
	for _, s := range wr.Segments {
		segs = append(segs, Segment{Text: s.Text})
	}
	if len(segs) == 0 && strings.TrimSpace(wr.Text) != "" {
		segs = append(segs, Segment{Text: wr.Text})
	}
	return segs, nil
}

// errSnippet trims a response body for inclusion in an error message.
func errSnippet(b []byte) string {
	const maxLen = 256
	s := strings.TrimSpace(string(b))
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
