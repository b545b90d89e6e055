// Package e2etests exercises the whole recording pipeline against fake
// transcription and synthesis servers: capture batches go in one end,
// transcript, archived audio and meeting notes come out on disk.
package e2etests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ebailey78/scribe/internal/assert"
	"github.com/ebailey78/scribe/internal/audio"
	"github.com/ebailey78/scribe/internal/queue"
	"github.com/ebailey78/scribe/internal/testutils"
	"github.com/ebailey78/scribe/segmenter"
	"github.com/ebailey78/scribe/session"
	"github.com/ebailey78/scribe/transcribe"
)

// testRate keeps the synthetic meetings at the transcription rate so no
// resampling applies and sample counts assert exactly.
const testRate = 16000

// whisperCall records one request the fake transcription server saw.
type whisperCall struct {
	model   string
	prompt  string
	samples int
	rate    int
	failed  bool
}

// newFakeWhisper serves the OpenAI-compatible transcriptions endpoint.
// The first cfg.failures calls answer with a server error, later calls
// answer with the next entry of replies (the last one repeats).
func newFakeWhisper(t *testing.T, failures int, replies ...string) (*httptest.Server, chan whisperCall) {
	t.Helper()

	calls := make(chan whisperCall, 16)
	var mtx sync.Mutex
	var n int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected transcription path %q", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(64 << 20); err != nil {
			t.Errorf("unable to parse transcription form: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("transcription request without file: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		samples, rate, err := audio.DecodeWAV(f)
		f.Close()
		if err != nil {
			t.Errorf("unable to decode uploaded segment: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		mtx.Lock()
		idx := n
		n++
		mtx.Unlock()

		call := whisperCall{
			model:   r.FormValue("model"),
			prompt:  r.FormValue("prompt"),
			samples: len(samples),
			rate:    rate,
			failed:  idx < failures,
		}
		calls <- call

		if call.failed {
			http.Error(w, "model crashed", http.StatusInternalServerError)
			return
		}
		if len(replies) == 0 {
			t.Errorf("transcription call without a scripted reply")
			http.Error(w, "no reply", http.StatusInternalServerError)
			return
		}
		reply := replies[len(replies)-1]
		if ri := idx - failures; ri < len(replies) {
			reply = replies[ri]
		}
		resp := struct {
			Segments []struct {
				Text string `json:"text"`
			} `json:"segments"`
		}{Segments: []struct {
			Text string `json:"text"`
		}{{Text: reply}}}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

// newFakeOllama serves the generate endpoint, answering by the kind of
// prompt: the executive summary, the meeting title or the per-block
// detailed notes.
func newFakeOllama(t *testing.T, summary, title, detail string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected generate path %q", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("unable to decode generate request: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var resp string
		switch {
		case strings.Contains(req.Prompt, "Executive Summary"):
			resp = summary
		case strings.Contains(req.Prompt, "filename-safe title"):
			resp = title
		case strings.Contains(req.Prompt, "Summarize this segment"):
			resp = detail
		default:
			t.Errorf("unrecognized generate prompt: %q", req.Prompt)
		}
		json.NewEncoder(w).Encode(map[string]string{"response": resp})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// recorderScaffold wires a real segmentation driver, session and
// vocabulary against a fake transcription server for one test meeting.
type recorderScaffold struct {
	t    *testing.T
	root string
	sess *session.Session
	q    *queue.Queue[[]float32]
	drv  *segmenter.Driver

	whisperCalls chan whisperCall
	runErr       chan error
	cancel       context.CancelFunc
}

type scaffoldCfg struct {
	policy   segmenter.Policy
	failures int
	replies  []string
	jargon   string
}

func newRecorderScaffold(t *testing.T, cfg scaffoldCfg) *recorderScaffold {
	t.Helper()

	root := testutils.TempTestDir(t, "e2e")

	srv, calls := newFakeWhisper(t, cfg.failures, cfg.replies...)

	sess, err := session.New(filepath.Join(root, "sessions"), time.Now())
	assert.NilErr(t, err)

	jargonPath := filepath.Join(root, "jargon.txt")
	if cfg.jargon != "" {
		assert.NilErr(t, os.WriteFile(jargonPath, []byte(cfg.jargon), 0o600))
	}
	vocab := transcribe.NewVocabulary(jargonPath, testutils.TestLoggerSys(t, "TRNS"))

	tr, err := transcribe.NewWhisperHTTP(transcribe.WhisperConfig{
		URL:   srv.URL,
		Model: "large-v3",
		Log:   testutils.TestLoggerSys(t, "TRNS"),
	})
	assert.NilErr(t, err)

	if cfg.policy == (segmenter.Policy{}) {
		// Short segments keep the test meetings small.
		cfg.policy = segmenter.Policy{
			MinDuration:           2 * time.Second,
			MaxDuration:           10 * time.Second,
			SilenceThreshold:      segmenter.DefaultSilenceThreshold,
			SilenceTail:           segmenter.DefaultSilenceTail,
			SilenceChunkThreshold: segmenter.DefaultSilenceChunkThreshold,
			MaxSilentSegments:     100,
		}
	}

	q := queue.New[[]float32]()
	drv, err := segmenter.New(segmenter.Config{
		Queue:          q,
		Session:        sess,
		Transcriber:    tr,
		Vocabulary:     vocab,
		Policy:         cfg.policy,
		SampleRate:     testRate,
		TranscribeRate: testRate,
		Log:            testutils.TestLoggerSys(t, "SEGM"),
	})
	assert.NilErr(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ts := &recorderScaffold{
		t:            t,
		root:         root,
		sess:         sess,
		q:            q,
		drv:          drv,
		whisperCalls: calls,
		runErr:       make(chan error, 1),
		cancel:       cancel,
	}
	go func() { ts.runErr <- drv.Run(ctx) }()
	t.Cleanup(ts.cancel)
	return ts
}

// pushSpeech queues n samples of loud audio.
func (ts *recorderScaffold) pushSpeech(n int) {
	ts.q.Push(testutils.SineWave(n, 440, 0.5, testRate))
}

// pushQuiet queues n samples below every silence threshold.
func (ts *recorderScaffold) pushQuiet(n int) {
	ts.q.Push(testutils.ConstSamples(n, 0.001))
}

// stopAndWait ends the recording and waits for the driver to flush and
// finish.
func (ts *recorderScaffold) stopAndWait() {
	ts.t.Helper()
	ts.drv.Stop()
	assert.NilErrFromChan(ts.t, ts.runErr)
}

// chunkPath returns the path of the idx-th archived segment.
func (ts *recorderScaffold) chunkPath(idx int) string {
	return filepath.Join(ts.sess.AudioDir, fmt.Sprintf("chunk_%04d.wav", idx))
}
