package synthesis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ebailey78/scribe/internal/assert"
	"github.com/ebailey78/scribe/internal/testutils"
	"github.com/ebailey78/scribe/session"
)

var testStart = time.Date(2025, 3, 14, 9, 26, 53, 0, time.Local)

// genCall records one call into the fake generator.
type genCall struct {
	prompt      string
	contextText string
}

// fakeGenerator scripts completions keyed on the received prompt.
type fakeGenerator struct {
	mtx   sync.Mutex
	calls []genCall
	reply func(prompt, contextText string) (string, error)
}

func (g *fakeGenerator) Generate(_ context.Context, prompt,
	contextText string) (string, error) {

	g.mtx.Lock()
	g.calls = append(g.calls, genCall{prompt: prompt, contextText: contextText})
	reply := g.reply
	g.mtx.Unlock()
	if reply == nil {
		return "", errors.New("no reply scripted")
	}
	return reply(prompt, contextText)
}

func (g *fakeGenerator) callsFor(prompt string) []genCall {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	var res []genCall
	for _, c := range g.calls {
		if c.prompt == prompt {
			res = append(res, c)
		}
	}
	return res
}

func newTestSession(t testing.TB) *session.Session {
	t.Helper()
	root := testutils.TempTestDir(t, "scribe-synth")
	sess, err := session.New(root, testStart)
	assert.NilErr(t, err)
	return sess
}

// appendLines fills the session's raw transcript with one line per text,
// a minute apart.
func appendLines(t testing.TB, sess *session.Session, texts ...string) {
	t.Helper()
	ts := time.Date(2025, 3, 14, 9, 28, 1, 0, time.Local)
	for _, text := range texts {
		assert.NilErr(t, sess.AppendTranscript(ts, text))
		ts = ts.Add(time.Minute)
	}
}

// TestSynthesisPipeline tests the full pipeline: summary, title, one
// detailed block, final rename.
func TestSynthesisPipeline(t *testing.T) {
	t.Parallel()

	sess := newTestSession(t)
	appendLines(t, sess, "budget discussion", "closing remarks")

	gen := &fakeGenerator{reply: func(prompt, _ string) (string, error) {
		switch prompt {
		case summaryPrompt:
			return "A short budget sync.", nil
		case titlePrompt:
			return " Q3 Budget Review!\n", nil
		case detailPrompt:
			return "- budget approved", nil
		}
		return "", errors.New("unexpected prompt")
	}}

	syn, err := New(Config{
		Session:   sess,
		Generator: gen,
		Log:       testutils.TestLoggerSys(t, "SYNT"),
	})
	assert.NilErr(t, err)

	finalPath, err := syn.Run(context.Background())
	assert.NilErr(t, err)
	assert.DeepEqual(t, finalPath,
		filepath.Join(sess.BaseDir, "2025-03-14_Q3_Budget_Review.md"))

	// The live notes stream was consumed by the rename.
	if _, err := os.Stat(sess.NotesPath); !os.IsNotExist(err) {
		t.Fatal("live notes stream still present after rename")
	}

	data, err := os.ReadFile(finalPath)
	assert.NilErr(t, err)
	want := "# Q3 Budget Review\n\n" +
		"**Session**: " + sess.ID + "\n\n" +
		"A short budget sync.\n\n---\n\n" +
		"## [09:28 - 09:29] Discussion Segment\n\n" +
		"- budget approved\n"
	assert.DeepEqual(t, string(data), want)

	// The summary saw the whole transcript.
	calls := gen.callsFor(summaryPrompt)
	assert.DeepEqual(t, len(calls), 1)
	assert.StrContains(t, calls[0].contextText, "[09:28:01] budget discussion")
	assert.StrContains(t, calls[0].contextText, "[09:29:01] closing remarks")

	// The title generation saw the summary.
	calls = gen.callsFor(titlePrompt)
	assert.DeepEqual(t, len(calls), 1)
	assert.DeepEqual(t, calls[0].contextText, "A short budget sync.")
}

// TestSynthesisMultipleBlocks tests that long transcripts split into
// multiple timestamped blocks.
func TestSynthesisMultipleBlocks(t *testing.T) {
	t.Parallel()

	sess := newTestSession(t)
	// Each line carries ~600 words, forcing a block cut every two lines.
	longLine := strings.TrimSpace(strings.Repeat("word ", 600))
	appendLines(t, sess, longLine, longLine, longLine, longLine, "wrap up")

	var blockCtx []string
	var mtx sync.Mutex
	gen := &fakeGenerator{reply: func(prompt, contextText string) (string, error) {
		if prompt == detailPrompt {
			mtx.Lock()
			blockCtx = append(blockCtx, contextText)
			mtx.Unlock()
			return "- notes", nil
		}
		return "reply", nil
	}}

	syn, err := New(Config{
		Session:   sess,
		Generator: gen,
		Log:       testutils.TestLoggerSys(t, "SYNT"),
	})
	assert.NilErr(t, err)
	finalPath, err := syn.Run(context.Background())
	assert.NilErr(t, err)

	// 5 lines of ~600 words cut after every 2nd line: 3 blocks.
	assert.DeepEqual(t, len(blockCtx), 3)
	assert.StrContains(t, blockCtx[0], "[09:28:01]")
	assert.StrContains(t, blockCtx[2], "wrap up")

	data, err := os.ReadFile(finalPath)
	assert.NilErr(t, err)
	assert.StrContains(t, string(data), "## [09:28 - 09:29] Discussion Segment")
	assert.StrContains(t, string(data), "## [09:30 - 09:31] Discussion Segment")
	assert.StrContains(t, string(data), "## [09:32 - 09:32] Discussion Segment")
}

// TestSynthesisSummaryTruncation tests that oversized transcripts are cut
// before the summary call.
func TestSynthesisSummaryTruncation(t *testing.T) {
	t.Parallel()

	sess := newTestSession(t)
	longLine := strings.TrimSpace(strings.Repeat("word ", 3500))
	appendLines(t, sess, longLine, longLine)

	gen := &fakeGenerator{reply: func(prompt, _ string) (string, error) {
		return "reply", nil
	}}
	syn, err := New(Config{Session: sess, Generator: gen,
		Log: testutils.TestLoggerSys(t, "SYNT")})
	assert.NilErr(t, err)
	_, err = syn.Run(context.Background())
	assert.NilErr(t, err)

	calls := gen.callsFor(summaryPrompt)
	assert.DeepEqual(t, len(calls), 1)
	got := calls[0].contextText
	assert.BoolIs(t, strings.HasSuffix(got, "[... transcript continues ...]"), true)
	// 6000 words plus the truncation marker.
	assert.DeepEqual(t, len(strings.Fields(got)), 6004)
}

// TestSynthesisEmptyTranscript tests that sessions without speech are
// rejected.
func TestSynthesisEmptyTranscript(t *testing.T) {
	t.Parallel()

	sess := newTestSession(t)
	gen := &fakeGenerator{}
	syn, err := New(Config{Session: sess, Generator: gen})
	assert.NilErr(t, err)

	// Missing transcript file.
	_, err = syn.Run(context.Background())
	assert.NonNilErr(t, err)

	// Whitespace-only transcript.
	assert.NilErr(t, os.WriteFile(sess.TranscriptPath, []byte("  \n\n"), 0o600))
	_, err = syn.Run(context.Background())
	assert.ErrorIs(t, err, ErrEmptyTranscript)
	assert.DeepEqual(t, len(gen.calls), 0)
}

// TestSynthesisSummaryFailure tests that a failed summary call aborts
// before any notes are written.
func TestSynthesisSummaryFailure(t *testing.T) {
	t.Parallel()

	sess := newTestSession(t)
	appendLines(t, sess, "hello")

	genErr := errors.New("model not loaded")
	gen := &fakeGenerator{reply: func(string, string) (string, error) {
		return "", genErr
	}}
	syn, err := New(Config{Session: sess, Generator: gen})
	assert.NilErr(t, err)

	_, err = syn.Run(context.Background())
	assert.ErrorIs(t, err, genErr)
	if _, err := os.Stat(sess.NotesPath); !os.IsNotExist(err) {
		t.Fatal("notes written despite summary failure")
	}
}

// TestSynthesisTitleFallback tests that a failed title call falls back to
// the stock name instead of aborting.
func TestSynthesisTitleFallback(t *testing.T) {
	t.Parallel()

	sess := newTestSession(t)
	appendLines(t, sess, "hello")

	gen := &fakeGenerator{reply: func(prompt, _ string) (string, error) {
		if prompt == titlePrompt {
			return "", errors.New("timeout")
		}
		return "reply", nil
	}}
	syn, err := New(Config{Session: sess, Generator: gen,
		Log: testutils.TestLoggerSys(t, "SYNT")})
	assert.NilErr(t, err)

	finalPath, err := syn.Run(context.Background())
	assert.NilErr(t, err)
	assert.DeepEqual(t, filepath.Base(finalPath), "2025-03-14_Meeting_Notes.md")
}

// TestSynthesisBlockFailure tests that one failed block keeps its error
// marker while the rest of the notes are still generated.
func TestSynthesisBlockFailure(t *testing.T) {
	t.Parallel()

	sess := newTestSession(t)
	longLine := strings.TrimSpace(strings.Repeat("word ", 1000))
	appendLines(t, sess, longLine, "short coda")

	var blockCalls int
	var mtx sync.Mutex
	gen := &fakeGenerator{reply: func(prompt, _ string) (string, error) {
		if prompt != detailPrompt {
			return "reply", nil
		}
		mtx.Lock()
		blockCalls++
		n := blockCalls
		mtx.Unlock()
		if n == 1 {
			return "", errors.New("overloaded")
		}
		return "- recovered", nil
	}}
	syn, err := New(Config{Session: sess, Generator: gen,
		Log: testutils.TestLoggerSys(t, "SYNT")})
	assert.NilErr(t, err)

	finalPath, err := syn.Run(context.Background())
	assert.NilErr(t, err)

	data, err := os.ReadFile(finalPath)
	assert.NilErr(t, err)
	assert.StrContains(t, string(data), "[ERROR: could not generate notes: overloaded]")
	assert.StrContains(t, string(data), "- recovered")
}

// TestSynthesisPagesExport tests the optional copy into a Logseq pages
// directory.
func TestSynthesisPagesExport(t *testing.T) {
	t.Parallel()

	sess := newTestSession(t)
	appendLines(t, sess, "hello")
	pages := testutils.TempTestDir(t, "scribe-pages")

	gen := &fakeGenerator{reply: func(prompt, _ string) (string, error) {
		if prompt == titlePrompt {
			return "Standup", nil
		}
		return "reply", nil
	}}
	syn, err := New(Config{Session: sess, Generator: gen, PagesDir: pages,
		Log: testutils.TestLoggerSys(t, "SYNT")})
	assert.NilErr(t, err)

	finalPath, err := syn.Run(context.Background())
	assert.NilErr(t, err)
	assert.FileExists(t, filepath.Join(pages, filepath.Base(finalPath)))

	want, err := os.ReadFile(finalPath)
	assert.NilErr(t, err)
	got, err := os.ReadFile(filepath.Join(pages, filepath.Base(finalPath)))
	assert.NilErr(t, err)
	assert.DeepEqual(t, string(got), string(want))
}

// TestSynthesisMissingPagesDir tests that a missing pages dir only warns.
func TestSynthesisMissingPagesDir(t *testing.T) {
	t.Parallel()

	sess := newTestSession(t)
	appendLines(t, sess, "hello")

	gen := &fakeGenerator{reply: func(string, string) (string, error) {
		return "reply", nil
	}}
	syn, err := New(Config{Session: sess, Generator: gen,
		PagesDir: filepath.Join(sess.BaseDir, "no-such-dir"),
		Log:      testutils.TestLoggerSys(t, "SYNT")})
	assert.NilErr(t, err)

	_, err = syn.Run(context.Background())
	assert.NilErr(t, err)
}

// TestSanitizeTitle tests the title cleanup rules.
func TestSanitizeTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{{
		name: "plain",
		raw:  "Q3_Budget_Review",
		want: "Q3_Budget_Review",
	}, {
		name: "spaces and punctuation",
		raw:  " 'Project Alpha: Kickoff!' \n",
		want: "Project_Alpha_Kickoff",
	}, {
		name: "empty reply",
		raw:  "\n",
		want: "",
	}, {
		name: "over-long reply truncated",
		raw:  strings.Repeat("A", 80),
		want: strings.Repeat("A", 50),
	}}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.DeepEqual(t, sanitizeTitle(tc.raw), tc.want)
		})
	}
}

// TestSplitBlocks tests block sizing and time range extraction.
func TestSplitBlocks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		text       string
		wordsPer   int
		wantBlocks int
		wantRanges []string
	}{{
		name:       "single short block",
		text:       "[09:00:00] one two\n[09:05:30] three",
		wordsPer:   1000,
		wantBlocks: 1,
		wantRanges: []string{"[09:00 - 09:05]"},
	}, {
		name:       "cut on threshold",
		text:       "[09:00:00] a b c\n[09:10:00] d e f\n[09:20:00] g",
		wordsPer:   7,
		wantBlocks: 2,
		wantRanges: []string{"[09:00 - 09:10]", "[09:20 - 09:20]"},
	}, {
		name:       "no timestamps",
		text:       "free-form text without markers",
		wordsPer:   1000,
		wantBlocks: 1,
		wantRanges: []string{unknownRange},
	}}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			blocks := splitBlocks(tc.text, tc.wordsPer)
			assert.DeepEqual(t, len(blocks), tc.wantBlocks)
			for i, b := range blocks {
				assert.DeepEqual(t, b.timeRange, tc.wantRanges[i])
			}
		})
	}
}
