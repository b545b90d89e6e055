// Package synthesis turns a finished session's raw transcript into
// structured meeting notes through a local language model: an executive
// summary, a short meeting title and per-block detailed notes, assembled
// into a single Logseq-flavored Markdown file named after the meeting.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/decred/slog"
	"github.com/ebailey78/scribe/internal/strescape"
	"github.com/ebailey78/scribe/session"
)

const (
	// summaryContextWords caps how much of the transcript is handed to
	// the summary generation call.
	summaryContextWords = 6000

	// blockWords is the approximate size of one detailed-notes block.
	blockWords = 1000

	titleMaxLen   = 50
	fallbackTitle = "Meeting_Notes"
	unknownRange  = "[Unknown Time]"
)

const summaryPrompt = `Analyze this meeting transcript and provide:

1. **Executive Summary** (2-3 sentences): What was this meeting about?
2. **Participants** (if identifiable from the text, otherwise write "Unknown")
3. **Key Topics Discussed** (3-5 bullet points)

Format the output in clean Logseq Markdown.`

const titlePrompt = `Based on the summary above, generate a short, ` +
	`memorable, filename-safe title (max 5 words). Use underscores. ` +
	`Example: 'Q3_Budget_Review' or 'Project_Alpha_Kickoff'. Output ONLY ` +
	`the title, no explanation.`

const detailPrompt = `Summarize this segment of a meeting transcript:

Extract and organize:
- **Key Points** (bullet points)
- **Decisions Made** (if any)
- **Action Items** (if any)
- **Technical Terms / Acronyms** (define if possible)

Output in Logseq Markdown format with proper heading levels.`

// ErrEmptyTranscript is returned when the session has no transcribed
// speech to synthesize from.
var ErrEmptyTranscript = errors.New("transcript is empty")

// Config holds the synthesizer configuration.
type Config struct {
	// Session is the recorded session to synthesize notes for.
	Session *session.Session

	// Generator produces the model completions.
	Generator Generator

	// PagesDir optionally names a Logseq pages directory that receives a
	// copy of the final notes file.
	PagesDir string

	Log slog.Logger
}

// Synthesizer runs the note synthesis pipeline over one session.
type Synthesizer struct {
	sess     *session.Session
	gen      Generator
	pagesDir string
	log      slog.Logger
}

// New creates a Synthesizer for the given session.
func New(cfg Config) (*Synthesizer, error) {
	if cfg.Session == nil {
		return nil, errors.New("synthesizer requires a session")
	}
	if cfg.Generator == nil {
		return nil, errors.New("synthesizer requires a generator")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	return &Synthesizer{
		sess:     cfg.Session,
		gen:      cfg.Generator,
		pagesDir: cfg.PagesDir,
		log:      log,
	}, nil
}

// Run executes the pipeline and returns the path of the final notes file.
// The live notes stream of the session is replaced by the synthesized
// document and renamed to "<date>_<title>.md".
func (s *Synthesizer) Run(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.sess.TranscriptPath)
	if err != nil {
		return "", fmt.Errorf("unable to read transcript: %w", err)
	}
	transcript := strings.TrimSpace(string(data))
	if transcript == "" {
		return "", ErrEmptyTranscript
	}

	s.log.Infof("Generating executive summary for session %s", s.sess.ID)
	summary, err := s.gen.Generate(ctx, summaryPrompt,
		truncateWords(transcript, summaryContextWords))
	if err != nil {
		return "", fmt.Errorf("unable to generate summary: %w", err)
	}

	s.log.Infof("Generating meeting title")
	title := fallbackTitle
	rawTitle, err := s.gen.Generate(ctx, titlePrompt, summary)
	if err != nil {
		s.log.Warnf("Unable to generate title, using %q: %v", title, err)
	} else if t := sanitizeTitle(rawTitle); t != "" {
		title = t
	}

	if err := s.writeNotes(ctx, transcript, title, summary); err != nil {
		return "", err
	}

	finalPath := filepath.Join(s.sess.BaseDir,
		s.sess.Date()+"_"+title+".md")
	if err := os.Rename(s.sess.NotesPath, finalPath); err != nil {
		s.log.Warnf("Unable to rename notes file: %v", err)
		finalPath = s.sess.NotesPath
	}

	if s.pagesDir != "" {
		s.exportPages(finalPath)
	}

	s.log.Infof("Synthesis complete: %s", finalPath)
	return finalPath, nil
}

// writeNotes assembles the notes document in place of the session's live
// notes stream: header and summary first, then per-block detailed notes,
// so an interrupted run still leaves the finished blocks on disk.
func (s *Synthesizer) writeNotes(ctx context.Context, transcript, title,
	summary string) error {

	f, err := os.OpenFile(s.sess.NotesPath,
		os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("unable to create notes file: %w", err)
	}
	if err := s.writeNotesTo(ctx, f, transcript, title, summary); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Synthesizer) writeNotesTo(ctx context.Context, f *os.File,
	transcript, title, summary string) error {

	_, err := fmt.Fprintf(f, "# %s\n\n**Session**: %s\n\n%s\n\n---\n",
		strings.ReplaceAll(title, "_", " "), s.sess.ID, summary)
	if err != nil {
		return fmt.Errorf("unable to write notes header: %w", err)
	}

	blocks := splitBlocks(transcript, blockWords)
	s.log.Infof("Synthesizing %d transcript blocks", len(blocks))
	for i, b := range blocks {
		detail, err := s.gen.Generate(ctx, detailPrompt, b.text)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Keep going so the remaining blocks are not lost.
			s.log.Errorf("Unable to generate notes for block %d: %v",
				i+1, err)
			detail = fmt.Sprintf("[ERROR: could not generate notes: %v]", err)
		}
		s.log.Debugf("Block %d/%d %s done", i+1, len(blocks), b.timeRange)
		_, err = fmt.Fprintf(f, "\n## %s Discussion Segment\n\n%s\n",
			b.timeRange, detail)
		if err != nil {
			return fmt.Errorf("unable to write notes block: %w", err)
		}
	}
	return nil
}

// exportPages copies the final notes into the configured Logseq pages
// directory. Export failures only warn; the notes already exist in the
// session dir.
func (s *Synthesizer) exportPages(finalPath string) {
	fi, err := os.Stat(s.pagesDir)
	if err != nil || !fi.IsDir() {
		s.log.Warnf("Logseq pages dir %s not found, notes kept in "+
			"session dir only", s.pagesDir)
		return
	}
	data, err := os.ReadFile(finalPath)
	if err != nil {
		s.log.Warnf("Unable to export notes: %v", err)
		return
	}
	dest := filepath.Join(s.pagesDir, filepath.Base(finalPath))
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		s.log.Warnf("Unable to export notes: %v", err)
		return
	}
	s.log.Infof("Exported notes to %s", dest)
}

// block is one ~blockWords stretch of transcript lines plus the time
// range its timestamps span.
type block struct {
	text      string
	timeRange string
}

var timestampRE = regexp.MustCompile(`\[(\d{2}:\d{2}:\d{2})\]`)

// splitBlocks cuts the transcript into blocks of at least wordsPerBlock
// words, always on line boundaries.
func splitBlocks(text string, wordsPerBlock int) []block {
	var blocks []block
	var cur []string
	words := 0
	for _, line := range strings.Split(text, "\n") {
		cur = append(cur, line)
		words += len(strings.Fields(line))
		if words >= wordsPerBlock {
			blocks = append(blocks, makeBlock(cur))
			cur, words = nil, 0
		}
	}
	if len(cur) > 0 {
		blocks = append(blocks, makeBlock(cur))
	}
	return blocks
}

func makeBlock(lines []string) block {
	text := strings.Join(lines, "\n")
	return block{text: text, timeRange: timeRange(text)}
}

// timeRange reports the "[HH:MM - HH:MM]" range spanned by the transcript
// timestamps in text.
func timeRange(text string) string {
	ms := timestampRE.FindAllStringSubmatch(text, -1)
	if len(ms) == 0 {
		return unknownRange
	}
	first, last := ms[0][1], ms[len(ms)-1][1]
	return fmt.Sprintf("[%s - %s]", first[:len("15:04")], last[:len("15:04")])
}

// truncateWords caps text at n words, marking the cut.
func truncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ") + "\n\n[... transcript continues ...]"
}

// sanitizeTitle reduces a model reply to a filename-safe title stem.
func sanitizeTitle(raw string) string {
	t := strescape.FileTitle(raw)
	if r := []rune(t); len(r) > titleMaxLen {
		t = string(r[:titleMaxLen])
	}
	return t
}
