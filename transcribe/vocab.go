package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/fsnotify/fsnotify"
)

// FallbackHint is the prompt used when no vocabulary terms are
// configured.
const FallbackHint = "Meeting transcript."

// Vocabulary renders the recognizer prompt hint from a jargon file: one
// term per line, blank lines and # comments skipped. The hint primes the
// recognizer so that project names and acronyms survive transcription.
type Vocabulary struct {
	path string
	log  slog.Logger

	mtx  sync.Mutex
	hint string
}

// NewVocabulary loads the jargon file at path. A missing or empty file
// is not an error, it yields the fallback hint.
func NewVocabulary(path string, log slog.Logger) *Vocabulary {
	if log == nil {
		log = slog.Disabled
	}
	v := &Vocabulary{path: path, log: log}
	v.Reload()
	return v
}

// Hint returns the current prompt hint. Safe for concurrent use.
func (v *Vocabulary) Hint() string {
	v.mtx.Lock()
	hint := v.hint
	v.mtx.Unlock()
	return hint
}

// Reload re-reads the jargon file and rebuilds the hint.
func (v *Vocabulary) Reload() {
	terms, err := readJargonFile(v.path)
	if err != nil && !os.IsNotExist(err) {
		v.log.Warnf("Unable to read vocabulary file %s: %v", v.path, err)
	}

	hint := FallbackHint
	if len(terms) > 0 {
		hint = fmt.Sprintf("Context: Business meeting. Custom Vocabulary: %s.",
			strings.Join(terms, ", "))
		v.log.Infof("Loaded %d vocabulary terms from %s", len(terms), v.path)
	}

	v.mtx.Lock()
	v.hint = hint
	v.mtx.Unlock()
}

// Run watches the jargon file for changes and reloads the hint, so terms
// added mid-meeting apply to the next segment. Events are debounced so a
// save that produces multiple fs events reloads once.
func (v *Vocabulary) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to start filesystem watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the dir instead of the file: editors replace the file on
	// save and it may not exist yet.
	if err := watcher.Add(filepath.Dir(v.path)); err != nil {
		return fmt.Errorf("unable to watch vocabulary dir: %w", err)
	}

	var chanReload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-chanReload:
			chanReload = nil
			v.Reload()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(v.path) {
				continue
			}
			chanReload = time.After(100 * time.Millisecond)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			v.log.Debugf("Vocabulary watcher error: %v", err)
		}
	}
}

func readJargonFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var terms []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, line)
	}
	return terms, nil
}
