// Package session manages the on-disk layout of one recording session:
// the archive dir of numbered audio segments, the two append-only
// transcript files and the session manifest. The layout is the durable
// contract downstream tooling (note synthesis, external scripts) reads,
// so paths are fixed at creation and files are opened in append mode on
// every write, never held open across the session.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/ebailey78/scribe/internal/jsonfile"
)

const (
	// IDFormat is the time layout of session identifiers. Lexical order
	// of identifiers equals chronological order of sessions.
	IDFormat = "2006-01-02_15-04-05"

	audioDirName       = "audio_chunks"
	transcriptFileName = "transcript_full.txt"
	notesFileName      = "notes_logseq.md"
	metaFileName       = "session.json"

	chunkPrefix = "chunk_"
	chunkDigits = 4
)

// idRE matches strings produced by IDFormat, with an optional uniquifying
// suffix for sessions started within the same second.
var idRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}(-\d+)?$`)

// ErrNotSession is returned when a directory does not hold a recording
// session.
var ErrNotSession = errors.New("not a session directory")

// Session is the immutable on-disk context of one recording session. All
// fields are fixed at creation; the struct may be read concurrently.
type Session struct {
	// ID is the timestamp-derived session identifier, also the name of
	// the session directory.
	ID string

	// BaseDir is the session directory under the sessions root.
	BaseDir string

	// AudioDir holds the sequentially numbered archived audio segments.
	AudioDir string

	// TranscriptPath is the plain timestamped transcript file.
	TranscriptPath string

	// NotesPath is the markdown-block structured notes file.
	NotesPath string

	chunkMtx  sync.Mutex
	nextChunk uint64
}

// New creates the directories of a new session under root and returns its
// context. The identifier derives from now; when two sessions start within
// the same second the identifier gains a numeric suffix instead of
// colliding.
func New(root string, now time.Time) (*Session, error) {
	if root == "" {
		return nil, errors.New("sessions root dir not set")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create sessions root: %w", err)
	}

	id := now.Format(IDFormat)
	baseDir := filepath.Join(root, id)
	for i := 2; ; i++ {
		err := os.Mkdir(baseDir, 0o700)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
		id = fmt.Sprintf("%s-%d", now.Format(IDFormat), i)
		baseDir = filepath.Join(root, id)
	}

	s := newSession(root, id)
	if err := os.MkdirAll(s.AudioDir, 0o700); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return s, nil
}

// Open returns the context of an existing session dir, resuming the chunk
// numbering after the highest archived segment.
func Open(root, id string) (*Session, error) {
	if !idRE.MatchString(id) {
		return nil, fmt.Errorf("%w: invalid id %q", ErrNotSession, id)
	}
	s := newSession(root, id)
	fi, err := os.Stat(s.BaseDir)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotSession, s.BaseDir)
	}

	last, err := chunkPattern("wav").Last(s.AudioDir)
	if err != nil {
		return nil, err
	}
	if ogg, err := chunkPattern("ogg").Last(s.AudioDir); err != nil {
		return nil, err
	} else if ogg.ID > last.ID {
		last = ogg
	}
	s.nextChunk = last.ID + 1
	return s, nil
}

func newSession(root, id string) *Session {
	baseDir := filepath.Join(root, id)
	return &Session{
		ID:             id,
		BaseDir:        baseDir,
		AudioDir:       filepath.Join(baseDir, audioDirName),
		TranscriptPath: filepath.Join(baseDir, transcriptFileName),
		NotesPath:      filepath.Join(baseDir, notesFileName),
		nextChunk:      1,
	}
}

// chunkPattern returns the numbered file pattern of archived segments
// with the given extension.
func chunkPattern(ext string) jsonfile.NumberedFilePattern {
	return jsonfile.MakeDecimalFilePattern(chunkPrefix, "."+ext, chunkDigits, false)
}

// NextChunkPath reserves the next numbered segment filename in the audio
// archive dir with the given extension ("wav" or "ogg"). The number is
// consumed even if the caller fails to write the file.
func (s *Session) NextChunkPath(ext string) string {
	s.chunkMtx.Lock()
	id := s.nextChunk
	s.nextChunk++
	s.chunkMtx.Unlock()
	return filepath.Join(s.AudioDir, chunkPattern(ext).FilenameFor(id))
}

// AppendTranscript appends one timestamped text line to the raw transcript
// stream. The write is flushed and fsynced before returning so a crash
// right after never loses the line.
func (s *Session) AppendTranscript(ts time.Time, text string) error {
	line := fmt.Sprintf("[%s] %s\n", ts.Format("15:04:05"), text)
	return appendSynced(s.TranscriptPath, line)
}

// AppendNotes appends the same record as a markdown heading block to the
// structured notes stream.
func (s *Session) AppendNotes(ts time.Time, text string) error {
	block := fmt.Sprintf("\n## [%s] %s", ts.Format("15:04:05"), text)
	return appendSynced(s.NotesPath, block)
}

// appendSynced appends data to path, creating the file if needed, and
// fsyncs before closing. The file is not kept open so the session
// tolerates interruption at any point.
func appendSynced(path, data string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
