package session

import (
	"path/filepath"
	"time"

	"github.com/decred/slog"
	"github.com/ebailey78/scribe/internal/jsonfile"
)

// Meta is the manifest stored alongside the session files. It records
// enough about the recording setup to interpret the archive later:
// which devices fed the mix and which cut policy produced the segments.
type Meta struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`

	// LoopbackDevice and MicDevice are the resolved device names, not
	// the config hints that selected them.
	LoopbackDevice string `json:"loopback_device"`
	MicDevice      string `json:"mic_device,omitempty"`

	Policy MetaPolicy `json:"policy"`
}

// MetaPolicy mirrors the segmentation policy values in effect when the
// session was recorded. Durations are in seconds.
type MetaPolicy struct {
	MinDuration           float64 `json:"min_duration_s"`
	MaxDuration           float64 `json:"max_duration_s"`
	SilenceThreshold      float64 `json:"silence_threshold"`
	SilenceTail           float64 `json:"silence_tail_s"`
	SilenceChunkThreshold float64 `json:"silence_chunk_threshold"`
	MaxSilentSegments     int     `json:"max_silent_segments"`
}

func (s *Session) metaPath() string {
	return filepath.Join(s.BaseDir, metaFileName)
}

// SaveMeta atomically writes the session manifest.
func (s *Session) SaveMeta(meta *Meta, log slog.Logger) error {
	return jsonfile.Write(s.metaPath(), meta, log)
}

// ReadMeta reads the session manifest. Sessions interrupted before the
// manifest write resolve ErrNotFound.
func (s *Session) ReadMeta() (*Meta, error) {
	var meta Meta
	if err := jsonfile.Read(s.metaPath(), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Date returns the calendar date portion of the session id.
func (s *Session) Date() string {
	return s.ID[:len("2006-01-02")]
}
