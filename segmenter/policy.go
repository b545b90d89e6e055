package segmenter

import (
	"time"

	"github.com/decred/slog"
)

// Documented default cut policy. Any unset or malformed configured value
// falls back to these.
const (
	DefaultMinDuration           = 60 * time.Second
	DefaultMaxDuration           = 90 * time.Second
	DefaultSilenceThreshold      = 0.01
	DefaultSilenceTail           = 500 * time.Millisecond
	DefaultSilenceChunkThreshold = 0.005
	DefaultMaxSilentSegments     = 1
)

// Policy holds the segmentation parameters of one driver instance. Zero
// values mean unset and resolve to the defaults above.
type Policy struct {
	// MinDuration is how much audio must be buffered before a cut is
	// considered at all.
	MinDuration time.Duration

	// MaxDuration forces a cut regardless of silence, bounding both
	// memory use and transcription latency. Must be above MinDuration.
	MaxDuration time.Duration

	// SilenceThreshold is the peak amplitude below which the buffer
	// tail counts as a natural pause in speech.
	SilenceThreshold float64

	// SilenceTail is how much of the buffer tail is inspected for the
	// pause.
	SilenceTail time.Duration

	// SilenceChunkThreshold is the peak amplitude below which an entire
	// segment counts as silent, feeding the auto-stop counter.
	SilenceChunkThreshold float64

	// MaxSilentSegments is the number of consecutive silent segments
	// after which the session is considered over.
	MaxSilentSegments int
}

// DefaultPolicy returns the documented default cut policy.
func DefaultPolicy() Policy {
	return Policy{
		MinDuration:           DefaultMinDuration,
		MaxDuration:           DefaultMaxDuration,
		SilenceThreshold:      DefaultSilenceThreshold,
		SilenceTail:           DefaultSilenceTail,
		SilenceChunkThreshold: DefaultSilenceChunkThreshold,
		MaxSilentSegments:     DefaultMaxSilentSegments,
	}
}

// normalized returns p with unset or malformed values replaced by the
// defaults. Bad policy values are never fatal to a recording session;
// each replacement logs a warning.
func (p Policy) normalized(log slog.Logger) Policy {
	if p.MinDuration <= 0 {
		p.MinDuration = DefaultMinDuration
	}
	if p.MaxDuration <= 0 {
		p.MaxDuration = DefaultMaxDuration
	}
	if p.MinDuration >= p.MaxDuration {
		log.Warnf("Invalid segment durations (min %s >= max %s), using "+
			"defaults %s/%s", p.MinDuration, p.MaxDuration,
			DefaultMinDuration, DefaultMaxDuration)
		p.MinDuration = DefaultMinDuration
		p.MaxDuration = DefaultMaxDuration
	}
	if p.SilenceThreshold <= 0 {
		if p.SilenceThreshold < 0 {
			log.Warnf("Invalid silence threshold %f, using default %f",
				p.SilenceThreshold, DefaultSilenceThreshold)
		}
		p.SilenceThreshold = DefaultSilenceThreshold
	}
	if p.SilenceTail <= 0 {
		p.SilenceTail = DefaultSilenceTail
	}
	if p.SilenceChunkThreshold <= 0 {
		if p.SilenceChunkThreshold < 0 {
			log.Warnf("Invalid silent segment threshold %f, using default %f",
				p.SilenceChunkThreshold, DefaultSilenceChunkThreshold)
		}
		p.SilenceChunkThreshold = DefaultSilenceChunkThreshold
	}
	if p.MaxSilentSegments <= 0 {
		p.MaxSilentSegments = DefaultMaxSilentSegments
	}
	return p
}
