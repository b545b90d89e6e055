// Package transcribe is the speech-to-text boundary of the recorder. The
// segmenter hands it resampled mono samples and receives text segments
// back; the production backend posts the audio to an OpenAI-compatible
// transcription server.
package transcribe

import (
	"context"
	"strings"
)

// Segment is one contiguous span of recognized speech.
type Segment struct {
	Text string
}

// Options modify a single transcription call.
type Options struct {
	// VocabularyHint primes the recognizer with domain terms. May be
	// empty.
	VocabularyHint string

	// VADFilter asks the service to drop non-speech spans before
	// decoding.
	VADFilter bool
}

// Transcriber converts mono float samples into text segments. Calls may
// take long on large segments, so implementations must honor ctx
// cancellation on any network or queue waits.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int,
		opts Options) ([]Segment, error)
}

// JoinSegments concatenates the segment texts in order, separated by
// single spaces, with surrounding whitespace trimmed.
func JoinSegments(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, seg := range segs {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
