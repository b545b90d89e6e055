//go:build cgo && !noaudio

package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/companyzero/gopus"
)

// Archive encoding parameters. 20ms frames keep the encoder in its
// natural voip framing.
const (
	opusFrameMS      = 20
	opusFrameSamples = NativeRate / 1000 * opusFrameMS
	encodeBitRate    = 40000
)

// OggSupported reports whether ogg/opus archival is available in this
// build.
func OggSupported() bool { return true }

// EncodeOgg compresses samples into an ogg/opus stream written to w.
// Samples must be mono at the native rate; the final partial frame is
// zero padded.
func EncodeOgg(w io.Writer, samples []float32, sampleRate int) error {
	if sampleRate != NativeRate {
		return fmt.Errorf("ogg archival requires %d Hz samples, got %d",
			NativeRate, sampleRate)
	}
	if len(samples) == 0 {
		return errors.New("no samples to encode")
	}

	encoder, err := gopus.NewEncoder(NativeRate, channels, gopus.Voip)
	if err != nil {
		return fmt.Errorf("newEncoder: %w", err)
	}
	encoder.SetBitrate(encodeBitRate)

	opus, err := newOpusStream(w)
	if err != nil {
		return err
	}

	pcm := f32ToS16Slice(samples, make([]int16, 0, len(samples)))
	frame := make([]int16, opusFrameSamples)
	encodeBuffer := make([]byte, 4096)
	for off := 0; off < len(pcm); off += opusFrameSamples {
		n := copy(frame, pcm[off:])
		for i := n; i < len(frame); i++ {
			frame[i] = 0
		}

		encoded, err := encoder.Encode(frame, opusFrameSamples, encodeBuffer)
		if err != nil {
			return fmt.Errorf("opus encode: %w", err)
		}

		last := off+opusFrameSamples >= len(pcm)
		if err := opus.writePacket(encoded, opusFrameSamples, last); err != nil {
			return err
		}
	}
	return nil
}

// WriteOggFile writes samples to path as an ogg/opus file, syncing it to
// disk before returning.
func WriteOggFile(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeOgg(f, samples, sampleRate); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
