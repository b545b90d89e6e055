//go:build !cgo || noaudio

package audio

import "io"

// OggSupported reports whether ogg/opus archival is available in this
// build.
func OggSupported() bool { return false }

func EncodeOgg(w io.Writer, samples []float32, sampleRate int) error {
	return errAudioDisabledCompilation
}

func WriteOggFile(path string, samples []float32, sampleRate int) error {
	return errAudioDisabledCompilation
}
