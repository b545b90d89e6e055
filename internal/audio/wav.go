package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	wavPCMFormat      = 1
	wavBitsPerSample  = 16
	wavBytesPerSample = wavBitsPerSample / 8
)

// EncodeWAV serializes samples as a PCM16 mono WAV stream at the given
// sample rate. Sample values are rounded and clamped to the int16 grid.
func EncodeWAV(w io.Writer, samples []float32, sampleRate int) error {
	pcm := f32ToS16Slice(samples, make([]int16, 0, len(samples)))
	dataLen := len(pcm) * wavBytesPerSample
	byteRate := sampleRate * channels * wavBytesPerSample

	var buf bytes.Buffer
	buf.Grow(44)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavPCMFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*wavBytesPerSample))
	binary.Write(&buf, binary.LittleEndian, uint16(wavBitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))

	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	data := leS16SliceToBytes(pcm, make([]byte, 0, dataLen))
	_, err := w.Write(data)
	return err
}

// WriteWAVFile writes samples to path as a PCM16 mono WAV file, syncing it
// to disk before returning.
func WriteWAVFile(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeWAV(f, samples, sampleRate); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DecodeWAV parses a PCM16 mono WAV stream as written by EncodeWAV,
// returning the samples and the sample rate.
func DecodeWAV(r io.Reader) ([]float32, int, error) {
	var hdr struct {
		RiffTag  [4]byte
		RiffSize uint32
		WaveTag  [4]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, 0, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(hdr.RiffTag[:]) != "RIFF" || string(hdr.WaveTag[:]) != "WAVE" {
		return nil, 0, errors.New("not a RIFF/WAVE stream")
	}

	var fmtChunk struct {
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
	}
	var sampleRate int
	sawFmt := false

	// Walk chunks until the data chunk. Writers other than ours may put
	// extra chunks (LIST, fact) between fmt and data.
	for {
		var chunk struct {
			Tag  [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			return nil, 0, fmt.Errorf("read chunk header: %w", err)
		}

		switch string(chunk.Tag[:]) {
		case "fmt ":
			if chunk.Size < 16 {
				return nil, 0, errors.New("fmt chunk too short")
			}
			if err := binary.Read(r, binary.LittleEndian, &fmtChunk); err != nil {
				return nil, 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			if fmtChunk.AudioFormat != wavPCMFormat {
				return nil, 0, fmt.Errorf("unsupported WAV format %d",
					fmtChunk.AudioFormat)
			}
			if fmtChunk.NumChannels != channels {
				return nil, 0, fmt.Errorf("unsupported channel count %d",
					fmtChunk.NumChannels)
			}
			if fmtChunk.BitsPerSample != wavBitsPerSample {
				return nil, 0, fmt.Errorf("unsupported bit depth %d",
					fmtChunk.BitsPerSample)
			}
			sampleRate = int(fmtChunk.SampleRate)
			sawFmt = true
			if rest := int64(chunk.Size) - 16; rest > 0 {
				if _, err := io.CopyN(io.Discard, r, rest); err != nil {
					return nil, 0, err
				}
			}

		case "data":
			if !sawFmt {
				return nil, 0, errors.New("data chunk before fmt chunk")
			}
			raw := make([]byte, chunk.Size)
			if _, err := io.ReadFull(r, raw); err != nil {
				return nil, 0, fmt.Errorf("read sample data: %w", err)
			}
			pcm := bytesToLES16Slice(raw, make([]int16, 0, len(raw)/2))
			return s16ToF32Slice(pcm, make([]float32, 0, len(pcm))), sampleRate, nil

		default:
			if _, err := io.CopyN(io.Discard, r, int64(chunk.Size)); err != nil {
				return nil, 0, err
			}
		}
	}
}

// ReadWAVFile loads a PCM16 mono WAV file written by WriteWAVFile.
func ReadWAVFile(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return DecodeWAV(f)
}
