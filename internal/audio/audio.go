// Package audio captures system audio for the recording pipeline. It opens
// loopback (and optionally microphone) capture devices through the platform
// audio context, converts the raw device frames to float samples and feeds
// them to the frame queue consumed by the segmenter.
package audio

import (
	"errors"

	"github.com/decred/slog"
)

// NativeRate is the sample rate all capture devices are opened at. It must
// be agreed upon by every part of the pipeline that touches raw samples.
const NativeRate = 48000

// channels must be agreed everywhere.
const channels = 1

// periodSizeMS is the captured frame size in milliseconds.
const periodSizeMS = 100

// BatchSamples is how many samples a single device read delivers.
const BatchSamples = NativeRate / 1000 * periodSizeMS

// rawFormatSampleSize is the byte size of one raw S16LE sample.
const rawFormatSampleSize = 2

// ErrDeviceNotFound is returned when a capture device cannot be resolved.
// It is fatal to session start.
var ErrDeviceNotFound = errors.New("audio device not found")

type DeviceType string

const (
	DeviceTypeCapture  DeviceType = "capture"
	DeviceTypePlayback DeviceType = "playback"
)

// DeviceID identifies a device of the underlying audio driver.
type DeviceID string

type Device struct {
	ID        DeviceID `json:"id"`
	Name      string   `json:"name"`
	IsDefault bool     `json:"is_default"`
}

type Devices struct {
	Playback []Device `json:"playback"`
	Capture  []Device `json:"capture"`
}

// dataProc is the signature of the device data callback. For capture
// devices inSamples holds frameCount raw S16LE samples.
type dataProc func(outSamples, inSamples []byte, frameCount uint32)

// captureDevice is a started-stopped handle on an open capture device.
type captureDevice interface {
	Start() error
	Stop() error
	Uninit()
}

// audioContext abstracts the platform audio driver so that capture logic
// can be exercised in tests without real devices.
type audioContext interface {
	name() string
	listDevices(log slog.Logger) (Devices, error)
	initCapture(deviceID DeviceID, cb dataProc) (captureDevice, error)
	free() error
}

// newAudioContext creates the platform audio context. It is set by an
// init() function according to the build tags.
var newAudioContext func() (audioContext, error)
