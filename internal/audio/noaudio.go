//go:build !cgo || noaudio

// This audio context is only used in cgo-less and noaudio builds.

package audio

import (
	"errors"

	"github.com/decred/slog"
)

func init() {
	newAudioContext = newNullAudioContext
}

var errAudioDisabledCompilation = errors.New("audio was disabled during compilation")

type nullAudioContext struct{}

func newNullAudioContext() (audioContext, error) {
	return nullAudioContext{}, nil
}

func (nullAudioContext) name() string { return "nullaudio" }

func (nullAudioContext) listDevices(log slog.Logger) (Devices, error) {
	return Devices{}, nil
}

type nullAudioDevice struct{}

func (nullAudioDevice) Start() error { return nil }
func (nullAudioDevice) Stop() error  { return nil }
func (nullAudioDevice) Uninit()      {}

func (nullAudioContext) initCapture(deviceID DeviceID, cb dataProc) (captureDevice, error) {
	return nullAudioDevice{}, nil
}

func (nullAudioContext) free() error {
	return nil
}

// ListAudioDevices lists available audio devices.
func ListAudioDevices(log slog.Logger) (Devices, error) {
	return Devices{}, errAudioDisabledCompilation
}
