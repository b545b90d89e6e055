package audio

import (
	"sync"
	"testing"

	"github.com/decred/slog"
)

// testDeviceList is the device set reported by the fake audio context,
// shaped like a pipewire desktop with a USB mic attached.
var testDeviceList = Devices{
	Playback: []Device{
		{ID: "pb-hdmi", Name: "HDMI / DisplayPort Digital Stereo"},
		{ID: "pb-analog", Name: "Built-in Audio Analog Stereo", IsDefault: true},
	},
	Capture: []Device{
		{ID: "cap-hdmi-mon", Name: "Monitor of HDMI / DisplayPort Digital Stereo"},
		{ID: "cap-analog-mon", Name: "Monitor of Built-in Audio Analog Stereo"},
		{ID: "cap-usb-mic", Name: "USB Audio Microphone", IsDefault: true},
		{ID: "cap-webcam-mic", Name: "Webcam Microphone"},
	},
}

// testAudioDevice is one opened fake capture device.
type testAudioDevice struct {
	id       DeviceID
	cb       dataProc
	startErr error

	started  chan struct{}
	stopped  chan struct{}
	uninited chan struct{}
}

func (td *testAudioDevice) Start() error {
	if td.startErr != nil {
		return td.startErr
	}
	td.started <- struct{}{}
	return nil
}

func (td *testAudioDevice) Stop() error {
	td.stopped <- struct{}{}
	return nil
}

func (td *testAudioDevice) Uninit() {
	td.uninited <- struct{}{}
}

// feedConst pushes one full batch of constant-valued samples through the
// device callback the way the driver thread would. The returned chan is
// closed once the callback returns.
func (td *testAudioDevice) feedConst(v int16) chan struct{} {
	samples := make([]int16, BatchSamples)
	for i := range samples {
		samples[i] = v
	}
	raw := leS16SliceToBytes(samples, nil)

	done := make(chan struct{})
	go func() {
		td.cb(nil, raw, BatchSamples)
		close(done)
	}()
	return done
}

// testAudioContext fakes the platform audio driver for capture tests.
type testAudioContext struct {
	t    testing.TB
	devs Devices

	listErr  error
	initErr  map[DeviceID]error
	startErr map[DeviceID]error

	mtx    sync.Mutex
	opened map[DeviceID]*testAudioDevice
}

func newTestAudioContext(t testing.TB) *testAudioContext {
	return &testAudioContext{
		t:        t,
		devs:     testDeviceList,
		initErr:  make(map[DeviceID]error),
		startErr: make(map[DeviceID]error),
		opened:   make(map[DeviceID]*testAudioDevice),
	}
}

func (tac *testAudioContext) name() string {
	return "testaudio"
}

func (tac *testAudioContext) listDevices(_ slog.Logger) (Devices, error) {
	if tac.listErr != nil {
		return Devices{}, tac.listErr
	}
	return tac.devs, nil
}

func (tac *testAudioContext) initCapture(deviceID DeviceID, cb dataProc) (captureDevice, error) {
	if err := tac.initErr[deviceID]; err != nil {
		return nil, err
	}
	td := &testAudioDevice{
		id:       deviceID,
		cb:       cb,
		startErr: tac.startErr[deviceID],
		started:  make(chan struct{}, 5),
		stopped:  make(chan struct{}, 5),
		uninited: make(chan struct{}, 5),
	}
	tac.mtx.Lock()
	tac.opened[deviceID] = td
	tac.mtx.Unlock()
	return td, nil
}

func (tac *testAudioContext) free() error {
	return nil
}

// device returns the opened fake device, failing the test when it was
// never opened.
func (tac *testAudioContext) device(id DeviceID) *testAudioDevice {
	tac.t.Helper()
	tac.mtx.Lock()
	td := tac.opened[id]
	tac.mtx.Unlock()
	if td == nil {
		tac.t.Fatalf("device %q was not opened", id)
	}
	return td
}

func (tac *testAudioContext) openedCount() int {
	tac.mtx.Lock()
	defer tac.mtx.Unlock()
	return len(tac.opened)
}
