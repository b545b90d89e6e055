package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/slog"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ebailey78/scribe/internal/logutil"
	"github.com/ebailey78/scribe/internal/queue"
)

// Level meter keys reported by Levels().
const (
	SourceLoopback = "loopback"
	SourceMic      = "mic"
	SourceMix      = "mix"
)

// captureStarveTimeout is how long the mix loop waits on the loopback
// device before declaring it dead.
const captureStarveTimeout = 5 * time.Second

// micStarveTimeout is how long the mix loop waits for the paired mic batch
// before downgrading to loopback-only capture.
const micStarveTimeout = time.Second

// stopJoinTimeout bounds how long Stop() waits for the capture loops.
const stopJoinTimeout = time.Second

// micState tracks what the mix loop expects from the secondary device.
type micState int

const (
	micDone      micState = iota // no mic loop running, nothing to drain
	micPairing                   // mic batches are read and mixed in
	micAbandoned                 // mic loop still runs but its data is discarded
)

// Config configures a CaptureSource.
type Config struct {
	// Queue receives one float32 batch per device period while the
	// source is running and not paused. Ownership of pushed slices moves
	// to the consumer.
	Queue *queue.Queue[[]float32]

	// Device optionally names the loopback capture device, resolved by
	// exact name then unique substring. Empty selects the monitor of the
	// default playback device automatically.
	Device string

	// MixMic mixes a microphone into the captured stream. MicDevice
	// resolves the same way as Device; empty picks the default capture
	// device. Failures here downgrade to loopback-only capture.
	MixMic    bool
	MicDevice string

	// Per-source linear gains applied when mixing. Zero means unity.
	LoopbackGain float64
	MicGain      float64

	Log slog.Logger
}

// CaptureSource owns the capture devices of a recording session. It reads
// fixed-size sample batches from the loopback device (and optionally a mic),
// mixes them into a single mono float stream and pushes the batches into
// the frame queue.
type CaptureSource struct {
	audioCtx audioContext
	log      slog.Logger
	q        *queue.Queue[[]float32]

	cfg          Config
	loopGain     float64
	micGain      float64
	int16Buffers sync.Pool

	primaryChan   chan []int16
	secondaryChan chan []int16

	primary   Device
	secondary Device
	mixMic    bool

	running  atomic.Bool
	paused   atomic.Bool
	levels   *xsync.MapOf[string, float64]
	batches  atomic.Uint64
	enqueued atomic.Uint64

	stopChan    chan struct{}
	captureDone chan struct{}
	runErr      error
}

// NewCaptureSource creates a capture source over the platform audio driver.
// Devices are resolved and opened by Start.
func NewCaptureSource(cfg Config) (*CaptureSource, error) {
	if cfg.Queue == nil {
		return nil, errors.New("capture source requires a frame queue")
	}
	audioCtx, err := newAudioContext()
	if err != nil {
		return nil, err
	}
	cs := newCaptureSource(audioCtx, cfg)
	cs.log.Infof("Initialized audio capture with driver %s", audioCtx.name())
	return cs, nil
}

func newCaptureSource(audioCtx audioContext, cfg Config) *CaptureSource {
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}

	loopGain := cfg.LoopbackGain
	if loopGain == 0 {
		loopGain = 1
	}
	micGain := cfg.MicGain
	if micGain == 0 {
		micGain = 1
	}

	return &CaptureSource{
		audioCtx: audioCtx,
		log:      log,
		q:        cfg.Queue,
		cfg:      cfg,
		loopGain: loopGain,
		micGain:  micGain,
		int16Buffers: sync.Pool{New: func() interface{} {
			return make([]int16, 0, BatchSamples)
		}},
		primaryChan:   make(chan []int16),
		secondaryChan: make(chan []int16),
		levels:        xsync.NewMapOf[string, float64](),
		stopChan:      make(chan struct{}, 1),
		captureDone:   make(chan struct{}),
	}
}

// FreeContext releases the audio driver resources. Call after the source
// is done.
func (cs *CaptureSource) FreeContext() error {
	return cs.audioCtx.free()
}

// resolveDevices picks the primary (loopback) and optional secondary (mic)
// capture devices according to the config.
func (cs *CaptureSource) resolveDevices() error {
	devs, err := cs.audioCtx.listDevices(cs.log)
	if err != nil {
		return fmt.Errorf("list audio devices: %w", err)
	}

	if cs.cfg.Device != "" {
		cs.primary, err = matchDeviceName(devs.Capture, cs.cfg.Device)
	} else {
		cs.primary, err = pickLoopbackDevice(devs)
	}
	if err != nil {
		return err
	}

	cs.mixMic = cs.cfg.MixMic
	if !cs.mixMic {
		return nil
	}

	var sec Device
	var serr error
	if cs.cfg.MicDevice != "" {
		sec, serr = matchDeviceName(devs.Capture, cs.cfg.MicDevice)
	} else {
		var ok bool
		sec, ok = defaultCaptureDevice(devs.Capture)
		if !ok {
			serr = fmt.Errorf("%w: no default capture device", ErrDeviceNotFound)
		}
	}
	switch {
	case serr != nil:
		cs.log.Warnf("Unable to resolve mic device: %v. Continuing "+
			"without mic mixing.", serr)
		cs.mixMic = false
	case sec.ID == cs.primary.ID:
		cs.log.Warnf("Mic device resolves to the loopback device %q. "+
			"Continuing without mic mixing.", sec.Name)
		cs.mixMic = false
	default:
		cs.secondary = sec
	}
	return nil
}

// Start resolves and opens the capture devices and spawns the capture
// loops. Device resolution and primary device open failures are returned
// synchronously; after a nil return the source runs until ctx is canceled
// or Stop is called.
func (cs *CaptureSource) Start(ctx context.Context) error {
	if !cs.running.CompareAndSwap(false, true) {
		return errors.New("capture source already running")
	}
	ok := false
	defer func() {
		if !ok {
			cs.running.Store(false)
		}
	}()

	if err := cs.resolveDevices(); err != nil {
		return err
	}
	cs.log.Infof("Capturing from %q", cs.primary.Name)
	if cs.mixMic {
		cs.log.Infof("Mixing in mic %q (loopback gain %.2f, mic gain %.2f)",
			cs.secondary.Name, cs.loopGain, cs.micGain)
	}

	sendingDone := make(chan struct{})

	pdev, err := cs.audioCtx.initCapture(cs.primary.ID, cs.recvFramesFunc(cs.primaryChan, sendingDone))
	if err != nil {
		return fmt.Errorf("init device %q: %w", cs.primary.Name, err)
	}
	if err := pdev.Start(); err != nil {
		pdev.Uninit()
		return fmt.Errorf("start device %q: %w", cs.primary.Name, err)
	}

	var sdev captureDevice
	if cs.mixMic {
		sdev, err = cs.audioCtx.initCapture(cs.secondary.ID, cs.recvFramesFunc(cs.secondaryChan, sendingDone))
		if err == nil {
			err = sdev.Start()
			if err != nil {
				sdev.Uninit()
			}
		}
		if err != nil {
			cs.log.Warnf("Unable to open mic device %q: %v. Continuing "+
				"without mic mixing.", cs.secondary.Name, err)
			cs.mixMic = false
			sdev = nil
		}
	}

	go cs.run(ctx, pdev, sdev, sendingDone)
	ok = true
	return nil
}

// recvFramesFunc builds the device data callback feeding samplesChan.
func (cs *CaptureSource) recvFramesFunc(samplesChan chan []int16, sendingDone chan struct{}) dataProc {
	return func(_, inSamples []byte, frameCount uint32) {
		readSize := int(frameCount) * rawFormatSampleSize * channels
		if len(inSamples) < readSize {
			cs.log.Warnf("inSamples buffer has len %d when expected %d",
				len(inSamples), readSize)
			readSize = len(inSamples)
		}
		buf := cs.int16Buffers.Get().([]int16)
		samples := bytesToLES16Slice(inSamples[:readSize], buf)

		// Double check sending hasn't finished first.
		select {
		case <-sendingDone:
			return
		default:
		}

		select {
		case samplesChan <- samples:
		case <-sendingDone:
		}
	}
}

func (cs *CaptureSource) run(ctx context.Context, pdev, sdev captureDevice, sendingDone chan struct{}) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return cs.deviceLoop(gctx, pdev, SourceLoopback, cs.primaryChan, sendingDone)
	})
	if sdev != nil {
		g.Go(func() error {
			return cs.deviceLoop(gctx, sdev, SourceMic, cs.secondaryChan, nil)
		})
	}
	g.Go(func() error { return cs.mixLoop() })
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-cs.stopChan:
		}
		cancel()
		return nil
	})

	cs.runErr = g.Wait()
	cs.running.Store(false)
	close(cs.captureDone)
}

// deviceLoop keeps an open device running until the context is canceled,
// then stops it and signals end-of-data to the mix loop. sendingDone is
// closed by the loopback loop and shared with the mic callback, so that
// both callbacks unblock on shutdown.
func (cs *CaptureSource) deviceLoop(ctx context.Context, dev captureDevice,
	source string, samplesChan chan []int16, sendingDone chan struct{}) error {

	log := logutil.TagLogger(cs.log, source)
	log.Debug("Starting capture device loop")

	<-ctx.Done()
	if err := dev.Stop(); err != nil {
		log.Warnf("Error stopping capture device: %v", err)
	}
	dev.Uninit()

	// Wait for some time for any outstanding callback to be executed.
	time.Sleep(time.Millisecond * time.Duration(periodSizeMS) * 2)

	if sendingDone != nil {
		close(sendingDone)
	}

	// Signal the mix loop that this device has no more data.
	select {
	case samplesChan <- nil:
	case <-time.After(time.Second):
	}

	log.Debug("Finished capture device loop")
	return nil
}

// mixLoop converts raw device batches to float samples, mixes the mic in
// when enabled and pushes the result into the frame queue. It terminates
// when the loopback loop delivers its end-of-data marker.
func (cs *CaptureSource) mixLoop() error {
	mic := micDone
	if cs.mixMic {
		mic = micPairing
	}

	cs.log.Debug("Starting mix loop")

	for {
		var praw []int16
		select {
		case praw = <-cs.primaryChan:
		case <-time.After(captureStarveTimeout):
			return fmt.Errorf("device %q stopped delivering frames",
				cs.primary.Name)
		}
		if praw == nil {
			cs.drainMic(mic)
			cs.log.Debugf("Finished mix loop after %d batches (%d enqueued)",
				cs.batches.Load(), cs.enqueued.Load())
			return nil
		}

		var sraw []int16
		switch mic {
		case micPairing:
			select {
			case sraw = <-cs.secondaryChan:
				if sraw == nil {
					cs.log.Warnf("Mic device finished early. Continuing " +
						"with loopback only.")
					mic = micDone
				}
			case <-time.After(micStarveTimeout):
				cs.log.Warnf("Mic device starved for %s. Continuing "+
					"with loopback only.", micStarveTimeout)
				mic = micAbandoned
			}
		case micAbandoned:
			// Keep the abandoned channel drained so the mic callback
			// never blocks the driver thread.
			select {
			case b := <-cs.secondaryChan:
				if b == nil {
					mic = micDone
				} else {
					cs.int16Buffers.Put(b[:0])
				}
			default:
			}
		}

		batch := cs.mixBatch(praw, sraw)
		cs.int16Buffers.Put(praw[:0])
		if sraw != nil {
			cs.int16Buffers.Put(sraw[:0])
		}

		cs.batches.Add(1)
		if !cs.paused.Load() {
			cs.q.Push(batch)
			cs.enqueued.Add(1)
		}
	}
}

// mixBatch converts one pair of raw batches into the float batch pushed to
// the queue, updating the level meters. sraw is nil when not mixing; then
// the loopback samples pass through unchanged.
func (cs *CaptureSource) mixBatch(praw, sraw []int16) []float32 {
	batch := make([]float32, len(praw))

	var pPeak, sPeak, mPeak float64
	for i, p := range praw {
		pf := float64(p) / 32768
		if a := math.Abs(pf); a > pPeak {
			pPeak = a
		}

		var mf float64
		if sraw != nil {
			var sf float64
			if i < len(sraw) {
				sf = float64(sraw[i]) / 32768
				if a := math.Abs(sf); a > sPeak {
					sPeak = a
				}
			}
			mf = (pf*cs.loopGain + sf*cs.micGain) / 2
		} else {
			mf = pf
		}

		batch[i] = clipSample(mf)
		if a := math.Abs(float64(batch[i])); a > mPeak {
			mPeak = a
		}
	}

	cs.levels.Store(SourceLoopback, pPeak)
	if sraw != nil {
		cs.levels.Store(SourceMic, sPeak)
	}
	cs.levels.Store(SourceMix, mPeak)

	return batch
}

// drainMic consumes leftover mic batches until the mic loop delivers its
// end-of-data marker.
func (cs *CaptureSource) drainMic(mic micState) {
	for mic != micDone {
		select {
		case b := <-cs.secondaryChan:
			if b == nil {
				mic = micDone
			} else {
				cs.int16Buffers.Put(b[:0])
			}
		case <-time.After(time.Second):
			return
		}
	}
}

// Stop signals the capture loops to finish and joins them with a bounded
// timeout. In-flight batches not yet pushed to the queue are discarded.
func (cs *CaptureSource) Stop() {
	select {
	case cs.stopChan <- struct{}{}:
	case <-cs.captureDone:
	}

	select {
	case <-cs.captureDone:
	case <-time.After(stopJoinTimeout):
		cs.log.Warnf("Capture loops did not finish within %s of stop",
			stopJoinTimeout)
	}
}

// Pause stops enqueuing batches while keeping the devices open and the
// level meters live. Resume undoes it at the next device read.
func (cs *CaptureSource) Pause() {
	if cs.paused.CompareAndSwap(false, true) {
		cs.log.Info("Capture paused")
	}
}

func (cs *CaptureSource) Resume() {
	if cs.paused.CompareAndSwap(true, false) {
		cs.log.Info("Capture resumed")
	}
}

// Paused returns whether the source is currently paused.
func (cs *CaptureSource) Paused() bool {
	return cs.paused.Load()
}

// Running returns whether the capture loops are alive.
func (cs *CaptureSource) Running() bool {
	return cs.running.Load()
}

// Done is closed once the capture loops have finished.
func (cs *CaptureSource) Done() <-chan struct{} {
	return cs.captureDone
}

// Err is the capture error. It is only set after capturing is done.
func (cs *CaptureSource) Err() error {
	select {
	case <-cs.captureDone:
		return cs.runErr
	default:
		return nil
	}
}

// Levels returns the most recent per-source peak amplitudes.
func (cs *CaptureSource) Levels() map[string]float64 {
	res := make(map[string]float64, 3)
	cs.levels.Range(func(k string, v float64) bool {
		res[k] = v
		return true
	})
	return res
}

// Primary returns the resolved loopback device. Valid after Start.
func (cs *CaptureSource) Primary() Device {
	return cs.primary
}

// Secondary returns the resolved mic device when mixing was enabled at
// Start time.
func (cs *CaptureSource) Secondary() (Device, bool) {
	return cs.secondary, cs.mixMic
}
