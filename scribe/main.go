package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"
	"github.com/ebailey78/scribe/internal/audio"
	"github.com/ebailey78/scribe/internal/queue"
	"github.com/ebailey78/scribe/lockfile"
	"github.com/ebailey78/scribe/segmenter"
	"github.com/ebailey78/scribe/session"
	"github.com/ebailey78/scribe/synthesis"
	"github.com/ebailey78/scribe/transcribe"
	"golang.org/x/sync/errgroup"
)

// levelSampleInterval is how often the capture level meters are copied
// into the prometheus gauges.
const levelSampleInterval = time.Second

// listDevices prints the devices miniaudio sees, marking defaults and
// loopback/monitor capture sources.
func listDevices() error {
	devs, err := audio.ListAudioDevices(slog.Disabled)
	if err != nil {
		return err
	}

	fmt.Println("Capture devices:")
	if len(devs.Capture) == 0 {
		fmt.Println("  (none)")
	}
	for _, d := range devs.Capture {
		var marks string
		if d.IsDefault {
			marks += " [default]"
		}
		if audio.IsMonitorDevice(d.Name) {
			marks += " [monitor]"
		}
		fmt.Printf("  %s%s\n", d.Name, marks)
	}

	fmt.Println("\nPlayback devices:")
	if len(devs.Playback) == 0 {
		fmt.Println("  (none)")
	}
	for _, d := range devs.Playback {
		var marks string
		if d.IsDefault {
			marks += " [default]"
		}
		fmt.Printf("  %s%s\n", d.Name, marks)
	}
	return nil
}

// synthesizeSession generates the meeting notes of a recorded session.
// id may be "last" to pick the most recent one.
func synthesizeSession(ctx context.Context, cfg *config, log slog.Logger, id string) error {
	var sess *session.Session
	var err error
	if id == "last" {
		sess, err = session.Latest(cfg.SessionsDir)
	} else {
		sess, err = session.Open(cfg.SessionsDir, id)
	}
	if err != nil {
		return err
	}

	if meta, err := sess.ReadMeta(); err != nil {
		log.Warnf("Unable to read session manifest: %v", err)
	} else {
		log.Infof("Session recorded %s from %q",
			meta.StartTime.Format(time.RFC1123), meta.LoopbackDevice)
	}

	gen := synthesis.NewOllama(synthesis.OllamaConfig{
		URL:   cfg.OllamaURL,
		Model: cfg.OllamaModel,
		Log:   log,
	})
	syn, err := synthesis.New(synthesis.Config{
		Session:   sess,
		Generator: gen,
		PagesDir:  cfg.PagesDir,
		Log:       log,
	})
	if err != nil {
		return err
	}

	log.Infof("Synthesizing notes for session %s with model %s", sess.ID,
		cfg.OllamaModel)
	notesPath, err := syn.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Notes:", notesPath)
	return nil
}

// recordSession runs one capture-to-transcript session. It returns once
// the recording ends, whether by interrupt, sustained silence or the
// capture source failing.
func recordSession(ctx context.Context, softStop <-chan struct{}, cfg *config,
	logBknd *logBackend) (*session.Session, error) {

	log := logBknd.logger("SCRB")

	// Canceled once the driver finishes, to tear down the session
	// helpers.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Only one live recorder per root.
	lockPath := cfg.lockFilePath()
	ctxLF, cancelLF := context.WithTimeout(ctx, time.Second)
	lf, err := lockfile.Acquire(ctxLF, lockPath)
	cancelLF()
	if err != nil {
		return nil, fmt.Errorf("unable to create lockfile %q: %v", lockPath, err)
	}
	defer lf.Release()

	sess, err := session.New(cfg.SessionsDir, time.Now())
	if err != nil {
		return nil, err
	}
	log.Infof("Starting session %s in %s", sess.ID, sess.BaseDir)

	q := queue.New[[]float32]()

	cs, err := audio.NewCaptureSource(audio.Config{
		Queue:        q,
		Device:       cfg.Device,
		MixMic:       cfg.MixMic,
		MicDevice:    cfg.MicDevice,
		LoopbackGain: cfg.LoopbackGain,
		MicGain:      cfg.MicGain,
		Log:          logBknd.logger("AUDS"),
	})
	if err != nil {
		return nil, err
	}
	defer cs.FreeContext()

	tr, err := transcribe.NewWhisperHTTP(transcribe.WhisperConfig{
		URL:      cfg.WhisperURL,
		Model:    cfg.WhisperModel,
		Language: cfg.WhisperLang,
		APIKey:   cfg.WhisperAPIKey,
		Log:      logBknd.logger("TRNS"),
	})
	if err != nil {
		return nil, err
	}

	vocab := transcribe.NewVocabulary(cfg.JargonFile, logBknd.logger("TRNS"))

	stats := segmenter.NewStats()
	drv, err := segmenter.New(segmenter.Config{
		Queue:         q,
		Session:       sess,
		Transcriber:   tr,
		Vocabulary:    vocab,
		Policy:        cfg.Policy,
		ArchiveFormat: cfg.ArchiveFormat,
		Stats:         stats,
		Log:           logBknd.logger("SEGM"),
	})
	if err != nil {
		return nil, err
	}

	if err := cs.Start(ctx); err != nil {
		return nil, err
	}

	// Record the manifest once the devices are resolved. A session
	// without one is still readable, so failures only warn.
	meta := &session.Meta{
		ID:             sess.ID,
		StartTime:      time.Now(),
		LoopbackDevice: cs.Primary().Name,
	}
	if mic, ok := cs.Secondary(); ok {
		meta.MicDevice = mic.Name
	}
	pol := drv.Policy()
	meta.Policy = session.MetaPolicy{
		MinDuration:           pol.MinDuration.Seconds(),
		MaxDuration:           pol.MaxDuration.Seconds(),
		SilenceThreshold:      pol.SilenceThreshold,
		SilenceTail:           pol.SilenceTail.Seconds(),
		SilenceChunkThreshold: pol.SilenceChunkThreshold,
		MaxSilentSegments:     pol.MaxSilentSegments,
	}
	if err := sess.SaveMeta(meta, log); err != nil {
		log.Warnf("Unable to save session manifest: %v", err)
	}
	log.Debugf("Session manifest: %v", spew.Sdump(meta))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The driver finishing, for whatever reason, ends the session.
		defer cancel()
		return drv.Run(gctx)
	})

	g.Go(func() error {
		err := vocab.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.PromListen != "" {
		g.Go(func() error {
			err := stats.ServeMetrics(gctx, cfg.PromListen, log)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		tick := time.NewTicker(levelSampleInterval)
		defer tick.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-tick.C:
				for source, v := range cs.Levels() {
					stats.SetLevel(source, v)
				}
			}
		}
	})

	g.Go(func() error { return watchPauseSignal(gctx, cs) })

	// Stop watcher. Capture stops feeding first so the driver can flush
	// the trailing audio before finishing.
	g.Go(func() error {
		select {
		case <-softStop:
			log.Infof("Interrupt detected. Stopping recording.")
		case <-drv.AutoStop():
			log.Infof("Sustained silence. Stopping recording.")
		case <-cs.Done():
			log.Warnf("Capture source finished early")
		case <-drv.Done():
			return nil
		}
		cs.Stop()
		drv.Stop()
		return nil
	})

	werr := g.Wait()
	cs.Stop()
	if err := cs.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return sess, fmt.Errorf("capture: %w", err)
	}
	return sess, werr
}

func realMain() error {
	cfg, err := loadConfig()

	// Write the initial config file when missing.
	var errNewCfg errConfigDoesNotExist
	if errors.As(err, &errNewCfg) {
		if err := saveNewConfig(errNewCfg.configPath); err != nil {
			return err
		}
		fmt.Printf("Wrote initial config file to %s\n", errNewCfg.configPath)
		cfg, err = loadConfig()
	}
	if err != nil {
		return err
	}

	if cfg.ListDevices {
		return listDevices()
	}

	logBknd, err := newLogBackend(cfg.LogFile, cfg.DebugLevel, cfg.MaxLogFiles, cfg.Quiet)
	if err != nil {
		return err
	}
	defer logBknd.close()
	log := logBknd.logger("SCRB")
	log.Infof("Starting %s version %s", appName, version())

	// The first interrupt stops the recording but still writes the
	// notes. The second aborts outright.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	softStop := make(chan struct{})
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		close(softStop)
		<-sigChan
		log.Warnf("Second interrupt detected. Aborting.")
		cancel()
	}()

	if cfg.Synthesize != "" {
		go func() {
			select {
			case <-softStop:
				cancel()
			case <-ctx.Done():
			}
		}()
		return synthesizeSession(ctx, cfg, logBknd.logger("SYNT"), cfg.Synthesize)
	}

	sess, err := recordSession(ctx, softStop, cfg, logBknd)
	if err != nil {
		return err
	}
	fmt.Println("Transcript:", sess.TranscriptPath)

	if cfg.SynthAuto && ctx.Err() == nil {
		// An interrupt that arrives now should cancel the synthesis,
		// unless one was already spent stopping the recording. Then the
		// second-interrupt cancel above handles it.
		select {
		case <-softStop:
		default:
			go func() {
				select {
				case <-softStop:
					cancel()
				case <-ctx.Done():
				}
			}()
		}
		if err := synthesizeSession(ctx, cfg, logBknd.logger("SYNT"), sess.ID); err != nil {
			return fmt.Errorf("unable to synthesize notes: %w", err)
		}
	}
	return nil
}

func main() {
	err := realMain()
	if err != nil && !errors.Is(err, errCmdDone) {
		fmt.Println(err.Error())
		os.Exit(1)
	}
}
