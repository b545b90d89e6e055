// Package segmenter drives the recording pipeline. It drains the frame
// queue into a buffer, decides where speech naturally breaks, and turns
// every cut segment into an archived audio chunk plus a transcript
// record. It also watches for the sustained silence that means the
// meeting is over.
package segmenter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/ebailey78/scribe/internal/audio"
	"github.com/ebailey78/scribe/internal/queue"
	"github.com/ebailey78/scribe/internal/strescape"
	"github.com/ebailey78/scribe/session"
	"github.com/ebailey78/scribe/transcribe"
)

// tickInterval is how often the loop re-checks the queue while idle.
const tickInterval = 100 * time.Millisecond

// Archive formats for cut segments.
const (
	FormatWAV = "wav"
	FormatOgg = "ogg"
)

// Config configures a Driver.
type Config struct {
	// Queue delivers the capture batches. The driver is its only
	// consumer.
	Queue *queue.Queue[[]float32]

	// Session receives the archived chunks and transcript records.
	Session *session.Session

	// Transcriber converts cut segments to text.
	Transcriber transcribe.Transcriber

	// Vocabulary optionally provides the per-segment prompt hint.
	Vocabulary *transcribe.Vocabulary

	// Policy are the cut parameters. Zero or malformed values fall back
	// to the documented defaults.
	Policy Policy

	// ArchiveFormat is FormatWAV (default) or FormatOgg.
	ArchiveFormat string

	// SampleRate is the rate of the queued batches. Zero means the
	// capture native rate.
	SampleRate int

	// TranscribeRate is the rate segments are resampled to before
	// transcription. Zero means 16 kHz.
	TranscribeRate int

	// Stats receives the driver metrics. Nil creates a private unserved
	// set.
	Stats *Stats

	Log slog.Logger
}

// Driver owns the segmentation buffer and the cut state machine. All
// buffer state is confined to the goroutine running Run; the exported
// methods only touch channels and are safe to call from anywhere.
type Driver struct {
	log        slog.Logger
	q          *queue.Queue[[]float32]
	sess       *session.Session
	tr         transcribe.Transcriber
	vocab      *transcribe.Vocabulary
	policy     Policy
	format     string
	nativeRate int
	targetRate int
	stats      *Stats

	buf        []float32
	segIdx     int
	silentSegs int

	autoStopOnce sync.Once
	autoStopChan chan struct{}

	stopChan chan struct{}
	doneChan chan struct{}
}

// New creates a segmentation driver. Run must be called for it to do
// anything.
func New(cfg Config) (*Driver, error) {
	if cfg.Queue == nil {
		return nil, errors.New("segmenter requires a frame queue")
	}
	if cfg.Session == nil {
		return nil, errors.New("segmenter requires a session")
	}
	if cfg.Transcriber == nil {
		return nil, errors.New("segmenter requires a transcriber")
	}

	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	format := cfg.ArchiveFormat
	switch format {
	case "":
		format = FormatWAV
	case FormatWAV:
	case FormatOgg:
		if !audio.OggSupported() {
			return nil, fmt.Errorf("archive format %q not supported by this build", format)
		}
	default:
		return nil, fmt.Errorf("unknown archive format %q", format)
	}
	nativeRate := cfg.SampleRate
	if nativeRate == 0 {
		nativeRate = audio.NativeRate
	}
	targetRate := cfg.TranscribeRate
	if targetRate == 0 {
		targetRate = 16000
	}
	stats := cfg.Stats
	if stats == nil {
		stats = NewStats()
	}

	return &Driver{
		log:          log,
		q:            cfg.Queue,
		sess:         cfg.Session,
		tr:           cfg.Transcriber,
		vocab:        cfg.Vocabulary,
		policy:       cfg.Policy.normalized(log),
		format:       format,
		nativeRate:   nativeRate,
		targetRate:   targetRate,
		stats:        stats,
		autoStopChan: make(chan struct{}),
		stopChan:     make(chan struct{}, 1),
		doneChan:     make(chan struct{}),
	}, nil
}

// Policy returns the normalized policy in effect.
func (d *Driver) Policy() Policy {
	return d.policy
}

// AutoStop is closed, at most once per session, when the driver decides
// the meeting has ended (MaxSilentSegments consecutive silent segments).
// The driver keeps running; stopping the session is the caller's call.
func (d *Driver) AutoStop() <-chan struct{} {
	return d.autoStopChan
}

// Stop makes Run drain the queue once more, flush the trailing buffer
// and return. This is the graceful path: unlike a context cancellation
// the final segment still reaches the transcriber.
func (d *Driver) Stop() {
	select {
	case d.stopChan <- struct{}{}:
	case <-d.doneChan:
	}
}

// Done is closed once Run has returned.
func (d *Driver) Done() <-chan struct{} {
	return d.doneChan
}

// Run consumes the frame queue until ctx is canceled or Stop is called.
// Per-segment failures (archive, transcription, appends) are logged and
// never terminate the loop.
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.doneChan)

	d.log.Infof("Segmenting with min %s, max %s, silence threshold %.3f "+
		"over %s tail", d.policy.MinDuration, d.policy.MaxDuration,
		d.policy.SilenceThreshold, d.policy.SilenceTail)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		if d.drain() > 0 {
			d.evaluate(ctx)
		}
		d.stats.bufferedSeconds.Set(d.bufferedSeconds())
		d.stats.queueDepth.Set(float64(d.q.Len()))

		select {
		case <-ctx.Done():
			return d.finish(ctx)
		case <-d.stopChan:
			return d.finish(ctx)
		case <-d.q.Wait():
		case <-ticker.C:
		}
	}
}

// finish performs the final drain and flushes the trailing buffer, even
// below MinDuration, so the last words of a meeting are not lost.
func (d *Driver) finish(ctx context.Context) error {
	d.drain()
	if len(d.buf) > 0 {
		d.log.Infof("Flushing %.1fs of trailing audio", d.bufferedSeconds())
		d.dispatch(ctx)
	}
	d.log.Infof("Segmenter finished after %d segments", d.segIdx)
	return nil
}

// drain moves every currently queued batch into the buffer and reports
// how many batches were appended.
func (d *Driver) drain() int {
	batches := d.q.PopAll()
	for _, b := range batches {
		d.buf = append(d.buf, b...)
	}
	return len(batches)
}

func (d *Driver) bufferedSeconds() float64 {
	return float64(len(d.buf)) / float64(d.nativeRate)
}

// evaluate runs the cut state machine once over the current buffer
// duration: below MinDuration keep buffering, above MaxDuration force a
// cut, in between cut when the buffer tail has gone silent.
func (d *Driver) evaluate(ctx context.Context) {
	dur := time.Duration(d.bufferedSeconds() * float64(time.Second))
	switch {
	case dur < d.policy.MinDuration:

	case dur >= d.policy.MaxDuration:
		d.log.Debugf("Max duration %s reached, forcing cut", d.policy.MaxDuration)
		d.dispatch(ctx)

	default:
		tail := int(d.policy.SilenceTail.Seconds() * float64(d.nativeRate))
		if tail <= 0 || len(d.buf) < tail {
			return
		}
		if audio.Peak(d.buf[len(d.buf)-tail:]) < d.policy.SilenceThreshold {
			d.log.Debugf("Silence after %.1fs, cutting at natural pause",
				dur.Seconds())
			d.dispatch(ctx)
		}
	}
}

// dispatch cuts the current buffer: auto-stop accounting, archive,
// resample, transcribe and append. The buffer is cleared no matter what
// happens, a dropped segment is preferred over a blocked pipeline.
func (d *Driver) dispatch(ctx context.Context) {
	buf := d.buf
	d.buf = nil
	d.segIdx++
	idx := d.segIdx

	peak := audio.Peak(buf)
	d.log.Infof("Processing segment %d: %.1fs of audio (peak %.4f)",
		idx, float64(len(buf))/float64(d.nativeRate), peak)

	if peak < d.policy.SilenceChunkThreshold {
		d.silentSegs++
		d.stats.silentSegments.Inc()
		d.log.Infof("Segment %d is silent (%d/%d)", idx, d.silentSegs,
			d.policy.MaxSilentSegments)
		if d.silentSegs >= d.policy.MaxSilentSegments {
			d.autoStopOnce.Do(func() {
				d.log.Infof("Sustained silence, session looks over")
				close(d.autoStopChan)
			})
			// Not worth archiving or transcribing.
			return
		}
	} else {
		d.silentSegs = 0
	}

	d.archive(idx, buf)
	d.stats.segments.Inc()

	samples := buf
	if d.nativeRate != d.targetRate {
		samples = audio.Resample(buf, d.nativeRate, d.targetRate)
	}

	opts := transcribe.Options{VADFilter: true}
	if d.vocab != nil {
		opts.VocabularyHint = d.vocab.Hint()
	}
	segs, err := d.tr.Transcribe(ctx, samples, d.targetRate, opts)
	if err != nil {
		d.stats.transcriptionErrors.Inc()
		d.log.Errorf("Segment %d: transcription failed: %v", idx, err)
		return
	}

	text := strescape.Transcript(transcribe.JoinSegments(segs))
	if text == "" {
		d.log.Debugf("Segment %d: no speech recognized", idx)
		return
	}

	ts := time.Now()
	d.log.Infof("[%s] %s", ts.Format("15:04:05"), text)
	if err := d.sess.AppendTranscript(ts, text); err != nil {
		d.stats.persistenceErrors.Inc()
		d.log.Errorf("Segment %d: unable to append transcript: %v", idx, err)
	}
	if err := d.sess.AppendNotes(ts, text); err != nil {
		d.stats.persistenceErrors.Inc()
		d.log.Errorf("Segment %d: unable to append notes: %v", idx, err)
	}
}

// archive writes the segment to the session's audio dir. Archive failures
// are logged and do not stop the segment from being transcribed.
func (d *Driver) archive(idx int, buf []float32) {
	path := d.sess.NextChunkPath(d.format)
	var err error
	switch d.format {
	case FormatOgg:
		err = audio.WriteOggFile(path, buf, d.nativeRate)
	default:
		err = audio.WriteWAVFile(path, buf, d.nativeRate)
	}
	if err != nil {
		d.stats.persistenceErrors.Inc()
		d.log.Errorf("Segment %d: unable to archive audio: %v", idx, err)
		return
	}
	d.log.Debugf("Segment %d archived as %s", idx, path)
}
