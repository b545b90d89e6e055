package segmenter

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/decred/slog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ebailey78/scribe/internal/netutils"
)

// Stats holds the recorder metrics on a private prometheus registry.
type Stats struct {
	reg *prometheus.Registry

	segments            prometheus.Counter
	silentSegments      prometheus.Counter
	transcriptionErrors prometheus.Counter
	persistenceErrors   prometheus.Counter

	bufferedSeconds prometheus.Gauge
	queueDepth      prometheus.Gauge
	peakLevels      *prometheus.GaugeVec
}

// NewStats creates the metric set. It is usable without ever being
// served.
func NewStats() *Stats {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return &Stats{
		reg: reg,

		segments: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_segments_dispatched",
			Help: "Segments archived and sent to transcription",
		}),
		silentSegments: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_silent_segments",
			Help: "Segments whose peak amplitude was below the silent segment threshold",
		}),
		transcriptionErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_errors",
			Help: "Failed transcription service calls",
		}),
		persistenceErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_persistence_errors",
			Help: "Failed archive writes and transcript appends",
		}),
		bufferedSeconds: f.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_buffered_seconds",
			Help: "Seconds of audio awaiting segmentation",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_queue_depth",
			Help: "Capture batches queued and not yet drained",
		}),
		peakLevels: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scribe_peak_level",
			Help: "Peak amplitude of the most recent batch per capture source",
		}, []string{"source"}),
	}
}

// SetLevel reports the most recent peak amplitude of a capture source.
func (s *Stats) SetLevel(source string, v float64) {
	s.peakLevels.WithLabelValues(source).Set(v)
}

// ServeMetrics exposes the registry on /metrics at addr until ctx is
// canceled. Binds both tcp4 and tcp6 when the host is empty.
func (s *Stats) ServeMetrics(ctx context.Context, addr string, log slog.Logger) error {
	listeners, err := netutils.Listen(addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	promHandler := promhttp.InstrumentMetricHandler(
		s.reg, promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}),
	)
	mux.Handle("/metrics", promHandler)
	hs := http.Server{
		BaseContext: func(net.Listener) context.Context { return ctx },
		Handler:     mux,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		l := l
		log.Infof("Exposing prometheus metrics on %s", l.Addr())
		g.Go(func() error { return hs.Serve(l) })
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return hs.Shutdown(sctx)
	})

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = ctx.Err()
	}
	return err
}
