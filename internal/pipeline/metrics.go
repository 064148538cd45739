package pipeline

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks pipeline progress for an optional scrape endpoint.
type Metrics struct {
	registry *prometheus.Registry

	deploysTotal  *prometheus.CounterVec
	probeAttempts prometheus.Counter
	inFlight      prometheus.Gauge
	duration      prometheus.Histogram
}

// NewMetrics creates a registry-backed metrics set.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		deploysTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jumpship",
				Subsystem: "pipeline",
				Name:      "deploys_total",
				Help:      "Total number of finished target pipelines by status",
			},
			[]string{"status", "failure"},
		),
		probeAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "jumpship",
				Subsystem: "pipeline",
				Name:      "probe_attempts_total",
				Help:      "Total number of health probe attempts across targets",
			},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "jumpship",
				Subsystem: "pipeline",
				Name:      "targets_in_flight",
				Help:      "Number of target pipelines currently running",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "jumpship",
				Subsystem: "pipeline",
				Name:      "target_duration_seconds",
				Help:      "Wall time of one target pipeline in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
			},
		),
	}
	m.registry.MustRegister(m.deploysTotal, m.probeAttempts, m.inFlight, m.duration)
	return m
}

// Serve exposes /metrics on addr until ctx is cancelled. It returns
// when the listener is down; callers run it in the background.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *Metrics) targetStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) targetFinished(outcome Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.duration.Observe(elapsed.Seconds())
	m.deploysTotal.WithLabelValues(string(outcome.Status), string(outcome.Failure)).Inc()
	m.probeAttempts.Add(float64(outcome.Attempts))
}
