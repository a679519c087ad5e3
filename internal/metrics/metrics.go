// Package metrics exposes Prometheus collectors for the timeline pipeline.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feedline"

// Metrics records pipeline activity. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	snapshotsReceived prometheus.Counter
	statesPublished   prometheus.Counter
	diffDuration      prometheus.Histogram
	diffOps           *prometheus.CounterVec
	notices           *prometheus.CounterVec
	fetches           *prometheus.CounterVec
	fetchDuration     *prometheus.HistogramVec
}

// New creates collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		snapshotsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_received_total",
			Help:      "Snapshots consumed from the source stream",
		}),
		statesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "states_published_total",
			Help:      "UI states published to subscribers",
		}),
		diffDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "diff_duration_seconds",
			Help:      "Time spent computing edit scripts",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
		diffOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diff_ops_total",
			Help:      "Edit operations emitted, by kind",
		}, []string{"kind"}),
		notices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_total",
			Help:      "One-shot error notices emitted, by role",
		}, []string{"role"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Page fetches, by role and outcome",
		}, []string{"role", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Page fetch latency, by role",
			Buckets:   prometheus.DefBuckets,
		}, []string{"role"}),
	}
	registry.MustRegister(
		m.snapshotsReceived,
		m.statesPublished,
		m.diffDuration,
		m.diffOps,
		m.notices,
		m.fetches,
		m.fetchDuration,
	)
	return m
}

func (m *Metrics) SnapshotReceived() {
	if m == nil {
		return
	}
	m.snapshotsReceived.Inc()
}

func (m *Metrics) DiffComputed(elapsed time.Duration, inserts, removes, updates int) {
	if m == nil {
		return
	}
	m.diffDuration.Observe(elapsed.Seconds())
	m.diffOps.WithLabelValues("insert").Add(float64(inserts))
	m.diffOps.WithLabelValues("remove").Add(float64(removes))
	m.diffOps.WithLabelValues("update").Add(float64(updates))
}

func (m *Metrics) StatePublished() {
	if m == nil {
		return
	}
	m.statesPublished.Inc()
}

func (m *Metrics) NoticeEmitted(role string) {
	if m == nil {
		return
	}
	m.notices.WithLabelValues(role).Inc()
}

// FetchCompleted records one page fetch for role ("page" or "more").
func (m *Metrics) FetchCompleted(role string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, context.Canceled):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	}
	m.fetches.WithLabelValues(role, outcome).Inc()
	m.fetchDuration.WithLabelValues(role).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Serve exposes Handler on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
