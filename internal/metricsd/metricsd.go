// Package metricsd exposes protosalvage's run counters as Prometheus
// metrics and serves them, along with a liveness endpoint, over chi in
// daemon (watch) mode. The collector-registration and handler-building
// style is adapted from the teacher's internal/metrics package and wired
// into a router the way internal/api/server.go mounts /metrics and
// /health/live, trimmed to the counters this system actually produces
// (found/duplicates_skipped/conflicts_renamed/written, per spec.md §6's
// summary line) instead of the teacher's HTTP/storage/auth metric set.
package metricsd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/protosalvage/protosalvage/internal/conflict"
)

// Metrics holds the Prometheus collectors for a watch-mode run.
type Metrics struct {
	Found             prometheus.Counter
	DuplicatesSkipped prometheus.Counter
	ConflictsRenamed  prometheus.Counter
	ConflictsSkipped  prometheus.Counter
	Written           prometheus.Counter
	BinariesScanned   prometheus.Counter

	registry *prometheus.Registry
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.Found = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "protosalvage_descriptors_found_total",
		Help: "Total number of FileDescriptorProto candidates located by the scanner.",
	})
	m.DuplicatesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "protosalvage_duplicates_skipped_total",
		Help: "Total number of descriptors skipped because identical content was already written.",
	})
	m.ConflictsRenamed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "protosalvage_conflicts_renamed_total",
		Help: "Total number of filename collisions resolved by renaming.",
	})
	m.ConflictsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "protosalvage_conflicts_skipped_total",
		Help: "Total number of filename collisions dropped under the skip-conflicts strategy.",
	})
	m.Written = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "protosalvage_artifacts_written_total",
		Help: "Total number of reconstructed .proto files written to the output directory.",
	})
	m.BinariesScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "protosalvage_binaries_scanned_total",
		Help: "Total number of input binaries processed.",
	})

	m.registry.MustRegister(
		m.Found,
		m.DuplicatesSkipped,
		m.ConflictsRenamed,
		m.ConflictsSkipped,
		m.Written,
		m.BinariesScanned,
	)
	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Observe adds c to the underlying Prometheus counters. Counters only
// ever increase, so callers pass the change since their previous call,
// not the resolver's cumulative snapshot; watch mode calls it once per
// processed binary with that binary's own counters.
func (m *Metrics) Observe(c conflict.Counters) {
	m.Found.Add(float64(c.Found))
	m.DuplicatesSkipped.Add(float64(c.DuplicatesSkipped))
	m.ConflictsRenamed.Add(float64(c.ConflictsRenamed))
	m.ConflictsSkipped.Add(float64(c.ConflictsSkipped))
	m.Written.Add(float64(c.Written))
}

// IncBinariesScanned records that one more input binary was processed.
func (m *Metrics) IncBinariesScanned() {
	m.BinariesScanned.Inc()
}

// Router returns a chi.Router serving /metrics and /healthz.
func (m *Metrics) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}).ServeHTTP(w, r)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Serve starts an HTTP server on addr and blocks until ctx is cancelled,
// then shuts the server down gracefully. Mirrors the teacher's
// api.Server.Start/Shutdown split in cmd/schema-registry/main.go.
func Serve(ctx context.Context, addr string, m *Metrics) error {
	srv := &http.Server{Addr: addr, Handler: m.Router()}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
