package observability

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks per-run counters on a private registry. All methods are safe
// on a nil receiver so components can be built without metrics.
type Metrics struct {
	registry *prometheus.Registry

	fetchAttempts  *prometheus.CounterVec
	items          *prometheus.CounterVec
	oracleChunks   prometheus.Counter
	persistedBytes prometheus.Counter

	logger *slog.Logger
}

// NewMetrics creates and registers the run counters.
func NewMetrics(logger *slog.Logger) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrapeoracle_fetch_attempts_total",
			Help: "Page fetch attempts by outcome (ok, status, error).",
		}, []string{"outcome"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrapeoracle_items_total",
			Help: "Link items by terminal state.",
		}, []string{"state"}),
		oracleChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scrapeoracle_oracle_chunks_total",
			Help: "Text chunks received from the generation backend.",
		}),
		persistedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scrapeoracle_persisted_bytes_total",
			Help: "Bytes written to output artifacts.",
		}),
		logger: logger.With("component", "metrics"),
	}

	m.registry.MustRegister(m.fetchAttempts, m.items, m.oracleChunks, m.persistedBytes)
	return m
}

// FetchAttempt counts one fetch attempt.
func (m *Metrics) FetchAttempt(outcome string) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(outcome).Inc()
}

// Item counts one item reaching a terminal state.
func (m *Metrics) Item(state string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(state).Inc()
}

// OracleChunk counts one streamed chunk.
func (m *Metrics) OracleChunk() {
	if m == nil {
		return
	}
	m.oracleChunks.Inc()
}

// Persisted adds n written bytes.
func (m *Metrics) Persisted(n int) {
	if m == nil {
		return
	}
	m.persistedBytes.Add(float64(n))
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteFile dumps the counters in the prometheus text format.
func (m *Metrics) WriteFile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	m.logger.Info("metrics written", "path", path)
	return nil
}
