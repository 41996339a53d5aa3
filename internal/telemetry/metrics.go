package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus instruments. A nil *Metrics is
// valid and turns every record call into a no-op, so library consumers
// are not forced to run a registry.
type Metrics struct {
	registry *prometheus.Registry

	CacheHits            prometheus.Counter
	CacheMisses          prometheus.Counter
	ReconstructionRuns   *prometheus.CounterVec
	SyncPushFailures     *prometheus.CounterVec
	OutboxDropped        *prometheus.CounterVec
	OutboxFlushed        prometheus.Counter
	BackupRecoveries     prometheus.Counter
	CorruptionClamps     prometheus.Counter
	ReconstructionBlocks prometheus.Histogram
}

// New creates a metrics set on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "basisledger_cache_hits_total",
			Help: "Reconstruction cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "basisledger_cache_misses_total",
			Help: "Reconstruction cache misses",
		}),
		ReconstructionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "basisledger_reconstruction_runs_total",
			Help: "On-chain basis reconstruction attempts by result",
		}, []string{"result"}),
		SyncPushFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "basisledger_sync_push_failures_total",
			Help: "Failed remote backup pushes by operation kind",
		}, []string{"kind"}),
		OutboxDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "basisledger_outbox_dropped_total",
			Help: "Pending sync operations dropped by reason (stale, exhausted)",
		}, []string{"reason"}),
		OutboxFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "basisledger_outbox_flushed_total",
			Help: "Pending sync operations successfully replayed",
		}),
		BackupRecoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "basisledger_backup_recoveries_total",
			Help: "Wallets whose basis was recovered from the backup store",
		}),
		CorruptionClamps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "basisledger_corruption_clamps_total",
			Help: "Times a stored basis was clamped down to the live vault value",
		}),
		ReconstructionBlocks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "basisledger_reconstruction_events",
			Help:    "Transfer events replayed per reconstruction",
			Buckets: []float64{0, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
	}

	m.registry.MustRegister(
		m.CacheHits, m.CacheMisses, m.ReconstructionRuns,
		m.SyncPushFailures, m.OutboxDropped, m.OutboxFlushed,
		m.BackupRecoveries, m.CorruptionClamps, m.ReconstructionBlocks,
	)
	return m
}

// Handler exposes the registry for a /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncCacheHit is nil-safe.
func (m *Metrics) IncCacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

// IncCacheMiss is nil-safe.
func (m *Metrics) IncCacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

// IncReconstruction is nil-safe.
func (m *Metrics) IncReconstruction(result string, events int) {
	if m != nil {
		m.ReconstructionRuns.WithLabelValues(result).Inc()
		if events >= 0 {
			m.ReconstructionBlocks.Observe(float64(events))
		}
	}
}

// IncSyncPushFailure is nil-safe.
func (m *Metrics) IncSyncPushFailure(kind string) {
	if m != nil {
		m.SyncPushFailures.WithLabelValues(kind).Inc()
	}
}

// IncOutboxDropped is nil-safe.
func (m *Metrics) IncOutboxDropped(reason string) {
	if m != nil {
		m.OutboxDropped.WithLabelValues(reason).Inc()
	}
}

// IncOutboxFlushed is nil-safe.
func (m *Metrics) IncOutboxFlushed() {
	if m != nil {
		m.OutboxFlushed.Inc()
	}
}

// IncBackupRecovery is nil-safe.
func (m *Metrics) IncBackupRecovery() {
	if m != nil {
		m.BackupRecoveries.Inc()
	}
}

// IncCorruptionClamp is nil-safe.
func (m *Metrics) IncCorruptionClamp() {
	if m != nil {
		m.CorruptionClamps.Inc()
	}
}
