// Package metrics records vault-manager observability counters.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter
	backendOpsTotal  *prometheus.CounterVec
	rebuildsTotal    prometheus.Counter
	backendsActive   prometheus.Gauge

	metricsOnce       sync.Once
	metricsRegistered bool
)

// VaultMetrics provides methods to record vault manager metrics.
// All methods are no-ops until Init has been called.
type VaultMetrics struct{}

// NewVaultMetrics creates a new VaultMetrics instance.
func NewVaultMetrics() *VaultMetrics {
	return &VaultMetrics{}
}

// Init registers all Prometheus metrics. Call once at startup when metrics
// are enabled.
func Init() {
	metricsOnce.Do(func() {
		cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "connkeep_credential_cache_hits_total",
			Help: "Total number of credential resolutions served from the cache",
		})

		cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "connkeep_credential_cache_misses_total",
			Help: "Total number of credential resolutions that went to a backend",
		})

		backendOpsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "connkeep_backend_operations_total",
				Help: "Total number of backend operations by backend, operation, and outcome",
			},
			[]string{"backend", "operation", "outcome"},
		)

		rebuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "connkeep_backend_chain_rebuilds_total",
			Help: "Total number of backend chain rebuilds from settings",
		})

		backendsActive = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "connkeep_backends_configured",
			Help: "Number of backends in the current priority chain",
		})

		metricsRegistered = true
	})
}

// RecordCacheHit records a resolution served from the cache.
func (m *VaultMetrics) RecordCacheHit() {
	if !metricsRegistered || cacheHitsTotal == nil {
		return
	}
	cacheHitsTotal.Inc()
}

// RecordCacheMiss records a resolution that fell through to a backend.
func (m *VaultMetrics) RecordCacheMiss() {
	if !metricsRegistered || cacheMissesTotal == nil {
		return
	}
	cacheMissesTotal.Inc()
}

// RecordBackendOp records the outcome of one backend operation.
func (m *VaultMetrics) RecordBackendOp(backend, operation, outcome string) {
	if !metricsRegistered || backendOpsTotal == nil {
		return
	}
	backendOpsTotal.WithLabelValues(backend, operation, outcome).Inc()
}

// RecordRebuild records a chain rebuild and the resulting backend count.
func (m *VaultMetrics) RecordRebuild(backendCount int) {
	if !metricsRegistered || rebuildsTotal == nil {
		return
	}
	rebuildsTotal.Inc()
	backendsActive.Set(float64(backendCount))
}
