package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the application
type Registry struct {
	// Synthesis Metrics
	SynthesisTotal    *prometheus.CounterVec
	SynthesisDuration *prometheus.HistogramVec
	SynthesisInFlight prometheus.Gauge

	// Solver Metrics
	SolverRounds *prometheus.HistogramVec
	SolverLemmas prometheus.Histogram

	// Model Metrics
	FeaturesDeclared  prometheus.Gauge
	ConstraintsTotal  *prometheus.GaugeVec
	DroppedEdgesTotal *prometheus.CounterVec

	// Artifact Metrics
	CacheLookupsTotal  *prometheus.CounterVec
	ArtifactReadsTotal *prometheus.CounterVec

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.Mutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initSynthesisMetrics()
	r.initModelMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
