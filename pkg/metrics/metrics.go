package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var startTime = time.Now()

// UnknownVariant is the variant label for identifiers outside the preset
// catalog, which keeps the label set bounded.
const UnknownVariant = "unknown"

// RecordSynthesis records a finished synthesis request
func (r *Registry) RecordSynthesis(variant, status string, duration time.Duration, rounds, lemmas int) {
	r.SynthesisTotal.WithLabelValues(variant, status).Inc()
	r.SynthesisDuration.WithLabelValues(status).Observe(duration.Seconds())
	if rounds > 0 {
		r.SolverRounds.WithLabelValues(status).Observe(float64(rounds))
		r.SolverLemmas.Observe(float64(lemmas))
	}
}

// TrackInFlight increments the in-flight gauge and returns its decrement
func (r *Registry) TrackInFlight() func() {
	r.SynthesisInFlight.Inc()
	return r.SynthesisInFlight.Dec
}

// RecordModel records the shape of a compiled model
func (r *Registry) RecordModel(features int, constraintsByOrigin map[string]int) {
	r.FeaturesDeclared.Set(float64(features))
	for origin, n := range constraintsByOrigin {
		r.ConstraintsTotal.WithLabelValues(origin).Set(float64(n))
	}
}

// RecordDroppedEdge counts an edge dropped in lenient mode
func (r *Registry) RecordDroppedEdge(kind string) {
	r.DroppedEdgesTotal.WithLabelValues(kind).Inc()
}

// RecordCacheLookup counts a memoization cache lookup
func (r *Registry) RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.CacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// CacheObserver returns a callback suitable for cache.WithObserver
func (r *Registry) CacheObserver(cache string) func(hit bool) {
	return func(hit bool) { r.RecordCacheLookup(cache, hit) }
}

// RecordArtifactRead counts an artifact read
func (r *Registry) RecordArtifactRead(scheme string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.ArtifactReadsTotal.WithLabelValues(scheme, status).Inc()
}

// UpdateSystemMetrics samples process-level gauges
func (r *Registry) UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	r.UptimeSeconds.Set(time.Since(startTime).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(m.Alloc))
}

// WriteTextfile samples system gauges and writes every metric in the
// prometheus text format to path, for node_exporter's textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.UpdateSystemMetrics()
	return prometheus.WriteToTextfile(path, r.registry)
}
