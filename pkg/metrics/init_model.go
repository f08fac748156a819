package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initModelMetrics() {
	r.FeaturesDeclared = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "variantsynth_features_declared",
			Help: "Number of features declared by the last compiled feature model",
		},
	)

	r.ConstraintsTotal = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "variantsynth_constraints",
			Help: "Constraints emitted by the last synthesis request, by origin",
		},
		[]string{"origin"}, // structure, preset, policy
	)

	r.DroppedEdgesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "variantsynth_dropped_edges_total",
			Help: "Requires/excludes edges dropped because they name unknown features",
		},
		[]string{"kind"}, // requires, excludes
	)

	r.CacheLookupsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "variantsynth_cache_lookups_total",
			Help: "Memoization cache lookups",
		},
		[]string{"cache", "result"}, // feature_model|bounds, hit|miss
	)

	r.ArtifactReadsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "variantsynth_artifact_reads_total",
			Help: "Artifact reads by URI scheme and outcome",
		},
		[]string{"scheme", "status"},
	)
}
