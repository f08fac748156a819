package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSynthesisMetrics() {
	r.SynthesisTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "variantsynth_synthesis_total",
			Help: "Total number of synthesis requests",
		},
		[]string{"variant", "status"}, // satisfied, infeasible, error
	)

	r.SynthesisDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "variantsynth_synthesis_duration_seconds",
			Help:    "Synthesis request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"status"},
	)

	r.SynthesisInFlight = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "variantsynth_synthesis_in_flight",
			Help: "Number of synthesis requests currently running",
		},
	)

	r.SolverRounds = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "variantsynth_solver_rounds",
			Help:    "SAT solver calls per synthesis request",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
		[]string{"status"},
	)

	r.SolverLemmas = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "variantsynth_solver_lemmas",
			Help:    "Cost-bound lemma clauses added per synthesis request",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
		},
	)
}
