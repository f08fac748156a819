// Package bounds aggregates trace tables into the empirical timing bounds
// that constrain synthesis.
package bounds

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is returned when an aggregated record is inconsistent
var ErrInvalid = errors.New("invalid empirical bounds")

var validate = validator.New()

// Column names read from the trace tables
const (
	ColumnInterArrival   = "inter_arrival_ms"
	ColumnLatency        = "latency_ms"
	ColumnJitter         = "jitter_ms"
	ColumnVariant        = "variant"
	ColumnReplayInterval = "replay_interval_ms"
)

// EmpiricalBounds is an immutable snapshot of timing bounds derived from
// traces. All values are milliseconds.
type EmpiricalBounds struct {
	D1MeanPeriodMs        float64            `json:"d1_mean_period_ms" yaml:"d1_mean_period_ms" validate:"gtefield=D1MinInterarrivalMs"`
	D1MinInterarrivalMs   float64            `json:"d1_min_interarrival_ms" yaml:"d1_min_interarrival_ms"`
	D1MaxInterarrivalMs   float64            `json:"d1_max_interarrival_ms" yaml:"d1_max_interarrival_ms" validate:"gtefield=D1MeanPeriodMs"`
	D2MaxAuthLatencyMs    float64            `json:"d2_max_auth_latency_ms" yaml:"d2_max_auth_latency_ms"`
	D2MaxJitterMs         float64            `json:"d2_max_jitter_ms" yaml:"d2_max_jitter_ms"`
	D3MaxLatencyByVariant map[string]float64 `json:"d3_max_latency_by_variant" yaml:"d3_max_latency_by_variant" validate:"dive,keys,required,endkeys"`
	D4MinReplayIntervalMs float64            `json:"d4_min_replay_interval_ms" yaml:"d4_min_replay_interval_ms"`
}

// Validate checks the ordering of the inter-arrival statistics and that
// every value is finite.
func (b *EmpiricalBounds) Validate() error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	values := []float64{b.D1MeanPeriodMs, b.D1MinInterarrivalMs, b.D1MaxInterarrivalMs,
		b.D2MaxAuthLatencyMs, b.D2MaxJitterMs, b.D4MinReplayIntervalMs}
	for _, v := range b.D3MaxLatencyByVariant {
		values = append(values, v)
	}
	for _, v := range values {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return fmt.Errorf("%w: non-finite value %v", ErrInvalid, v)
		}
	}
	return nil
}

// LatencyBound returns the effective latency limit for a variant: the
// global maximum, tightened by the variant's own maximum when known.
func (b *EmpiricalBounds) LatencyBound(variant string) float64 {
	if v, ok := b.D3MaxLatencyByVariant[variant]; ok {
		return math.Min(b.D2MaxAuthLatencyMs, v)
	}
	return b.D2MaxAuthLatencyMs
}

// MinFreshnessWindow returns the smallest admissible freshness window:
// the minimum inter-arrival time truncated to whole milliseconds.
func (b *EmpiricalBounds) MinFreshnessWindow() int64 {
	return int64(math.Floor(b.D1MinInterarrivalMs))
}

// MaxFreshnessWindow returns the largest freshness window that stays below
// the shortest observed replay interval.
func (b *EmpiricalBounds) MaxFreshnessWindow() int64 {
	return int64(math.Floor(b.D4MinReplayIntervalMs))
}
