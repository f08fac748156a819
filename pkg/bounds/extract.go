package bounds

import (
	"context"
	"errors"
	"fmt"

	"github.com/dd0wney/cluso-variantsynth/pkg/artifact"
	"github.com/dd0wney/cluso-variantsynth/pkg/cache"
)

// Inputs holds the raw contents of the four trace tables
type Inputs struct {
	CANLogs       []byte
	HILLatency    []byte
	VariantTiming []byte
	ReplayLogs    []byte
}

// Parse aggregates the trace tables into bounds. A missing required
// column or an empty required column fails the whole extraction; the
// jitter column is optional and defaults to 0, also when every cell is empty.
func Parse(in Inputs) (*EmpiricalBounds, error) {
	can, err := ReadTable("can_logs", in.CANLogs)
	if err != nil {
		return nil, err
	}
	ia, err := can.Summarize(ColumnInterArrival)
	if err != nil {
		return nil, err
	}

	hil, err := ReadTable("hil_latency", in.HILLatency)
	if err != nil {
		return nil, err
	}
	lat, err := hil.Summarize(ColumnLatency)
	if err != nil {
		return nil, err
	}
	jitter := 0.0
	if hil.Has(ColumnJitter) {
		js, err := hil.Summarize(ColumnJitter)
		switch {
		case errors.Is(err, ErrNoData):
			// a present but empty jitter column counts as absent
		case err != nil:
			return nil, err
		default:
			jitter = js.Max
		}
	}

	vt, err := ReadTable("variant_timing", in.VariantTiming)
	if err != nil {
		return nil, err
	}
	byVariant, err := vt.GroupMax(ColumnVariant, ColumnLatency)
	if err != nil {
		return nil, err
	}

	rp, err := ReadTable("replay_logs", in.ReplayLogs)
	if err != nil {
		return nil, err
	}
	replay, err := rp.Summarize(ColumnReplayInterval)
	if err != nil {
		return nil, err
	}

	b := &EmpiricalBounds{
		D1MeanPeriodMs:        ia.Mean,
		D1MinInterarrivalMs:   ia.Min,
		D1MaxInterarrivalMs:   ia.Max,
		D2MaxAuthLatencyMs:    lat.Max,
		D2MaxJitterMs:         jitter,
		D3MaxLatencyByVariant: byVariant,
		D4MinReplayIntervalMs: replay.Min,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Sources names the trace artifacts
type Sources struct {
	CANLogs       string `yaml:"can_logs" mapstructure:"can_logs" json:"can_logs" validate:"required"`
	HILLatency    string `yaml:"hil_latency" mapstructure:"hil_latency" json:"hil_latency" validate:"required"`
	VariantTiming string `yaml:"variant_timing" mapstructure:"variant_timing" json:"variant_timing" validate:"required"`
	ReplayLogs    string `yaml:"replay_logs" mapstructure:"replay_logs" json:"replay_logs" validate:"required"`
}

// Extractor reads the trace artifacts and derives bounds. Results are
// memoized by the digest of all four artifacts when Cache is set.
type Extractor struct {
	Store   artifact.Store
	Sources Sources
	Cache   *cache.LRU[*EmpiricalBounds]
}

// Extract returns the bounds for the current artifact contents
func (e *Extractor) Extract(ctx context.Context) (*EmpiricalBounds, error) {
	var in Inputs
	reads := []struct {
		uri string
		dst *[]byte
	}{
		{e.Sources.CANLogs, &in.CANLogs},
		{e.Sources.HILLatency, &in.HILLatency},
		{e.Sources.VariantTiming, &in.VariantTiming},
		{e.Sources.ReplayLogs, &in.ReplayLogs},
	}
	for _, r := range reads {
		data, err := e.Store.Read(ctx, r.uri)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", r.uri, err)
		}
		*r.dst = data
	}

	key := artifact.Digest(in.CANLogs, in.HILLatency, in.VariantTiming, in.ReplayLogs)
	if b, ok := e.Cache.Get(key); ok {
		return b, nil
	}

	b, err := Parse(in)
	if err != nil {
		return nil, err
	}
	e.Cache.Put(key, b)
	return b, nil
}
