package synthesis

import (
	"fmt"
	"sort"
)

// Status is the outcome of a synthesis request
type Status int

const (
	// StatusSatisfied means every constraint holds under Result.Assignment
	StatusSatisfied Status = iota
	// StatusInfeasible means no assignment satisfies the constraints
	StatusInfeasible
)

func (s Status) String() string {
	switch s {
	case StatusSatisfied:
		return "satisfied"
	case StatusInfeasible:
		return "infeasible"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON and YAML output
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "satisfied":
		*s = StatusSatisfied
	case "infeasible":
		*s = StatusInfeasible
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// CostTerm is one cost dimension's contribution to the latency
type CostTerm struct {
	Dimension string  `json:"dimension" yaml:"dimension"`
	Feature   string  `json:"feature,omitempty" yaml:"feature,omitempty"`
	CostMs    float64 `json:"cost_ms" yaml:"cost_ms"`
}

// Result is a total assignment of every declared feature, or the
// infeasible signal. The numeric fields describe the satisfying model.
type Result struct {
	RequestID string `json:"request_id" yaml:"request_id"`
	Variant   string `json:"variant" yaml:"variant"`
	Status    Status `json:"status" yaml:"status"`

	Assignment        map[string]bool `json:"assignment,omitempty" yaml:"assignment,omitempty"`
	LatencyMs         float64         `json:"latency_ms,omitempty" yaml:"latency_ms,omitempty"`
	Costs             []CostTerm      `json:"costs,omitempty" yaml:"costs,omitempty"`
	FreshnessWindowMs int64           `json:"freshness_window_ms,omitempty" yaml:"freshness_window_ms,omitempty"`

	LatencyBoundMs float64  `json:"latency_bound_ms" yaml:"latency_bound_ms"`
	Dropped        []string `json:"dropped_edges,omitempty" yaml:"dropped_edges,omitempty"`
	Conflicts      []string `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	Rounds         int      `json:"solver_rounds" yaml:"solver_rounds"`
	Lemmas         int      `json:"solver_lemmas" yaml:"solver_lemmas"`
}

// Feasible reports whether the request was satisfiable
func (r *Result) Feasible() bool {
	return r.Status == StatusSatisfied
}

// Features returns the assigned feature names in sorted order
func (r *Result) Features() []string {
	names := make([]string, 0, len(r.Assignment))
	for name := range r.Assignment {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Selected returns the features assigned true, in sorted order
func (r *Result) Selected() []string {
	var names []string
	for _, name := range r.Features() {
		if r.Assignment[name] {
			names = append(names, name)
		}
	}
	return names
}
