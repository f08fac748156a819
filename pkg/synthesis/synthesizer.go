// Package synthesis finds a feature configuration for a variant that
// satisfies the feature model, the variant preset, the safety policy and
// the timing bounds observed in traces.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-variantsynth/pkg/artifact"
	"github.com/dd0wney/cluso-variantsynth/pkg/bounds"
	"github.com/dd0wney/cluso-variantsynth/pkg/cache"
	"github.com/dd0wney/cluso-variantsynth/pkg/config"
	"github.com/dd0wney/cluso-variantsynth/pkg/constraints"
	"github.com/dd0wney/cluso-variantsynth/pkg/cost"
	"github.com/dd0wney/cluso-variantsynth/pkg/featuremodel"
	"github.com/dd0wney/cluso-variantsynth/pkg/logging"
	"github.com/dd0wney/cluso-variantsynth/pkg/metrics"
	"github.com/dd0wney/cluso-variantsynth/pkg/parallel"
	"github.com/dd0wney/cluso-variantsynth/pkg/preset"
	"github.com/dd0wney/cluso-variantsynth/pkg/solver"
)

// ErrPanic wraps a panic recovered from a batch request
var ErrPanic = errors.New("synthesis panicked")

// ErrInconsistent is returned when a solver model fails re-validation
var ErrInconsistent = errors.New("synthesized assignment violates constraints")

// Constraint group labels, reported in Result.Conflicts
const (
	GroupStructure          = "structure"
	GroupPreset             = "preset"
	GroupPolicy             = "policy"
	GroupEmpiricalLatency   = "empirical.latency"
	GroupEmpiricalFreshness = "empirical.freshness"
)

// Options supplies collaborators; zero values select defaults
type Options struct {
	// Store reads artifacts; defaults to a router rooted at Artifacts.Root
	Store artifact.Store
	// Catalog resolves variant presets; defaults to preset.Default()
	Catalog preset.Catalog
	Logger  logging.Logger
	Metrics *metrics.Registry
}

// Synthesizer answers synthesis requests. It is safe for concurrent use;
// each request builds its own constraints and solver instance.
type Synthesizer struct {
	cfg     *config.Config
	catalog preset.Catalog
	logger  logging.Logger
	metrics *metrics.Registry

	models *featuremodel.Loader
	bounds *bounds.Extractor
}

// New creates a synthesizer for a validated configuration
func New(cfg *config.Config, opts Options) (*Synthesizer, error) {
	if err := cfg.Cost.Validate(); err != nil {
		return nil, err
	}

	s := &Synthesizer{
		cfg:     cfg,
		catalog: opts.Catalog,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if s.catalog == nil {
		s.catalog = preset.Default()
	}
	if s.logger == nil {
		s.logger = logging.DefaultLogger()
	}
	s.logger = s.logger.With(logging.Component("synthesis"))
	if s.metrics == nil {
		s.metrics = metrics.DefaultRegistry()
	}

	store := opts.Store
	if store == nil {
		store = artifact.NewRouter(cfg.Artifacts.Root)
	}
	store = &instrumentedStore{Store: store, metrics: s.metrics}

	s.models = &featuremodel.Loader{
		Store: store,
		URI:   cfg.Artifacts.FeatureModel,
		Cache: cache.New[*featuremodel.Document](cfg.Cache.Size,
			cache.WithObserver[*featuremodel.Document](s.metrics.CacheObserver("feature_model"))),
	}
	s.bounds = &bounds.Extractor{
		Store:   store,
		Sources: cfg.Artifacts.Sources,
		Cache: cache.New[*bounds.EmpiricalBounds](cfg.Cache.Size,
			cache.WithObserver[*bounds.EmpiricalBounds](s.metrics.CacheObserver("bounds"))),
	}
	return s, nil
}

// LoadCatalog reads a YAML preset catalog through the store
func LoadCatalog(ctx context.Context, store artifact.Store, uri string) (*preset.Registry, error) {
	data, err := store.Read(ctx, uri)
	if err != nil {
		return nil, err
	}
	return preset.Load(data)
}

// Purge drops memoized documents and bounds
func (s *Synthesizer) Purge() {
	s.models.Cache.Purge()
	s.bounds.Cache.Purge()
}

// Bounds returns the empirical bounds for the current trace artifacts
func (s *Synthesizer) Bounds(ctx context.Context) (*bounds.EmpiricalBounds, error) {
	return s.bounds.Extract(ctx)
}

// Compile returns the compiled feature model for the current artifact
func (s *Synthesizer) Compile(ctx context.Context) (*featuremodel.Compiled, error) {
	doc, err := s.models.Load(ctx)
	if err != nil {
		return nil, err
	}
	compiled, err := featuremodel.Compile(doc, featuremodel.Options{
		UnknownEdges: featuremodel.ParseEdgePolicy(s.cfg.Policy.UnknownEdges),
		Logger:       s.logger,
	})
	if err != nil {
		return nil, err
	}
	for _, d := range compiled.Dropped {
		s.metrics.RecordDroppedEdge(d.Kind)
	}
	return compiled, nil
}

// Synthesize finds an assignment for the variant. Infeasibility is a
// result status; errors are reserved for unusable inputs.
func (s *Synthesizer) Synthesize(ctx context.Context, variant string) (*Result, error) {
	reqID := uuid.NewString()
	logger := s.logger.With(logging.RequestID(reqID), logging.Variant(variant))
	timer := logging.StartTimer(logger, "synthesis finished")
	defer s.metrics.TrackInFlight()()

	label := variant
	if !s.catalog.Has(variant) {
		label = metrics.UnknownVariant
	}

	res, err := s.synthesize(ctx, logger, variant)
	if err != nil {
		s.metrics.RecordSynthesis(label, "error", timer.Elapsed(), 0, 0)
		timer.EndError(err)
		return nil, err
	}
	res.RequestID = reqID

	s.metrics.RecordSynthesis(label, res.Status.String(), timer.Elapsed(), res.Rounds, res.Lemmas)
	timer.End(
		logging.String("status", res.Status.String()),
		logging.Int("rounds", res.Rounds),
		logging.Strings("conflicts", res.Conflicts))
	return res, nil
}

func (s *Synthesizer) synthesize(ctx context.Context, logger logging.Logger, variant string) (*Result, error) {
	eb, err := s.bounds.Extract(ctx)
	if err != nil {
		return nil, fmt.Errorf("derive bounds: %w", err)
	}
	compiled, err := s.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile feature model: %w", err)
	}

	presetCons := s.presetConstraints(logger, compiled, variant)
	policyCons := s.policyConstraints(compiled)
	s.metrics.RecordModel(compiled.NumVars(), map[string]int{
		GroupStructure: len(compiled.Constraints),
		GroupPreset:    len(presetCons),
		GroupPolicy:    len(policyCons),
	})

	model := cost.Build(s.cfg.Cost, compiled.Vars)
	limitMs := eb.LatencyBound(variant)
	bound := cost.Bound{Model: model, Limit: cost.Rat(limitMs)}

	window, freshnessOK := s.freshnessWindow(eb)

	groups := []solver.Group{
		clauseGroup(GroupStructure, compiled.Constraints),
		clauseGroup(GroupPreset, presetCons),
		clauseGroup(GroupPolicy, policyCons),
		{Label: GroupEmpiricalLatency, Theory: bound},
	}
	if !freshnessOK {
		// the integer window has an empty range; the empty clause is
		// false whenever its selector is assumed
		groups = append(groups, solver.Group{Label: GroupEmpiricalFreshness, Clauses: [][]constraints.Lit{{}}})
	}

	logger.Debug("solving",
		logging.Int("features", compiled.NumVars()),
		logging.Float64("latency_bound_ms", limitMs),
		logging.Any("freshness_min_ms", window),
		logging.String("cost", model.String()))

	sol, err := solver.Solve(ctx, solver.Problem{Vars: compiled.NumVars(), Groups: groups}, solver.Options{
		TieBreak:    solver.ParseTieBreak(s.cfg.Policy.TieBreak),
		Diagnostics: s.cfg.Policy.Diagnostics,
		MaxRounds:   s.cfg.Policy.MaxRounds,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		Variant:        variant,
		LatencyBoundMs: limitMs,
		Rounds:         sol.Rounds,
		Lemmas:         sol.Lemmas,
	}
	for _, d := range compiled.Dropped {
		res.Dropped = append(res.Dropped, d.String())
	}
	if !sol.Satisfiable {
		res.Status = StatusInfeasible
		res.Conflicts = sol.Conflicts
		return res, nil
	}

	a := sol.Assignment()
	if err := recheck(compiled, a, presetCons, policyCons, bound); err != nil {
		return nil, err
	}

	res.Status = StatusSatisfied
	res.Assignment = make(map[string]bool, compiled.NumVars())
	for _, name := range compiled.Names {
		v, _ := compiled.Lookup(name)
		res.Assignment[name] = a(v)
	}
	ev := model.Evaluate(a)
	res.LatencyMs, _ = ev.Total.Float64()
	for _, c := range ev.Choices {
		ms, _ := c.Cost.Float64()
		res.Costs = append(res.Costs, CostTerm{Dimension: c.Dimension, Feature: c.Feature, CostMs: ms})
	}
	res.FreshnessWindowMs = window
	return res, nil
}

// presetConstraints fixes each preset entry that names a declared feature
func (s *Synthesizer) presetConstraints(logger logging.Logger, compiled *featuremodel.Compiled, variant string) []constraints.Constraint {
	p := s.catalog.Lookup(variant)
	out := make([]constraints.Constraint, 0, len(p))
	for _, name := range p.Features() {
		v, ok := compiled.Lookup(name)
		if !ok {
			logger.Debug("ignoring preset entry for undeclared feature", logging.Feature(name))
			continue
		}
		out = append(out, constraints.Fixed(constraints.OriginPreset, fmt.Sprintf("preset(%s=%t)", name, p[name]), v, p[name]))
	}
	return out
}

// policyConstraints forces the safety-critical feature on when declared
func (s *Synthesizer) policyConstraints(compiled *featuremodel.Compiled) []constraints.Constraint {
	name := s.cfg.Policy.SafetyFeature
	v, ok := compiled.Lookup(name)
	if name == "" || !ok {
		return nil
	}
	return []constraints.Constraint{constraints.Fixed(constraints.OriginPolicy, fmt.Sprintf("safety(%s)", name), v, true)}
}

// freshnessWindow returns the smallest admissible integer window and
// whether the admissible range is non-empty.
func (s *Synthesizer) freshnessWindow(eb *bounds.EmpiricalBounds) (int64, bool) {
	lower := eb.MinFreshnessWindow()
	if !s.cfg.Policy.BoundFreshnessByReplay {
		return lower, true
	}
	return lower, lower <= eb.MaxFreshnessWindow()
}

func clauseGroup(label string, cs []constraints.Constraint) solver.Group {
	g := solver.Group{Label: label}
	for _, c := range cs {
		g.Clauses = append(g.Clauses, c.Clauses()...)
	}
	return g
}

// recheck validates the model against every constraint independently of
// the solver encoding.
func recheck(compiled *featuremodel.Compiled, a constraints.Assignment, presetCons, policyCons []constraints.Constraint, bound cost.Bound) error {
	v := constraints.NewValidator(compiled.Name)
	v.AddConstraints(compiled.Constraints)
	v.AddConstraints(presetCons)
	v.AddConstraints(policyCons)

	result := v.Validate(a)
	if !result.Valid {
		msgs := make([]string, 0, len(result.Violations))
		for _, viol := range result.Violations {
			msgs = append(msgs, viol.Message)
		}
		return fmt.Errorf("%w: %s", ErrInconsistent, strings.Join(msgs, "; "))
	}
	if _, ok := bound.Check(a); !ok {
		return fmt.Errorf("%w: latency above %s ms", ErrInconsistent, bound.Limit.FloatString(2))
	}
	return nil
}

// Outcome pairs a batch request's result with its error
type Outcome struct {
	Variant string
	Result  *Result
	Err     error
}

// SynthesizeAll runs independent requests on a worker pool sized by the
// configuration. Outcomes are returned in request order.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, variants []string) ([]Outcome, error) {
	pool, err := parallel.NewWorkerPool(s.cfg.Workers)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	return parallel.Map(pool, variants, func(_ int, variant string) (out Outcome) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("synthesis panicked", logging.Variant(variant), logging.Any("panic", r))
				out = Outcome{Variant: variant, Err: fmt.Errorf("%w: %v", ErrPanic, r)}
			}
		}()
		res, err := s.Synthesize(ctx, variant)
		return Outcome{Variant: variant, Result: res, Err: err}
	}), nil
}

type instrumentedStore struct {
	artifact.Store
	metrics *metrics.Registry
}

func (s *instrumentedStore) Read(ctx context.Context, uri string) ([]byte, error) {
	scheme := "unknown"
	if loc, err := artifact.ParseURI(uri); err == nil {
		scheme = loc.Scheme
	}
	data, err := s.Store.Read(ctx, uri)
	s.metrics.RecordArtifactRead(scheme, err)
	return data, err
}
