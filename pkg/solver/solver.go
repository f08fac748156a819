// Package solver is the satisfiability oracle used by synthesis: CNF
// clauses over boolean variables, grouped by origin, plus theory checks
// that refine the search with lemma clauses until every check accepts the
// model.
//
// Each group is guarded by a selector literal that is assumed true on
// every solve. When the problem is unsatisfiable the solver's failed
// assumptions therefore name the groups involved in the conflict.
package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"

	"github.com/dd0wney/cluso-variantsynth/pkg/constraints"
)

// ErrRoundLimit is returned when theory refinement exceeds Options.MaxRounds
var ErrRoundLimit = errors.New("solver round limit exceeded")

// Theory checks a candidate model against a constraint the clauses do not
// capture. When it rejects the model it returns a clause that the model
// falsifies and that every acceptable model satisfies.
type Theory interface {
	Check(a constraints.Assignment) (lemma []constraints.Lit, ok bool)
}

// Group is a labelled set of clauses and an optional theory. Lemmas from
// the theory are guarded by the same selector as the clauses.
type Group struct {
	Label   string
	Clauses [][]constraints.Lit
	Theory  Theory
}

// Problem is a conjunction of groups over variables 1..Vars
type Problem struct {
	Vars   int
	Groups []Group
}

// TieBreak selects how values are chosen among equally valid models
type TieBreak int

const (
	// TieBreakSolver returns the first model the solver finds
	TieBreakSolver TieBreak = iota
	// TieBreakPreferFalse returns the model that is smallest in variable
	// order with false < true
	TieBreakPreferFalse
)

// ParseTieBreak maps "prefer-false" to TieBreakPreferFalse and anything else to TieBreakSolver
func ParseTieBreak(s string) TieBreak {
	if s == "prefer-false" {
		return TieBreakPreferFalse
	}
	return TieBreakSolver
}

func (t TieBreak) String() string {
	if t == TieBreakPreferFalse {
		return "prefer-false"
	}
	return "solver"
}

// Options configures a solve
type Options struct {
	TieBreak TieBreak
	// Diagnostics reports the labels of conflicting groups on unsat
	Diagnostics bool
	// MaxRounds bounds solver calls; 0 means unlimited
	MaxRounds int
}

// Solution is the outcome of a solve
type Solution struct {
	Satisfiable bool
	// Conflicts lists group labels from the failed assumptions (unsat with Diagnostics only)
	Conflicts []string
	// Rounds counts calls to the underlying SAT solver
	Rounds int
	// Lemmas counts theory clauses added
	Lemmas int

	values []bool
}

// Value returns the model value of v; false when unsatisfiable
func (s *Solution) Value(v constraints.Var) bool {
	if int(v) < 1 || int(v) >= len(s.values) {
		return false
	}
	return s.values[v]
}

// Assignment exposes the model as a constraints.Assignment
func (s *Solution) Assignment() constraints.Assignment {
	return s.Value
}

type instance struct {
	g         *gini.Gini
	p         Problem
	opts      Options
	selectors []z.Lit
	rounds    int
	lemmas    int
}

// Solve decides the problem with a fresh solver instance
func Solve(ctx context.Context, p Problem, opts Options) (*Solution, error) {
	in := newInstance(p, opts)

	ok, err := in.solve(ctx, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		sol := &Solution{Rounds: in.rounds, Lemmas: in.lemmas}
		if opts.Diagnostics {
			sol.Conflicts = in.conflicts()
		}
		return sol, nil
	}

	values := in.model()
	if opts.TieBreak == TieBreakPreferFalse {
		if values, err = in.minimize(ctx, values); err != nil {
			return nil, err
		}
	}
	return &Solution{Satisfiable: true, Rounds: in.rounds, Lemmas: in.lemmas, values: values}, nil
}

func newInstance(p Problem, opts Options) *instance {
	in := &instance{
		g:    gini.New(),
		p:    p,
		opts: opts,
	}

	// Selectors follow the feature variables; one extra free variable
	// anchors every feature in the solver so each receives a value.
	for i, grp := range p.Groups {
		sel := z.Var(p.Vars + 1 + i).Pos()
		in.selectors = append(in.selectors, sel)
		for _, clause := range grp.Clauses {
			in.addGuarded(sel, clause)
		}
	}
	anchor := z.Var(p.Vars + len(p.Groups) + 1).Pos()
	for v := 1; v <= p.Vars; v++ {
		in.addClause(anchor, z.Var(v).Pos())
	}
	for _, sel := range in.selectors {
		in.addClause(anchor, sel)
	}
	return in
}

func (in *instance) addClause(lits ...z.Lit) {
	for _, m := range lits {
		in.g.Add(m)
	}
	in.g.Add(z.LitNull)
}

func (in *instance) addGuarded(sel z.Lit, clause []constraints.Lit) {
	in.g.Add(sel.Not())
	for _, l := range clause {
		in.g.Add(z.Dimacs2Lit(int(l)))
	}
	in.g.Add(z.LitNull)
}

// solve runs the SAT solver under the group selectors and extra
// assumptions, refining with theory lemmas until all theories accept.
func (in *instance) solve(ctx context.Context, extra []z.Lit) (bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if in.opts.MaxRounds > 0 && in.rounds >= in.opts.MaxRounds {
			return false, fmt.Errorf("%w: %d", ErrRoundLimit, in.opts.MaxRounds)
		}

		in.g.Assume(in.selectors...)
		in.g.Assume(extra...)
		in.rounds++
		if in.g.Solve() != 1 {
			return false, nil
		}

		a := in.assignment()
		refined := false
		for i, grp := range in.p.Groups {
			if grp.Theory == nil {
				continue
			}
			lemma, ok := grp.Theory.Check(a)
			if ok {
				continue
			}
			in.addGuarded(in.selectors[i], lemma)
			in.lemmas++
			refined = true
		}
		if !refined {
			return true, nil
		}
	}
}

func (in *instance) assignment() constraints.Assignment {
	return func(v constraints.Var) bool {
		if v < 1 || int(v) > in.p.Vars {
			return false
		}
		return in.g.Value(z.Var(v).Pos())
	}
}

func (in *instance) model() []bool {
	values := make([]bool, in.p.Vars+1)
	for v := 1; v <= in.p.Vars; v++ {
		values[v] = in.g.Value(z.Var(v).Pos())
	}
	return values
}

// minimize walks variables in order and keeps each one false whenever the
// problem stays satisfiable with all earlier decisions fixed.
func (in *instance) minimize(ctx context.Context, values []bool) ([]bool, error) {
	fixed := make([]z.Lit, 0, in.p.Vars)
	for v := 1; v <= in.p.Vars; v++ {
		lit := z.Var(v).Pos()
		if !values[v] {
			fixed = append(fixed, lit.Not())
			continue
		}
		ok, err := in.solve(ctx, append(fixed, lit.Not()))
		if err != nil {
			return nil, err
		}
		if ok {
			values = in.model()
			fixed = append(fixed, lit.Not())
		} else {
			fixed = append(fixed, lit)
		}
	}
	return values, nil
}

// conflicts maps the failed assumptions of the last solve back to group
// labels, in group order.
func (in *instance) conflicts() []string {
	failed := make(map[z.Lit]bool)
	for _, m := range in.g.Why(nil) {
		failed[m] = true
	}
	labels := make([]string, 0, len(failed))
	seen := make(map[string]bool, len(failed))
	for i, sel := range in.selectors {
		label := in.p.Groups[i].Label
		if !failed[sel] || seen[label] {
			continue
		}
		seen[label] = true
		labels = append(labels, label)
	}
	return labels
}
