package cost

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/dd0wney/cluso-variantsynth/pkg/constraints"
)

// Variable is the name of the cost decision variable
const Variable = "latency_ms"

type boundOption struct {
	feature string
	v       constraints.Var
	cost    *big.Rat
}

type boundDimension struct {
	name     string
	options  []boundOption
	fallback *big.Rat
}

// Model is a cost table bound to feature variables. Options whose feature
// is not declared are constant-false and disappear; a dimension with no
// declared options always contributes its fallback.
type Model struct {
	dims []boundDimension
}

// Build binds the table to the compiled feature variables
func Build(t Table, vars map[string]constraints.Var) *Model {
	m := &Model{dims: make([]boundDimension, 0, len(t.Dimensions))}
	for _, d := range t.Dimensions {
		bd := boundDimension{name: d.Name, fallback: Rat(d.Fallback)}
		for _, o := range d.Options {
			v, ok := vars[o.Feature]
			if !ok {
				continue
			}
			bd.options = append(bd.options, boundOption{feature: o.Feature, v: v, cost: Rat(o.Cost)})
		}
		m.dims = append(m.dims, bd)
	}
	return m
}

// Choice is the branch a dimension took under an assignment
type Choice struct {
	Dimension string
	Feature   string // empty when the fallback applied
	Cost      *big.Rat
}

// Evaluation is the value of the cost expression under an assignment
type Evaluation struct {
	Total   *big.Rat
	Choices []Choice
	// Witness holds literals that are all true under the assignment and
	// together fix every dimension's branch.
	Witness []constraints.Lit
}

// Evaluate computes the cost of an assignment
func (m *Model) Evaluate(a constraints.Assignment) *Evaluation {
	ev := &Evaluation{Total: new(big.Rat), Choices: make([]Choice, 0, len(m.dims))}
	for _, d := range m.dims {
		choice := Choice{Dimension: d.name, Cost: d.fallback}
		for _, o := range d.options {
			if a(o.v) {
				choice.Feature = o.feature
				choice.Cost = o.cost
				ev.Witness = append(ev.Witness, o.v.Pos())
				break
			}
			ev.Witness = append(ev.Witness, o.v.Neg())
		}
		ev.Total.Add(ev.Total, choice.Cost)
		ev.Choices = append(ev.Choices, choice)
	}
	return ev
}

// Bound is the linear constraint latency_ms <= Limit over the model.
type Bound struct {
	Model *Model
	Limit *big.Rat
}

// Check accepts an assignment whose cost is within the limit. Otherwise it
// returns a lemma clause excluding every assignment that takes the same
// branches, which are all equally over the limit.
func (b Bound) Check(a constraints.Assignment) ([]constraints.Lit, bool) {
	ev := b.Model.Evaluate(a)
	if ev.Total.Cmp(b.Limit) <= 0 {
		return nil, true
	}
	lemma := make([]constraints.Lit, len(ev.Witness))
	for i, l := range ev.Witness {
		lemma[i] = l.Not()
	}
	return lemma, false
}

// Minimum returns the cheapest total ignoring structural constraints.
// Any assignment costs at least this much.
func (m *Model) Minimum() *big.Rat {
	total := new(big.Rat)
	for _, d := range m.dims {
		least := d.fallback
		for _, o := range d.options {
			if o.cost.Cmp(least) < 0 {
				least = o.cost
			}
		}
		total.Add(total, least)
	}
	return total
}

// String renders the defining equality as nested conditionals
func (m *Model) String() string {
	terms := make([]string, 0, len(m.dims))
	for _, d := range m.dims {
		expr := d.fallback.FloatString(2)
		for i := len(d.options) - 1; i >= 0; i-- {
			o := d.options[i]
			expr = fmt.Sprintf("If(%s, %s, %s)", o.feature, o.cost.FloatString(2), expr)
		}
		terms = append(terms, expr)
	}
	if len(terms) == 0 {
		terms = append(terms, "0")
	}
	return fmt.Sprintf("%s == %s", Variable, strings.Join(terms, " + "))
}
