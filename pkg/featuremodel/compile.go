package featuremodel

import (
	"fmt"
	"strings"

	"github.com/dd0wney/cluso-variantsynth/pkg/constraints"
	"github.com/dd0wney/cluso-variantsynth/pkg/logging"
)

// EdgePolicy controls what happens to edges that name undeclared features
type EdgePolicy int

const (
	// Lenient drops such edges and reports them in Compiled.Dropped
	Lenient EdgePolicy = iota
	// Strict fails compilation with ErrUnknownFeature
	Strict
)

// ParseEdgePolicy maps "strict" to Strict and everything else to Lenient
func ParseEdgePolicy(s string) EdgePolicy {
	if strings.EqualFold(s, "strict") {
		return Strict
	}
	return Lenient
}

func (p EdgePolicy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// Options configures compilation
type Options struct {
	UnknownEdges EdgePolicy
	Logger       logging.Logger
}

// DroppedEdge is an edge skipped under the lenient policy
type DroppedEdge struct {
	Kind    string // "requires" or "excludes"
	Edge    Edge
	Missing []string
}

func (d DroppedEdge) String() string {
	return fmt.Sprintf("%s(%s,%s)", d.Kind, d.Edge.A, d.Edge.B)
}

// Compiled is the propositional form of a feature model. Variables are
// numbered 1..len(Names) in lexicographic name order, so the same document
// always yields the same variables and constraints.
type Compiled struct {
	Names       []string
	Vars        map[string]constraints.Var
	Constraints []constraints.Constraint
	Dropped     []DroppedEdge
}

// Lookup returns the variable for a feature name
func (c *Compiled) Lookup(name string) (constraints.Var, bool) {
	v, ok := c.Vars[name]
	return v, ok
}

// Name returns the feature name of a variable
func (c *Compiled) Name(v constraints.Var) string {
	if v < 1 || int(v) > len(c.Names) {
		return fmt.Sprintf("x%d", v)
	}
	return c.Names[v-1]
}

// NumVars returns the number of feature variables
func (c *Compiled) NumVars() int {
	return len(c.Names)
}

// Compile allocates one variable per declared feature and lowers groups
// and edges into constraints.
func Compile(doc *Document, opts Options) (*Compiled, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	names := doc.Features()
	c := &Compiled{
		Names:       names,
		Vars:        make(map[string]constraints.Var, len(names)),
		Constraints: make([]constraints.Constraint, 0, len(doc.Groups)+len(doc.Requires)+len(doc.Excludes)),
	}
	for i, name := range names {
		c.Vars[name] = constraints.Var(i + 1)
	}

	for _, g := range doc.Groups {
		members := make([]constraints.Var, 0, len(g.Members))
		for _, m := range g.Members {
			if v, ok := c.Vars[m]; ok {
				members = append(members, v)
			}
		}
		if len(members) == 0 {
			continue
		}
		label := fmt.Sprintf("%s(%s)", g.Kind, strings.Join(g.Members, ","))
		if g.Kind == Or {
			c.Constraints = append(c.Constraints, constraints.AtLeastOneOf(constraints.OriginStructure, label, members...))
		} else {
			c.Constraints = append(c.Constraints, constraints.ExactlyOneOf(constraints.OriginStructure, label, members...))
		}
	}

	var unknown []string
	edge := func(kind string, e Edge, build func(origin constraints.Origin, name string, a, b constraints.Var) constraints.Constraint) {
		a, okA := c.Vars[e.A]
		b, okB := c.Vars[e.B]
		if okA && okB {
			c.Constraints = append(c.Constraints, build(constraints.OriginStructure, fmt.Sprintf("%s(%s,%s)", kind, e.A, e.B), a, b))
			return
		}

		d := DroppedEdge{Kind: kind, Edge: e}
		if !okA {
			d.Missing = append(d.Missing, e.A)
		}
		if !okB {
			d.Missing = append(d.Missing, e.B)
		}
		if opts.UnknownEdges == Strict {
			unknown = append(unknown, d.String())
			return
		}
		c.Dropped = append(c.Dropped, d)
		logger.Warn("dropping edge with unknown feature",
			logging.String("edge", d.String()),
			logging.Strings("missing", d.Missing))
	}

	for _, e := range doc.Requires {
		edge("requires", e, constraints.Requires)
	}
	for _, e := range doc.Excludes {
		edge("excludes", e, constraints.NotBoth)
	}

	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, strings.Join(unknown, ", "))
	}

	logger.Debug("feature model compiled",
		logging.Int("features", len(c.Names)),
		logging.Int("constraints", len(c.Constraints)),
		logging.Int("dropped", len(c.Dropped)))
	return c, nil
}

// Violations reports dropped edges in the same form the constraints
// validator uses, at warning severity.
func (c *Compiled) Violations() []constraints.Violation {
	out := make([]constraints.Violation, 0, len(c.Dropped))
	for _, d := range c.Dropped {
		out = append(out, constraints.Violation{
			Type:       constraints.UnknownFeature,
			Severity:   constraints.Warning,
			Origin:     constraints.OriginStructure,
			Constraint: d.String(),
			Message:    fmt.Sprintf("%s dropped: unknown %s", d, strings.Join(d.Missing, ", ")),
			Details:    map[string]any{"missing": d.Missing},
		})
	}
	return out
}
