package constraints

import (
	"fmt"
	"strings"
)

// Var identifies a boolean decision variable. Valid variables start at 1.
type Var int

// Lit is a signed variable: positive for v, negative for not-v.
type Lit int

// Pos returns the positive literal of v
func (v Var) Pos() Lit { return Lit(v) }

// Neg returns the negative literal of v
func (v Var) Neg() Lit { return Lit(-v) }

// Var returns the variable underlying the literal
func (l Lit) Var() Var {
	if l < 0 {
		return Var(-l)
	}
	return Var(l)
}

// Not returns the complement literal
func (l Lit) Not() Lit { return -l }

// IsPos reports whether the literal is the positive phase of its variable
func (l Lit) IsPos() bool { return l > 0 }

// Assignment reports the boolean value of a variable.
type Assignment func(Var) bool

// Lit evaluates a literal under the assignment
func (a Assignment) Lit(l Lit) bool {
	v := a(l.Var())
	if l.IsPos() {
		return v
	}
	return !v
}

// Origin records which part of a synthesis request produced a constraint.
type Origin string

const (
	OriginStructure Origin = "structure"
	OriginPreset    Origin = "preset"
	OriginPolicy    Origin = "policy"
)

// Kind is the shape of a propositional constraint
type Kind int

const (
	AtLeastOne Kind = iota
	ExactlyOne
	Implies
	Excludes
	Fix
)

func (k Kind) String() string {
	switch k {
	case AtLeastOne:
		return "AtLeastOne"
	case ExactlyOne:
		return "ExactlyOne"
	case Implies:
		return "Implies"
	case Excludes:
		return "Excludes"
	case Fix:
		return "Fix"
	default:
		return "Unknown"
	}
}

// Constraint is a single propositional constraint over feature variables.
//
// Lits holds the operands: the members of a group for AtLeastOne and
// ExactlyOne, [a, b] for Implies (a => b) and Excludes (not both), and a
// single signed literal for Fix.
type Constraint struct {
	Kind   Kind
	Origin Origin
	Name   string
	Lits   []Lit
}

// Clauses lowers the constraint to conjunctive normal form.
// ExactlyOne uses the pairwise at-most-one encoding.
func (c Constraint) Clauses() [][]Lit {
	switch c.Kind {
	case AtLeastOne:
		return [][]Lit{append([]Lit(nil), c.Lits...)}
	case ExactlyOne:
		clauses := make([][]Lit, 0, 1+len(c.Lits)*(len(c.Lits)-1)/2)
		clauses = append(clauses, append([]Lit(nil), c.Lits...))
		for i := 0; i < len(c.Lits); i++ {
			for j := i + 1; j < len(c.Lits); j++ {
				clauses = append(clauses, []Lit{c.Lits[i].Not(), c.Lits[j].Not()})
			}
		}
		return clauses
	case Implies:
		return [][]Lit{{c.Lits[0].Not(), c.Lits[1]}}
	case Excludes:
		return [][]Lit{{c.Lits[0].Not(), c.Lits[1].Not()}}
	case Fix:
		return [][]Lit{{c.Lits[0]}}
	default:
		return nil
	}
}

// Holds reports whether the assignment satisfies the constraint
func (c Constraint) Holds(a Assignment) bool {
	switch c.Kind {
	case AtLeastOne:
		return countTrue(a, c.Lits) >= 1
	case ExactlyOne:
		return countTrue(a, c.Lits) == 1
	case Implies:
		return !a.Lit(c.Lits[0]) || a.Lit(c.Lits[1])
	case Excludes:
		return !(a.Lit(c.Lits[0]) && a.Lit(c.Lits[1]))
	case Fix:
		return a.Lit(c.Lits[0])
	default:
		return false
	}
}

func countTrue(a Assignment, lits []Lit) int {
	n := 0
	for _, l := range lits {
		if a.Lit(l) {
			n++
		}
	}
	return n
}

// AtLeastOneOf builds an "or" group constraint
func AtLeastOneOf(origin Origin, name string, vars ...Var) Constraint {
	return Constraint{Kind: AtLeastOne, Origin: origin, Name: name, Lits: positives(vars)}
}

// ExactlyOneOf builds an alternative group constraint
func ExactlyOneOf(origin Origin, name string, vars ...Var) Constraint {
	return Constraint{Kind: ExactlyOne, Origin: origin, Name: name, Lits: positives(vars)}
}

// Requires builds a => b
func Requires(origin Origin, name string, a, b Var) Constraint {
	return Constraint{Kind: Implies, Origin: origin, Name: name, Lits: []Lit{a.Pos(), b.Pos()}}
}

// NotBoth builds not(a and b)
func NotBoth(origin Origin, name string, a, b Var) Constraint {
	return Constraint{Kind: Excludes, Origin: origin, Name: name, Lits: []Lit{a.Pos(), b.Pos()}}
}

// Fixed builds v == value
func Fixed(origin Origin, name string, v Var, value bool) Constraint {
	l := v.Pos()
	if !value {
		l = v.Neg()
	}
	return Constraint{Kind: Fix, Origin: origin, Name: name, Lits: []Lit{l}}
}

func positives(vars []Var) []Lit {
	lits := make([]Lit, len(vars))
	for i, v := range vars {
		lits[i] = v.Pos()
	}
	return lits
}

// Severity indicates the importance of a violation
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "Info"
	case Warning:
		return "Warning"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// ViolationType categorizes the type of constraint violation
type ViolationType int

const (
	CardinalityViolation ViolationType = iota
	ImplicationViolation
	ExclusionViolation
	FixedValueViolation
	UnknownFeature
)

func (vt ViolationType) String() string {
	switch vt {
	case CardinalityViolation:
		return "CardinalityViolation"
	case ImplicationViolation:
		return "ImplicationViolation"
	case ExclusionViolation:
		return "ExclusionViolation"
	case FixedValueViolation:
		return "FixedValueViolation"
	case UnknownFeature:
		return "UnknownFeature"
	default:
		return "Unknown"
	}
}

func violationTypeFor(k Kind) ViolationType {
	switch k {
	case Implies:
		return ImplicationViolation
	case Excludes:
		return ExclusionViolation
	case Fix:
		return FixedValueViolation
	default:
		return CardinalityViolation
	}
}

// Violation represents a constraint violation
type Violation struct {
	Type       ViolationType
	Severity   Severity
	Origin     Origin
	Constraint string
	Message    string
	Details    map[string]any
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s: %s", v.Severity, v.Type, v.Message)
}

// Namer maps a variable back to its feature name.
type Namer func(Var) string

func describe(names Namer, lits []Lit) string {
	parts := make([]string, len(lits))
	for i, l := range lits {
		name := fmt.Sprintf("x%d", l.Var())
		if names != nil {
			name = names(l.Var())
		}
		if !l.IsPos() {
			name = "!" + name
		}
		parts[i] = name
	}
	return strings.Join(parts, ", ")
}
