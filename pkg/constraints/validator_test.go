package constraints

import (
	"testing"
)

func assignmentOf(values map[Var]bool) Assignment {
	return func(v Var) bool { return values[v] }
}

func names(v Var) string {
	return map[Var]string{1: "MAC_32", 2: "MAC_64", 3: "MAC_128", 4: "SecOC", 5: "Fresh_Counter"}[v]
}

// TestValidator_SingleConstraint tests validator with one constraint
func TestValidator_SingleConstraint(t *testing.T) {
	validator := NewValidator(names)
	validator.AddConstraint(ExactlyOneOf(OriginStructure, "alt(MAC)", 1, 2, 3))

	result := validator.Validate(assignmentOf(map[Var]bool{1: true, 2: true}))

	if result.Valid {
		t.Error("Expected validation to fail")
	}
	if len(result.Violations) != 1 {
		t.Fatalf("Expected 1 violation, got %d", len(result.Violations))
	}
	v := result.Violations[0]
	if v.Type != CardinalityViolation {
		t.Errorf("Expected CardinalityViolation, got %s", v.Type)
	}
	if v.Details["true_members"] != 2 {
		t.Errorf("Expected 2 true members, got %v", v.Details["true_members"])
	}
	if result.CheckedAt.IsZero() {
		t.Error("Expected CheckedAt to be set")
	}
}

// TestValidator_MultipleConstraints tests validator with multiple constraints
func TestValidator_MultipleConstraints(t *testing.T) {
	validator := NewValidator(names)
	validator.AddConstraints([]Constraint{
		Requires(OriginStructure, "requires(SecOC,Fresh_Counter)", 4, 5),
		NotBoth(OriginStructure, "excludes(MAC_32,MAC_128)", 1, 3),
		Fixed(OriginPreset, "preset(SecOC)", 4, true),
	})

	result := validator.Validate(assignmentOf(map[Var]bool{1: true, 3: true, 4: true}))

	if result.Valid {
		t.Error("Expected validation to fail")
	}
	if got := len(result.GetViolationsByType(ImplicationViolation)); got != 1 {
		t.Errorf("Expected 1 implication violation, got %d", got)
	}
	if got := len(result.GetViolationsByType(ExclusionViolation)); got != 1 {
		t.Errorf("Expected 1 exclusion violation, got %d", got)
	}
	if got := len(result.GetViolationsBySeverity(Error)); got != 2 {
		t.Errorf("Expected 2 error violations, got %d", got)
	}
}

// TestValidator_AllValid tests when all constraints pass
func TestValidator_AllValid(t *testing.T) {
	validator := NewValidator(nil)
	validator.AddConstraints([]Constraint{
		ExactlyOneOf(OriginStructure, "alt", 1, 2, 3),
		Requires(OriginStructure, "req", 4, 5),
		Fixed(OriginPolicy, "policy", 4, true),
		Fixed(OriginPreset, "preset", 2, false),
		AtLeastOneOf(OriginStructure, "or", 2, 5),
	})

	result := validator.Validate(assignmentOf(map[Var]bool{1: true, 4: true, 5: true}))
	if !result.Valid {
		t.Errorf("Expected valid assignment, got violations: %v", result.Violations)
	}

	validator.ClearConstraints()
	if len(validator.GetConstraints()) != 0 {
		t.Error("Expected constraints to be cleared")
	}
}

func TestConstraintClauses(t *testing.T) {
	tests := []struct {
		name string
		c    Constraint
		want [][]Lit
	}{
		{"at least one", AtLeastOneOf(OriginStructure, "", 1, 2), [][]Lit{{1, 2}}},
		{"exactly one", ExactlyOneOf(OriginStructure, "", 1, 2, 3), [][]Lit{{1, 2, 3}, {-1, -2}, {-1, -3}, {-2, -3}}},
		{"implies", Requires(OriginStructure, "", 1, 2), [][]Lit{{-1, 2}}},
		{"excludes", NotBoth(OriginStructure, "", 1, 2), [][]Lit{{-1, -2}}},
		{"fix true", Fixed(OriginPreset, "", 3, true), [][]Lit{{3}}},
		{"fix false", Fixed(OriginPreset, "", 3, false), [][]Lit{{-3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.c.Clauses()
			if len(got) != len(tt.want) {
				t.Fatalf("Clauses() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if len(got[i]) != len(tt.want[i]) {
					t.Fatalf("clause %d = %v, want %v", i, got[i], tt.want[i])
				}
				for j := range got[i] {
					if got[i][j] != tt.want[i][j] {
						t.Errorf("clause %d = %v, want %v", i, got[i], tt.want[i])
					}
				}
			}
		})
	}
}

// A single-member alternative group forces that member.
func TestExactlyOneSingleton(t *testing.T) {
	c := ExactlyOneOf(OriginStructure, "alt", 7)
	if c.Holds(assignmentOf(nil)) {
		t.Error("Expected empty assignment to violate singleton group")
	}
	if !c.Holds(assignmentOf(map[Var]bool{7: true})) {
		t.Error("Expected singleton member to satisfy group")
	}
}

func TestLiteralHelpers(t *testing.T) {
	v := Var(4)
	if v.Pos().Var() != v || v.Neg().Var() != v {
		t.Error("literal does not round-trip to its variable")
	}
	if v.Pos().Not() != v.Neg() {
		t.Error("Not() of positive literal should be negative literal")
	}
	if !v.Pos().IsPos() || v.Neg().IsPos() {
		t.Error("IsPos() phase mismatch")
	}
}

func TestKindAndViolationStrings(t *testing.T) {
	if ExactlyOne.String() != "ExactlyOne" {
		t.Errorf("unexpected kind string %q", ExactlyOne.String())
	}
	if UnknownFeature.String() != "UnknownFeature" {
		t.Errorf("unexpected violation type string %q", UnknownFeature.String())
	}
	if Warning.String() != "Warning" {
		t.Errorf("unexpected severity string %q", Warning.String())
	}
}
