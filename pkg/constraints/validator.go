package constraints

import (
	"fmt"
	"time"
)

// ValidationResult contains the results of checking an assignment against constraints
type ValidationResult struct {
	Valid      bool        // True if no violations found
	Violations []Violation // List of all violations
	CheckedAt  time.Time   // When validation was performed
}

// GetViolationsBySeverity returns violations filtered by severity level
func (vr *ValidationResult) GetViolationsBySeverity(severity Severity) []Violation {
	filtered := make([]Violation, 0)
	for _, v := range vr.Violations {
		if v.Severity == severity {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

// GetViolationsByType returns violations filtered by type
func (vr *ValidationResult) GetViolationsByType(violationType ViolationType) []Violation {
	filtered := make([]Violation, 0)
	for _, v := range vr.Violations {
		if v.Type == violationType {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

// Validator checks complete assignments against a set of constraints.
// Synthesis uses it to re-verify a solver model before returning it.
type Validator struct {
	constraints []Constraint
	names       Namer
}

// NewValidator creates a new empty validator. names may be nil.
func NewValidator(names Namer) *Validator {
	return &Validator{
		constraints: make([]Constraint, 0),
		names:       names,
	}
}

// AddConstraint adds a constraint to the validator
func (v *Validator) AddConstraint(constraint Constraint) {
	v.constraints = append(v.constraints, constraint)
}

// AddConstraints adds multiple constraints to the validator
func (v *Validator) AddConstraints(constraints []Constraint) {
	v.constraints = append(v.constraints, constraints...)
}

// Validate evaluates every constraint under the assignment
func (v *Validator) Validate(a Assignment) *ValidationResult {
	result := &ValidationResult{
		Valid:      true,
		Violations: make([]Violation, 0),
		CheckedAt:  time.Now(),
	}

	for _, c := range v.constraints {
		if c.Holds(a) {
			continue
		}
		result.Valid = false
		result.Violations = append(result.Violations, Violation{
			Type:       violationTypeFor(c.Kind),
			Severity:   Error,
			Origin:     c.Origin,
			Constraint: c.Name,
			Message:    fmt.Sprintf("%s(%s) does not hold", c.Kind, describe(v.names, c.Lits)),
			Details: map[string]any{
				"true_members": countTrue(a, c.Lits),
			},
		})
	}

	return result
}

// GetConstraints returns all constraints in the validator
func (v *Validator) GetConstraints() []Constraint {
	return v.constraints
}

// ClearConstraints removes all constraints from the validator
func (v *Validator) ClearConstraints() {
	v.constraints = make([]Constraint, 0)
}
