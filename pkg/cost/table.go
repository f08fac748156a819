// Package cost builds the latency cost model: a sum of per-dimension
// contributions, each selecting a constant by which of the dimension's
// features is true.
package cost

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidTable is returned for cost tables that fail validation
var ErrInvalidTable = errors.New("invalid cost table")

var validate = validator.New()

// Option is one branch of a dimension: the cost charged when Feature is
// the first true feature of the dimension.
type Option struct {
	Feature string  `yaml:"feature" mapstructure:"feature" json:"feature" validate:"required"`
	Cost    float64 `yaml:"cost" mapstructure:"cost" json:"cost" validate:"gte=0"`
}

// Dimension is a nested conditional over mutually exclusive features.
// Options are tried in order; Fallback applies when none is true.
type Dimension struct {
	Name     string   `yaml:"name" mapstructure:"name" json:"name" validate:"required"`
	Options  []Option `yaml:"options" mapstructure:"options" json:"options" validate:"dive"`
	Fallback float64  `yaml:"fallback" mapstructure:"fallback" json:"fallback" validate:"gte=0"`
}

// Table is the full set of cost dimensions
type Table struct {
	Dimensions []Dimension `yaml:"dimensions" mapstructure:"dimensions" json:"dimensions" validate:"dive"`
}

// DefaultTable returns the trace-fitted latency table for the security
// stack: MAC width, encryption key size and freshness mechanism (ms).
func DefaultTable() Table {
	return Table{Dimensions: []Dimension{
		{
			Name:     "mac",
			Options:  []Option{{Feature: "MAC_32", Cost: 1.2}, {Feature: "MAC_64", Cost: 2.2}},
			Fallback: 3.2,
		},
		{
			Name:     "encryption",
			Options:  []Option{{Feature: "AES_128", Cost: 0.9}},
			Fallback: 1.6,
		},
		{
			Name:     "freshness",
			Options:  []Option{{Feature: "Fresh_Counter", Cost: 0.7}},
			Fallback: 1.1,
		},
	}}
}

// Validate checks field constraints and that dimension names are unique
func (t Table) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	seen := make(map[string]bool, len(t.Dimensions))
	for _, d := range t.Dimensions {
		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate dimension %q", ErrInvalidTable, d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// Rat converts a float to the exact rational of its shortest decimal
// representation, so 1.2 becomes 6/5 rather than the nearest binary fraction.
func Rat(f float64) *big.Rat {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, 64))
	if !ok {
		return new(big.Rat).SetFloat64(f)
	}
	return r
}
