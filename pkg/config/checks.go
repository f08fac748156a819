package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Checker provides a fluent interface for validating configuration values.
// It collects all failures rather than stopping at the first one.
type Checker struct {
	errors []error
	name   string
}

// NewChecker creates a checker whose messages are prefixed with name
func NewChecker(name string) *Checker {
	return &Checker{name: name, errors: make([]error, 0)}
}

// Required validates that a string field is not empty.
func (c *Checker) Required(field, value string) *Checker {
	if value == "" {
		c.errors = append(c.errors, fmt.Errorf("%s.%s: required field is empty", c.name, field))
	}
	return c
}

// NonNegative validates that an int field is >= 0.
func (c *Checker) NonNegative(field string, value int) *Checker {
	if value < 0 {
		c.errors = append(c.errors, fmt.Errorf("%s.%s: value %d must be non-negative", c.name, field, value))
	}
	return c
}

// Positive validates that an int field is > 0.
func (c *Checker) Positive(field string, value int) *Checker {
	if value <= 0 {
		c.errors = append(c.errors, fmt.Errorf("%s.%s: value %d must be positive", c.name, field, value))
	}
	return c
}

// OneOf validates that a string field is one of the allowed values.
func (c *Checker) OneOf(field, value string, allowed []string) *Checker {
	for _, a := range allowed {
		if value == a {
			return c
		}
	}
	c.errors = append(c.errors, fmt.Errorf("%s.%s: value %q must be one of %v", c.name, field, value, allowed))
	return c
}

// Custom applies a custom validation function.
func (c *Checker) Custom(field string, fn func() error) *Checker {
	if err := fn(); err != nil {
		c.errors = append(c.errors, fmt.Errorf("%s.%s: %w", c.name, field, err))
	}
	return c
}

// Struct applies go-playground/validator tags to v.
func (c *Checker) Struct(v any) *Checker {
	if err := validate.Struct(v); err != nil {
		c.errors = append(c.errors, describe(c.name, err)...)
	}
	return c
}

// When conditionally applies validations if the condition is true.
func (c *Checker) When(condition bool, validations func(*Checker)) *Checker {
	if condition {
		validations(c)
	}
	return c
}

// HasErrors returns true if any validation errors occurred.
func (c *Checker) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all validation errors.
func (c *Checker) Errors() []error {
	return c.errors
}

// Validate returns the joined failures wrapped in ErrInvalid, or nil.
func (c *Checker) Validate() error {
	if len(c.errors) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(c.errors...))
}

func describe(prefix string, err error) []error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []error{fmt.Errorf("%s: %w", prefix, err)}
	}

	out := make([]error, 0, len(verrs))
	for _, e := range verrs {
		field := e.Namespace()
		switch e.Tag() {
		case "required":
			out = append(out, fmt.Errorf("%s: field is required", field))
		case "oneof":
			out = append(out, fmt.Errorf("%s: %q must be one of [%s]", field, e.Value(), e.Param()))
		case "gte", "min":
			out = append(out, fmt.Errorf("%s: must be at least %s", field, e.Param()))
		default:
			out = append(out, fmt.Errorf("%s: validation failed (%s)", field, e.Tag()))
		}
	}
	return out
}
