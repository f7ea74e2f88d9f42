// Package filter decides whether a worker profile satisfies an owner's search criteria.
package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"shramsaathi-backend/pkg/apperror"
)

// ErrOutOfRange means the profile resolved the field but fell outside the criteria.
var ErrOutOfRange = errors.New("profile outside filter range")

// Criteria holds the optional search bounds. A nil pointer or empty pincode is
// inactive and never excludes anyone.
type Criteria struct {
	MinAge        *float64 `form:"minAge" json:"minAge,omitempty"`
	MaxAge        *float64 `form:"maxAge" json:"maxAge,omitempty"`
	MinExperience *float64 `form:"minExperience" json:"minExperience,omitempty"`
	MaxExperience *float64 `form:"maxExperience" json:"maxExperience,omitempty"`
	Pincode       string   `form:"pincode" json:"pincode,omitempty"`
	// ShowAll bypasses every criterion.
	ShowAll bool `form:"showAll" json:"showAll,omitempty"`
}

// Active reports whether any criterion would be evaluated.
func (c Criteria) Active() bool {
	if c.ShowAll {
		return false
	}
	return c.MinAge != nil || c.MaxAge != nil || c.MinExperience != nil || c.MaxExperience != nil ||
		strings.TrimSpace(c.Pincode) != ""
}

// Exclusion explains why one record was filtered out.
type Exclusion struct {
	Index  int
	Field  string
	Reason error
}

// Evaluator applies Criteria using the package resolution chains.
type Evaluator struct {
	Age        []NumberAccessor
	Experience []NumberAccessor
	Pincode    []StringAccessor
	Now        func() time.Time
}

// NewEvaluator returns an Evaluator wired to the default chains.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		Age:        AgeChain,
		Experience: ExperienceChain,
		Pincode:    PincodeChain,
		Now:        time.Now,
	}
}

// Evaluate returns nil when the record is included. Otherwise the error wraps
// apperror.ErrProfileUnresolvable or ErrOutOfRange.
func (e *Evaluator) Evaluate(r Record, c Criteria) error {
	if !c.Active() {
		return nil
	}
	now := e.Now()

	if c.MinAge != nil || c.MaxAge != nil {
		age, ok := ResolveNumber(r, e.Age, now)
		if !ok {
			return unresolvable("age")
		}
		if !within(age, c.MinAge, c.MaxAge) {
			return fmt.Errorf("age %v: %w", age, ErrOutOfRange)
		}
	}

	if c.MinExperience != nil || c.MaxExperience != nil {
		exp, ok := ResolveNumber(r, e.Experience, now)
		if !ok {
			return unresolvable("experience")
		}
		if !within(exp, c.MinExperience, c.MaxExperience) {
			return fmt.Errorf("experience %v: %w", exp, ErrOutOfRange)
		}
	}

	if want := strings.TrimSpace(c.Pincode); want != "" {
		pin, ok := ResolveString(r, e.Pincode)
		if !ok {
			return unresolvable("pincode")
		}
		if pin != want {
			return fmt.Errorf("pincode %s: %w", pin, ErrOutOfRange)
		}
	}

	return nil
}

// Match is Evaluate as a predicate.
func (e *Evaluator) Match(r Record, c Criteria) bool {
	return e.Evaluate(r, c) == nil
}

// Apply splits records into the included ones and exclusion reasons.
func (e *Evaluator) Apply(records []Record, c Criteria) ([]int, []Exclusion) {
	included := make([]int, 0, len(records))
	var excluded []Exclusion
	for i, r := range records {
		if err := e.Evaluate(r, c); err != nil {
			excluded = append(excluded, Exclusion{Index: i, Field: fieldOf(err), Reason: err})
			continue
		}
		included = append(included, i)
	}
	return included, excluded
}

func within(v float64, lo, hi *float64) bool {
	if lo != nil && v < *lo {
		return false
	}
	if hi != nil && v > *hi {
		return false
	}
	return true
}

type fieldError struct {
	field string
	err   error
}

func (f *fieldError) Error() string { return f.field + ": " + f.err.Error() }
func (f *fieldError) Unwrap() error { return f.err }

func unresolvable(field string) error {
	return &fieldError{field: field, err: apperror.ErrProfileUnresolvable}
}

func fieldOf(err error) string {
	var fe *fieldError
	if errors.As(err, &fe) {
		return fe.field
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, ' '); i > 0 {
		return msg[:i]
	}
	return ""
}
