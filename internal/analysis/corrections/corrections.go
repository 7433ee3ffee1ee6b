// Package corrections provides the weight/correction lookup service: named
// correction families evaluated per direction over a per-event input column.
//
// The set is an explicitly passed handle, not ambient global state: the
// chunk processor receives the Set it should consult, so tests can swap in
// instrumented or failing families.
package corrections

import (
	"errors"
	"fmt"
	"math"
)

// Direction selects the up or down excursion of a weight-type variation.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ErrUnknownFamily is returned when a correction family was never registered.
// Unknown families are configuration errors and abort the processing unit.
var ErrUnknownFamily = errors.New("corrections: unknown correction family")

// ErrMalformedResponse is returned when a family produces a weight array
// whose length differs from the input. Such responses must never be silently
// absorbed into a default weight.
var ErrMalformedResponse = errors.New("corrections: malformed weight response")

// WeightFunc maps (direction, per-event input column) to one multiplicative
// weight per event.
type WeightFunc func(dir Direction, input []float64) ([]float64, error)

// Set is a registry of correction families.
type Set struct {
	families map[string]WeightFunc
}

// NewSet returns an empty correction set.
func NewSet() *Set {
	return &Set{families: make(map[string]WeightFunc)}
}

// Register adds a family under the given name, replacing any previous entry.
func (s *Set) Register(family string, fn WeightFunc) {
	s.families[family] = fn
}

// Families returns the number of registered families.
func (s *Set) Families() int { return len(s.families) }

// Evaluate looks up the family and applies it to the input column. The
// response is validated to contain exactly one weight per input event;
// errors from the family propagate unchanged.
func (s *Set) Evaluate(family string, dir Direction, input []float64) ([]float64, error) {
	fn, ok := s.families[family]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
	}
	if dir != Up && dir != Down {
		return nil, fmt.Errorf("corrections: invalid direction %q for family %q", dir, family)
	}

	out, err := fn(dir, input)
	if err != nil {
		return nil, fmt.Errorf("corrections: family %q (%s): %w", family, dir, err)
	}
	if len(out) != len(input) {
		return nil, fmt.Errorf("%w: family %q (%s) returned %d weights for %d events",
			ErrMalformedResponse, family, dir, len(out), len(input))
	}
	return out, nil
}

// NumBTagVariations is the number of fixed-index b-tag weight families
// (btag_var_0 .. btag_var_3).
const NumBTagVariations = 4

// BTagFamily returns the family name for b-tag variation index i.
func BTagFamily(i int) string { return fmt.Sprintf("btag_var_%d", i) }

// ScaleFamily is the event-scale weight family applied to wjets.
const ScaleFamily = "scale_var"

// DefaultSet registers the standard correction families:
//
//   - btag_var_0..3: pt-dependent excursions growing with the variation
//     index, evaluated on the i-th jet's transverse momentum;
//   - scale_var: a pt-dependent scale excursion evaluated on the leading
//     jet's transverse momentum.
//
// All families are pure functions of their input, so results are
// reproducible across workers.
func DefaultSet() *Set {
	s := NewSet()
	for i := 0; i < NumBTagVariations; i++ {
		shift := 0.05 * float64(i+1)
		s.Register(BTagFamily(i), func(dir Direction, input []float64) ([]float64, error) {
			out := make([]float64, len(input))
			for k, pt := range input {
				delta := shift * math.Tanh(pt/100)
				if dir == Up {
					out[k] = 1 + delta
				} else {
					out[k] = 1 - delta
				}
			}
			return out, nil
		})
	}
	s.Register(ScaleFamily, func(dir Direction, input []float64) ([]float64, error) {
		out := make([]float64, len(input))
		for k, pt := range input {
			delta := 0.025 * math.Tanh(pt/200)
			if dir == Up {
				out[k] = 1 + delta
			} else {
				out[k] = 1 - delta
			}
		}
		return out, nil
	})
	return s
}
