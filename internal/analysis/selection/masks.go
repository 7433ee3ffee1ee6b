package selection

import (
	"errors"
	"fmt"

	"github.com/banshee-data/collider.report/internal/analysis/event"
)

// ErrUnknownMask is returned when a region or atomic mask name was never
// registered. Unknown names are configuration errors and must abort the
// processing unit rather than yield an empty mask.
var ErrUnknownMask = errors.New("selection: unknown mask name")

// Standard region and atomic mask names.
const (
	Region4j1b = "4j1b"
	Region4j2b = "4j2b"

	MaskExactly1L = "exactly_1l"
	MaskAtLeast4J = "atleast_4j"
	MaskExactly1B = "exactly_1b"
	MaskAtLeast2B = "atleast_2b"
)

// Regions returns the closed set of region names for the analysis.
func Regions() []string { return []string{Region4j1b, Region4j2b} }

// MaskSet is a namespace of named per-event boolean masks. Atomic masks are
// registered directly; regions are composites evaluated as the conjunction
// of their atomics. Registration order does not affect results.
type MaskSet struct {
	nEvents int
	atomics map[string][]bool
	regions map[string][]string
}

// NewMaskSet creates an empty namespace for batches of nEvents events.
func NewMaskSet(nEvents int) *MaskSet {
	return &MaskSet{
		nEvents: nEvents,
		atomics: make(map[string][]bool),
		regions: make(map[string][]string),
	}
}

// Add registers an atomic mask under the given name.
func (s *MaskSet) Add(name string, mask []bool) error {
	if len(mask) != s.nEvents {
		return fmt.Errorf("selection: mask %q has %d entries, want %d", name, len(mask), s.nEvents)
	}
	s.atomics[name] = mask
	return nil
}

// AddRegion registers a composite region as the conjunction of named atomic
// masks. Referencing an unregistered atomic is a configuration error.
func (s *MaskSet) AddRegion(name string, atomics ...string) error {
	for _, a := range atomics {
		if _, ok := s.atomics[a]; !ok {
			return fmt.Errorf("%w: region %q references atomic %q", ErrUnknownMask, name, a)
		}
	}
	s.regions[name] = atomics
	return nil
}

// Mask returns the named atomic mask.
func (s *MaskSet) Mask(name string) ([]bool, error) {
	m, ok := s.atomics[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMask, name)
	}
	return m, nil
}

// Region evaluates the named region: the AND of its atomic masks. The result
// is recomputed on every call, so re-evaluation is idempotent.
func (s *MaskSet) Region(name string) ([]bool, error) {
	atomics, ok := s.regions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMask, name)
	}
	out := make([]bool, s.nEvents)
	for i := range out {
		out[i] = true
	}
	for _, a := range atomics {
		m := s.atomics[a]
		for i := range out {
			out[i] = out[i] && m[i]
		}
	}
	return out, nil
}

// BuildRegions derives the standard atomic masks and composite regions from a
// batch of selected (already cut) object collections:
//
//	exactly_1l  — exactly one selected lepton (electron or muon)
//	atleast_4j  — at least four selected jets
//	exactly_1b  — exactly one selected jet with b-tag score >= threshold
//	atleast_2b  — at least two such jets
//	4j1b        — exactly_1l AND atleast_4j AND exactly_1b
//	4j2b        — exactly_1l AND atleast_4j AND atleast_2b
func BuildRegions(b *event.Batch, btagThreshold float64) (*MaskSet, error) {
	n := b.Events()
	btag, err := b.Jets.Col(event.ColBTag)
	if err != nil {
		return nil, err
	}

	exactly1L := make([]bool, n)
	atLeast4J := make([]bool, n)
	exactly1B := make([]bool, n)
	atLeast2B := make([]bool, n)

	for i := 0; i < n; i++ {
		exactly1L[i] = b.Electrons.Count(i)+b.Muons.Count(i) == 1
		atLeast4J[i] = b.Jets.Count(i) >= 4

		lo, hi := b.Jets.Range(i)
		nTagged := 0
		for j := lo; j < hi; j++ {
			if btag[j] >= btagThreshold {
				nTagged++
			}
		}
		exactly1B[i] = nTagged == 1
		atLeast2B[i] = nTagged >= 2
	}

	s := NewMaskSet(n)
	if err := s.Add(MaskExactly1L, exactly1L); err != nil {
		return nil, err
	}
	if err := s.Add(MaskAtLeast4J, atLeast4J); err != nil {
		return nil, err
	}
	if err := s.Add(MaskExactly1B, exactly1B); err != nil {
		return nil, err
	}
	if err := s.Add(MaskAtLeast2B, atLeast2B); err != nil {
		return nil, err
	}
	if err := s.AddRegion(Region4j1b, MaskExactly1L, MaskAtLeast4J, MaskExactly1B); err != nil {
		return nil, err
	}
	if err := s.AddRegion(Region4j2b, MaskExactly1L, MaskAtLeast4J, MaskAtLeast2B); err != nil {
		return nil, err
	}
	return s, nil
}
