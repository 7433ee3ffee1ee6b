// Package observable computes the per-region scalar observables from
// region-filtered jet collections.
package observable

import (
	"fmt"

	"github.com/banshee-data/collider.report/internal/analysis/event"
	"github.com/banshee-data/collider.report/internal/analysis/selection"
)

// Values is a sparse per-event observable: one entry per contributing event.
// Events that contribute nothing (outside the region, or with no surviving
// trijet candidate) simply have no entry, so they produce no histogram fill.
type Values struct {
	EventIndex []int
	X          []float64
}

// Append adds one entry for the given event.
func (v *Values) Append(eventIndex int, x float64) {
	v.EventIndex = append(v.EventIndex, eventIndex)
	v.X = append(v.X, x)
}

// Len returns the number of contributing events.
func (v *Values) Len() int { return len(v.X) }

// Compute evaluates the observable for the named region over the selected
// jet collection, restricted to events where mask is true.
func Compute(region string, jets *event.Objects, mask []bool, btagThreshold float64) (Values, error) {
	switch region {
	case selection.Region4j1b:
		return HT(jets, mask)
	case selection.Region4j2b:
		return TrijetMass(jets, mask, btagThreshold)
	default:
		return Values{}, fmt.Errorf("%w: no observable for region %q", selection.ErrUnknownMask, region)
	}
}

// HT returns the per-event scalar sum of selected jet transverse momenta for
// events where mask is true.
func HT(jets *event.Objects, mask []bool) (Values, error) {
	if len(mask) != jets.Events() {
		return Values{}, fmt.Errorf("%w: mask spans %d events, jets span %d", event.ErrMalformed, len(mask), jets.Events())
	}

	var out Values
	for i := 0; i < jets.Events(); i++ {
		if !mask[i] {
			continue
		}
		lo, hi := jets.Range(i)
		sum := 0.0
		for j := lo; j < hi; j++ {
			sum += jets.Pt[j]
		}
		out.Append(i, sum)
	}
	return out, nil
}

// TrijetMass reconstructs, for each masked event, the invariant mass of the
// three-jet combination with the largest combined transverse momentum among
// combinations whose maximum b-tag score exceeds the threshold.
//
// Combinations are enumerated in lexicographic order over ascending jet
// indices (i < j < k) and the comparison is strict, so the first candidate in
// enumeration order wins ties. Events with fewer than three jets, or with no
// combination passing the b-tag requirement, contribute no entry.
func TrijetMass(jets *event.Objects, mask []bool, btagThreshold float64) (Values, error) {
	if len(mask) != jets.Events() {
		return Values{}, fmt.Errorf("%w: mask spans %d events, jets span %d", event.ErrMalformed, len(mask), jets.Events())
	}
	btag, err := jets.Col(event.ColBTag)
	if err != nil {
		return Values{}, err
	}

	var out Values
	for i := 0; i < jets.Events(); i++ {
		if !mask[i] {
			continue
		}
		lo, hi := jets.Range(i)
		if hi-lo < 3 {
			continue
		}

		bestPt := -1.0
		bestMass := 0.0
		found := false
		for a := lo; a < hi; a++ {
			for b := a + 1; b < hi; b++ {
				for c := b + 1; c < hi; c++ {
					maxBTag := btag[a]
					if btag[b] > maxBTag {
						maxBTag = btag[b]
					}
					if btag[c] > maxBTag {
						maxBTag = btag[c]
					}
					if maxBTag <= btagThreshold {
						continue
					}

					p4 := jets.P4Sum(a, b, c)
					if pt := p4.Pt(); pt > bestPt {
						bestPt = pt
						bestMass = p4.M()
						found = true
					}
				}
			}
		}
		if found {
			out.Append(i, bestMass)
		}
	}
	return out, nil
}
