// Package variation drives the per-chunk event-processing pipeline: it
// enumerates the systematic variations for a processing unit, re-runs object
// selection under kinematic shifts, computes per-region observables, and
// routes weighted fills into the histogram accumulator.
package variation

import (
	"github.com/banshee-data/collider.report/internal/analysis/corrections"
)

// Kind classifies how a variation alters the processing path.
type Kind int

const (
	// KindNominal is the unshifted, unit-weight path.
	KindNominal Kind = iota
	// KindKinematic reshapes the jet pt column before object selection, so
	// the variation needs a fresh selection pass.
	KindKinematic
	// KindWeight reuses the nominal selection and applies a per-event
	// multiplicative weight at fill time, once per direction.
	KindWeight
)

// Standard variation names.
const (
	Nominal   = "nominal"
	PtScaleUp = "pt_scale_up"
	PtResUp   = "pt_res_up"
)

// Standard kinematic shift magnitudes.
const (
	DefaultPtScaleFactor = 1.03
	DefaultResSmearSigma = 0.05
)

// Variation is one named alternative processing path.
type Variation struct {
	Name string
	Kind Kind

	// JetIndex designates which per-event jet pt feeds the weight family:
	// the i-th selected jet for btag_var_i, the leading jet for scale_var.
	// Only meaningful for KindWeight.
	JetIndex int
}

// Candidates builds the variation list for one processing unit.
//
// Only the unit whose baseline variation is "nominal" expands into the full
// set; every other unit evaluates "nominal" only (and fills under its own
// baseline name). Already-varied units must not recompute every variation.
func Candidates(process, baseline string) []Variation {
	if baseline != Nominal {
		return []Variation{{Name: Nominal, Kind: KindNominal}}
	}

	out := []Variation{
		{Name: Nominal, Kind: KindNominal},
		{Name: PtScaleUp, Kind: KindKinematic},
		{Name: PtResUp, Kind: KindKinematic},
	}
	for i := 0; i < corrections.NumBTagVariations; i++ {
		out = append(out, Variation{Name: corrections.BTagFamily(i), Kind: KindWeight, JetIndex: i})
	}
	if process == "wjets" {
		out = append(out, Variation{Name: corrections.ScaleFamily, Kind: KindWeight, JetIndex: 0})
	}
	return out
}

// Meta carries the per-unit metadata the driver needs: dataset identity and
// the cross-section bookkeeping for the fill weight.
type Meta struct {
	Process    string
	Baseline   string // the unit's own declared variation
	XSec       float64
	NEvtsTotal int64
	IsData     bool
}

// XSecWeight returns the cross-section normalisation weight for the unit:
// xsec x lumi / total generated events for simulation, exactly 1 for data.
func (m Meta) XSecWeight(lumi float64) float64 {
	if m.IsData {
		return 1
	}
	return m.XSec * lumi / float64(m.NEvtsTotal)
}
