// Package selection applies per-object kinematic/quality cuts and derives the
// named per-event masks that define analysis regions.
package selection

import (
	"math"

	"github.com/banshee-data/collider.report/internal/analysis/event"
)

// Cuts holds the static object-selection thresholds. Values are fixed
// configuration for a run, not discovered at runtime.
type Cuts struct {
	LeptonMinPt     float64 // GeV
	LeptonMaxAbsEta float64
	ElectronIDLevel float64 // cut-based id working point (tight == 4)
	LeptonMaxSIP3D  float64 // impact-parameter significance
	MuonMaxRelIso   float64

	JetMinPt     float64 // GeV
	JetMaxAbsEta float64
	JetMinID     float64 // tight jet id bit threshold
}

// DefaultCuts returns the standard single-lepton selection.
func DefaultCuts() Cuts {
	return Cuts{
		LeptonMinPt:     30,
		LeptonMaxAbsEta: 2.1,
		ElectronIDLevel: 4,
		LeptonMaxSIP3D:  4,
		MuonMaxRelIso:   0.15,
		JetMinPt:        30,
		JetMaxAbsEta:    2.4,
		JetMinID:        6,
	}
}

// SelectObjects returns a batch whose collections retain only objects passing
// the per-kind cuts. Pure filtering: the input batch is not modified, and
// events left with zero objects of a kind remain valid.
func SelectObjects(b *event.Batch, cuts Cuts) (*event.Batch, error) {
	electrons, err := selectElectrons(b.Electrons, cuts)
	if err != nil {
		return nil, err
	}
	muons, err := selectMuons(b.Muons, cuts)
	if err != nil {
		return nil, err
	}
	jets, err := selectJets(b.Jets, cuts)
	if err != nil {
		return nil, err
	}
	return &event.Batch{Electrons: electrons, Muons: muons, Jets: jets}, nil
}

func selectElectrons(o *event.Objects, cuts Cuts) (*event.Objects, error) {
	idLevel, err := o.Col(event.ColIDLevel)
	if err != nil {
		return nil, err
	}
	sip3d, err := o.Col(event.ColSIP3D)
	if err != nil {
		return nil, err
	}

	keep := make([]bool, o.Len())
	for j := range keep {
		keep[j] = o.Pt[j] > cuts.LeptonMinPt &&
			math.Abs(o.Eta[j]) < cuts.LeptonMaxAbsEta &&
			idLevel[j] == cuts.ElectronIDLevel &&
			sip3d[j] < cuts.LeptonMaxSIP3D
	}
	return o.Select(keep), nil
}

func selectMuons(o *event.Objects, cuts Cuts) (*event.Objects, error) {
	tightID, err := o.Col(event.ColTightID)
	if err != nil {
		return nil, err
	}
	sip3d, err := o.Col(event.ColSIP3D)
	if err != nil {
		return nil, err
	}
	relIso, err := o.Col(event.ColRelIso)
	if err != nil {
		return nil, err
	}

	keep := make([]bool, o.Len())
	for j := range keep {
		keep[j] = o.Pt[j] > cuts.LeptonMinPt &&
			math.Abs(o.Eta[j]) < cuts.LeptonMaxAbsEta &&
			tightID[j] != 0 &&
			sip3d[j] < cuts.LeptonMaxSIP3D &&
			relIso[j] < cuts.MuonMaxRelIso
	}
	return o.Select(keep), nil
}

func selectJets(o *event.Objects, cuts Cuts) (*event.Objects, error) {
	jetID, err := o.Col(event.ColJetID)
	if err != nil {
		return nil, err
	}

	keep := make([]bool, o.Len())
	for j := range keep {
		keep[j] = o.Pt[j] > cuts.JetMinPt &&
			math.Abs(o.Eta[j]) < cuts.JetMaxAbsEta &&
			jetID[j] >= cuts.JetMinID
	}
	return o.Select(keep), nil
}
