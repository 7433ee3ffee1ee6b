// Package event provides the columnar in-memory representation of collision
// event batches: jagged per-event object collections stored as flat columns
// plus per-event offsets.
//
// Batches are immutable once built. Kinematic variations derive a new batch
// view via WithJetPt that overrides only the shifted column; every other
// column is shared with the source batch and must not be written through.
package event

import (
	"errors"
	"fmt"
)

// ErrMalformed marks batch-level data errors: mismatched column lengths,
// missing expected columns, broken offsets. The runner treats chunks that
// fail with this class of error as skippable (bad files are tolerated);
// everything else aborts the processing unit.
var ErrMalformed = errors.New("event: malformed batch")

// Standard extra-column names referenced by the selection and observable code.
const (
	ColBTag    = "btag"     // jet b-tag discriminant
	ColJetID   = "jet_id"   // jet identification bitmask
	ColIDLevel = "id_level" // electron cut-based id working point
	ColSIP3D   = "sip3d"    // lepton impact-parameter significance
	ColTightID = "tight_id" // muon tight id flag (0/1)
	ColRelIso  = "rel_iso"  // muon relative isolation
)

// Objects is one jagged collection of physics objects (electrons, muons or
// jets) for a batch of events. Objects of event i occupy the index range
// [Offsets[i], Offsets[i+1]) in every column.
type Objects struct {
	Offsets []int // length Events()+1, non-decreasing, Offsets[0] == 0

	Pt   []float64 // transverse momentum, GeV
	Eta  []float64 // pseudorapidity
	Phi  []float64 // azimuthal angle, radians
	Mass []float64 // rest mass, GeV

	// Extra holds kind-specific columns (b-tag score, id flags, isolation).
	// Access through Col so a missing column surfaces as a data error.
	Extra map[string][]float64
}

// Events returns the number of events spanned by the collection.
func (o *Objects) Events() int {
	if len(o.Offsets) == 0 {
		return 0
	}
	return len(o.Offsets) - 1
}

// Len returns the total object count across all events.
func (o *Objects) Len() int { return len(o.Pt) }

// Count returns the number of objects belonging to event i.
func (o *Objects) Count(i int) int { return o.Offsets[i+1] - o.Offsets[i] }

// Range returns the [lo, hi) object index range of event i.
func (o *Objects) Range(i int) (lo, hi int) { return o.Offsets[i], o.Offsets[i+1] }

// Col returns the named extra column, or a malformed-batch error when the
// column was never materialised for this collection.
func (o *Objects) Col(name string) ([]float64, error) {
	col, ok := o.Extra[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing column %q", ErrMalformed, name)
	}
	if len(col) != o.Len() {
		return nil, fmt.Errorf("%w: column %q has %d entries, want %d", ErrMalformed, name, len(col), o.Len())
	}
	return col, nil
}

// Validate checks offsets and column lengths. Collections coming from an
// external source must be validated before entering the pipeline.
func (o *Objects) Validate() error {
	if len(o.Offsets) == 0 {
		return fmt.Errorf("%w: empty offsets", ErrMalformed)
	}
	if o.Offsets[0] != 0 {
		return fmt.Errorf("%w: offsets must start at 0, got %d", ErrMalformed, o.Offsets[0])
	}
	for i := 1; i < len(o.Offsets); i++ {
		if o.Offsets[i] < o.Offsets[i-1] {
			return fmt.Errorf("%w: offsets decrease at index %d", ErrMalformed, i)
		}
	}
	n := o.Offsets[len(o.Offsets)-1]
	for name, col := range map[string][]float64{"pt": o.Pt, "eta": o.Eta, "phi": o.Phi, "mass": o.Mass} {
		if len(col) != n {
			return fmt.Errorf("%w: column %q has %d entries, want %d", ErrMalformed, name, len(col), n)
		}
	}
	for name, col := range o.Extra {
		if len(col) != n {
			return fmt.Errorf("%w: column %q has %d entries, want %d", ErrMalformed, name, len(col), n)
		}
	}
	return nil
}

// WithPt returns a view of the collection with the pt column replaced.
// All other columns (including Extra) are shared with the receiver; the
// receiver is not modified. The replacement must have the same length.
func (o *Objects) WithPt(pt []float64) (*Objects, error) {
	if len(pt) != o.Len() {
		return nil, fmt.Errorf("%w: replacement pt has %d entries, want %d", ErrMalformed, len(pt), o.Len())
	}
	view := *o
	view.Pt = pt
	return &view, nil
}

// Select returns a new collection keeping only objects where keep is true.
// keep is indexed per object (length Len()). Offsets are rebuilt so events
// that lose all of their objects remain present with zero entries.
func (o *Objects) Select(keep []bool) *Objects {
	nEvents := o.Events()
	out := &Objects{
		Offsets: make([]int, nEvents+1),
		Extra:   make(map[string][]float64, len(o.Extra)),
	}

	kept := 0
	for _, k := range keep {
		if k {
			kept++
		}
	}
	out.Pt = make([]float64, 0, kept)
	out.Eta = make([]float64, 0, kept)
	out.Phi = make([]float64, 0, kept)
	out.Mass = make([]float64, 0, kept)
	for name := range o.Extra {
		out.Extra[name] = make([]float64, 0, kept)
	}

	for i := 0; i < nEvents; i++ {
		lo, hi := o.Range(i)
		for j := lo; j < hi; j++ {
			if !keep[j] {
				continue
			}
			out.Pt = append(out.Pt, o.Pt[j])
			out.Eta = append(out.Eta, o.Eta[j])
			out.Phi = append(out.Phi, o.Phi[j])
			out.Mass = append(out.Mass, o.Mass[j])
			for name, col := range o.Extra {
				out.Extra[name] = append(out.Extra[name], col[j])
			}
		}
		out.Offsets[i+1] = len(out.Pt)
	}
	return out
}

// Batch is one chunk's worth of events with their object collections.
type Batch struct {
	Electrons *Objects
	Muons     *Objects
	Jets      *Objects
}

// Events returns the event count of the batch.
func (b *Batch) Events() int { return b.Electrons.Events() }

// Validate checks internal consistency across the three collections.
func (b *Batch) Validate() error {
	if b.Electrons == nil || b.Muons == nil || b.Jets == nil {
		return fmt.Errorf("%w: batch is missing a collection", ErrMalformed)
	}
	for kind, coll := range map[string]*Objects{"electrons": b.Electrons, "muons": b.Muons, "jets": b.Jets} {
		if err := coll.Validate(); err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
	}
	n := b.Electrons.Events()
	if b.Muons.Events() != n || b.Jets.Events() != n {
		return fmt.Errorf("%w: collections span different event counts (e=%d mu=%d j=%d)",
			ErrMalformed, n, b.Muons.Events(), b.Jets.Events())
	}
	return nil
}

// WithJetPt returns a batch view with the jet pt column replaced. Electron
// and muon collections are shared; the source batch is not modified.
func (b *Batch) WithJetPt(pt []float64) (*Batch, error) {
	jets, err := b.Jets.WithPt(pt)
	if err != nil {
		return nil, err
	}
	return &Batch{Electrons: b.Electrons, Muons: b.Muons, Jets: jets}, nil
}
