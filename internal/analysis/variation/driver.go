package variation

import (
	"context"
	"fmt"

	"github.com/banshee-data/collider.report/internal/analysis/corrections"
	"github.com/banshee-data/collider.report/internal/analysis/event"
	"github.com/banshee-data/collider.report/internal/analysis/histo"
	"github.com/banshee-data/collider.report/internal/analysis/observable"
	"github.com/banshee-data/collider.report/internal/analysis/selection"
	"github.com/banshee-data/collider.report/internal/monitoring"
)

// ChunkProcessor holds the per-chunk pipeline dependencies and constants.
// One processor is shared read-only by all workers; each ProcessChunk call
// fills a fresh accumulator so chunks commit atomically.
type ChunkProcessor struct {
	Cuts          selection.Cuts
	BTagThreshold float64
	Luminosity    float64 // integrated luminosity, /pb

	// Corrections is the weight-service handle consulted for weight-type
	// variations. Explicitly passed, never ambient.
	Corrections *corrections.Set

	// Histogram binning shared by every region observable.
	HistBins          int
	HistLow, HistHigh float64

	// PtScaleFactor is the fixed kinematic scale shift multiplier applied
	// for pt_scale_up. Typical value: 1.03.
	PtScaleFactor float64

	// ResSmearSigma is the width of the per-event Gaussian resolution
	// multiplier applied for pt_res_up. Typical value: 0.05.
	ResSmearSigma float64
}

// ProcessChunk runs the full selection/variation/fill pipeline over one
// chunk and returns its private accumulator. seed fixes the resolution
// smearing for the chunk. On any error the partial accumulator is discarded
// by the caller; nothing is committed.
func (p *ChunkProcessor) ProcessChunk(ctx context.Context, meta Meta, batch *event.Batch, seed uint64) (*histo.Accumulator, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	xsecWeight := meta.XSecWeight(p.Luminosity)
	acc := histo.New(p.HistBins, p.HistLow, p.HistHigh)

	// Stage 1: nominal object selection and region masks, computed once.
	// Weight-type variations and "nominal" reuse this pass; kinematic
	// variations re-select below because the filtering predicate depends
	// on the shifted pt field.
	nominalSel, err := selection.SelectObjects(batch, p.Cuts)
	if err != nil {
		return nil, err
	}
	nominalMasks, err := selection.BuildRegions(nominalSel, p.BTagThreshold)
	if err != nil {
		return nil, err
	}

	// Stage 2: derive the kinematic-shift pt columns from the nominal jets.
	// Derived columns live on batch views; the source batch stays untouched
	// so every variation sees the same nominal input.
	shiftedPt := map[string][]float64{
		PtScaleUp: scaledPt(batch.Jets, p.PtScaleFactor),
		PtResUp:   smearedPt(batch.Jets, p.ResSmearSigma, seed),
	}

	// Nominal per-region observables, shared by nominal and weight fills.
	nominalVals := make(map[string]observable.Values, len(selection.Regions()))
	for _, region := range selection.Regions() {
		mask, err := nominalMasks.Region(region)
		if err != nil {
			return nil, err
		}
		vals, err := observable.Compute(region, nominalSel.Jets, mask, p.BTagThreshold)
		if err != nil {
			return nil, err
		}
		nominalVals[region] = vals
	}

	// Stage 3: variation fan-out.
	for _, v := range Candidates(meta.Process, meta.Baseline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch v.Kind {
		case KindKinematic:
			if err := p.fillKinematic(acc, meta, batch, v, shiftedPt[v.Name], xsecWeight); err != nil {
				return nil, fmt.Errorf("variation %s: %w", v.Name, err)
			}
		case KindWeight:
			if err := p.fillWeighted(acc, meta, nominalSel, v, nominalVals, xsecWeight); err != nil {
				return nil, fmt.Errorf("variation %s: %w", v.Name, err)
			}
		default:
			// The unit's own path: fill under the baseline's name when the
			// unit is itself a systematic variation, "nominal" otherwise.
			name := v.Name
			if meta.Baseline != Nominal {
				name = meta.Baseline
			}
			for _, region := range selection.Regions() {
				vals := nominalVals[region]
				if err := acc.Fill(histo.Key{Region: region, Process: meta.Process, Variation: name},
					vals.X, constWeights(vals.Len(), xsecWeight)); err != nil {
					return nil, err
				}
			}
		}
	}

	monitoring.Tracef("[Chunk] %s/%s: %d events, %d fills",
		meta.Process, meta.Baseline, batch.Events(), acc.FillCalls())
	return acc, nil
}

// fillKinematic re-runs object selection and region classification on a
// batch view carrying the shifted jet pt column, then fills each region once
// under the variation's own name.
func (p *ChunkProcessor) fillKinematic(acc *histo.Accumulator, meta Meta, batch *event.Batch, v Variation, shifted []float64, xsecWeight float64) error {
	view, err := batch.WithJetPt(shifted)
	if err != nil {
		return err
	}
	sel, err := selection.SelectObjects(view, p.Cuts)
	if err != nil {
		return err
	}
	masks, err := selection.BuildRegions(sel, p.BTagThreshold)
	if err != nil {
		return err
	}

	for _, region := range selection.Regions() {
		mask, err := masks.Region(region)
		if err != nil {
			return err
		}
		vals, err := observable.Compute(region, sel.Jets, mask, p.BTagThreshold)
		if err != nil {
			return err
		}
		if err := acc.Fill(histo.Key{Region: region, Process: meta.Process, Variation: v.Name},
			vals.X, constWeights(vals.Len(), xsecWeight)); err != nil {
			return err
		}
	}
	return nil
}

// fillWeighted queries the weight service once per direction with the
// designated jet pt column and fills under "<name>_up" / "<name>_down".
// Errors from the service propagate unchanged; there is no default weight.
func (p *ChunkProcessor) fillWeighted(acc *histo.Accumulator, meta Meta, sel *event.Batch, v Variation, nominalVals map[string]observable.Values, xsecWeight float64) error {
	input := jetPtAt(sel.Jets, v.JetIndex)

	for _, dir := range []corrections.Direction{corrections.Up, corrections.Down} {
		weights, err := p.Corrections.Evaluate(v.Name, dir, input)
		if err != nil {
			return err
		}

		for _, region := range selection.Regions() {
			vals := nominalVals[region]
			ws := make([]float64, vals.Len())
			for k, evt := range vals.EventIndex {
				ws[k] = xsecWeight * weights[evt]
			}
			key := histo.Key{
				Region:    region,
				Process:   meta.Process,
				Variation: fmt.Sprintf("%s_%s", v.Name, dir),
			}
			if err := acc.Fill(key, vals.X, ws); err != nil {
				return err
			}
		}
	}
	return nil
}

// jetPtAt returns the per-event pt of the jet at the given index within each
// event's selected jets, 0 for events with too few jets. The zero padding
// only affects events that cannot enter any region fill for that index.
func jetPtAt(jets *event.Objects, idx int) []float64 {
	out := make([]float64, jets.Events())
	for i := range out {
		lo, hi := jets.Range(i)
		if lo+idx < hi {
			out[i] = jets.Pt[lo+idx]
		}
	}
	return out
}

func constWeights(n int, w float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = w
	}
	return out
}
