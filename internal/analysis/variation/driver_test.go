package variation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/collider.report/internal/analysis/corrections"
	"github.com/banshee-data/collider.report/internal/analysis/event"
	"github.com/banshee-data/collider.report/internal/analysis/histo"
	"github.com/banshee-data/collider.report/internal/analysis/selection"
)

// testBatch builds n events, each with one passing muon and four passing
// jets. Event btags alternate between a single-tag topology (4j1b) and a
// double-tag topology (4j2b).
func testBatch(n int) *event.Batch {
	muons := &event.Objects{
		Offsets: make([]int, n+1),
		Pt:      make([]float64, n),
		Eta:     make([]float64, n),
		Phi:     make([]float64, n),
		Mass:    make([]float64, n),
		Extra: map[string][]float64{
			event.ColTightID: make([]float64, n),
			event.ColSIP3D:   make([]float64, n),
			event.ColRelIso:  make([]float64, n),
		},
	}
	for i := 0; i < n; i++ {
		muons.Offsets[i+1] = i + 1
		muons.Pt[i] = 45
		muons.Eta[i] = 0.4
		muons.Mass[i] = 0.106
		muons.Extra[event.ColTightID][i] = 1
		muons.Extra[event.ColSIP3D][i] = 1
		muons.Extra[event.ColRelIso][i] = 0.05
	}

	nj := 4 * n
	jets := &event.Objects{
		Offsets: make([]int, n+1),
		Pt:      make([]float64, nj),
		Eta:     make([]float64, nj),
		Phi:     make([]float64, nj),
		Mass:    make([]float64, nj),
		Extra: map[string][]float64{
			event.ColBTag:  make([]float64, nj),
			event.ColJetID: make([]float64, nj),
		},
	}
	for i := 0; i < n; i++ {
		jets.Offsets[i+1] = 4 * (i + 1)
		for j := 0; j < 4; j++ {
			k := 4*i + j
			jets.Pt[k] = 31 + 2*float64(j)
			jets.Eta[k] = 0.1 * float64(j)
			jets.Phi[k] = 0.7 * float64(j)
			jets.Mass[k] = 5
			jets.Extra[event.ColJetID][k] = 6
			jets.Extra[event.ColBTag][k] = 0.1
		}
		jets.Extra[event.ColBTag][4*i] = 0.9
		if i%2 == 1 {
			jets.Extra[event.ColBTag][4*i+1] = 0.9
		}
	}

	electrons := &event.Objects{
		Offsets: make([]int, n+1),
		Pt:      []float64{},
		Eta:     []float64{},
		Phi:     []float64{},
		Mass:    []float64{},
		Extra: map[string][]float64{
			event.ColIDLevel: {},
			event.ColSIP3D:   {},
		},
	}

	return &event.Batch{Electrons: electrons, Muons: muons, Jets: jets}
}

func testProcessor() *ChunkProcessor {
	return &ChunkProcessor{
		Cuts:          selection.DefaultCuts(),
		BTagThreshold: 0.5,
		Luminosity:    3378,
		Corrections:   corrections.DefaultSet(),
		HistBins:      25,
		HistLow:       50,
		HistHigh:      550,
		PtScaleFactor: 1.03,
		ResSmearSigma: 0.05,
	}
}

func mcMeta(process, baseline string) Meta {
	return Meta{Process: process, Baseline: baseline, XSec: 800, NEvtsTotal: 1_000_000}
}

func TestCandidates(t *testing.T) {
	names := func(vs []Variation) []string {
		out := make([]string, len(vs))
		for i, v := range vs {
			out[i] = v.Name
		}
		return out
	}

	ttbar := Candidates("ttbar", Nominal)
	wantTTbar := []string{"nominal", "pt_scale_up", "pt_res_up",
		"btag_var_0", "btag_var_1", "btag_var_2", "btag_var_3"}
	if diff := cmp.Diff(wantTTbar, names(ttbar)); diff != "" {
		t.Errorf("ttbar nominal candidates (-want +got):\n%s", diff)
	}

	wjets := Candidates("wjets", Nominal)
	if diff := cmp.Diff(append(wantTTbar, "scale_var"), names(wjets)); diff != "" {
		t.Errorf("wjets nominal candidates (-want +got):\n%s", diff)
	}

	// Non-nominal units never expand, regardless of process.
	for _, process := range []string{"ttbar", "wjets"} {
		got := Candidates(process, "pt_scale_up")
		if diff := cmp.Diff([]string{"nominal"}, names(got)); diff != "" {
			t.Errorf("%s pt_scale_up candidates (-want +got):\n%s", process, diff)
		}
	}
}

func TestXSecWeight(t *testing.T) {
	m := mcMeta("ttbar", Nominal)
	require.InDelta(t, 2.7024, m.XSecWeight(3378), 1e-12)

	data := Meta{Process: "data", Baseline: Nominal, IsData: true}
	require.Equal(t, 1.0, data.XSecWeight(3378))
}

func TestProcessChunk_NominalTTbarFillCounts(t *testing.T) {
	p := testProcessor()
	acc, err := p.ProcessChunk(context.Background(), mcMeta("ttbar", Nominal), testBatch(8), 1)
	require.NoError(t, err)

	// 1 nominal + 2 kinematic + 4 btag families x 2 directions = 11 fills
	// per region, over two regions.
	require.Equal(t, 22, acc.FillCalls())
	require.Len(t, acc.Keys(), 22)

	for _, region := range selection.Regions() {
		perRegion := 0
		for _, k := range acc.Keys() {
			if k.Region == region {
				perRegion++
			}
		}
		if perRegion != 11 {
			t.Errorf("region %s: %d fills, want 11", region, perRegion)
		}
	}
}

func TestProcessChunk_WJetsAddsScaleVar(t *testing.T) {
	p := testProcessor()
	acc, err := p.ProcessChunk(context.Background(), mcMeta("wjets", Nominal), testBatch(8), 1)
	require.NoError(t, err)

	// 11 + scale_var up/down = 13 fills per region.
	require.Equal(t, 26, acc.FillCalls())

	if _, ok := acc.Hist(histo.Key{Region: "4j1b", Process: "wjets", Variation: "scale_var_up"}); !ok {
		t.Error("missing scale_var_up histogram")
	}
	if _, ok := acc.Hist(histo.Key{Region: "4j1b", Process: "wjets", Variation: "scale_var_down"}); !ok {
		t.Error("missing scale_var_down histogram")
	}
}

func TestProcessChunk_NonNominalUnitNoFanOut(t *testing.T) {
	p := testProcessor()
	acc, err := p.ProcessChunk(context.Background(), mcMeta("ttbar", "pt_scale_up"), testBatch(4), 1)
	require.NoError(t, err)

	// Exactly one fill per region, under the unit's own baseline name.
	require.Equal(t, 2, acc.FillCalls())
	for _, region := range selection.Regions() {
		if _, ok := acc.Hist(histo.Key{Region: region, Process: "ttbar", Variation: "pt_scale_up"}); !ok {
			t.Errorf("region %s: missing fill under baseline name", region)
		}
	}
}

func TestProcessChunk_NominalWeightIsXSec(t *testing.T) {
	p := testProcessor()
	batch := testBatch(2) // event 0 -> 4j1b, event 1 -> 4j2b

	acc, err := p.ProcessChunk(context.Background(), mcMeta("ttbar", Nominal), batch, 1)
	require.NoError(t, err)

	h, ok := acc.Hist(histo.Key{Region: "4j1b", Process: "ttbar", Variation: "nominal"})
	require.True(t, ok)
	// One event in 4j1b with HT = 31+33+35+37 = 136, weight 2.7024.
	require.InDelta(t, 2.7024, h.SumW(), 1e-9)
}

func TestProcessChunk_DataWeightIsUnity(t *testing.T) {
	p := testProcessor()
	meta := Meta{Process: "data", Baseline: Nominal, IsData: true}

	acc, err := p.ProcessChunk(context.Background(), meta, testBatch(2), 1)
	require.NoError(t, err)

	h, ok := acc.Hist(histo.Key{Region: "4j1b", Process: "data", Variation: "nominal"})
	require.True(t, ok)
	require.InDelta(t, 1.0, h.SumW(), 1e-12)
}

func TestProcessChunk_DoesNotMutateBatch(t *testing.T) {
	p := testProcessor()
	batch := testBatch(4)

	before := make([]float64, len(batch.Jets.Pt))
	copy(before, batch.Jets.Pt)

	_, err := p.ProcessChunk(context.Background(), mcMeta("ttbar", Nominal), batch, 7)
	require.NoError(t, err)

	if diff := cmp.Diff(before, batch.Jets.Pt); diff != "" {
		t.Errorf("source jet pt mutated by kinematic variations (-before +after):\n%s", diff)
	}
}

func TestProcessChunk_SmearingDeterministicUnderSeed(t *testing.T) {
	p := testProcessor()

	hists := func(seed uint64) []float64 {
		acc, err := p.ProcessChunk(context.Background(), mcMeta("ttbar", Nominal), testBatch(16), seed)
		require.NoError(t, err)
		h, ok := acc.Hist(histo.Key{Region: "4j1b", Process: "ttbar", Variation: PtResUp})
		require.True(t, ok)
		out := make([]float64, len(h.Binning.Bins))
		for i, b := range h.Binning.Bins {
			out[i] = b.SumW()
		}
		return out
	}

	if diff := cmp.Diff(hists(42), hists(42)); diff != "" {
		t.Errorf("same seed produced different pt_res_up contents:\n%s", diff)
	}
}

func TestProcessChunk_UnknownFamilyAborts(t *testing.T) {
	p := testProcessor()
	p.Corrections = corrections.NewSet() // nothing registered

	_, err := p.ProcessChunk(context.Background(), mcMeta("ttbar", Nominal), testBatch(2), 1)
	if !errors.Is(err, corrections.ErrUnknownFamily) {
		t.Errorf("err = %v, want ErrUnknownFamily", err)
	}
}

func TestProcessChunk_MalformedWeightResponseAborts(t *testing.T) {
	p := testProcessor()
	bad := corrections.DefaultSet()
	bad.Register("btag_var_0", func(dir corrections.Direction, input []float64) ([]float64, error) {
		return []float64{1}, nil // wrong length
	})
	p.Corrections = bad

	_, err := p.ProcessChunk(context.Background(), mcMeta("ttbar", Nominal), testBatch(4), 1)
	if !errors.Is(err, corrections.ErrMalformedResponse) {
		t.Errorf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestProcessChunk_MalformedBatchIsDataError(t *testing.T) {
	p := testProcessor()
	batch := testBatch(2)
	batch.Jets.Eta = batch.Jets.Eta[:3] // truncate a column

	_, err := p.ProcessChunk(context.Background(), mcMeta("ttbar", Nominal), batch, 1)
	if !errors.Is(err, event.ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestProcessChunk_Cancellation(t *testing.T) {
	p := testProcessor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ProcessChunk(ctx, mcMeta("ttbar", Nominal), testBatch(2), 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestScaledPt(t *testing.T) {
	batch := testBatch(1)
	got := scaledPt(batch.Jets, 1.03)
	for j, pt := range batch.Jets.Pt {
		require.InDelta(t, pt*1.03, got[j], 1e-12)
	}
}

func TestSmearedPt_PerEventMultiplier(t *testing.T) {
	batch := testBatch(2)
	got := smearedPt(batch.Jets, 0.05, 99)

	// All jets of one event share the multiplier.
	for i := 0; i < 2; i++ {
		lo, hi := batch.Jets.Range(i)
		m0 := got[lo] / batch.Jets.Pt[lo]
		for j := lo + 1; j < hi; j++ {
			require.InDelta(t, m0, got[j]/batch.Jets.Pt[j], 1e-12)
		}
		if math.Abs(m0-1) > 0.5 {
			t.Errorf("event %d multiplier %v implausibly far from 1", i, m0)
		}
	}

	// Deterministic under the seed.
	again := smearedPt(batch.Jets, 0.05, 99)
	require.Equal(t, got, again)
}
