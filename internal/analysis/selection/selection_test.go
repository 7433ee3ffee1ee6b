package selection

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/collider.report/internal/analysis/event"
)

// emptyObjects returns a collection with zero objects in each of n events.
func emptyObjects(n int, extraCols ...string) *event.Objects {
	o := &event.Objects{
		Offsets: make([]int, n+1),
		Pt:      []float64{},
		Eta:     []float64{},
		Phi:     []float64{},
		Mass:    []float64{},
		Extra:   make(map[string][]float64),
	}
	for _, c := range extraCols {
		o.Extra[c] = []float64{}
	}
	return o
}

// oneMuon returns an n-event muon collection with one passing muon in event idx.
func oneMuon(n, idx int) *event.Objects {
	o := emptyObjects(n, event.ColTightID, event.ColSIP3D, event.ColRelIso)
	o.Pt = []float64{45}
	o.Eta = []float64{0.3}
	o.Phi = []float64{1.1}
	o.Mass = []float64{0.106}
	o.Extra[event.ColTightID] = []float64{1}
	o.Extra[event.ColSIP3D] = []float64{1.2}
	o.Extra[event.ColRelIso] = []float64{0.05}
	for i := idx + 1; i <= n; i++ {
		o.Offsets[i] = 1
	}
	return o
}

// jetsWithBTags returns a single-event jet collection with the given b-tag
// scores; every jet passes the kinematic and id cuts.
func jetsWithBTags(btags []float64) *event.Objects {
	n := len(btags)
	o := &event.Objects{
		Offsets: []int{0, n},
		Pt:      make([]float64, n),
		Eta:     make([]float64, n),
		Phi:     make([]float64, n),
		Mass:    make([]float64, n),
		Extra: map[string][]float64{
			event.ColBTag:  btags,
			event.ColJetID: make([]float64, n),
		},
	}
	for j := 0; j < n; j++ {
		o.Pt[j] = 60 + 10*float64(j)
		o.Eta[j] = 0.2 * float64(j)
		o.Phi[j] = 0.5 * float64(j)
		o.Mass[j] = 8
		o.Extra[event.ColJetID][j] = 6
	}
	return o
}

func TestSelectObjects_Cuts(t *testing.T) {
	cuts := DefaultCuts()

	electrons := &event.Objects{
		Offsets: []int{0, 4},
		Pt:      []float64{50, 20, 50, 50},  // [1] fails pt
		Eta:     []float64{0.5, 0.5, 2.3, 0.5}, // [2] fails eta
		Phi:     []float64{0, 0, 0, 0},
		Mass:    []float64{0, 0, 0, 0},
		Extra: map[string][]float64{
			event.ColIDLevel: {4, 4, 4, 2}, // [3] fails id
			event.ColSIP3D:   {1, 1, 1, 1},
		},
	}
	b := &event.Batch{
		Electrons: electrons,
		Muons:     oneMuon(1, 0),
		Jets:      jetsWithBTags([]float64{0.9, 0.1}),
	}

	sel, err := SelectObjects(b, cuts)
	require.NoError(t, err)

	if sel.Electrons.Count(0) != 1 {
		t.Errorf("selected electrons = %d, want 1", sel.Electrons.Count(0))
	}
	if sel.Electrons.Pt[0] != 50 || sel.Electrons.Eta[0] != 0.5 {
		t.Errorf("wrong electron survived: pt=%v eta=%v", sel.Electrons.Pt[0], sel.Electrons.Eta[0])
	}
	if sel.Muons.Count(0) != 1 {
		t.Errorf("selected muons = %d, want 1", sel.Muons.Count(0))
	}
	if sel.Jets.Count(0) != 2 {
		t.Errorf("selected jets = %d, want 2", sel.Jets.Count(0))
	}
	// Source batch untouched by filtering.
	if b.Electrons.Len() != 4 {
		t.Errorf("source electrons mutated: len = %d", b.Electrons.Len())
	}
}

func TestSelectObjects_EmptyCollections(t *testing.T) {
	b := &event.Batch{
		Electrons: emptyObjects(3, event.ColIDLevel, event.ColSIP3D),
		Muons:     emptyObjects(3, event.ColTightID, event.ColSIP3D, event.ColRelIso),
		Jets:      emptyObjects(3, event.ColBTag, event.ColJetID),
	}

	sel, err := SelectObjects(b, DefaultCuts())
	require.NoError(t, err)
	if sel.Events() != 3 {
		t.Errorf("Events = %d, want 3", sel.Events())
	}
	for i := 0; i < 3; i++ {
		if sel.Jets.Count(i) != 0 {
			t.Errorf("event %d: jets = %d, want 0", i, sel.Jets.Count(i))
		}
	}
}

func TestSelectObjects_MissingColumn(t *testing.T) {
	b := &event.Batch{
		Electrons: emptyObjects(1, event.ColIDLevel, event.ColSIP3D),
		Muons:     emptyObjects(1, event.ColTightID, event.ColSIP3D, event.ColRelIso),
		Jets:      emptyObjects(1, event.ColBTag), // jet_id missing
	}
	_, err := SelectObjects(b, DefaultCuts())
	if !errors.Is(err, event.ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed for missing jet_id column", err)
	}
}

// TestBuildRegions_TruthTable encodes the worked scenario: one selected muon
// and four selected jets with b-tag scores [0.9, 0.9, 0.1, 0.1] at threshold
// 0.5 gives two tagged jets, so atleast_2b holds and exactly_1b does not:
// 4j2b is true, 4j1b is false.
func TestBuildRegions_TruthTable(t *testing.T) {
	cases := []struct {
		name     string
		btags    []float64
		want4j1b bool
		want4j2b bool
	}{
		{"two tags", []float64{0.9, 0.9, 0.1, 0.1}, false, true},
		{"one tag", []float64{0.9, 0.1, 0.1, 0.1}, true, false},
		{"no tags", []float64{0.1, 0.1, 0.1, 0.1}, false, false},
		{"three tags", []float64{0.9, 0.8, 0.7, 0.1}, false, true},
		{"tag at threshold", []float64{0.5, 0.1, 0.1, 0.1}, true, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &event.Batch{
				Electrons: emptyObjects(1, event.ColIDLevel, event.ColSIP3D),
				Muons:     oneMuon(1, 0),
				Jets:      jetsWithBTags(tc.btags),
			}
			masks, err := BuildRegions(b, 0.5)
			require.NoError(t, err)

			r1b, err := masks.Region(Region4j1b)
			require.NoError(t, err)
			r2b, err := masks.Region(Region4j2b)
			require.NoError(t, err)

			if r1b[0] != tc.want4j1b {
				t.Errorf("4j1b = %v, want %v", r1b[0], tc.want4j1b)
			}
			if r2b[0] != tc.want4j2b {
				t.Errorf("4j2b = %v, want %v", r2b[0], tc.want4j2b)
			}
		})
	}
}

func TestBuildRegions_RequiresExactlyOneLepton(t *testing.T) {
	// Zero leptons: both regions must be false despite four tagged jets.
	b := &event.Batch{
		Electrons: emptyObjects(1, event.ColIDLevel, event.ColSIP3D),
		Muons:     emptyObjects(1, event.ColTightID, event.ColSIP3D, event.ColRelIso),
		Jets:      jetsWithBTags([]float64{0.9, 0.9, 0.9, 0.9}),
	}
	masks, err := BuildRegions(b, 0.5)
	require.NoError(t, err)

	for _, region := range Regions() {
		m, err := masks.Region(region)
		require.NoError(t, err)
		if m[0] {
			t.Errorf("region %s true with zero leptons", region)
		}
	}
}

func TestRegionIdempotent(t *testing.T) {
	b := &event.Batch{
		Electrons: emptyObjects(1, event.ColIDLevel, event.ColSIP3D),
		Muons:     oneMuon(1, 0),
		Jets:      jetsWithBTags([]float64{0.9, 0.1, 0.1, 0.1}),
	}
	masks, err := BuildRegions(b, 0.5)
	require.NoError(t, err)

	first, err := masks.Region(Region4j1b)
	require.NoError(t, err)
	second, err := masks.Region(Region4j1b)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("re-evaluating 4j1b changed the mask (-first +second):\n%s", diff)
	}
}

func TestMaskSet_UnknownNames(t *testing.T) {
	s := NewMaskSet(2)
	require.NoError(t, s.Add("a", []bool{true, false}))

	if _, err := s.Region("nope"); !errors.Is(err, ErrUnknownMask) {
		t.Errorf("Region(nope) err = %v, want ErrUnknownMask", err)
	}
	if _, err := s.Mask("nope"); !errors.Is(err, ErrUnknownMask) {
		t.Errorf("Mask(nope) err = %v, want ErrUnknownMask", err)
	}
	if err := s.AddRegion("r", "a", "missing"); !errors.Is(err, ErrUnknownMask) {
		t.Errorf("AddRegion with missing atomic err = %v, want ErrUnknownMask", err)
	}
}

func TestMaskSet_ConjunctionOrderIrrelevant(t *testing.T) {
	s := NewMaskSet(3)
	require.NoError(t, s.Add("a", []bool{true, true, false}))
	require.NoError(t, s.Add("b", []bool{true, false, true}))
	require.NoError(t, s.AddRegion("ab", "a", "b"))
	require.NoError(t, s.AddRegion("ba", "b", "a"))

	ab, err := s.Region("ab")
	require.NoError(t, err)
	ba, err := s.Region("ba")
	require.NoError(t, err)

	if diff := cmp.Diff(ab, ba); diff != "" {
		t.Errorf("conjunction not commutative (-ab +ba):\n%s", diff)
	}
	if diff := cmp.Diff(ab, []bool{true, false, false}); diff != "" {
		t.Errorf("conjunction wrong (-got +want):\n%s", diff)
	}
}
