package variation

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/collider.report/internal/analysis/event"
)

// scaledPt returns the jet pt column multiplied by a fixed factor.
func scaledPt(jets *event.Objects, factor float64) []float64 {
	out := make([]float64, jets.Len())
	for j, pt := range jets.Pt {
		out[j] = pt * factor
	}
	return out
}

// smearedPt returns the jet pt column with a per-event Gaussian resolution
// multiplier applied: one draw per event, shared by all jets of that event.
// Draws come from Normal(1, sigma) seeded with the chunk seed, so the shift
// is reproducible for a given chunk regardless of worker scheduling.
func smearedPt(jets *event.Objects, sigma float64, seed uint64) []float64 {
	dist := distuv.Normal{Mu: 1, Sigma: sigma, Src: rand.NewSource(seed)}

	out := make([]float64, jets.Len())
	for i := 0; i < jets.Events(); i++ {
		m := dist.Rand()
		lo, hi := jets.Range(i)
		for j := lo; j < hi; j++ {
			out[j] = jets.Pt[j] * m
		}
	}
	return out
}
