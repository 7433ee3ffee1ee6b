// Package histo provides the mergeable histogram accumulator: weighted-fill
// storage keyed by (region, process, variation), backed by hbook H1D.
package histo

import (
	"fmt"
	"sort"

	"go-hep.org/x/hep/hbook"
)

// Key addresses one histogram in the accumulator.
type Key struct {
	Region    string
	Process   string
	Variation string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Region, k.Process, k.Variation)
}

// Accumulator is a keyed collection of one-dimensional histograms with a
// shared binning. It is not safe for concurrent use; each chunk fills its
// own accumulator and the runner merges completed ones sequentially.
type Accumulator struct {
	bins      int
	low, high float64

	hists map[Key]*hbook.H1D
	fills int
}

// New returns an empty accumulator with the given shared binning.
func New(bins int, low, high float64) *Accumulator {
	return &Accumulator{
		bins:  bins,
		low:   low,
		high:  high,
		hists: make(map[Key]*hbook.H1D),
	}
}

// Fill records one weighted fill call for the key: entry k of xs is filled
// with weight ws[k]. The histogram for the key is created on first use, so
// an empty fill still registers the key. Exactly one Fill call is expected
// per (chunk, region, variation, direction) combination.
func (a *Accumulator) Fill(k Key, xs, ws []float64) error {
	if len(xs) != len(ws) {
		return fmt.Errorf("histo: fill %s: %d values with %d weights", k, len(xs), len(ws))
	}

	h, ok := a.hists[k]
	if !ok {
		h = hbook.NewH1D(a.bins, a.low, a.high)
		h.Annotation()["name"] = k.String()
		a.hists[k] = h
	}
	for i, x := range xs {
		h.Fill(x, ws[i])
	}
	a.fills++
	return nil
}

// FillCalls returns the number of Fill calls recorded so far.
func (a *Accumulator) FillCalls() int { return a.fills }

// Hist returns the histogram for the key, if any fill has registered it.
func (a *Accumulator) Hist(k Key) (*hbook.H1D, bool) {
	h, ok := a.hists[k]
	return h, ok
}

// Keys returns the registered keys in deterministic sorted order.
func (a *Accumulator) Keys() []Key {
	keys := make([]Key, 0, len(a.hists))
	for k := range a.hists {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Region != keys[j].Region {
			return keys[i].Region < keys[j].Region
		}
		if keys[i].Process != keys[j].Process {
			return keys[i].Process < keys[j].Process
		}
		return keys[i].Variation < keys[j].Variation
	})
	return keys
}

// Binning reports the shared binning of the accumulator.
func (a *Accumulator) Binning() (bins int, low, high float64) {
	return a.bins, a.low, a.high
}

// Merge folds other into the receiver by elementwise sum of bin contents.
// The merge is commutative and associative over bin sums; the runner merges
// chunk results in chunk-index order so aggregate contents do not depend on
// worker scheduling. Binnings must match.
func (a *Accumulator) Merge(other *Accumulator) error {
	if other.bins != a.bins || other.low != a.low || other.high != a.high {
		return fmt.Errorf("histo: merge binning mismatch: (%d, %g, %g) vs (%d, %g, %g)",
			a.bins, a.low, a.high, other.bins, other.low, other.high)
	}

	for _, k := range other.Keys() {
		src := other.hists[k]
		dst, ok := a.hists[k]
		if !ok {
			a.hists[k] = cloneH1D(src)
			continue
		}
		sum := hbook.AddH1D(dst, src)
		sum.Annotation()["name"] = k.String()
		a.hists[k] = sum
	}
	a.fills += other.fills
	return nil
}

func cloneH1D(h *hbook.H1D) *hbook.H1D {
	zero := hbook.NewH1D(len(h.Binning.Bins), h.XMin(), h.XMax())
	sum := hbook.AddH1D(zero, h)
	for k, v := range h.Annotation() {
		sum.Annotation()[k] = v
	}
	return sum
}
