package source

import (
	"context"
	"fmt"
	"hash/fnv"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/collider.report/internal/analysis/event"
)

// SyntheticSource generates deterministic pseudo-events in memory. It exists
// for dev runs and benchmarks where no fixture files are on disk: a unit's
// "files" become virtual partitions of NEvtsTotal events each, and every
// chunk regenerates its own events from a seed derived from the unit name
// and chunk start, so results are stable across runs and worker counts.
type SyntheticSource struct {
	// EventsPerFile is the virtual size of each listed file. Defaults to
	// 10000 when zero.
	EventsPerFile int

	// Seed offsets the per-chunk generator seeds.
	Seed uint64
}

const defaultEventsPerFile = 10000

func (s *SyntheticSource) eventsPerFile() int {
	if s.EventsPerFile > 0 {
		return s.EventsPerFile
	}
	return defaultEventsPerFile
}

// Chunks partitions each virtual file into chunkSize ranges.
func (s *SyntheticSource) Chunks(unit Unit, chunkSize int) ([]ChunkSpec, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("source: chunk size must be at least 1, got %d", chunkSize)
	}

	n := s.eventsPerFile()
	var specs []ChunkSpec
	index := 0
	for _, file := range unit.Files {
		for start := 0; start < n; start += chunkSize {
			count := chunkSize
			if start+count > n {
				count = n - start
			}
			specs = append(specs, ChunkSpec{Unit: unit, File: file, Index: index, Start: start, Count: count})
			index++
		}
	}
	return specs, nil
}

// Read generates the chunk's events. The generator seed mixes the source
// seed, the file name and the chunk start offset, so a chunk's content does
// not depend on which worker reads it or in what order.
func (s *SyntheticSource) Read(ctx context.Context, spec ChunkSpec) (*event.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec.Count < 0 {
		return nil, fmt.Errorf("%w: synthetic chunks always carry a count", event.ErrMalformed)
	}
	return Generate(spec.Count, chunkSeed(s.Seed, spec.File, spec.Start)), nil
}

func chunkSeed(base uint64, file string, start int) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%d", file, start)
	return base ^ h.Sum64()
}

// Generate produces n pseudo-events from the given seed. The shapes are
// loosely ttbar-like: most events carry one lepton and four to six jets with
// falling pt spectra, enough to populate both signal regions without tuning.
func Generate(n int, seed uint64) *event.Batch {
	src := rand.NewSource(seed)
	uni := distuv.Uniform{Min: 0, Max: 1, Src: src}
	ptExp := distuv.Exponential{Rate: 1.0 / 40.0, Src: src}
	eta := distuv.Normal{Mu: 0, Sigma: 1.2, Src: src}
	phi := distuv.Uniform{Min: -3.14159, Max: 3.14159, Src: src}

	electrons := newObjects(map[string][]float64{event.ColIDLevel: {}, event.ColSIP3D: {}})
	muons := newObjects(map[string][]float64{event.ColTightID: {}, event.ColSIP3D: {}, event.ColRelIso: {}})
	jets := newObjects(map[string][]float64{event.ColBTag: {}, event.ColJetID: {}})

	for i := 0; i < n; i++ {
		// Lepton: electron or muon with equal probability, occasionally none.
		r := uni.Rand()
		switch {
		case r < 0.45:
			electrons.Pt = append(electrons.Pt, 25+ptExp.Rand())
			electrons.Eta = append(electrons.Eta, clamp(eta.Rand(), -2.5, 2.5))
			electrons.Phi = append(electrons.Phi, phi.Rand())
			electrons.Mass = append(electrons.Mass, 0.000511)
			electrons.Extra[event.ColIDLevel] = append(electrons.Extra[event.ColIDLevel], idLevel(uni.Rand()))
			electrons.Extra[event.ColSIP3D] = append(electrons.Extra[event.ColSIP3D], 6*uni.Rand())
		case r < 0.9:
			muons.Pt = append(muons.Pt, 25+ptExp.Rand())
			muons.Eta = append(muons.Eta, clamp(eta.Rand(), -2.5, 2.5))
			muons.Phi = append(muons.Phi, phi.Rand())
			muons.Mass = append(muons.Mass, 0.10566)
			muons.Extra[event.ColTightID] = append(muons.Extra[event.ColTightID], round01(uni.Rand() < 0.85))
			muons.Extra[event.ColSIP3D] = append(muons.Extra[event.ColSIP3D], 6*uni.Rand())
			muons.Extra[event.ColRelIso] = append(muons.Extra[event.ColRelIso], 0.3*uni.Rand())
		}
		electrons.Offsets = append(electrons.Offsets, len(electrons.Pt))
		muons.Offsets = append(muons.Offsets, len(muons.Pt))

		nj := 3 + int(4*uni.Rand())
		for j := 0; j < nj; j++ {
			jets.Pt = append(jets.Pt, 20+ptExp.Rand())
			jets.Eta = append(jets.Eta, clamp(eta.Rand(), -3, 3))
			jets.Phi = append(jets.Phi, phi.Rand())
			jets.Mass = append(jets.Mass, 5+10*uni.Rand())
			jets.Extra[event.ColBTag] = append(jets.Extra[event.ColBTag], uni.Rand())
			jets.Extra[event.ColJetID] = append(jets.Extra[event.ColJetID], jetID(uni.Rand()))
		}
		jets.Offsets = append(jets.Offsets, len(jets.Pt))
	}

	return &event.Batch{Electrons: electrons, Muons: muons, Jets: jets}
}

func newObjects(extra map[string][]float64) *event.Objects {
	return &event.Objects{
		Offsets: []int{0},
		Pt:      []float64{},
		Eta:     []float64{},
		Phi:     []float64{},
		Mass:    []float64{},
		Extra:   extra,
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func idLevel(r float64) float64 {
	if r < 0.8 {
		return 4
	}
	return 2
}

func jetID(r float64) float64 {
	if r < 0.9 {
		return 6
	}
	return 2
}

func round01(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
