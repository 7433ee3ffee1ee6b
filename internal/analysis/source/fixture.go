package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/banshee-data/collider.report/internal/analysis/event"
	"github.com/banshee-data/collider.report/internal/monitoring"
)

// Fixture file schema. One file holds an ordered list of events, each with
// its nested object lists.

type fixtureElectron struct {
	Pt      float64 `json:"pt"`
	Eta     float64 `json:"eta"`
	Phi     float64 `json:"phi"`
	Mass    float64 `json:"mass"`
	IDLevel float64 `json:"id_level"`
	SIP3D   float64 `json:"sip3d"`
}

type fixtureMuon struct {
	Pt      float64 `json:"pt"`
	Eta     float64 `json:"eta"`
	Phi     float64 `json:"phi"`
	Mass    float64 `json:"mass"`
	TightID float64 `json:"tight_id"`
	SIP3D   float64 `json:"sip3d"`
	RelIso  float64 `json:"rel_iso"`
}

type fixtureJet struct {
	Pt    float64 `json:"pt"`
	Eta   float64 `json:"eta"`
	Phi   float64 `json:"phi"`
	Mass  float64 `json:"mass"`
	BTag  float64 `json:"btag"`
	JetID float64 `json:"jet_id"`
}

type fixtureEvent struct {
	Electrons []fixtureElectron `json:"electrons"`
	Muons     []fixtureMuon     `json:"muons"`
	Jets      []fixtureJet      `json:"jets"`
}

type fixtureFile struct {
	Events []fixtureEvent `json:"events"`
}

// FixtureSource reads event batches from JSON fixture files.
type FixtureSource struct{}

// NewFixtureSource returns a source reading the unit's listed fixture files.
func NewFixtureSource() *FixtureSource { return &FixtureSource{} }

// Chunks partitions each fixture file into ranges of at most chunkSize
// events. A file whose event count cannot be determined becomes a single
// whole-file chunk, so its failure surfaces at read time as a skippable
// chunk error rather than aborting the run up front.
func (s *FixtureSource) Chunks(unit Unit, chunkSize int) ([]ChunkSpec, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("source: chunk size must be at least 1, got %d", chunkSize)
	}

	var specs []ChunkSpec
	index := 0
	for _, file := range unit.Files {
		n, err := countFixtureEvents(file)
		if err != nil {
			monitoring.Logf("[Source] %s: cannot count events (%v), deferring to read", file, err)
			specs = append(specs, ChunkSpec{Unit: unit, File: file, Index: index, Start: 0, Count: -1})
			index++
			continue
		}
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

// Read materialises the chunk's events into a columnar batch.
func (s *FixtureSource) Read(ctx context.Context, spec ChunkSpec) (*event.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events, err := decodeFixture(spec.File)
	if err != nil {
		return nil, err
	}

	start, count := spec.Start, spec.Count
	if count < 0 {
		count = len(events) - start
	}
	if start < 0 || start+count > len(events) {
		return nil, fmt.Errorf("%w: chunk [%d, %d) out of range for %s (%d events)",
			event.ErrMalformed, start, start+count, spec.File, len(events))
	}

	return buildBatch(events[start : start+count]), nil
}

func countFixtureEvents(path string) (int, error) {
	events, err := decodeFixture(path)
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

func decodeFixture(path string) ([]fixtureEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", event.ErrMalformed, path, err)
	}
	var f fixtureFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", event.ErrMalformed, path, err)
	}
	return f.Events, nil
}

func buildBatch(events []fixtureEvent) *event.Batch {
	n := len(events)
	electrons := &event.Objects{
		Offsets: make([]int, 1, n+1),
		Extra:   map[string][]float64{event.ColIDLevel: {}, event.ColSIP3D: {}},
	}
	muons := &event.Objects{
		Offsets: make([]int, 1, n+1),
		Extra:   map[string][]float64{event.ColTightID: {}, event.ColSIP3D: {}, event.ColRelIso: {}},
	}
	jets := &event.Objects{
		Offsets: make([]int, 1, n+1),
		Extra:   map[string][]float64{event.ColBTag: {}, event.ColJetID: {}},
	}
	electrons.Pt, electrons.Eta, electrons.Phi, electrons.Mass = []float64{}, []float64{}, []float64{}, []float64{}
	muons.Pt, muons.Eta, muons.Phi, muons.Mass = []float64{}, []float64{}, []float64{}, []float64{}
	jets.Pt, jets.Eta, jets.Phi, jets.Mass = []float64{}, []float64{}, []float64{}, []float64{}

	for _, ev := range events {
		for _, e := range ev.Electrons {
			electrons.Pt = append(electrons.Pt, e.Pt)
			electrons.Eta = append(electrons.Eta, e.Eta)
			electrons.Phi = append(electrons.Phi, e.Phi)
			electrons.Mass = append(electrons.Mass, e.Mass)
			electrons.Extra[event.ColIDLevel] = append(electrons.Extra[event.ColIDLevel], e.IDLevel)
			electrons.Extra[event.ColSIP3D] = append(electrons.Extra[event.ColSIP3D], e.SIP3D)
		}
		electrons.Offsets = append(electrons.Offsets, len(electrons.Pt))

		for _, m := range ev.Muons {
			muons.Pt = append(muons.Pt, m.Pt)
			muons.Eta = append(muons.Eta, m.Eta)
			muons.Phi = append(muons.Phi, m.Phi)
			muons.Mass = append(muons.Mass, m.Mass)
			muons.Extra[event.ColTightID] = append(muons.Extra[event.ColTightID], m.TightID)
			muons.Extra[event.ColSIP3D] = append(muons.Extra[event.ColSIP3D], m.SIP3D)
			muons.Extra[event.ColRelIso] = append(muons.Extra[event.ColRelIso], m.RelIso)
		}
		muons.Offsets = append(muons.Offsets, len(muons.Pt))

		for _, j := range ev.Jets {
			jets.Pt = append(jets.Pt, j.Pt)
			jets.Eta = append(jets.Eta, j.Eta)
			jets.Phi = append(jets.Phi, j.Phi)
			jets.Mass = append(jets.Mass, j.Mass)
			jets.Extra[event.ColBTag] = append(jets.Extra[event.ColBTag], j.BTag)
			jets.Extra[event.ColJetID] = append(jets.Extra[event.ColJetID], j.JetID)
		}
		jets.Offsets = append(jets.Offsets, len(jets.Pt))
	}

	return &event.Batch{Electrons: electrons, Muons: muons, Jets: jets}
}

// WriteFixture serialises a batch to the fixture JSON format. Used by the
// gen-events tool and round-trip tests.
func WriteFixture(path string, b *event.Batch) error {
	if err := b.Validate(); err != nil {
		return err
	}

	eIDLevel, err := b.Electrons.Col(event.ColIDLevel)
	if err != nil {
		return err
	}
	eSIP3D, err := b.Electrons.Col(event.ColSIP3D)
	if err != nil {
		return err
	}
	mTightID, err := b.Muons.Col(event.ColTightID)
	if err != nil {
		return err
	}
	mSIP3D, err := b.Muons.Col(event.ColSIP3D)
	if err != nil {
		return err
	}
	mRelIso, err := b.Muons.Col(event.ColRelIso)
	if err != nil {
		return err
	}
	jBTag, err := b.Jets.Col(event.ColBTag)
	if err != nil {
		return err
	}
	jJetID, err := b.Jets.Col(event.ColJetID)
	if err != nil {
		return err
	}

	f := fixtureFile{Events: make([]fixtureEvent, b.Events())}
	for i := range f.Events {
		ev := &f.Events[i]

		lo, hi := b.Electrons.Range(i)
		for j := lo; j < hi; j++ {
			ev.Electrons = append(ev.Electrons, fixtureElectron{
				Pt: b.Electrons.Pt[j], Eta: b.Electrons.Eta[j], Phi: b.Electrons.Phi[j],
				Mass: b.Electrons.Mass[j], IDLevel: eIDLevel[j], SIP3D: eSIP3D[j],
			})
		}

		lo, hi = b.Muons.Range(i)
		for j := lo; j < hi; j++ {
			ev.Muons = append(ev.Muons, fixtureMuon{
				Pt: b.Muons.Pt[j], Eta: b.Muons.Eta[j], Phi: b.Muons.Phi[j],
				Mass: b.Muons.Mass[j], TightID: mTightID[j], SIP3D: mSIP3D[j], RelIso: mRelIso[j],
			})
		}

		lo, hi = b.Jets.Range(i)
		for j := lo; j < hi; j++ {
			ev.Jets = append(ev.Jets, fixtureJet{
				Pt: b.Jets.Pt[j], Eta: b.Jets.Eta[j], Phi: b.Jets.Phi[j],
				Mass: b.Jets.Mass[j], BTag: jBTag[j], JetID: jJetID[j],
			})
		}
	}

	data, err := json.Marshal(&f)
	if err != nil {
		return fmt.Errorf("source: encode fixture: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
