package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/collider.report/internal/analysis/histo"
)

// Histogram is one persisted (region, process, variation) histogram of a run.
// Bin payloads are stored as JSON arrays of per-bin sums; the binning is
// uniform so edges are reconstructed from bins/low/high.
type Histogram struct {
	HistogramID string    `json:"histogram_id"`
	RunID       string    `json:"run_id"`
	Region      string    `json:"region"`
	Process     string    `json:"process"`
	Variation   string    `json:"variation"`
	Bins        int       `json:"bins"`
	Low         float64   `json:"low"`
	High        float64   `json:"high"`
	Contents    []float64 `json:"contents"`
	SumW2       []float64 `json:"sumw2"`
	Entries     int64     `json:"entries"`
	CreatedAt   int64     `json:"created_at"`
}

// HistogramStore provides persistence for run histograms.
type HistogramStore struct {
	db *sql.DB
}

// NewHistogramStore creates a new HistogramStore.
func NewHistogramStore(db *sql.DB) *HistogramStore {
	return &HistogramStore{db: db}
}

// Insert persists one histogram. If HistogramID is empty, a UUID is generated.
func (s *HistogramStore) Insert(h *Histogram) error {
	if h.HistogramID == "" {
		h.HistogramID = uuid.New().String()
	}
	if h.CreatedAt == 0 {
		h.CreatedAt = time.Now().UnixNano()
	}

	contents, err := json.Marshal(h.Contents)
	if err != nil {
		return fmt.Errorf("encode contents: %w", err)
	}
	sumw2, err := json.Marshal(h.SumW2)
	if err != nil {
		return fmt.Errorf("encode sumw2: %w", err)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO histograms (
				histogram_id, run_id, region, process, variation,
				bins, low, high, contents_json, sumw2_json, entries, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			h.HistogramID, h.RunID, h.Region, h.Process, h.Variation,
			h.Bins, h.Low, h.High, string(contents), string(sumw2), h.Entries, h.CreatedAt,
		)
		return err
	})
}

// SaveAccumulator persists every histogram of a merged accumulator under the
// given run.
func (s *HistogramStore) SaveAccumulator(runID string, acc *histo.Accumulator) error {
	bins, low, high := acc.Binning()

	for _, key := range acc.Keys() {
		h, ok := acc.Hist(key)
		if !ok {
			return fmt.Errorf("histogram %s missing from accumulator", key)
		}

		contents := make([]float64, len(h.Binning.Bins))
		sumw2 := make([]float64, len(h.Binning.Bins))
		for i := range h.Binning.Bins {
			contents[i] = h.Binning.Bins[i].SumW()
			sumw2[i] = h.Binning.Bins[i].SumW2()
		}

		rec := &Histogram{
			RunID:     runID,
			Region:    key.Region,
			Process:   key.Process,
			Variation: key.Variation,
			Bins:      bins,
			Low:       low,
			High:      high,
			Contents:  contents,
			SumW2:     sumw2,
			Entries:   h.Entries(),
		}
		if err := s.Insert(rec); err != nil {
			return fmt.Errorf("save histogram %s: %w", key, err)
		}
	}
	return nil
}

// ListByRun returns all histograms of a run, ordered by region, process and
// variation.
func (s *HistogramStore) ListByRun(runID string) ([]*Histogram, error) {
	rows, err := s.db.Query(`
		SELECT histogram_id, run_id, region, process, variation,
		       bins, low, high, contents_json, sumw2_json, entries, created_at
		FROM histograms
		WHERE run_id = ?
		ORDER BY region, process, variation`, runID)
	if err != nil {
		return nil, fmt.Errorf("query histograms: %w", err)
	}
	defer rows.Close()

	var hists []*Histogram
	for rows.Next() {
		h, err := scanHistogram(rows)
		if err != nil {
			return nil, err
		}
		hists = append(hists, h)
	}
	return hists, rows.Err()
}

// Get returns one histogram of a run by its key.
func (s *HistogramStore) Get(runID, region, process, variation string) (*Histogram, error) {
	row := s.db.QueryRow(`
		SELECT histogram_id, run_id, region, process, variation,
		       bins, low, high, contents_json, sumw2_json, entries, created_at
		FROM histograms
		WHERE run_id = ? AND region = ? AND process = ? AND variation = ?`,
		runID, region, process, variation)

	h, err := scanHistogram(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("histogram %s/%s/%s not found for run %s", region, process, variation, runID)
	}
	return h, err
}

func scanHistogram(row rowScanner) (*Histogram, error) {
	var h Histogram
	var contentsStr, sumw2Str string
	err := row.Scan(
		&h.HistogramID, &h.RunID, &h.Region, &h.Process, &h.Variation,
		&h.Bins, &h.Low, &h.High, &contentsStr, &sumw2Str, &h.Entries, &h.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan histogram: %w", err)
	}
	if err := json.Unmarshal([]byte(contentsStr), &h.Contents); err != nil {
		return nil, fmt.Errorf("decode contents: %w", err)
	}
	if err := json.Unmarshal([]byte(sumw2Str), &h.SumW2); err != nil {
		return nil, fmt.Errorf("decode sumw2: %w", err)
	}
	return &h, nil
}

// BinEdges reconstructs the uniform bin edges, length Bins+1.
func (h *Histogram) BinEdges() []float64 {
	edges := make([]float64, h.Bins+1)
	width := (h.High - h.Low) / float64(h.Bins)
	for i := range edges {
		edges[i] = h.Low + float64(i)*width
	}
	return edges
}
