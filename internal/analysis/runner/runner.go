// Package runner schedules chunk processing across a bounded worker pool and
// merges the per-chunk accumulators into one result.
//
// Determinism contract: chunk results are merged in chunk-enumeration order
// regardless of which worker finished first, and each chunk's smearing seed
// is derived from its unit name and index. Two runs over the same fileset
// with different worker counts produce identical histograms.
package runner

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/collider.report/internal/analysis/event"
	"github.com/banshee-data/collider.report/internal/analysis/histo"
	"github.com/banshee-data/collider.report/internal/analysis/source"
	"github.com/banshee-data/collider.report/internal/analysis/variation"
	"github.com/banshee-data/collider.report/internal/monitoring"
)

// Runner owns one analysis execution: chunking the units, fanning chunks out
// to workers, and folding the results.
type Runner struct {
	Source    source.EventSource
	Processor *variation.ChunkProcessor

	// Workers bounds concurrent chunk processing. Values below 1 mean 1.
	Workers int

	// ChunkSize is the target events per chunk passed to the source.
	ChunkSize int
}

// Report summarises one run for logging and persistence.
type Report struct {
	Units     int
	Chunks    int
	Processed int
	Skipped   int
	Events    int64
}

// job pairs a chunk with its processing metadata and smearing seed.
type job struct {
	spec source.ChunkSpec
	meta variation.Meta
	seed uint64
}

// Run processes every unit's chunks and returns the merged accumulator.
//
// Data-shaped failures (unreadable or malformed chunks) are skipped and
// counted; configuration failures (unknown weight family, malformed weight
// response, unknown region) abort the run, as every later chunk would fail
// the same way.
func (r *Runner) Run(ctx context.Context, units []source.Unit) (*histo.Accumulator, *Report, error) {
	jobs, err := r.collectJobs(units)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{Units: len(units), Chunks: len(jobs)}
	results := make([]*histo.Accumulator, len(jobs))
	var processed, skipped, events atomic.Int64

	workers := r.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range jobs {
		i := i
		g.Go(func() error {
			acc, n, err := r.processOne(gctx, jobs[i])
			if err != nil {
				if isSkippable(err) {
					monitoring.Logf("[Runner] skipping chunk %s[%d]: %v",
						jobs[i].spec.Unit.Name, jobs[i].spec.Index, err)
					skipped.Add(1)
					return nil
				}
				return fmt.Errorf("chunk %s[%d]: %w", jobs[i].spec.Unit.Name, jobs[i].spec.Index, err)
			}
			results[i] = acc
			processed.Add(1)
			events.Add(int64(n))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	report.Processed = int(processed.Load())
	report.Skipped = int(skipped.Load())
	report.Events = events.Load()

	merged := histo.New(r.Processor.HistBins, r.Processor.HistLow, r.Processor.HistHigh)
	for _, acc := range results {
		if acc == nil {
			continue
		}
		if err := merged.Merge(acc); err != nil {
			return nil, nil, err
		}
	}

	monitoring.Logf("[Runner] %d units, %d chunks (%d processed, %d skipped), %d events",
		report.Units, report.Chunks, report.Processed, report.Skipped, report.Events)
	return merged, report, nil
}

func (r *Runner) collectJobs(units []source.Unit) ([]job, error) {
	var jobs []job
	for _, unit := range units {
		specs, err := r.Source.Chunks(unit, r.ChunkSize)
		if err != nil {
			return nil, fmt.Errorf("chunking %s: %w", unit.Name, err)
		}
		meta := variation.Meta{
			Process:    unit.Process,
			Baseline:   unit.Variation,
			XSec:       unit.XSec,
			NEvtsTotal: unit.NEvtsTotal,
			IsData:     unit.IsData,
		}
		for _, spec := range specs {
			jobs = append(jobs, job{spec: spec, meta: meta, seed: jobSeed(unit.Name, spec.Index)})
		}
	}
	return jobs, nil
}

func (r *Runner) processOne(ctx context.Context, j job) (*histo.Accumulator, int, error) {
	batch, err := r.Source.Read(ctx, j.spec)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, err
		}
		return nil, 0, &readError{err}
	}
	acc, err := r.Processor.ProcessChunk(ctx, j.meta, batch, j.seed)
	if err != nil {
		return nil, 0, err
	}
	return acc, batch.Events(), nil
}

// isSkippable reports whether the error is a per-chunk data failure rather
// than a run-level fault. Cancellation and configuration errors always abort.
func isSkippable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, event.ErrMalformed):
		return true
	}
	var re *readError
	return errors.As(err, &re)
}

// readError marks a source read failure (missing file, I/O) as a skippable
// data failure rather than a run-level fault.
type readError struct{ err error }

func (e *readError) Error() string { return e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

func jobSeed(unit string, index int) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%d", unit, index)
	return h.Sum64()
}
