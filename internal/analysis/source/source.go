// Package source provides columnar event input for the pipeline: chunk
// partitioning over a unit's files and batch materialisation per chunk.
//
// Two sources are provided: a JSON fixture reader for dev runs and tests,
// and a deterministic synthetic generator. Both materialise only the fields
// the selection and observable code reads.
package source

import (
	"context"

	"github.com/banshee-data/collider.report/internal/analysis/event"
)

// Unit is one processing unit of the fileset: a dataset partition with its
// process identity, baseline variation and cross-section bookkeeping.
type Unit struct {
	Name       string
	Process    string
	Variation  string
	XSec       float64
	NEvtsTotal int64
	IsData     bool
	Files      []string
}

// ChunkSpec identifies one contiguous partition of a unit's events. Count
// of -1 means "the whole file" and is used when the event count could not
// be determined up front; the read then surfaces any file problem as a
// chunk-level failure.
type ChunkSpec struct {
	Unit  Unit
	File  string
	Index int // global chunk index within the unit, 0-based
	Start int
	Count int
}

// EventSource partitions units into chunks and materialises event batches.
// Implementations must be safe for concurrent Read calls: chunks are
// processed by independent workers.
type EventSource interface {
	// Chunks partitions the unit into chunk descriptors of at most
	// chunkSize events each.
	Chunks(unit Unit, chunkSize int) ([]ChunkSpec, error)

	// Read materialises the events for one chunk. Errors from Read are
	// chunk-level data failures, eligible for skip-and-continue.
	Read(ctx context.Context, spec ChunkSpec) (*event.Batch, error)
}
