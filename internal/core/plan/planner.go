// Package plan turns the current acceptance state of a manifest into
// the ordered list of batches that still need to be appended to the
// ledger target. Planning is a pure function over a snapshot of the
// cache: no I/O, deterministic output, safe to recompute on every run.
package plan

import (
	"errors"
	"fmt"

	"inscribe/internal/core/manifest"
)

// =============================================================================
// Errors
// =============================================================================

// ErrMissingRecord is returned when the manifest is not dense: an
// expected index has no cache entry. The cache is created dense by the
// upload phase, so a gap means the cache file is corrupt or truncated.
var ErrMissingRecord = errors.New("missing manifest record")

// =============================================================================
// Types
// =============================================================================

// Item is the planner's read-only view of one cache entry.
type Item struct {
	Index    uint32
	Name     string
	URI      string
	Accepted bool
}

// Batch is a contiguous run of records small enough for one append
// call: total serialized size within manifest.MaxBatchBytes and record
// count within manifest.MaxBatchRecords.
type Batch struct {
	Records []manifest.Record
}

// StartIndex returns the index the ledger writes the batch at.
func (b Batch) StartIndex() uint32 {
	return b.Records[0].Index
}

// Size returns the total serialized payload size of the batch.
func (b Batch) Size() int {
	total := 0
	for _, r := range b.Records {
		total += r.SerializedSize()
	}
	return total
}

// Indices returns the indices of all records in the batch, in order.
func (b Batch) Indices() []uint32 {
	out := make([]uint32, len(b.Records))
	for i, r := range b.Records {
		out[i] = r.Index
	}
	return out
}

// Plan is the ordered list of batches still needing submission. It is
// a derived view: never persisted, recomputed from the cache each run.
type Plan []Batch

// RecordCount returns the total number of records across all batches.
func (p Plan) RecordCount() int {
	total := 0
	for _, b := range p.Batches() {
		total += len(b.Records)
	}
	return total
}

// Batches returns the plan as a slice. It exists so callers iterating
// a nil plan do not need their own guard.
func (p Plan) Batches() []Batch {
	return p
}

// =============================================================================
// Planning
// =============================================================================

// Build partitions the unaccepted records of a dense, index-ordered
// item list into valid batches.
//
// Rules, in order of application per item:
//   - An already-accepted record closes the current batch and is
//     skipped: the ledger writes a batch at a contiguous index offset,
//     so an accepted record in the middle would force re-writing it.
//   - A record that would push the current batch past the byte ceiling,
//     or that would be record number MaxBatchRecords+1, starts a new
//     batch instead.
//
// A single record larger than the byte ceiling still gets its own
// batch; field-level limits are enforced upstream by validation, so
// such a batch only occurs on caller error. A fully accepted manifest
// yields an empty plan.
func Build(items []Item) (Plan, error) {
	var (
		out     Plan
		current []manifest.Record
		size    int
	)

	for i, item := range items {
		if item.Index != uint32(i) {
			return nil, fmt.Errorf("%w: expected index %d, found %d", ErrMissingRecord, i, item.Index)
		}

		if item.Accepted {
			// Accepted records force a batch boundary; they are never
			// re-submitted.
			if len(current) > 0 {
				out = append(out, Batch{Records: current})
				current = nil
				size = 0
			}
			continue
		}

		rec := manifest.Record{Index: item.Index, Name: item.Name, URI: item.URI}
		recSize := rec.SerializedSize()

		if len(current) > 0 && (size+recSize > manifest.MaxBatchBytes || len(current) == manifest.MaxBatchRecords) {
			out = append(out, Batch{Records: current})
			current = nil
			size = 0
		}

		size += recSize
		current = append(current, rec)
	}

	if len(current) > 0 {
		out = append(out, Batch{Records: current})
	}

	return out, nil
}
