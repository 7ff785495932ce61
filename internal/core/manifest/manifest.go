// Package manifest defines the domain types and limits for an ordered
// record manifest destined for a remote ledger target. Everything in
// this package is pure (no I/O) so it can be exercised by the planner
// and the validators without touching the cache or the network.
package manifest

// =============================================================================
// Ledger Limits
// =============================================================================

// The ledger program enforces these ceilings on every append call.
// They are protocol constants, not tunables.
const (
	// MaxNameLength is the maximum record name length in bytes.
	MaxNameLength = 32

	// MaxURILength is the maximum content URI length in bytes.
	MaxURILength = 200

	// MaxBatchBytes is the maximum serialized payload per append call.
	MaxBatchBytes = 1000

	// MaxBatchRecords is the maximum record count per append call.
	MaxBatchRecords = 17

	// lenPrefixSize is the size of the length prefix the ledger wire
	// format puts in front of each string field.
	lenPrefixSize = 4
)

// =============================================================================
// Record
// =============================================================================

// Record is one immutable ledger entry: a name and the URI of its
// content. Records are identified by a dense index assigned during
// upload; the ledger only accepts contiguous runs of indices.
type Record struct {
	Index uint32 `json:"index"`
	Name  string `json:"name"`
	URI   string `json:"uri"`
}

// SerializedSize returns the number of payload bytes the record
// occupies in an append call: both string fields plus their length
// prefixes.
func (r Record) SerializedSize() int {
	return 2*lenPrefixSize + len(r.Name) + len(r.URI)
}
