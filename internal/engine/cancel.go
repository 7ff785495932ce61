// Package engine drives manifest deployments: it owns the concurrent
// dispatch of planned batches to the ledger, durable progress tracking
// through the cache, and aggregation of partial failures. The upload
// and validation flows live here too, so the CLI stays a thin surface.
package engine

import "sync/atomic"

// CancelFlag is the cooperative cancellation source shared between the
// hosting process's interrupt handler and the dispatcher. It is a
// plain flag rather than a context so that setting it never aborts an
// in-flight submission: partial remote effects cannot be rolled back,
// so in-flight batches always drain to completion.
type CancelFlag struct {
	flag atomic.Bool
}

// Cancel requests cancellation. Safe to call from any goroutine, more
// than once.
func (f *CancelFlag) Cancel() {
	f.flag.Store(true)
}

// Requested reports whether cancellation has been requested.
func (f *CancelFlag) Requested() bool {
	return f != nil && f.flag.Load()
}
