package engine

import (
	"context"
	"fmt"
	"log/slog"

	"inscribe/internal/core/plan"
	"inscribe/internal/shell/cache"
	"inscribe/internal/shell/ledger"
)

// DefaultParallelism is the default number of concurrently in-flight
// batch submissions.
const DefaultParallelism = 45

// =============================================================================
// Run Outcome
// =============================================================================

// RunStatus is the terminal state of a dispatch run.
type RunStatus string

const (
	// StatusCompleted means every planned batch resolved successfully.
	StatusCompleted RunStatus = "completed"

	// StatusCancelled means cancellation was observed before the plan
	// was exhausted; in-flight work drained, the rest never started.
	StatusCancelled RunStatus = "cancelled"

	// StatusFailed means one or more batch submissions failed. Progress
	// from the successful batches is persisted and a re-run resumes.
	StatusFailed RunStatus = "failed"
)

// Result reports the outcome of one dispatch run.
type Result struct {
	Status RunStatus

	// Accepted is the number of records confirmed accepted this run.
	Accepted int

	// Remaining is the number of planned batches never submitted.
	Remaining int

	// Errors holds the distinct submission failure messages.
	Errors []string

	// Failures is the total failure count, duplicates included.
	Failures int
}

// =============================================================================
// Dispatcher
// =============================================================================

// Dispatcher drives a plan to completion with a bounded pool of
// in-flight submissions. A single coordinating goroutine owns all
// dispatch state and is the only writer to the cache for the lifetime
// of a run, so the cache needs no locking.
type Dispatcher struct {
	client      ledger.Client
	cache       *cache.Cache
	parallelism int
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher writing progress into c.
func NewDispatcher(client ledger.Client, c *cache.Cache, parallelism int, logger *slog.Logger) *Dispatcher {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:      client,
		cache:       c,
		parallelism: parallelism,
		logger:      logger.With("component", "dispatcher"),
	}
}

// submission is one resolved batch outcome, owned by the coordinator.
type submission struct {
	batch plan.Batch
	err   error
}

// Run submits every batch in p to targetID and records acceptance in
// the cache.
//
// The coordinator blocks only on the next completion among in-flight
// submissions (a first-of-N wait over the results channel). After each
// completion it checks the cancel flag, and whenever more than half
// the pool has drained it flushes the cache and tops the pool back up.
// Flushing at the half-refill point bounds the work lost to a crash to
// about half a pool's worth of completed batches without paying for a
// flush on every completion.
//
// Batch submission failures do not stop the run; they are aggregated
// into the result. Cache flush failures abort immediately: continuing
// past a failed flush risks re-submitting accepted records on retry.
func (d *Dispatcher) Run(ctx context.Context, targetID string, p plan.Plan, cancel *CancelFlag) (Result, error) {
	queue := p.Batches()
	results := make(chan submission, d.parallelism)
	inFlight := 0

	launch := func(batch plan.Batch) {
		inFlight++
		go func() {
			err := d.client.AppendRecords(ctx, targetID, batch.StartIndex(), batch.Records)
			results <- submission{batch: batch, err: err}
		}()
	}

	d.logger.Info("dispatching plan",
		"batches", len(queue),
		"records", p.RecordCount(),
		"parallelism", d.parallelism,
	)

	n := min(len(queue), d.parallelism)
	for _, batch := range queue[:n] {
		launch(batch)
	}
	queue = queue[n:]

	agg := NewAggregator()
	accepted := 0
	cancelled := false

	for inFlight > 0 {
		res := <-results
		inFlight--

		if res.err != nil {
			agg.Add(res.err)
			d.logger.Warn("batch submission failed",
				"start_index", res.batch.StartIndex(),
				"records", len(res.batch.Records),
				"error", res.err,
			)
		} else {
			for _, idx := range res.batch.Indices() {
				if err := d.cache.MarkAccepted(idx); err != nil {
					return Result{}, fmt.Errorf("record accepted but not cacheable: %w", err)
				}
			}
			accepted += len(res.batch.Records)
			d.logger.Debug("batch accepted",
				"start_index", res.batch.StartIndex(),
				"records", len(res.batch.Records),
			)
		}

		if !cancelled && cancel.Requested() {
			cancelled = true
			d.logger.Info("cancellation requested, draining in-flight submissions",
				"in_flight", inFlight,
				"unscheduled", len(queue),
			)
		}

		if cancelled || len(queue) == 0 {
			continue
		}

		if inFlight <= d.parallelism/2 {
			if err := d.cache.Flush(); err != nil {
				return Result{}, fmt.Errorf("flush cache at refill: %w", err)
			}
			n := min(len(queue), d.parallelism-inFlight)
			for _, batch := range queue[:n] {
				launch(batch)
			}
			queue = queue[n:]
		}
	}

	// Final flush on every exit path: success, failure or cancellation.
	if err := d.cache.Flush(); err != nil {
		return Result{}, fmt.Errorf("flush cache: %w", err)
	}

	result := Result{
		Accepted:  accepted,
		Remaining: len(queue),
		Errors:    agg.Distinct(),
		Failures:  agg.Total(),
	}
	switch {
	case cancelled:
		result.Status = StatusCancelled
	case agg.Total() > 0:
		result.Status = StatusFailed
	default:
		result.Status = StatusCompleted
	}

	d.logger.Info("dispatch finished",
		"status", result.Status,
		"accepted", result.Accepted,
		"remaining_batches", result.Remaining,
		"failures", result.Failures,
	)
	return result, nil
}
