package engine

import (
	"context"
	"fmt"
	"log/slog"

	"inscribe/internal/core/manifest"
	"inscribe/internal/core/plan"
	"inscribe/internal/shell/cache"
	"inscribe/internal/shell/ledger"
)

// ReportFunc receives operator-facing progress lines. The CLI passes a
// styled printer; tests leave it nil.
type ReportFunc func(format string, args ...any)

func (f ReportFunc) printf(format string, args ...any) {
	if f != nil {
		f(format, args...)
	}
}

// DeployParams bundles the collaborators of one deploy run.
type DeployParams struct {
	Cache   *cache.Cache
	Client  ledger.Client
	Keypair *ledger.Keypair

	// Count is the expected manifest size from configuration. It must
	// match the cache; zero disables the check.
	Count int

	// Label is the human-readable target label used at creation.
	Label string

	// Sealed marks the target as sealed: the target is created but no
	// records are written, their content is revealed later.
	Sealed bool

	Parallelism int
	Cancel      *CancelFlag
	Logger      *slog.Logger
	Report      ReportFunc
}

// Deploy runs the full deployment pipeline: validate the cached
// manifest, create or reuse the ledger target, plan the remaining
// work and dispatch it.
//
// Failures before any submission (validation, planning, target
// creation) abort immediately. Submission failures are aggregated into
// the result instead; the persisted cache makes a re-run resume where
// this one stopped.
func Deploy(ctx context.Context, p DeployParams) (Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "deploy")

	if p.Cache.Count() == 0 {
		return Result{}, fmt.Errorf("%w: run 'inscribe upload' first", cache.ErrCacheEmpty)
	}

	items, err := p.Cache.Items()
	if err != nil {
		return Result{}, err
	}
	for _, item := range items {
		rec := manifest.Record{Index: item.Index, Name: item.Name, URI: item.URI}
		if err := manifest.CheckRecord(rec); err != nil {
			return Result{}, fmt.Errorf("cache validation: %w", err)
		}
	}

	if p.Count > 0 && p.Count != p.Cache.Count() {
		return Result{}, fmt.Errorf("configured manifest count (%d) does not match cache items (%d)", p.Count, p.Cache.Count())
	}

	targetID, err := ensureTarget(ctx, p, logger)
	if err != nil {
		return Result{}, err
	}
	p.Report.printf("Target ID: %s", targetID)

	if p.Sealed {
		p.Report.printf("Sealed manifest: target created, no records to write.")
		if err := p.Cache.Flush(); err != nil {
			return Result{}, fmt.Errorf("flush cache: %w", err)
		}
		return Result{Status: StatusCompleted}, nil
	}

	deployPlan, err := plan.Build(items)
	if err != nil {
		return Result{}, fmt.Errorf("plan manifest: %w", err)
	}

	if len(deployPlan) == 0 {
		p.Report.printf("All records already accepted, nothing to deploy.")
		if err := p.Cache.Flush(); err != nil {
			return Result{}, fmt.Errorf("flush cache: %w", err)
		}
		return Result{Status: StatusCompleted}, nil
	}

	p.Report.printf("Appending %d record(s) in %d batch(es)...", deployPlan.RecordCount(), len(deployPlan))

	dispatcher := NewDispatcher(p.Client, p.Cache, p.Parallelism, logger)
	return dispatcher.Run(ctx, targetID, deployPlan, p.Cancel)
}

// ensureTarget creates the ledger target on the first run and persists
// its identity before any record is submitted; later runs reuse it.
func ensureTarget(ctx context.Context, p DeployParams, logger *slog.Logger) (string, error) {
	if p.Cache.HasTarget() {
		target := p.Cache.Target()
		if target.Authority != p.Keypair.Authority() {
			return "", fmt.Errorf("keypair authority %s does not match target authority %s", p.Keypair.Authority(), target.Authority)
		}
		p.Report.printf("Loading existing target...")
		return target.ID, nil
	}

	p.Report.printf("Creating target...")
	targetID, err := p.Client.CreateTarget(ctx, ledger.TargetConfig{
		Authority: p.Keypair.Authority(),
		Label:     p.Label,
		Capacity:  uint32(p.Cache.Count()),
		Sealed:    p.Sealed,
	})
	if err != nil {
		return "", fmt.Errorf("create target: %w", err)
	}
	logger.Info("target created", "target_id", targetID)

	p.Cache.SetTarget(targetID, p.Keypair.Authority())
	if err := p.Cache.Flush(); err != nil {
		return "", fmt.Errorf("persist target identity: %w", err)
	}
	return targetID, nil
}
