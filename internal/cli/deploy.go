package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"inscribe/internal/engine"
	"inscribe/internal/shell/cache"
	"inscribe/internal/shell/ledger"
)

func newDeployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Deploy cached records onto the ledger target",
		Long:  "Creates the ledger target on the first run, then appends every\nrecord not yet accepted, in bounded concurrent batches. Safe to\nre-run after failures or interrupts: accepted records are skipped.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg)

			keypair, err := ledger.LoadKeypair(cfg.Keypair)
			if err != nil {
				return err
			}

			store, err := cache.Load(cfg.Cache)
			if err != nil {
				if errors.Is(err, cache.ErrCacheMissing) {
					return fmt.Errorf("%w: run 'inscribe upload' first", err)
				}
				return err
			}

			client := ledger.NewRPCClient(ledger.Config{
				Endpoint: cfg.Endpoint,
				Timeout:  cfg.Deploy.Timeout,
			}, keypair, logger)

			// Interrupts request cooperative cancellation: in-flight
			// batches drain, nothing new starts.
			var cancel engine.CancelFlag
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)
			go func() {
				<-sigs
				report("%s", color.YellowString("Interrupt received, finishing in-flight batches..."))
				cancel.Cancel()
			}()

			result, err := engine.Deploy(context.Background(), engine.DeployParams{
				Cache:       store,
				Client:      client,
				Keypair:     keypair,
				Count:       cfg.Manifest.Count,
				Label:       cfg.Manifest.Label,
				Sealed:      cfg.Manifest.Sealed,
				Parallelism: cfg.Deploy.Parallelism,
				Cancel:      &cancel,
				Logger:      logger,
				Report:      report,
			})
			if err != nil {
				return err
			}
			return renderResult(result)
		},
	}
}

// renderResult turns the run outcome into operator output and the
// process exit status.
func renderResult(result engine.Result) error {
	switch result.Status {
	case engine.StatusCompleted:
		report("%s %d record(s) accepted.", color.GreenString("Deploy successful:"), result.Accepted)
		return nil

	case engine.StatusCancelled:
		report("%s %d record(s) accepted, %d batch(es) not submitted.",
			color.YellowString("Deploy aborted:"), result.Accepted, result.Remaining)
		return errors.New("deploy was cancelled before completion, re-run the same command to resume")

	default:
		report("%s %d failure(s), %d distinct:", color.RedString("Deploy failed:"), result.Failures, len(result.Errors))
		for _, msg := range result.Errors {
			report("  %s %s", color.New(color.Faint).Sprint("=>"), msg)
		}
		return fmt.Errorf("%d batch(es) were not deployed, re-run the same command to resume", result.Failures+result.Remaining)
	}
}
