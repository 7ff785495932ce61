package cli

import (
	"context"
	"errors"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"inscribe/internal/engine"
	"inscribe/internal/shell/cache"
	"inscribe/internal/shell/storage"
)

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Upload asset metadata to the blob gateway and build the cache",
		Long:  "Reads <index>.json files from the assets directory, uploads new or\nchanged ones to the blob gateway and records their URIs in the\ncache. Unchanged assets are skipped, so re-running is cheap.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg)

			if cfg.Storage.Gateway == "" {
				return errors.New("storage.gateway is not configured")
			}

			store, err := cache.Load(cfg.Cache)
			if err != nil {
				if !errors.Is(err, cache.ErrCacheMissing) {
					return err
				}
				store = cache.New(cfg.Cache)
			}

			uploader := storage.NewUploader(storage.Config{
				Gateway: cfg.Storage.Gateway,
				Timeout: cfg.Storage.Timeout,
			}, logger)

			summary, err := engine.Upload(context.Background(), engine.UploadParams{
				Cache:       store,
				Store:       uploader,
				AssetsDir:   cfg.Manifest.AssetsDir,
				Concurrency: cfg.Storage.Concurrency,
				Logger:      logger,
				Report:      report,
			})
			if err != nil {
				return err
			}

			report("%s cache written to %s", color.GreenString("Upload successful:"), store.Path())
			if summary.Uploaded > 0 {
				report("Run 'inscribe deploy' to write %d pending record(s) to the ledger.", store.Pending())
			}
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate asset metadata against the ledger limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			count, err := engine.Validate(cfg.Manifest.AssetsDir)
			if err != nil {
				return err
			}

			report("%s %d asset(s) checked.", color.GreenString("Validation successful:"), count)
			return nil
		},
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file and generate a keypair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := writeStarterConfig(flagConfig); err != nil {
				return err
			}
			report("Wrote %s", flagConfig)

			created, err := ensureKeypair("./id.json")
			if err != nil {
				return err
			}
			if created {
				report("Generated keypair at ./id.json")
			} else {
				report("Keypair ./id.json already exists, keeping it.")
			}
			report("%s edit %s, put asset metadata in ./assets, then run 'inscribe upload'.", color.GreenString("Done:"), flagConfig)
			return nil
		},
	}
}
