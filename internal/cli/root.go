// Package cli implements the inscribe command surface. Commands stay
// thin: they load configuration and collaborators, then hand off to
// the engine.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"inscribe/internal/config"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	flagConfig    string
	flagCache     string
	flagLogLevel  string
	flagLogFormat string
)

// NewRootCmd builds the inscribe command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "inscribe",
		Short:         "Deploy an ordered record manifest onto an append-only ledger",
		Long:          "inscribe uploads asset metadata to a blob gateway and deploys the\nresulting record manifest onto a remote ledger target in bounded\nconcurrent batches. Interrupted runs resume from the local cache.",
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "inscribe.yaml", "path to config file")
	root.PersistentFlags().StringVar(&flagCache, "cache", "", "path to the cache file (overrides config)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: text or json (overrides config)")

	root.AddCommand(
		newInitCmd(),
		newValidateCmd(),
		newUploadCmd(),
		newDeployCmd(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), err)
		return 1
	}
	return 0
}

// loadConfig loads the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagCache != "" {
		cfg.Cache = flagCache
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.Log.Format = flagLogFormat
	}
	return cfg, nil
}

// setupLogger creates a logger with the configured level and format.
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// report prints an operator-facing progress line.
func report(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}
