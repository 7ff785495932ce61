package cli

import (
	"fmt"
	"os"

	"inscribe/internal/config"
	"inscribe/internal/shell/ledger"
)

// writeStarterConfig writes the config template, refusing to clobber
// an existing file.
func writeStarterConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	starter, err := config.Starter()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, starter, 0o644); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return nil
}

// ensureKeypair generates a keypair file if none exists. Returns true
// when a new keypair was created.
func ensureKeypair(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	keypair, err := ledger.Generate()
	if err != nil {
		return false, err
	}
	if err := keypair.Save(path); err != nil {
		return false, err
	}
	return true, nil
}
