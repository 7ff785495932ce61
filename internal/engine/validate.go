package engine

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"inscribe/internal/core/manifest"
)

// Validate checks every asset metadata file in dir against the ledger
// limits before anything is uploaded or deployed. Structural problems
// (unreadable dir, bad JSON, missing index) abort immediately;
// per-asset limit violations are collected so the operator sees all of
// them in one pass. Returns the number of assets checked.
func Validate(dir string) (int, error) {
	assets, err := DiscoverAssets(dir)
	if err != nil {
		return 0, err
	}

	var result *multierror.Error
	for _, asset := range assets {
		if err := manifest.CheckName(asset.Name); err != nil {
			result = multierror.Append(result, fmt.Errorf("asset %d (%s): %w", asset.Index, asset.Path, err))
		}
	}
	return len(assets), result.ErrorOrNil()
}
