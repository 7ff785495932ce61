package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// Asset is one metadata file discovered in the assets directory. The
// file name carries the record index; the JSON body carries the record
// name and whatever extra metadata the operator wants stored.
type Asset struct {
	Index uint32
	Path  string
	Name  string
	Raw   []byte
}

type assetMetadata struct {
	Name string `json:"name"`
}

var assetFilePattern = regexp.MustCompile(`^(\d+)\.json$`)

// DiscoverAssets reads every `<index>.json` file in dir, in index
// order. The set must be dense: a missing index is an error, because
// the ledger cannot leave gaps.
func DiscoverAssets(dir string) ([]Asset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read assets dir %s: %w", dir, err)
	}

	var assets []Asset
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := assetFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		idx, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("asset %s: index out of range", entry.Name())
		}

		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read asset %s: %w", path, err)
		}

		var meta assetMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("parse asset %s: %w", path, err)
		}

		assets = append(assets, Asset{
			Index: uint32(idx),
			Path:  path,
			Name:  meta.Name,
			Raw:   raw,
		})
	}

	if len(assets) == 0 {
		return nil, fmt.Errorf("no asset metadata files found in %s", dir)
	}

	sort.Slice(assets, func(i, j int) bool { return assets[i].Index < assets[j].Index })
	for i, a := range assets {
		if a.Index != uint32(i) {
			return nil, fmt.Errorf("assets are not dense: missing index %d", i)
		}
	}
	return assets, nil
}
