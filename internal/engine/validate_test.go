package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Asset Discovery Tests
// =============================================================================

func TestDiscoverAssets_OrderedAndParsed(t *testing.T) {
	dir := writeAssets(t, 5)
	// Non-asset files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "preview.json"), []byte("{}"), 0o644))

	assets, err := DiscoverAssets(dir)

	require.NoError(t, err)
	require.Len(t, assets, 5)
	for i, a := range assets {
		assert.Equal(t, uint32(i), a.Index)
		assert.Equal(t, fmt.Sprintf("item %d", i), a.Name)
	}
}

func TestDiscoverAssets_MissingIndex(t *testing.T) {
	dir := writeAssets(t, 4)
	require.NoError(t, os.Remove(filepath.Join(dir, "2.json")))

	_, err := DiscoverAssets(dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing index 2")
}

func TestDiscoverAssets_EmptyDir(t *testing.T) {
	_, err := DiscoverAssets(t.TempDir())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no asset metadata files")
}

func TestDiscoverAssets_BadJSON(t *testing.T) {
	dir := writeAssets(t, 2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.json"), []byte("{broken"), 0o644))

	_, err := DiscoverAssets(dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse asset")
}

// =============================================================================
// Validate Tests
// =============================================================================

func TestValidate_CleanAssets(t *testing.T) {
	dir := writeAssets(t, 3)

	count, err := Validate(dir)

	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	dir := writeAssets(t, 4)
	long := fmt.Sprintf(`{"name": %q}`, strings.Repeat("n", 40))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.json"), []byte(long), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "3.json"), []byte(`{"name": ""}`), 0o644))

	count, err := Validate(dir)

	assert.Equal(t, 4, count)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asset 1")
	assert.Contains(t, err.Error(), "name too long")
	assert.Contains(t, err.Error(), "asset 3")
	assert.Contains(t, err.Error(), "name is empty")
}
