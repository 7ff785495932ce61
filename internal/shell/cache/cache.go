package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"inscribe/internal/core/plan"
)

// =============================================================================
// Document Types
// =============================================================================

// Target identifies the remote ledger target this manifest deploys
// into. Zero-valued until the first successful target creation.
type Target struct {
	ID        string `json:"id"`
	Authority string `json:"authority"`
}

// Item is one cached record with its acceptance state. AssetHash is
// the content address of the uploaded asset, used by the upload phase
// to skip unchanged assets on re-runs.
type Item struct {
	Name      string `json:"name"`
	URI       string `json:"content_uri"`
	AssetHash string `json:"asset_hash,omitempty"`
	Accepted  bool   `json:"accepted"`
}

// document is the on-disk layout. Items are keyed by decimal index so
// the file stays diffable and greppable by operators.
type document struct {
	Target Target           `json:"target"`
	Items  map[string]*Item `json:"items"`
}

// =============================================================================
// Cache
// =============================================================================

// Cache is the durable record store for one manifest deployment.
// During a deploy run it is mutated only by the dispatcher's
// coordinating goroutine, so it carries no internal locking.
type Cache struct {
	path string
	doc  document
}

// New creates an empty cache bound to path. Nothing is written until
// the first Flush.
func New(path string) *Cache {
	return &Cache{
		path: path,
		doc:  document{Items: make(map[string]*Item)},
	}
}

// Load reads the cache document from path.
func Load(path string) (*Cache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newError("Load", path, ErrCacheMissing)
		}
		return nil, newError("Load", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, newError("Load", path, fmt.Errorf("%w: %v", ErrBadFormat, err))
	}
	if doc.Items == nil {
		doc.Items = make(map[string]*Item)
	}

	return &Cache{path: path, doc: doc}, nil
}

// Path returns the cache file path.
func (c *Cache) Path() string {
	return c.path
}

// Count returns the number of cached items.
func (c *Cache) Count() int {
	return len(c.doc.Items)
}

// Target returns the persisted target identity.
func (c *Cache) Target() Target {
	return c.doc.Target
}

// HasTarget reports whether a ledger target has been created for this
// manifest yet.
func (c *Cache) HasTarget() bool {
	return c.doc.Target.ID != ""
}

// SetTarget records the identity of a freshly created ledger target.
func (c *Cache) SetTarget(id, authority string) {
	c.doc.Target = Target{ID: id, Authority: authority}
}

// Get returns the item at index.
func (c *Cache) Get(index uint32) (*Item, bool) {
	item, ok := c.doc.Items[key(index)]
	return item, ok
}

// Put inserts or replaces the item at index.
func (c *Cache) Put(index uint32, item Item) {
	c.doc.Items[key(index)] = &item
}

// MarkAccepted flags the record at index as durably accepted by the
// ledger. Acceptance is never revoked.
func (c *Cache) MarkAccepted(index uint32) error {
	item, ok := c.doc.Items[key(index)]
	if !ok {
		return newError("MarkAccepted", c.path, fmt.Errorf("%w: index %d", ErrNotFound, index))
	}
	item.Accepted = true
	return nil
}

// Accepted returns the number of items the ledger has accepted.
func (c *Cache) Accepted() int {
	count := 0
	for _, item := range c.doc.Items {
		if item.Accepted {
			count++
		}
	}
	return count
}

// Pending returns the number of items not yet accepted.
func (c *Cache) Pending() int {
	return c.Count() - c.Accepted()
}

// Items returns the cached items in ascending index order as the
// planner's input view. Density is not checked here; the planner
// reports gaps.
func (c *Cache) Items() ([]plan.Item, error) {
	indices := make([]int, 0, len(c.doc.Items))
	for k := range c.doc.Items {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 {
			return nil, newError("Items", c.path, fmt.Errorf("%w: item key %q", ErrBadFormat, k))
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	items := make([]plan.Item, 0, len(indices))
	for _, idx := range indices {
		entry := c.doc.Items[key(uint32(idx))]
		items = append(items, plan.Item{
			Index:    uint32(idx),
			Name:     entry.Name,
			URI:      entry.URI,
			Accepted: entry.Accepted,
		})
	}
	return items, nil
}

// Flush writes the document to disk. The write goes to a temp file in
// the same directory followed by a rename, so an interrupted flush
// never leaves a truncated cache behind.
func (c *Cache) Flush() error {
	data, err := json.MarshalIndent(c.doc, "", "  ")
	if err != nil {
		return newError("Flush", c.path, err)
	}

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".cache-*.tmp")
	if err != nil {
		return newError("Flush", c.path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return newError("Flush", c.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return newError("Flush", c.path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return newError("Flush", c.path, err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return newError("Flush", c.path, err)
	}
	return nil
}

func key(index uint32) string {
	return strconv.FormatUint(uint64(index), 10)
}
