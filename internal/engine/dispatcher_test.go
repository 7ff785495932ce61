package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inscribe/internal/core/manifest"
	"inscribe/internal/core/plan"
	"inscribe/internal/shell/cache"
	"inscribe/internal/shell/ledger"
)

// =============================================================================
// Fake Ledger Client
// =============================================================================

type appendCall struct {
	targetID   string
	startIndex uint32
	records    []manifest.Record
}

// fakeClient is an in-memory ledger. failAt maps a batch start index
// to the error its submission returns. gate, when non-nil, blocks
// every append until the channel is closed.
type fakeClient struct {
	mu       sync.Mutex
	creates  []ledger.TargetConfig
	appends  []appendCall
	failAt   map[uint32]error
	gate     chan struct{}
	started  chan struct{} // receives one tick per append started
	targetID string
}

func newFakeClient() *fakeClient {
	return &fakeClient{failAt: make(map[uint32]error), targetID: "tgt-test"}
}

func (f *fakeClient) CreateTarget(ctx context.Context, cfg ledger.TargetConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, cfg)
	return f.targetID, nil
}

func (f *fakeClient) AppendRecords(ctx context.Context, targetID string, startIndex uint32, records []manifest.Record) error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failAt[startIndex]; ok {
		return err
	}
	f.appends = append(f.appends, appendCall{targetID: targetID, startIndex: startIndex, records: records})
	return nil
}

func (f *fakeClient) TargetInfo(ctx context.Context, targetID string) (*ledger.TargetInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, a := range f.appends {
		count += len(a.records)
	}
	return &ledger.TargetInfo{ID: targetID, RecordCount: uint32(count)}, nil
}

func (f *fakeClient) appendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appends)
}

// =============================================================================
// Fixtures
// =============================================================================

// seededCache builds a dense cache of n unaccepted items in a temp dir.
func seededCache(t *testing.T, n int) *cache.Cache {
	t.Helper()
	c := cache.New(filepath.Join(t.TempDir(), "cache.json"))
	for i := 0; i < n; i++ {
		c.Put(uint32(i), cache.Item{
			Name: fmt.Sprintf("item %d", i),
			URI:  fmt.Sprintf("https://blobs.example/%d", i),
		})
	}
	return c
}

func buildPlan(t *testing.T, c *cache.Cache) plan.Plan {
	t.Helper()
	items, err := c.Items()
	require.NoError(t, err)
	p, err := plan.Build(items)
	require.NoError(t, err)
	return p
}

// =============================================================================
// Dispatcher Tests
// =============================================================================

func TestRun_CompletesAndPersists(t *testing.T) {
	// 40 items chunk into 3 batches (17+17+6); parallelism 2 forces
	// at least one refill cycle.
	c := seededCache(t, 40)
	client := newFakeClient()
	d := NewDispatcher(client, c, 2, nil)

	result, err := d.Run(context.Background(), "tgt-test", buildPlan(t, c), nil)

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 40, result.Accepted)
	assert.Equal(t, 0, result.Remaining)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 3, client.appendCount())

	// The final flush must leave a fully accepted cache on disk.
	loaded, err := cache.Load(c.Path())
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Pending())
}

func TestRun_EmptyPlan(t *testing.T) {
	c := seededCache(t, 3)
	client := newFakeClient()
	d := NewDispatcher(client, c, 4, nil)

	result, err := d.Run(context.Background(), "tgt-test", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 0, result.Accepted)
	assert.Equal(t, 0, client.appendCount())
}

func TestRun_PartialFailureDoesNotStopOtherBatches(t *testing.T) {
	// 10 batches of 17 tiny records each; the third batch fails.
	c := seededCache(t, 170)
	p := buildPlan(t, c)
	require.Len(t, p, 10)

	client := newFakeClient()
	client.failAt[p[2].StartIndex()] = &ledger.RemoteError{Code: 7, Message: "insufficient funds"}
	d := NewDispatcher(client, c, 4, nil)

	result, err := d.Run(context.Background(), "tgt-test", p, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 9*17, result.Accepted)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, 1, result.Failures)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "insufficient funds")

	// Progress from the nine successful batches is persisted; the
	// failed batch stays pending for the next run.
	loaded, err := cache.Load(c.Path())
	require.NoError(t, err)
	assert.Equal(t, 17, loaded.Pending())
	for _, idx := range p[2].Indices() {
		item, ok := loaded.Get(idx)
		require.True(t, ok)
		assert.False(t, item.Accepted)
	}
}

func TestRun_DuplicateErrorsDeduplicated(t *testing.T) {
	c := seededCache(t, 170)
	p := buildPlan(t, c)
	client := newFakeClient()
	for _, b := range p.Batches() {
		client.failAt[b.StartIndex()] = &ledger.RemoteError{Code: 7, Message: "insufficient funds"}
	}
	d := NewDispatcher(client, c, 4, nil)

	result, err := d.Run(context.Background(), "tgt-test", p, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, len(p), result.Failures)
	assert.Len(t, result.Errors, 1)
}

func TestRun_CancellationDrainsInFlightOnly(t *testing.T) {
	// 10 batches, pool of 2. Cancel while the first two submissions
	// are in flight: exactly those two finish, nothing else starts.
	c := seededCache(t, 170)
	p := buildPlan(t, c)
	require.Len(t, p, 10)

	client := newFakeClient()
	client.gate = make(chan struct{})
	client.started = make(chan struct{}, len(p))
	d := NewDispatcher(client, c, 2, nil)

	var cancel CancelFlag
	done := make(chan struct{})
	var result Result
	var runErr error
	go func() {
		defer close(done)
		result, runErr = d.Run(context.Background(), "tgt-test", p, &cancel)
	}()

	// Wait for both pool slots to be in flight, then cancel and
	// release them.
	<-client.started
	<-client.started
	cancel.Cancel()
	close(client.gate)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not drain after cancellation")
	}

	require.NoError(t, runErr)
	assert.Equal(t, StatusCancelled, result.Status)
	assert.Equal(t, 2*17, result.Accepted)
	assert.Equal(t, 8, result.Remaining)
	assert.Equal(t, 2, client.appendCount())

	loaded, err := cache.Load(c.Path())
	require.NoError(t, err)
	assert.Equal(t, 2*17, loaded.Accepted())
}

func TestRun_FlushFailureAborts(t *testing.T) {
	// A cache path inside a missing directory makes every flush fail.
	c := cache.New(filepath.Join(t.TempDir(), "missing", "cache.json"))
	for i := 0; i < 5; i++ {
		c.Put(uint32(i), cache.Item{Name: "x", URI: "https://blobs.example/x"})
	}
	client := newFakeClient()
	d := NewDispatcher(client, c, 2, nil)

	_, err := d.Run(context.Background(), "tgt-test", buildPlan(t, c), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush cache")
}

func TestRun_AcceptanceIsMonotonic(t *testing.T) {
	// Records accepted in an earlier run stay accepted after a later
	// run that fails.
	c := seededCache(t, 34)
	p := buildPlan(t, c)
	require.Len(t, p, 2)

	client := newFakeClient()
	d := NewDispatcher(client, c, 2, nil)
	result, err := d.Run(context.Background(), "tgt-test", p, nil)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)

	before, err := cache.Load(c.Path())
	require.NoError(t, err)
	require.Equal(t, 0, before.Pending())

	// Second run over a re-planned (empty) manifest must not touch
	// acceptance state.
	result, err = d.Run(context.Background(), "tgt-test", buildPlan(t, c), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)

	after, err := cache.Load(c.Path())
	require.NoError(t, err)
	assert.Equal(t, 0, after.Pending())
}
