// Package e2e exercises the full inscribe pipeline against in-process
// fakes of the ledger service and the blob gateway.
package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"inscribe/internal/core/manifest"
)

// =============================================================================
// Fake Ledger Service
// =============================================================================

type ledgerRecord struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

type fakeTarget struct {
	authority string
	capacity  uint32
	sealed    bool
	records   []*ledgerRecord // indexed slots, nil until written
}

func (t *fakeTarget) written() int {
	count := 0
	for _, r := range t.records {
		if r != nil {
			count++
		}
	}
	return count
}

// fakeLedger is an in-memory ledger service speaking the inscribe RPC
// protocol. It enforces the per-batch ceilings and the capacity bound
// the real service would, so batch shapes are checked end to end.
type fakeLedger struct {
	mu      sync.Mutex
	targets map[string]*fakeTarget

	// failuresAt injects N rejections for appends starting at an index.
	failuresAt map[uint32]int

	appendCalls int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		targets:    make(map[string]*fakeTarget),
		failuresAt: make(map[uint32]int),
	}
}

func (l *fakeLedger) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(l.handle))
	t.Cleanup(srv.Close)
	return srv
}

func (l *fakeLedger) target(t *testing.T, id string) *fakeTarget {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	target, ok := l.targets[id]
	require.True(t, ok, "target %s does not exist on the ledger", id)
	return target
}

type rpcEnvelope struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (l *fakeLedger) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.Header.Get("X-Ledger-Authority") == "" || r.Header.Get("X-Ledger-Signature") == "" {
		http.Error(w, "unsigned request", http.StatusUnauthorized)
		return
	}

	var req rpcEnvelope
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch req.Method {
	case "target.create":
		l.create(w, req.Params)
	case "target.append":
		l.append(w, req.Params)
	case "target.info":
		l.info(w, req.Params)
	default:
		writeError(w, -32601, "method not found: "+req.Method)
	}
}

func (l *fakeLedger) create(w http.ResponseWriter, params json.RawMessage) {
	var p struct {
		Config struct {
			Authority string `json:"authority"`
			Capacity  uint32 `json:"capacity"`
			Sealed    bool   `json:"sealed"`
		} `json:"config"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		writeError(w, -32602, err.Error())
		return
	}

	id := "tgt-" + uuid.NewString()
	l.targets[id] = &fakeTarget{
		authority: p.Config.Authority,
		capacity:  p.Config.Capacity,
		sealed:    p.Config.Sealed,
		records:   make([]*ledgerRecord, p.Config.Capacity),
	}
	writeResult(w, map[string]string{"target_id": id})
}

func (l *fakeLedger) append(w http.ResponseWriter, params json.RawMessage) {
	var p struct {
		TargetID   string         `json:"target_id"`
		StartIndex uint32         `json:"start_index"`
		Records    []ledgerRecord `json:"records"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		writeError(w, -32602, err.Error())
		return
	}

	l.appendCalls++

	if n, ok := l.failuresAt[p.StartIndex]; ok && n > 0 {
		l.failuresAt[p.StartIndex] = n - 1
		writeError(w, 9, "target busy")
		return
	}

	target, ok := l.targets[p.TargetID]
	if !ok {
		writeError(w, 4, "unknown target "+p.TargetID)
		return
	}
	if len(p.Records) == 0 || len(p.Records) > manifest.MaxBatchRecords {
		writeError(w, 5, fmt.Sprintf("record count %d out of range", len(p.Records)))
		return
	}

	size := 0
	for _, rec := range p.Records {
		size += len(rec.Name) + len(rec.URI) + 8
	}
	if size > manifest.MaxBatchBytes {
		writeError(w, 5, fmt.Sprintf("payload %d exceeds %d bytes", size, manifest.MaxBatchBytes))
		return
	}
	if int(p.StartIndex)+len(p.Records) > int(target.capacity) {
		writeError(w, 6, "capacity exceeded")
		return
	}

	// All-or-nothing write at the index offset.
	for i := range p.Records {
		rec := p.Records[i]
		target.records[int(p.StartIndex)+i] = &rec
	}
	writeResult(w, map[string]int{"appended": len(p.Records)})
}

func (l *fakeLedger) info(w http.ResponseWriter, params json.RawMessage) {
	var p struct {
		TargetID string `json:"target_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		writeError(w, -32602, err.Error())
		return
	}
	target, ok := l.targets[p.TargetID]
	if !ok {
		writeError(w, 4, "unknown target "+p.TargetID)
		return
	}
	writeResult(w, map[string]any{
		"target_id":    p.TargetID,
		"authority":    target.authority,
		"capacity":     target.capacity,
		"record_count": target.written(),
		"sealed":       target.sealed,
	})
}

func writeResult(w http.ResponseWriter, result any) {
	raw, _ := json.Marshal(result)
	json.NewEncoder(w).Encode(map[string]any{"result": json.RawMessage(raw)})
}

func writeError(w http.ResponseWriter, code int, message string) {
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}

// =============================================================================
// Fake Blob Gateway
// =============================================================================

// fakeGateway stores PUT blobs in memory, keyed by request path.
type fakeGateway struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{blobs: make(map[string][]byte)}
}

func (g *fakeGateway) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		g.mu.Lock()
		g.blobs[r.URL.Path] = body
		g.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.blobs)
}

// =============================================================================
// Fixtures
// =============================================================================

// writeAssetFiles creates n dense metadata files in a fresh directory.
func writeAssetFiles(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		body := fmt.Sprintf(`{"name": "edition #%d", "series": "genesis"}`, i)
		path := filepath.Join(dir, fmt.Sprintf("%d.json", i))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return dir
}
