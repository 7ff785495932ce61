package ledger

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inscribe/internal/core/manifest"
)

func testKeypair(t *testing.T) *Keypair {
	t.Helper()
	kp, err := Generate()
	require.NoError(t, err)
	return kp
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*RPCClient, *Keypair) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	kp := testKeypair(t)
	return NewRPCClient(Config{Endpoint: srv.URL}, kp, nil), kp
}

func rpcResult(w http.ResponseWriter, result any) {
	raw, _ := json.Marshal(result)
	json.NewEncoder(w).Encode(map[string]any{"result": json.RawMessage(raw)})
}

// =============================================================================
// Keypair Tests
// =============================================================================

func TestKeypair_SaveLoadRoundtrip(t *testing.T) {
	kp := testKeypair(t)
	path := t.TempDir() + "/id.json"
	require.NoError(t, kp.Save(path))

	loaded, err := LoadKeypair(path)
	require.NoError(t, err)
	assert.Equal(t, kp.Authority(), loaded.Authority())
}

func TestLoadKeypair_WrongLength(t *testing.T) {
	path := t.TempDir() + "/id.json"
	data, err := json.Marshal([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = LoadKeypair(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 64 key bytes")
}

// =============================================================================
// RPC Tests
// =============================================================================

func TestCreateTarget(t *testing.T) {
	var gotBody []byte
	var gotAuthority, gotSignature string

	client, kp := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotAuthority = r.Header.Get("X-Ledger-Authority")
		gotSignature = r.Header.Get("X-Ledger-Signature")
		rpcResult(w, map[string]string{"target_id": "tgt-42"})
	})

	id, err := client.CreateTarget(context.Background(), TargetConfig{
		Authority: kp.Authority(),
		Capacity:  100,
	})
	require.NoError(t, err)
	assert.Equal(t, "tgt-42", id)

	// The request must be signed by the operator keypair.
	pub, err := hex.DecodeString(gotAuthority)
	require.NoError(t, err)
	sig, err := hex.DecodeString(gotSignature)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub), gotBody, sig))

	var req struct {
		JSONRPC string `json:"jsonrpc"`
		ID      string `json:"id"`
		Method  string `json:"method"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &req))
	assert.Equal(t, "2.0", req.JSONRPC)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, "target.create", req.Method)
}

func TestAppendRecords_WireFormat(t *testing.T) {
	var got appendParams

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "target.append", req.Method)
		json.Unmarshal(req.Params, &got)
		rpcResult(w, map[string]int{"appended": 2})
	})

	records := []manifest.Record{
		{Index: 5, Name: "item 5", URI: "https://blobs.example/5"},
		{Index: 6, Name: "item 6", URI: "https://blobs.example/6"},
	}
	err := client.AppendRecords(context.Background(), "tgt-42", 5, records)

	require.NoError(t, err)
	assert.Equal(t, "tgt-42", got.TargetID)
	assert.Equal(t, uint32(5), got.StartIndex)
	require.Len(t, got.Records, 2)
	assert.Equal(t, "item 5", got.Records[0].Name)
	assert.Equal(t, "https://blobs.example/6", got.Records[1].URI)
}

func TestCall_RemoteErrorNotRetried(t *testing.T) {
	var calls atomic.Int32

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 7, "message": "insufficient funds"},
		})
	})

	err := client.AppendRecords(context.Background(), "tgt-42", 0, []manifest.Record{
		{Index: 0, Name: "a", URI: "https://blobs.example/a"},
	})

	require.Error(t, err)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 7, remote.Code)
	assert.Equal(t, "insufficient funds", remote.Message)
	assert.Equal(t, int32(1), calls.Load(), "ledger rejections must not be retried")
}

func TestCall_TransientErrorRetried(t *testing.T) {
	var calls atomic.Int32

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "gateway busy", http.StatusServiceUnavailable)
			return
		}
		rpcResult(w, map[string]string{"target_id": "tgt-1"})
	})

	id, err := client.CreateTarget(context.Background(), TargetConfig{Capacity: 1})

	require.NoError(t, err)
	assert.Equal(t, "tgt-1", id)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCall_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad signature", http.StatusUnauthorized)
	})

	_, err := client.TargetInfo(context.Background(), "tgt-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestTargetInfo(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rpcResult(w, TargetInfo{
			ID:          "tgt-9",
			Capacity:    50,
			RecordCount: 12,
			Sealed:      false,
		})
	})

	info, err := client.TargetInfo(context.Background(), "tgt-9")

	require.NoError(t, err)
	assert.Equal(t, "tgt-9", info.ID)
	assert.Equal(t, uint32(50), info.Capacity)
	assert.Equal(t, uint32(12), info.RecordCount)
}
