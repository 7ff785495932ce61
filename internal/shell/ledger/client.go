// Package ledger talks to the remote ledger service: an append-only,
// capacity-constrained program that accepts records in small batches
// written at contiguous index offsets. The package owns the transport
// only; batch planning and scheduling live in the engine.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"

	"inscribe/internal/core/manifest"
)

// =============================================================================
// Client Interface
// =============================================================================

// TargetConfig holds the settings for creating a new ledger target.
type TargetConfig struct {
	Authority string `json:"authority"`
	Label     string `json:"label,omitempty"`
	Capacity  uint32 `json:"capacity"`
	Sealed    bool   `json:"sealed"`
}

// TargetInfo is the ledger's view of an existing target.
type TargetInfo struct {
	ID          string `json:"target_id"`
	Authority   string `json:"authority"`
	Capacity    uint32 `json:"capacity"`
	RecordCount uint32 `json:"record_count"`
	Sealed      bool   `json:"sealed"`
}

// Client is the remote target handle the deployment engine drives.
// AppendRecords is all-or-nothing: on error, none of the records in
// the call were accepted.
type Client interface {
	CreateTarget(ctx context.Context, cfg TargetConfig) (string, error)
	AppendRecords(ctx context.Context, targetID string, startIndex uint32, records []manifest.Record) error
	TargetInfo(ctx context.Context, targetID string) (*TargetInfo, error)
}

// RemoteError is a ledger-side rejection: validation failure,
// capacity exceeded, insufficient funds. Transport problems are
// reported as plain wrapped errors instead.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("ledger rejected request (code %d): %s", e.Code, e.Message)
}

// =============================================================================
// RPC Client
// =============================================================================

// Config holds RPC client configuration.
type Config struct {
	Endpoint string // Ledger RPC endpoint, e.g. "http://localhost:8899/rpc"
	Timeout  time.Duration
}

const (
	retryAttempts = 3
	retryDelay    = 500 * time.Millisecond
)

// RPCClient implements Client over JSON-RPC 2.0 on HTTP. Transport
// failures are retried a few times; appends are addressed at fixed
// indices so replaying an ambiguous failure cannot duplicate records.
// Ledger-side rejections are never retried.
type RPCClient struct {
	endpoint   string
	keypair    *Keypair
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRPCClient creates a ledger client signing with keypair.
func NewRPCClient(cfg Config, keypair *Keypair, logger *slog.Logger) *RPCClient {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &RPCClient{
		endpoint: cfg.Endpoint,
		keypair:  keypair,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "ledger_client"),
	}
}

// =============================================================================
// Operations
// =============================================================================

type createTargetParams struct {
	Config TargetConfig `json:"config"`
}

type createTargetResult struct {
	TargetID string `json:"target_id"`
}

// CreateTarget creates a new target and returns its identity.
func (c *RPCClient) CreateTarget(ctx context.Context, cfg TargetConfig) (string, error) {
	var result createTargetResult
	if err := c.call(ctx, "target.create", createTargetParams{Config: cfg}, &result); err != nil {
		return "", err
	}
	if result.TargetID == "" {
		return "", errors.New("ledger returned an empty target id")
	}
	return result.TargetID, nil
}

type wireRecord struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

type appendParams struct {
	TargetID   string       `json:"target_id"`
	StartIndex uint32       `json:"start_index"`
	Records    []wireRecord `json:"records"`
}

// AppendRecords writes a contiguous run of records starting at
// startIndex. The ledger accepts or rejects the whole batch.
func (c *RPCClient) AppendRecords(ctx context.Context, targetID string, startIndex uint32, records []manifest.Record) error {
	wire := make([]wireRecord, len(records))
	for i, r := range records {
		wire[i] = wireRecord{Name: r.Name, URI: r.URI}
	}

	params := appendParams{TargetID: targetID, StartIndex: startIndex, Records: wire}
	return c.call(ctx, "target.append", params, nil)
}

type targetInfoParams struct {
	TargetID string `json:"target_id"`
}

// TargetInfo reads back the state of an existing target.
func (c *RPCClient) TargetInfo(ctx context.Context, targetID string) (*TargetInfo, error) {
	var info TargetInfo
	if err := c.call(ctx, "target.info", targetInfoParams{TargetID: targetID}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// =============================================================================
// Transport
// =============================================================================

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call performs one signed JSON-RPC exchange, decoding the result into
// result when it is non-nil.
func (c *RPCClient) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	var raw json.RawMessage
	err = retry.Do(
		func() error {
			var callErr error
			raw, callErr = c.roundTrip(ctx, body)
			return callErr
		},
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying ledger call", "method", method, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	if result != nil {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// permanentError marks transport failures that retrying cannot fix,
// such as a malformed endpoint or a 4xx response.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// isTransient reports whether a failed round trip is worth retrying.
// Ledger rejections and permanent transport errors are not.
func isTransient(err error) bool {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return false
	}
	var perm *permanentError
	return !errors.As(err, &perm)
}

// roundTrip sends one HTTP request and decodes the RPC envelope.
func (c *RPCClient) roundTrip(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &permanentError{err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ledger-Authority", c.keypair.Authority())
	req.Header.Set("X-Ledger-Signature", c.keypair.Sign(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, &permanentError{err: err}
		}
		return nil, err
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, &RemoteError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
		}
	}
	return rpcResp.Result, nil
}
