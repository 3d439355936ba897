package sui

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
// Reads are retried with exponential backoff; transaction execution is not.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
	observe     func(method string, d time.Duration, err error)
}

var _ RPCClient = (*HTTPClient)(nil)

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for read calls.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithObserver registers a callback invoked once per call with its latency.
func WithObserver(fn func(method string, d time.Duration, err error)) ClientOption {
	return func(c *HTTPClient) {
		c.observe = fn
	}
}

// NewHTTPClient creates a new Sui RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

func (c *HTTPClient) call(ctx context.Context, method string, params []any, result any) error {
	return c.do(ctx, method, params, result, c.maxRetries)
}

// callOnce performs a single attempt. Used for calls that move funds.
func (c *HTTPClient) callOnce(ctx context.Context, method string, params []any, result any) error {
	return c.do(ctx, method, params, result, 0)
}

func (c *HTTPClient) do(ctx context.Context, method string, params []any, result any, retries int) (err error) {
	if c.observe != nil {
		start := time.Now()
		defer func() { c.observe(method, time.Since(start), err) }()
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		// RPC errors are not retried
		if rpcResp.Error != nil {
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	}

	if retries == 0 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

var objectOptions = map[string]bool{
	"showType":    true,
	"showOwner":   true,
	"showContent": true,
}

// GetObject retrieves an object by id.
func (c *HTTPClient) GetObject(ctx context.Context, id string) (*Object, error) {
	var result objectResponse
	if err := c.call(ctx, "sui_getObject", []any{id, objectOptions}, &result); err != nil {
		return nil, err
	}
	obj, err := result.toObject()
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", id, err)
	}
	return obj, nil
}

// MultiGetObjects retrieves objects in request order.
func (c *HTTPClient) MultiGetObjects(ctx context.Context, ids []string) ([]*Object, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var result []objectResponse
	if err := c.call(ctx, "sui_multiGetObjects", []any{ids, objectOptions}, &result); err != nil {
		return nil, err
	}
	objs := make([]*Object, len(result))
	for i, r := range result {
		obj, err := r.toObject()
		if errors.Is(err, ErrObjectNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
		objs[i] = obj
	}
	return objs, nil
}

// GetOwnedObjects lists objects owned by an address.
func (c *HTTPClient) GetOwnedObjects(ctx context.Context, owner string, filter *ObjectFilter, cursor string, limit int) (*ObjectPage, error) {
	query := map[string]any{"options": objectOptions}
	if f := filter.toJSON(); f != nil {
		query["filter"] = f
	}
	var cur any
	if cursor != "" {
		cur = cursor
	}
	var lim any
	if limit > 0 {
		lim = limit
	}

	var result ownedObjectsResult
	if err := c.call(ctx, "suix_getOwnedObjects", []any{owner, query, cur, lim}, &result); err != nil {
		return nil, err
	}

	page := &ObjectPage{HasNextPage: result.HasNextPage}
	if result.NextCursor != nil {
		page.NextCursor = *result.NextCursor
	}
	for _, r := range result.Data {
		obj, err := r.toObject()
		if errors.Is(err, ErrObjectNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		page.Data = append(page.Data, obj)
	}
	return page, nil
}

// QueryEvents lists events matching the filter.
func (c *HTTPClient) QueryEvents(ctx context.Context, filter EventFilter, cursor *EventID, limit int, descending bool) (*EventPage, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	var result eventsResult
	if err := c.call(ctx, "suix_queryEvents", []any{filter, cursor, lim, descending}, &result); err != nil {
		return nil, err
	}
	return &EventPage{
		Data:        result.Data,
		NextCursor:  result.NextCursor,
		HasNextPage: result.HasNextPage,
	}, nil
}

// GetDynamicFieldObject retrieves a dynamic field of a parent object.
func (c *HTTPClient) GetDynamicFieldObject(ctx context.Context, parentID string, name DynamicFieldName) (*Object, error) {
	var result objectResponse
	if err := c.call(ctx, "suix_getDynamicFieldObject", []any{parentID, name}, &result); err != nil {
		return nil, err
	}
	return result.toObject()
}

// GetCoins lists coins of a type owned by an address.
func (c *HTTPClient) GetCoins(ctx context.Context, owner, coinType, cursor string, limit int) (*CoinPage, error) {
	var cur, lim any
	if cursor != "" {
		cur = cursor
	}
	if limit > 0 {
		lim = limit
	}
	var page CoinPage
	if err := c.call(ctx, "suix_getCoins", []any{owner, coinType, cur, lim}, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetReferenceGasPrice returns the reference gas price in MIST.
func (c *HTTPClient) GetReferenceGasPrice(ctx context.Context) (uint64, error) {
	var price U64
	if err := c.call(ctx, "suix_getReferenceGasPrice", nil, &price); err != nil {
		return 0, err
	}
	return uint64(price), nil
}

// ExecuteTransactionBlock submits signed transaction bytes and waits for
// local execution. It makes exactly one attempt.
func (c *HTTPClient) ExecuteTransactionBlock(ctx context.Context, txBytes []byte, signatures []string) (*ExecuteResult, error) {
	params := []any{
		base64.StdEncoding.EncodeToString(txBytes),
		signatures,
		map[string]bool{"showEffects": true, "showObjectChanges": true},
		"WaitForLocalExecution",
	}
	var result executeResult
	if err := c.callOnce(ctx, "sui_executeTransactionBlock", params, &result); err != nil {
		return nil, err
	}
	out := &ExecuteResult{
		Digest:        result.Digest,
		ObjectChanges: result.ObjectChanges,
	}
	if result.Effects != nil {
		out.Status = result.Effects.Status.Status
		out.Error = result.Effects.Status.Error
	}
	return out, nil
}

// Raw RPC shapes.

type objectResponse struct {
	Data  *objectData  `json:"data"`
	Error *objectError `json:"error"`
}

type objectError struct {
	Code     string `json:"code"`
	ObjectID string `json:"object_id"`
}

type objectData struct {
	ObjectID string          `json:"objectId"`
	Version  U64             `json:"version"`
	Digest   string          `json:"digest"`
	Type     string          `json:"type"`
	Owner    json.RawMessage `json:"owner"`
	Content  *objectContent  `json:"content"`
}

type objectContent struct {
	DataType string                     `json:"dataType"`
	Type     string                     `json:"type"`
	Fields   map[string]json.RawMessage `json:"fields"`
}

func (r objectResponse) toObject() (*Object, error) {
	if r.Error != nil {
		if r.Error.Code == "notExists" || r.Error.Code == "deleted" {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("object error %s", r.Error.Code)
	}
	if r.Data == nil {
		return nil, ErrObjectNotFound
	}
	obj := &Object{
		ObjectID: r.Data.ObjectID,
		Version:  uint64(r.Data.Version),
		Digest:   r.Data.Digest,
		Type:     r.Data.Type,
	}
	if r.Data.Content != nil {
		obj.Fields = r.Data.Content.Fields
		if obj.Type == "" {
			obj.Type = r.Data.Content.Type
		}
	}
	if len(r.Data.Owner) > 0 {
		owner, err := parseOwner(r.Data.Owner)
		if err != nil {
			return nil, err
		}
		obj.Owner = owner
	}
	return obj, nil
}

func parseOwner(raw json.RawMessage) (Owner, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return Owner{Kind: OwnerKind(s)}, nil
	}
	var m struct {
		AddressOwner *string `json:"AddressOwner"`
		ObjectOwner  *string `json:"ObjectOwner"`
		Shared       *struct {
			InitialSharedVersion U64 `json:"initial_shared_version"`
		} `json:"Shared"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return Owner{}, fmt.Errorf("parse owner: %w", err)
	}
	switch {
	case m.AddressOwner != nil:
		return Owner{Kind: OwnerAddress, Address: *m.AddressOwner}, nil
	case m.ObjectOwner != nil:
		return Owner{Kind: OwnerObject, Address: *m.ObjectOwner}, nil
	case m.Shared != nil:
		return Owner{Kind: OwnerShared, InitialSharedVersion: uint64(m.Shared.InitialSharedVersion)}, nil
	}
	return Owner{}, fmt.Errorf("unknown owner %s", string(raw))
}

type ownedObjectsResult struct {
	Data        []objectResponse `json:"data"`
	NextCursor  *string          `json:"nextCursor"`
	HasNextPage bool             `json:"hasNextPage"`
}

type eventsResult struct {
	Data        []Event  `json:"data"`
	NextCursor  *EventID `json:"nextCursor"`
	HasNextPage bool     `json:"hasNextPage"`
}

type executeResult struct {
	Digest  string `json:"digest"`
	Effects *struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
	} `json:"effects"`
	ObjectChanges []ObjectChange `json:"objectChanges"`
}
