// Package stub provides an in-memory sui.RPCClient for tests and local runs.
package stub

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"imaigine-lab/internal/ptb"
	"imaigine-lab/internal/sui"
)

// RPCClient implements sui.RPCClient over maps.
type RPCClient struct {
	mu sync.Mutex

	objects       map[string]*sui.Object
	events        []sui.Event
	dynamicFields map[string]*sui.Object
	coins         map[string][]sui.Coin

	GasPrice uint64
	// ExecuteFunc decides the outcome of ExecuteTransactionBlock. The default
	// succeeds with a fixed digest.
	ExecuteFunc func(txBytes []byte, signatures []string) (*sui.ExecuteResult, error)
	executed    [][]byte
}

var _ sui.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates an empty stub.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		objects:       make(map[string]*sui.Object),
		dynamicFields: make(map[string]*sui.Object),
		coins:         make(map[string][]sui.Coin),
		GasPrice:      1000,
	}
}

func key(id string) string {
	n, err := ptb.NormalizeAddress(id)
	if err != nil {
		return id
	}
	return n
}

// PutObject stores or replaces an object.
func (c *RPCClient) PutObject(obj *sui.Object) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *obj
	c.objects[key(obj.ObjectID)] = &cp
}

// AddEvent appends an event.
func (c *RPCClient) AddEvent(ev sui.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// PutDynamicField stores the object behind parent's dynamic field name.
func (c *RPCClient) PutDynamicField(parentID string, name sui.DynamicFieldName, obj *sui.Object) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *obj
	c.dynamicFields[fieldKey(parentID, name)] = &cp
}

// AddCoin gives owner a coin.
func (c *RPCClient) AddCoin(owner string, coin sui.Coin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coins[key(owner)] = append(c.coins[key(owner)], coin)
}

// Executed returns the transaction bytes submitted so far.
func (c *RPCClient) Executed() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.executed))
	copy(out, c.executed)
	return out
}

func fieldKey(parentID string, name sui.DynamicFieldName) string {
	v := fmt.Sprint(name.Value)
	if s, ok := name.Value.(string); ok && strings.HasPrefix(s, "0x") {
		v = key(s)
	}
	return key(parentID) + "/" + name.Type + "/" + v
}

// GetObject returns a stored object.
func (c *RPCClient) GetObject(_ context.Context, id string) (*sui.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[key(id)]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", id, sui.ErrObjectNotFound)
	}
	cp := *obj
	return &cp, nil
}

// MultiGetObjects returns stored objects in order; unknown ids are nil.
func (c *RPCClient) MultiGetObjects(_ context.Context, ids []string) ([]*sui.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*sui.Object, len(ids))
	for i, id := range ids {
		if obj, ok := c.objects[key(id)]; ok {
			cp := *obj
			out[i] = &cp
		}
	}
	return out, nil
}

// GetOwnedObjects returns every matching object in a single page.
func (c *RPCClient) GetOwnedObjects(_ context.Context, owner string, filter *sui.ObjectFilter, _ string, _ int) (*sui.ObjectPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	page := &sui.ObjectPage{}
	for _, obj := range c.sortedObjects() {
		if obj.Owner.Kind != sui.OwnerAddress || key(obj.Owner.Address) != key(owner) {
			continue
		}
		if filter != nil && filter.StructType != "" && !sameStruct(obj.Type, filter.StructType) {
			continue
		}
		if filter != nil && filter.MoveModule != nil && !inModule(obj.Type, *filter.MoveModule) {
			continue
		}
		cp := *obj
		page.Data = append(page.Data, &cp)
	}
	return page, nil
}

func (c *RPCClient) sortedObjects() []*sui.Object {
	out := make([]*sui.Object, 0, len(c.objects))
	for _, obj := range c.objects {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectID < out[j].ObjectID })
	return out
}

func sameStruct(typ, want string) bool {
	base := strings.SplitN(want, "<", 2)[0]
	parts := strings.SplitN(base, "::", 2)
	if len(parts) != 2 {
		return typ == want
	}
	return sui.TypeMatches(typ, parts[0], parts[1])
}

func inModule(typ string, m sui.MoveModule) bool {
	parts := strings.SplitN(typ, "::", 3)
	return len(parts) == 3 && key(parts[0]) == key(m.Package) && parts[1] == m.Module
}

// QueryEvents filters stored events by type, module or sender.
func (c *RPCClient) QueryEvents(_ context.Context, filter sui.EventFilter, _ *sui.EventID, limit int, descending bool) (*sui.EventPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sui.Event
	for _, ev := range c.events {
		switch {
		case filter.MoveEventType != "":
			if ev.Type != filter.MoveEventType {
				continue
			}
		case filter.MoveEventModule != nil:
			if key(ev.PackageID) != key(filter.MoveEventModule.Package) || ev.TransactionModule != filter.MoveEventModule.Module {
				continue
			}
		case filter.Sender != "":
			if key(ev.Sender) != key(filter.Sender) {
				continue
			}
		}
		out = append(out, ev)
	}
	if descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return &sui.EventPage{Data: out}, nil
}

// GetDynamicFieldObject returns the stored dynamic field.
func (c *RPCClient) GetDynamicFieldObject(_ context.Context, parentID string, name sui.DynamicFieldName) (*sui.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.dynamicFields[fieldKey(parentID, name)]
	if !ok {
		return nil, sui.ErrObjectNotFound
	}
	cp := *obj
	return &cp, nil
}

// GetCoins returns all coins of owner in one page.
func (c *RPCClient) GetCoins(_ context.Context, owner, coinType, _ string, _ int) (*sui.CoinPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	page := &sui.CoinPage{}
	for _, coin := range c.coins[key(owner)] {
		if coin.CoinType == coinType {
			page.Data = append(page.Data, coin)
		}
	}
	return page, nil
}

// GetReferenceGasPrice returns GasPrice.
func (c *RPCClient) GetReferenceGasPrice(context.Context) (uint64, error) {
	return c.GasPrice, nil
}

// ExecuteTransactionBlock records the bytes and delegates to ExecuteFunc.
func (c *RPCClient) ExecuteTransactionBlock(_ context.Context, txBytes []byte, signatures []string) (*sui.ExecuteResult, error) {
	c.mu.Lock()
	c.executed = append(c.executed, append([]byte(nil), txBytes...))
	fn := c.ExecuteFunc
	c.mu.Unlock()

	if fn != nil {
		return fn(txBytes, signatures)
	}
	return &sui.ExecuteResult{Digest: "StubDigest", Status: "success"}, nil
}
