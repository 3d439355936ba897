package sui

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrObjectNotFound is returned when an object id does not exist or was deleted.
var ErrObjectNotFound = errors.New("object not found")

// RPCClient defines the Sui JSON-RPC surface used by the app.
type RPCClient interface {
	// GetObject retrieves an object with its owner and Move fields.
	GetObject(ctx context.Context, id string) (*Object, error)

	// MultiGetObjects retrieves objects in request order. Missing objects are nil.
	MultiGetObjects(ctx context.Context, ids []string) ([]*Object, error)

	// GetOwnedObjects lists objects owned by an address, one page at a time.
	GetOwnedObjects(ctx context.Context, owner string, filter *ObjectFilter, cursor string, limit int) (*ObjectPage, error)

	// QueryEvents lists events matching the filter, one page at a time.
	QueryEvents(ctx context.Context, filter EventFilter, cursor *EventID, limit int, descending bool) (*EventPage, error)

	// GetDynamicFieldObject retrieves a dynamic field of a parent object.
	GetDynamicFieldObject(ctx context.Context, parentID string, name DynamicFieldName) (*Object, error)

	// GetCoins lists coins of a type owned by an address.
	GetCoins(ctx context.Context, owner, coinType, cursor string, limit int) (*CoinPage, error)

	// GetReferenceGasPrice returns the current reference gas price in MIST.
	GetReferenceGasPrice(ctx context.Context) (uint64, error)

	// ExecuteTransactionBlock submits signed transaction bytes. Never retried.
	ExecuteTransactionBlock(ctx context.Context, txBytes []byte, signatures []string) (*ExecuteResult, error)
}

// Object is a Move object as returned with showContent and showOwner.
type Object struct {
	ObjectID string
	Version  uint64
	Digest   string
	Type     string
	Owner    Owner
	Fields   map[string]json.RawMessage
}

// OwnerKind enumerates object ownership.
type OwnerKind string

const (
	OwnerAddress   OwnerKind = "AddressOwner"
	OwnerObject    OwnerKind = "ObjectOwner"
	OwnerShared    OwnerKind = "Shared"
	OwnerImmutable OwnerKind = "Immutable"
)

// Owner describes who owns an object.
type Owner struct {
	Kind                 OwnerKind
	Address              string
	InitialSharedVersion uint64
}

// ExecuteResult is the outcome of executing a transaction block.
type ExecuteResult struct {
	Digest        string
	Status        string
	Error         string
	ObjectChanges []ObjectChange
}

// Succeeded reports whether effects were committed successfully.
func (r *ExecuteResult) Succeeded() bool {
	return r != nil && r.Status == "success"
}

// Created returns ids of created objects whose type contains typeSuffix.
func (r *ExecuteResult) Created(typeSuffix string) []string {
	if r == nil {
		return nil
	}
	var ids []string
	for _, c := range r.ObjectChanges {
		if c.Type == "created" && hasTypeSuffix(c.ObjectType, typeSuffix) {
			ids = append(ids, c.ObjectID)
		}
	}
	return ids
}

// ObjectChange is one entry of showObjectChanges.
type ObjectChange struct {
	Type       string `json:"type"`
	ObjectID   string `json:"objectId"`
	ObjectType string `json:"objectType"`
	Sender     string `json:"sender"`
}
