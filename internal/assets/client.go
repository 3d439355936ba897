// Package assets reads Model and Image records from the chain and maps
// them into domain assets. It never writes.
package assets

import (
	"context"
	"errors"
	"fmt"

	"imaigine-lab/internal/contracts"
	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/logging"
	"imaigine-lab/internal/ptb"
	"imaigine-lab/internal/sui"
)

const (
	// DefaultPageSize is the page size for owned object and event queries.
	DefaultPageSize = 50
	// DefaultMaxPages bounds how far back listing events are scanned.
	DefaultMaxPages = 20

	kioskListingType = "0x2::kiosk::Listing"
)

// Scope selects which assets ListAssets returns.
type Scope struct {
	owner  string
	kind   domain.AssetKind
	listed bool
}

// OwnedBy selects assets of kind owned by address.
func OwnedBy(address string, kind domain.AssetKind) Scope {
	return Scope{owner: address, kind: kind}
}

// Listed selects models currently listed in a kiosk.
func Listed() Scope {
	return Scope{kind: domain.AssetKindModel, listed: true}
}

// listingKey is the name of a kiosk Listing dynamic field.
type listingKey struct {
	ID          string `json:"id"`
	IsExclusive bool   `json:"is_exclusive"`
}

// Options configures a Client.
type Options struct {
	PageSize int
	MaxPages int
	Logger   logging.Logger
}

// Client maps on-chain records of one package deployment.
type Client struct {
	rpc      sui.RPCClient
	pkg      contracts.Package
	pageSize int
	maxPages int
	log      logging.Logger
}

// NewClient creates an asset client.
func NewClient(rpc sui.RPCClient, pkg contracts.Package, opts Options) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Client{
		rpc:      rpc,
		pkg:      pkg,
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
		log:      opts.Logger.With("component", "assets"),
	}
}

// ListAssets returns the assets in scope. Records whose required fields
// are missing fail the call with a DecodeError.
func (c *Client) ListAssets(ctx context.Context, scope Scope) ([]domain.Asset, error) {
	if scope.listed {
		return c.listed(ctx)
	}
	if _, err := ptb.ParseAddress(scope.owner); err != nil {
		return nil, fmt.Errorf("%w: owner: %v", domain.ErrInvalidInput, err)
	}
	module := contracts.ModuleModel
	if scope.kind == domain.AssetKindImage {
		module = contracts.ModuleImage
	}
	filter := &sui.ObjectFilter{MoveModule: &sui.MoveModule{Package: c.pkg.Address, Module: module}}

	var ids []string
	cursor := ""
	for page := 0; page < c.maxPages; page++ {
		res, err := c.rpc.GetOwnedObjects(ctx, scope.owner, filter, cursor, c.pageSize)
		if err != nil {
			return nil, fmt.Errorf("get owned objects: %w", err)
		}
		for _, obj := range res.Data {
			if obj != nil && sui.TypeMatches(obj.Type, c.pkg.Address, recordStruct(scope.kind)) {
				ids = append(ids, obj.ObjectID)
			}
		}
		if !res.HasNextPage || res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}

	return c.fetch(ctx, ids, nil)
}

// listed scans ItemListed events newest first. The latest event per model
// wins; models that left the kiosk are dropped.
func (c *Client) listed(ctx context.Context) ([]domain.Asset, error) {
	events, err := c.latestListings(ctx, "")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(events))
	listings := make(map[string]*domain.Listing, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
		listings[ev.ID] = &domain.Listing{KioskID: ev.Kiosk, Price: uint64(ev.Price)}
	}
	return c.fetch(ctx, ids, listings)
}

// latestListings returns one ItemListed event per model, newest first.
// A non-empty modelID stops at the first match.
func (c *Client) latestListings(ctx context.Context, modelID string) ([]itemListed, error) {
	filter := sui.EventFilter{MoveEventType: c.pkg.ItemListedEventType()}
	seen := make(map[string]bool)
	var out []itemListed
	var cursor *sui.EventID
	for page := 0; page < c.maxPages; page++ {
		res, err := c.rpc.QueryEvents(ctx, filter, cursor, c.pageSize, true)
		if err != nil {
			return nil, fmt.Errorf("query listing events: %w", err)
		}
		for _, ev := range res.Data {
			item, err := decodeItemListed(ev)
			if err != nil {
				return nil, err
			}
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			if modelID == "" {
				out = append(out, item)
				continue
			}
			if item.ID == modelID {
				return []itemListed{item}, nil
			}
		}
		if !res.HasNextPage || res.NextCursor == nil {
			break
		}
		cursor = res.NextCursor
	}
	return out, nil
}

// fetch multi-gets ids in order and decodes them. With listings set, only
// objects still held by a kiosk are returned.
func (c *Client) fetch(ctx context.Context, ids []string, listings map[string]*domain.Listing) ([]domain.Asset, error) {
	if len(ids) == 0 {
		return []domain.Asset{}, nil
	}
	objs, err := c.rpc.MultiGetObjects(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("multi get objects: %w", err)
	}

	out := make([]domain.Asset, 0, len(objs))
	for i, obj := range objs {
		if obj == nil {
			c.log.Debug(ctx, "asset vanished between queries", "id", ids[i])
			continue
		}
		if listings != nil && obj.Owner.Kind != sui.OwnerObject {
			continue
		}
		asset, err := c.decode(obj)
		if err != nil {
			return nil, err
		}
		if listings != nil {
			asset.Listing = listings[asset.ID]
		}
		out = append(out, *asset)
	}
	return out, nil
}

// GetAsset reads one Model or Image record.
func (c *Client) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	if _, err := ptb.ParseAddress(id); err != nil {
		return nil, fmt.Errorf("%w: asset id: %v", domain.ErrInvalidInput, err)
	}
	obj, err := c.rpc.GetObject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get asset %s: %w", id, err)
	}
	return c.decode(obj)
}

func (c *Client) decode(obj *sui.Object) (*domain.Asset, error) {
	switch {
	case sui.TypeMatches(obj.Type, c.pkg.Address, recordStruct(domain.AssetKindModel)):
		return decodeModel(obj)
	case sui.TypeMatches(obj.Type, c.pkg.Address, recordStruct(domain.AssetKindImage)):
		return decodeImage(obj)
	}
	return nil, &domain.DecodeError{ID: obj.ObjectID, Record: "object", Field: "type", Reason: fmt.Sprintf("unexpected type %q", obj.Type)}
}

// GetListing returns the current kiosk listing of a model, or nil when
// the model is not listed.
func (c *Client) GetListing(ctx context.Context, modelID string) (*domain.Listing, error) {
	id, err := ptb.NormalizeAddress(modelID)
	if err != nil {
		return nil, fmt.Errorf("%w: model id: %v", domain.ErrInvalidInput, err)
	}
	events, err := c.latestListings(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	kiosk := events[0].Kiosk

	field, err := c.rpc.GetDynamicFieldObject(ctx, kiosk, sui.DynamicFieldName{
		Type:  kioskListingType,
		Value: listingKey{ID: id},
	})
	if errors.Is(err, sui.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get listing %s: %w", id, err)
	}
	price, err := decodeListingPrice(field)
	if err != nil {
		return nil, err
	}
	return &domain.Listing{KioskID: kiosk, Price: price}, nil
}

// OwnedKioskCaps lists the kiosk owner caps held by owner.
func (c *Client) OwnedKioskCaps(ctx context.Context, owner string) ([]domain.KioskCap, error) {
	if _, err := ptb.ParseAddress(owner); err != nil {
		return nil, fmt.Errorf("%w: owner: %v", domain.ErrInvalidInput, err)
	}
	filter := &sui.ObjectFilter{StructType: contracts.KioskOwnerCapType}

	var caps []domain.KioskCap
	cursor := ""
	for page := 0; page < c.maxPages; page++ {
		res, err := c.rpc.GetOwnedObjects(ctx, owner, filter, cursor, c.pageSize)
		if err != nil {
			return nil, fmt.Errorf("get kiosk caps: %w", err)
		}
		for _, obj := range res.Data {
			if obj == nil {
				continue
			}
			kc, err := decodeKioskCap(obj)
			if err != nil {
				return nil, err
			}
			caps = append(caps, *kc)
		}
		if !res.HasNextPage || res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}
	return caps, nil
}

func recordStruct(kind domain.AssetKind) string {
	if kind == domain.AssetKindImage {
		return contracts.ModuleImage + "::Image"
	}
	return contracts.ModuleModel + "::Model"
}
