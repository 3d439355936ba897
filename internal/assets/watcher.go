package assets

import (
	"context"
	"encoding/json"
	"fmt"

	"imaigine-lab/internal/contracts"
	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/logging"
	"imaigine-lab/internal/ptb"
	"imaigine-lab/internal/sui"
)

// Notification is an asset id seen in a live event.
type Notification struct {
	AssetID     string
	Kind        domain.AssetKind
	TxDigest    string
	TimestampMs uint64

	// Listing is set for kiosk listing events.
	Listing *domain.Listing
}

// Watcher turns websocket event subscriptions into asset notifications.
type Watcher struct {
	ws  sui.WSClient
	pkg contracts.Package
	log logging.Logger
}

// NewWatcher creates a watcher over an open websocket client.
func NewWatcher(ws sui.WSClient, pkg contracts.Package, log logging.Logger) *Watcher {
	if log == nil {
		log = logging.Default()
	}
	return &Watcher{ws: ws, pkg: pkg, log: log.With("component", "asset_watcher")}
}

// Created streams ids from events emitted by the module that owns kind.
// Events without an object id field are skipped.
func (w *Watcher) Created(ctx context.Context, kind domain.AssetKind) (<-chan Notification, error) {
	module := contracts.ModuleModel
	if kind == domain.AssetKindImage {
		module = contracts.ModuleImage
	}
	filter := sui.EventFilter{MoveEventModule: &sui.MoveModule{Package: w.pkg.Address, Module: module}}
	return w.watch(ctx, filter, func(ev sui.Event) (Notification, bool) {
		id, ok := eventObjectID(ev)
		if !ok {
			return Notification{}, false
		}
		return Notification{AssetID: id, Kind: kind}, true
	})
}

// Listings streams new kiosk listings of models.
func (w *Watcher) Listings(ctx context.Context) (<-chan Notification, error) {
	filter := sui.EventFilter{MoveEventType: w.pkg.ItemListedEventType()}
	return w.watch(ctx, filter, func(ev sui.Event) (Notification, bool) {
		item, err := decodeItemListed(ev)
		if err != nil {
			w.log.Warn(ctx, "skip listing event", "tx", ev.ID.TxDigest, "error", err)
			return Notification{}, false
		}
		return Notification{
			AssetID: item.ID,
			Kind:    domain.AssetKindModel,
			Listing: &domain.Listing{KioskID: item.Kiosk, Price: uint64(item.Price)},
		}, true
	})
}

func (w *Watcher) watch(ctx context.Context, filter sui.EventFilter, convert func(sui.Event) (Notification, bool)) (<-chan Notification, error) {
	events, err := w.ws.SubscribeEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("subscribe events: %w", err)
	}

	out := make(chan Notification, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				n, ok := convert(ev)
				if !ok {
					continue
				}
				n.TxDigest = ev.ID.TxDigest
				n.TimestampMs = uint64(ev.TimestampMs)
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// eventObjectID reads the first address-valued id field of an event.
func eventObjectID(ev sui.Event) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(ev.ParsedJSON, &fields); err != nil {
		return "", false
	}
	for _, name := range []string{"id", "object_id"} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) != nil {
			continue
		}
		if id, err := ptb.NormalizeAddress(s); err == nil {
			return id, true
		}
	}
	return "", false
}
