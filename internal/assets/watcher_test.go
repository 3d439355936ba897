package assets

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaigine-lab/internal/contracts"
	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/logging"
	"imaigine-lab/internal/sui"
)

type fakeWS struct {
	filters []sui.EventFilter
	events  chan sui.Event
}

func (f *fakeWS) SubscribeEvents(_ context.Context, filter sui.EventFilter) (<-chan sui.Event, error) {
	f.filters = append(f.filters, filter)
	return f.events, nil
}

func (f *fakeWS) Close() error { return nil }

func receive(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		require.True(t, ok, "channel closed")
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
	return Notification{}
}

func TestWatcher_Created(t *testing.T) {
	ws := &fakeWS{events: make(chan sui.Event, 4)}
	w := NewWatcher(ws, contracts.Testnet(), logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := w.Created(ctx, domain.AssetKindImage)
	require.NoError(t, err)

	require.Len(t, ws.filters, 1)
	require.NotNil(t, ws.filters[0].MoveEventModule)
	assert.Equal(t, contracts.ModuleImage, ws.filters[0].MoveEventModule.Module)

	ws.events <- sui.Event{ID: sui.EventID{TxDigest: "skip"}, ParsedJSON: json.RawMessage(`{"note":"no id"}`)}
	ws.events <- sui.Event{ID: sui.EventID{TxDigest: "tx9"}, TimestampMs: 1700, ParsedJSON: json.RawMessage(`{"id":"0x71"}`)}

	n := receive(t, ch)
	assert.Equal(t, addr("0x71"), n.AssetID)
	assert.Equal(t, domain.AssetKindImage, n.Kind)
	assert.Equal(t, "tx9", n.TxDigest)
	assert.Equal(t, uint64(1700), n.TimestampMs)
	assert.Nil(t, n.Listing)
}

func TestWatcher_Listings(t *testing.T) {
	ws := &fakeWS{events: make(chan sui.Event, 4)}
	w := NewWatcher(ws, contracts.Testnet(), logging.Discard())

	ch, err := w.Listings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, contracts.Testnet().ItemListedEventType(), ws.filters[0].MoveEventType)

	ws.events <- sui.Event{ParsedJSON: json.RawMessage(`{"kiosk":"bad"}`)}
	ws.events <- listedEvent(t, "tx1", "0x41", kiosk, 300)
	close(ws.events)

	n := receive(t, ch)
	assert.Equal(t, addr("0x41"), n.AssetID)
	require.NotNil(t, n.Listing)
	assert.Equal(t, uint64(300), n.Listing.Price)

	_, ok := <-ch
	assert.False(t, ok, "closed upstream closes the notification channel")
}
