package sui

import "context"

// WSClient defines the Sui websocket subscription interface.
type WSClient interface {
	// SubscribeEvents streams events matching the filter until Close.
	SubscribeEvents(ctx context.Context, filter EventFilter) (<-chan Event, error)

	// Close closes the websocket connection and all subscription channels.
	Close() error
}
