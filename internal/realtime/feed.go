// Package realtime delivers row-level change events pushed by the backend.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/comunihub/marketplace-client/pkg/logger"
)

// Provider selects the transport carrying the change feed.
type Provider string

const (
	ProviderNATS      Provider = "nats"
	ProviderWebSocket Provider = "websocket"
	ProviderMemory    Provider = "memory"
)

// InsertEvent is a row-insert notification.
type InsertEvent struct {
	Table string          `json:"table"`
	New   json.RawMessage `json:"new"`
}

// Decode unmarshals the inserted row into dest.
func (e InsertEvent) Decode(dest any) error {
	if err := json.Unmarshal(e.New, dest); err != nil {
		return fmt.Errorf("failed to decode %s insert event: %w", e.Table, err)
	}
	return nil
}

// Handler consumes insert events. Handlers run on the feed's delivery
// goroutine and must not block.
type Handler func(InsertEvent)

// Subscription is an open change-feed channel. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe() error
}

// Feed is a push channel of row-insert events.
type Feed interface {
	// SubscribeInserts delivers insert events for table. A non-empty scope
	// narrows the subscription to one conversation.
	SubscribeInserts(ctx context.Context, table, scope string, h Handler) (Subscription, error)

	// Close releases the transport. Open subscriptions are dropped.
	Close() error
}

// Config holds transport settings for the feed providers.
type Config struct {
	NATSURL      string
	NATSToken    string
	WebSocketURL string
}

// New creates a feed for the given provider.
func New(ctx context.Context, provider Provider, cfg Config, log *logger.Logger) (Feed, error) {
	switch provider {
	case ProviderNATS, "":
		return ConnectNATS(ctx, cfg, log)
	case ProviderWebSocket:
		return NewWebSocketFeed(cfg.WebSocketURL, log), nil
	case ProviderMemory:
		return NewMemoryFeed(), nil
	default:
		return nil, fmt.Errorf("unknown realtime provider %q", provider)
	}
}
