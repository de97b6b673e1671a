package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/comunihub/marketplace-client/pkg/logger"
	"github.com/comunihub/marketplace-client/pkg/metrics"
)

// wsFrame is the wire format of the websocket feed. The client sends a
// subscribe frame, the server answers with insert frames.
type wsFrame struct {
	Type  string       `json:"type"`
	Table string       `json:"table,omitempty"`
	Scope string       `json:"scope,omitempty"`
	Event *InsertEvent `json:"event,omitempty"`
}

// WebSocketFeed delivers change events over one websocket connection per
// subscription, mirroring the channel-per-screen model of the original
// client.
type WebSocketFeed struct {
	url    string
	logger *logger.Logger

	mu   sync.Mutex
	subs []*wsSubscription
}

// NewWebSocketFeed creates a websocket-backed feed dialing url.
func NewWebSocketFeed(url string, log *logger.Logger) *WebSocketFeed {
	return &WebSocketFeed{url: url, logger: log}
}

// SubscribeInserts implements Feed.
func (f *WebSocketFeed) SubscribeInserts(ctx context.Context, table, scope string, h Handler) (Subscription, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial change feed: %w", err)
	}

	if err := conn.WriteJSON(wsFrame{Type: "subscribe", Table: table, Scope: scope}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open change-feed channel: %w", err)
	}

	sub := &wsSubscription{conn: conn}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	metrics.RealtimeSubscriptionsActive.Inc()

	go f.readLoop(conn, h)
	return sub, nil
}

// readLoop dispatches insert frames until the connection drops. Feed errors
// are best-effort: they are logged, not retried.
func (f *WebSocketFeed) readLoop(conn *websocket.Conn, h Handler) {
	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.logger.Warn("change feed read failed", zap.Error(err))
			}
			return
		}
		if frame.Type != "insert" || frame.Event == nil {
			continue
		}
		h(*frame.Event)
	}
}

// Close implements Feed.
func (f *WebSocketFeed) Close() error {
	f.mu.Lock()
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	return nil
}

type wsSubscription struct {
	conn *websocket.Conn
	once sync.Once
}

func (s *wsSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = s.conn.Close()
		metrics.RealtimeSubscriptionsActive.Dec()
	})
	return err
}
