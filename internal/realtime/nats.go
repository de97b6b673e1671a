package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/comunihub/marketplace-client/pkg/logger"
	"github.com/comunihub/marketplace-client/pkg/metrics"
)

// subjectPrefix is the prefix for all change-feed subjects. The backend
// publishes one message per committed insert on
// changes.<table>.<conversation_id>.
const subjectPrefix = "changes"

// NATSFeed delivers change events over a NATS connection.
type NATSFeed struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// ConnectNATS establishes the feed connection.
func ConnectNATS(ctx context.Context, cfg Config, log *logger.Logger) (*NATSFeed, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("change feed disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("change feed reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Warn("change feed error", zap.Error(err))
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	conn, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to change feed: %w", err)
	}

	return &NATSFeed{conn: conn, logger: log}, nil
}

// SubscribeInserts implements Feed.
func (f *NATSFeed) SubscribeInserts(ctx context.Context, table, scope string, h Handler) (Subscription, error) {
	subject := fmt.Sprintf("%s.%s.>", subjectPrefix, table)
	if scope != "" {
		subject = fmt.Sprintf("%s.%s.%s", subjectPrefix, table, scope)
	}

	sub, err := f.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event InsertEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			f.logger.Warn("dropping malformed change event",
				zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		h(event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	metrics.RealtimeSubscriptionsActive.Inc()
	return &natsSubscription{sub: sub}, nil
}

// Close implements Feed.
func (f *NATSFeed) Close() error {
	f.conn.Close()
	return nil
}

// IsConnected reports whether the feed connection is up.
func (f *NATSFeed) IsConnected() bool {
	return f.conn != nil && f.conn.IsConnected()
}

type natsSubscription struct {
	sub  *nats.Subscription
	once sync.Once
}

func (s *natsSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		err = s.sub.Unsubscribe()
		metrics.RealtimeSubscriptionsActive.Dec()
	})
	return err
}
