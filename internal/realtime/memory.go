package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryFeed is an in-process feed. It backs tests and single-process
// deployments where the writer and the reader share a process.
type MemoryFeed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*memorySubscription
}

// NewMemoryFeed creates an in-process feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[int]*memorySubscription)}
}

// SubscribeInserts implements Feed.
func (f *MemoryFeed) SubscribeInserts(ctx context.Context, table, scope string, h Handler) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	sub := &memorySubscription{feed: f, id: f.nextID, table: table, scope: scope, handler: h}
	f.subs[sub.id] = sub
	return sub, nil
}

// Publish delivers a row insert to every matching subscription.
func (f *MemoryFeed) Publish(table, scope string, row any) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode row: %w", err)
	}
	event := InsertEvent{Table: table, New: raw}

	f.mu.Lock()
	handlers := make([]Handler, 0, len(f.subs))
	for _, sub := range f.subs {
		if sub.table != table {
			continue
		}
		if sub.scope != "" && sub.scope != scope {
			continue
		}
		handlers = append(handlers, sub.handler)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

// SubscriptionCount returns the number of open subscriptions.
func (f *MemoryFeed) SubscriptionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close implements Feed.
func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = make(map[int]*memorySubscription)
	return nil
}

type memorySubscription struct {
	feed    *MemoryFeed
	id      int
	table   string
	scope   string
	handler Handler
	once    sync.Once
}

func (s *memorySubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s.id)
		s.feed.mu.Unlock()
	})
	return nil
}
