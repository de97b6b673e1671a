// Package chat maintains the authoritative message sequence for one open
// conversation: the initial backend load, the user's optimistic sends and
// the change-feed events from other participants, merged into a single
// ordered, duplicate-free list.
package chat

import (
	"context"
	"iter"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/comunihub/marketplace-client/internal/backend"
	"github.com/comunihub/marketplace-client/internal/model"
	"github.com/comunihub/marketplace-client/internal/realtime"
	"github.com/comunihub/marketplace-client/pkg/logger"
	"github.com/comunihub/marketplace-client/pkg/metrics"
)

// messagesTable is the backend table holding conversation messages.
const messagesTable = "messages"

// Backend is the slice of the backend client the session uses.
type Backend interface {
	Select(ctx context.Context, table string, q backend.Query, dest any) error
	Insert(ctx context.Context, table string, row any) error
}

// Session synchronizes one conversation. It is created idle; Activate
// brings it online once the authenticated user id is known, and Close
// tears it down. Messages are stored oldest-first; presentation order is
// the renderer's concern.
type Session struct {
	conversationID int64
	backend        Backend
	feed           realtime.Feed
	logger         *logger.Logger
	now            func() time.Time

	mu        sync.Mutex
	userID    string
	messages  []model.Message
	draft     string
	loading   bool
	loaded    bool
	closed    bool
	sub       realtime.Subscription
	listeners []func()
}

// NewSession creates an idle session for conversationID.
func NewSession(conversationID int64, b Backend, feed realtime.Feed, log *logger.Logger) *Session {
	return &Session{
		conversationID: conversationID,
		backend:        b,
		feed:           feed,
		logger:         log,
		now:            time.Now,
	}
}

// Activate supplies the authenticated user id, loads the history and opens
// the change-feed subscription. The load runs at most once: concurrent or
// repeated activations are no-ops while a load is in flight or after one
// succeeded. An empty userID leaves the session idle.
func (s *Session) Activate(ctx context.Context, userID string) error {
	s.mu.Lock()
	if s.closed || userID == "" {
		s.mu.Unlock()
		return nil
	}
	if s.userID == "" {
		s.userID = userID
	}
	alreadyLoading := s.loading || s.loaded
	if !alreadyLoading {
		s.loading = true
	}
	needSubscribe := s.sub == nil
	s.mu.Unlock()

	if needSubscribe {
		s.subscribe(ctx)
	}
	if alreadyLoading {
		return nil
	}
	return s.loadInitial(ctx)
}

// loadInitial fetches the full history, newest first as the backend orders
// it, and replaces the sequence. On failure the sequence stays empty.
func (s *Session) loadInitial(ctx context.Context) error {
	var rows []model.Message
	err := s.backend.Select(ctx, messagesTable, backend.Query{
		Filters: []backend.Filter{backend.Eq("conversation_id", s.scope())},
		Order:   &backend.Order{Column: "created_at", Ascending: false},
	}, &rows)
	if err != nil {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
		metrics.MessageLoadsTotal.WithLabelValues("error").Inc()
		return &LoadError{Err: err}
	}

	// Reverse into storage order, oldest first.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	s.mu.Lock()
	if s.closed {
		// Torn down while the fetch was in flight; discard the result.
		s.mu.Unlock()
		return nil
	}
	s.messages = rows
	s.loading = false
	s.loaded = true
	s.mu.Unlock()

	metrics.MessageLoadsTotal.WithLabelValues("ok").Inc()
	s.notify()
	return nil
}

// subscribe opens the change-feed channel for this conversation. Feed
// failures are best-effort: logged, never fatal to the session.
func (s *Session) subscribe(ctx context.Context) {
	sub, err := s.feed.SubscribeInserts(ctx, messagesTable, s.scope(), s.onRemoteInsert)
	if err != nil {
		s.logger.Warn("change-feed subscription failed",
			zap.Int64("conversation_id", s.conversationID), zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.closed || s.sub != nil {
		s.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	s.sub = sub
	s.mu.Unlock()
}

// onRemoteInsert merges one change-feed event. Events authored by the local
// user are dropped: they are already represented by the optimistic entry
// from Send.
func (s *Session) onRemoteInsert(event realtime.InsertEvent) {
	var msg model.Message
	if err := event.Decode(&msg); err != nil {
		s.logger.Warn("dropping undecodable message event", zap.Error(err))
		metrics.RecordRealtimeEvent("malformed")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if msg.SenderID == s.userID {
		s.mu.Unlock()
		metrics.RecordRealtimeEvent("dropped_own")
		return
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	metrics.RecordRealtimeEvent("applied")
	s.notify()
}

// Send appends an optimistic message and issues the backend insert. Blank
// content and sends before activation are no-ops. On failure the optimistic
// entry is rolled back, the draft restored verbatim, and a *SendError
// returned. On success the optimistic entry remains the durable record for
// this send; the backend's confirmed row is never fetched back.
func (s *Session) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)

	s.mu.Lock()
	if content == "" || s.userID == "" || s.closed {
		s.mu.Unlock()
		return nil
	}
	msg := model.Message{
		ID:        model.NewPendingID(),
		Content:   content,
		SenderID:  s.userID,
		CreatedAt: s.now(),
	}
	s.messages = append(s.messages, msg)
	s.draft = ""
	s.mu.Unlock()
	s.notify()

	if err := s.backend.Insert(ctx, messagesTable, insertRow{
		ConversationID: s.conversationID,
		SenderID:       msg.SenderID,
		Content:        content,
	}); err != nil {
		s.mu.Lock()
		s.removeLocked(msg.ID)
		s.draft = content
		s.mu.Unlock()
		s.notify()
		metrics.RecordSend("error")
		return &SendError{Content: content, Err: err}
	}

	metrics.RecordSend("ok")
	return nil
}

// insertRow is the write shape for the messages table; id and created_at
// are backend-assigned.
type insertRow struct {
	ConversationID int64  `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
}

// Draft returns the pending input text. Send clears it; a failed send
// restores it.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// SetDraft replaces the pending input text.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
}

// Messages returns a snapshot of the sequence, oldest first.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]model.Message, len(s.messages))
	copy(snapshot, s.messages)
	return snapshot
}

// Display returns the date-separated renderable sequence derived from the
// current snapshot.
func (s *Session) Display() iter.Seq[DisplayItem] {
	return DisplaySequence(s.Messages(), s.now())
}

// OnChange registers a listener invoked after every sequence change.
// Listeners run on the mutating goroutine and must not block.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Close tears the session down: the subscription is released exactly once
// and any in-flight load is discarded on arrival. Safe to call repeatedly.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("change-feed unsubscribe failed", zap.Error(err))
		}
	}
}

func (s *Session) removeLocked(id model.MessageID) {
	for i, msg := range s.messages {
		if msg.ID.Equal(id) {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

func (s *Session) notify() {
	s.mu.Lock()
	listeners := make([]func(), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func (s *Session) scope() string {
	return strconv.FormatInt(s.conversationID, 10)
}
