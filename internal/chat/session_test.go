package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comunihub/marketplace-client/internal/backend"
	"github.com/comunihub/marketplace-client/internal/model"
	"github.com/comunihub/marketplace-client/internal/realtime"
	"github.com/comunihub/marketplace-client/pkg/logger"
)

// fakeBackend implements Backend for session tests.
type fakeBackend struct {
	mu          sync.Mutex
	rows        []model.Message // returned newest-first, like the real backend
	selectErr   error
	insertErr   error
	inserted    []insertRow
	selectCalls int
	selectGate  chan struct{} // when set, Select blocks until the gate closes
}

func (f *fakeBackend) Select(ctx context.Context, table string, q backend.Query, dest any) error {
	f.mu.Lock()
	f.selectCalls++
	gate := f.selectGate
	rows := make([]model.Message, len(f.rows))
	copy(rows, f.rows)
	err := f.selectErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return err
	}
	*dest.(*[]model.Message) = rows
	return nil
}

func (f *fakeBackend) Insert(ctx context.Context, table string, row any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, row.(insertRow))
	return nil
}

func (f *fakeBackend) insertedRows() []insertRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([]insertRow, len(f.inserted))
	copy(rows, f.inserted)
	return rows
}

func newTestSession(t *testing.T, fb *fakeBackend) (*Session, *realtime.MemoryFeed) {
	t.Helper()
	feed := realtime.NewMemoryFeed()
	s := NewSession(7, fb, feed, logger.NewNop())
	t.Cleanup(s.Close)
	return s, feed
}

func TestActivateLoadsHistoryOldestFirst(t *testing.T) {
	fb := &fakeBackend{rows: []model.Message{
		msgAt(3, "terceira", time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)),
		msgAt(2, "segunda", time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)),
		msgAt(1, "primeira", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)),
	}}
	s, _ := newTestSession(t, fb)

	require.NoError(t, s.Activate(context.Background(), "u1"))

	got := s.Messages()
	require.Len(t, got, 3)
	assert.Equal(t, "primeira", got[0].Content)
	assert.Equal(t, "segunda", got[1].Content)
	assert.Equal(t, "terceira", got[2].Content)
}

func TestActivateRunsLoadExactlyOnce(t *testing.T) {
	fb := &fakeBackend{}
	s, feed := newTestSession(t, fb)

	require.NoError(t, s.Activate(context.Background(), "u1"))
	require.NoError(t, s.Activate(context.Background(), "u1"))

	assert.Equal(t, 1, fb.selectCalls)
	assert.Equal(t, 1, feed.SubscriptionCount(), "must not re-subscribe per activation")
}

func TestActivateWithoutUserStaysIdle(t *testing.T) {
	fb := &fakeBackend{}
	s, feed := newTestSession(t, fb)

	require.NoError(t, s.Activate(context.Background(), ""))

	assert.Zero(t, fb.selectCalls)
	assert.Zero(t, feed.SubscriptionCount())
}

func TestLoadFailureLeavesSequenceEmpty(t *testing.T) {
	fb := &fakeBackend{selectErr: errors.New("boom")}
	s, _ := newTestSession(t, fb)

	err := s.Activate(context.Background(), "u1")
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Empty(t, s.Messages())
}

func TestCloseDiscardsInFlightLoad(t *testing.T) {
	gate := make(chan struct{})
	fb := &fakeBackend{
		rows:       []model.Message{msgAt(1, "tarde demais", time.Now())},
		selectGate: gate,
	}
	s, feed := newTestSession(t, fb)

	var changed bool
	s.OnChange(func() { changed = true })

	done := make(chan error, 1)
	go func() { done <- s.Activate(context.Background(), "u1") }()

	// Tear down while the fetch is still in flight, then let it resolve.
	time.Sleep(20 * time.Millisecond)
	s.Close()
	close(gate)
	require.NoError(t, <-done)

	assert.Empty(t, s.Messages(), "resolution after teardown must be ignored")
	assert.False(t, changed)
	assert.Zero(t, feed.SubscriptionCount())
}

func TestSendAppendsOptimisticallyAndInserts(t *testing.T) {
	fb := &fakeBackend{}
	s, _ := newTestSession(t, fb)
	require.NoError(t, s.Activate(context.Background(), "u1"))

	s.SetDraft("  tudo bem?  ")
	require.NoError(t, s.Send(context.Background(), s.Draft()))

	got := s.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "tudo bem?", got[0].Content)
	assert.Equal(t, "u1", got[0].SenderID)
	assert.True(t, got[0].ID.Pending())
	assert.Empty(t, s.Draft(), "send clears the draft")

	rows := fb.insertedRows()
	require.Len(t, rows, 1)
	assert.Equal(t, insertRow{ConversationID: 7, SenderID: "u1", Content: "tudo bem?"}, rows[0])
}

func TestSendBlankContentIsNoOp(t *testing.T) {
	fb := &fakeBackend{}
	s, _ := newTestSession(t, fb)
	require.NoError(t, s.Activate(context.Background(), "u1"))

	require.NoError(t, s.Send(context.Background(), ""))
	require.NoError(t, s.Send(context.Background(), "   "))

	assert.Empty(t, s.Messages())
	assert.Empty(t, fb.insertedRows())
}

func TestSendBeforeActivateIsNoOp(t *testing.T) {
	fb := &fakeBackend{}
	s, _ := newTestSession(t, fb)

	require.NoError(t, s.Send(context.Background(), "olá"))
	assert.Empty(t, s.Messages())
	assert.Empty(t, fb.insertedRows())
}

func TestSendFailureRollsBackAndRestoresDraft(t *testing.T) {
	fb := &fakeBackend{insertErr: errors.New("network down")}
	s, _ := newTestSession(t, fb)
	require.NoError(t, s.Activate(context.Background(), "u1"))

	err := s.Send(context.Background(), "hello")
	require.Error(t, err)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, "hello", sendErr.Content)
	assert.Empty(t, s.Messages(), "optimistic entry must be rolled back")
	assert.Equal(t, "hello", s.Draft(), "draft restored verbatim for retry")
}

func TestRapidSendsGetDistinctPendingIDs(t *testing.T) {
	fb := &fakeBackend{}
	s, _ := newTestSession(t, fb)
	require.NoError(t, s.Activate(context.Background(), "u1"))

	for i := 0; i < 100; i++ {
		require.NoError(t, s.Send(context.Background(), "mensagem"))
	}

	got := s.Messages()
	require.Len(t, got, 100)
	seen := make(map[string]bool, len(got))
	for _, msg := range got {
		assert.True(t, msg.ID.Pending())
		assert.False(t, seen[msg.ID.String()], "pending id collision: %s", msg.ID)
		seen[msg.ID.String()] = true
	}
}

func TestRemoteInsertFromOtherParticipantIsAppended(t *testing.T) {
	fb := &fakeBackend{}
	s, feed := newTestSession(t, fb)
	require.NoError(t, s.Activate(context.Background(), "u1"))

	var notifications int
	s.OnChange(func() { notifications++ })

	require.NoError(t, feed.Publish("messages", "7", model.MessageRow{
		Message:        msgAt(5, "oi, vizinho", time.Now()),
		ConversationID: 7,
	}))

	got := s.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "oi, vizinho", got[0].Content)
	assert.Equal(t, 1, notifications)
}

func TestRemoteInsertFromSelfIsDropped(t *testing.T) {
	fb := &fakeBackend{}
	s, feed := newTestSession(t, fb)
	require.NoError(t, s.Activate(context.Background(), "u1"))

	require.NoError(t, s.Send(context.Background(), "minha mensagem"))
	before := len(s.Messages())

	// The backend echoes the committed row; it must not duplicate the
	// optimistic entry.
	require.NoError(t, feed.Publish("messages", "7", model.MessageRow{
		Message: model.Message{
			ID:        model.ConfirmedID(9),
			Content:   "minha mensagem",
			SenderID:  "u1",
			CreatedAt: time.Now(),
		},
		ConversationID: 7,
	}))

	assert.Len(t, s.Messages(), before, "own-sender event must be suppressed")
}

func TestCloseStopsRemoteMerging(t *testing.T) {
	fb := &fakeBackend{}
	s, feed := newTestSession(t, fb)
	require.NoError(t, s.Activate(context.Background(), "u1"))

	s.Close()
	s.Close() // idempotent

	assert.Zero(t, feed.SubscriptionCount())
	require.NoError(t, feed.Publish("messages", "7", model.MessageRow{
		Message:        msgAt(5, "depois do fim", time.Now()),
		ConversationID: 7,
	}))
	assert.Empty(t, s.Messages())
}

func TestEndToEndDescendingLoadToDisplay(t *testing.T) {
	fb := &fakeBackend{rows: []model.Message{
		{ID: model.ConfirmedID(3), Content: "cheguei", SenderID: "u2", CreatedAt: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)},
		{ID: model.ConfirmedID(2), Content: "boa tarde", SenderID: "u1", CreatedAt: time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)},
		{ID: model.ConfirmedID(1), Content: "bom dia", SenderID: "u2", CreatedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
	}}
	s, _ := newTestSession(t, fb)
	s.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, s.Activate(context.Background(), "u1"))

	var items []DisplayItem
	for item := range s.Display() {
		items = append(items, item)
	}

	require.Len(t, items, 5)
	assert.Equal(t, "01 de janeiro de 2024", items[0].Label)
	assert.Equal(t, "bom dia", items[1].Message.Content)
	assert.Equal(t, "boa tarde", items[2].Message.Content)
	assert.Equal(t, "02 de janeiro de 2024", items[3].Label)
	assert.Equal(t, "cheguei", items[4].Message.Content)

	separators := 0
	for _, item := range items {
		if item.Kind == ItemSeparator {
			separators++
		}
	}
	assert.Equal(t, 2, separators)
}
