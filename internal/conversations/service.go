// Package conversations provides the conversation list: the user's active
// threads with last-message previews, refreshed as new messages land.
package conversations

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/comunihub/marketplace-client/internal/model"
	"github.com/comunihub/marketplace-client/internal/realtime"
	"github.com/comunihub/marketplace-client/pkg/logger"
)

// Backend is the slice of the backend client the service uses.
type Backend interface {
	RPC(ctx context.Context, fn string, args any, dest any) error
}

// Service handles conversation list operations.
type Service struct {
	backend Backend
	feed    realtime.Feed
	logger  *logger.Logger
}

// NewService creates a conversation service.
func NewService(b Backend, feed realtime.Feed, log *logger.Logger) *Service {
	return &Service{backend: b, feed: feed, logger: log}
}

// List fetches the user's conversations through the server-side aggregate,
// which joins the other participant's profile and the last-message preview.
func (s *Service) List(ctx context.Context) ([]model.Conversation, error) {
	var conversations []model.Conversation
	if err := s.backend.RPC(ctx, "get_user_conversations", nil, &conversations); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

// StartWith returns the conversation with another user, creating it when
// none exists yet.
func (s *Service) StartWith(ctx context.Context, otherUserID string) (int64, error) {
	args := map[string]string{"other_user_id": otherUserID}
	var conversationID int64
	if err := s.backend.RPC(ctx, "get_or_create_conversation", args, &conversationID); err != nil {
		return 0, fmt.Errorf("failed to open conversation: %w", err)
	}
	return conversationID, nil
}

// Watch subscribes table-wide to message inserts and invokes onChange for
// each one, so the caller can refresh the list. The payload itself is not
// inspected; the refreshed list comes from the backend aggregate.
func (s *Service) Watch(ctx context.Context, onChange func()) (realtime.Subscription, error) {
	sub, err := s.feed.SubscribeInserts(ctx, "messages", "", func(realtime.InsertEvent) {
		onChange()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch conversations: %w", err)
	}
	s.logger.Debug("watching conversation list", zap.String("table", "messages"))
	return sub, nil
}
