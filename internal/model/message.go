// Package model defines data structures shared by the marketplace client.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageID identifies a message. Confirmed messages carry the backend's
// serial id; optimistic messages carry a locally generated UUID until the
// backend acknowledges them. The two spaces can never collide.
type MessageID struct {
	Serial int64
	Local  uuid.UUID
}

// NewPendingID returns an id for an optimistic, not-yet-confirmed message.
func NewPendingID() MessageID {
	return MessageID{Local: uuid.Must(uuid.NewV7())}
}

// ConfirmedID returns an id for a backend-assigned row.
func ConfirmedID(serial int64) MessageID {
	return MessageID{Serial: serial}
}

// Pending reports whether the message has not been confirmed by the backend.
func (id MessageID) Pending() bool {
	return id.Serial == 0
}

// Equal reports whether two ids refer to the same message.
func (id MessageID) Equal(other MessageID) bool {
	return id.Serial == other.Serial && id.Local == other.Local
}

func (id MessageID) String() string {
	if id.Pending() {
		return "local:" + id.Local.String()
	}
	return fmt.Sprintf("%d", id.Serial)
}

// MarshalJSON writes the serial id as a number, or the local id as a string.
func (id MessageID) MarshalJSON() ([]byte, error) {
	if id.Pending() {
		return json.Marshal(id.String())
	}
	return json.Marshal(id.Serial)
}

// UnmarshalJSON accepts the backend's numeric id or a local string id.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	var serial int64
	if err := json.Unmarshal(data, &serial); err == nil {
		*id = MessageID{Serial: serial}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("message id must be a number or string: %w", err)
	}
	local, err := uuid.Parse(strings.TrimPrefix(s, "local:"))
	if err != nil {
		return fmt.Errorf("invalid local message id %q: %w", s, err)
	}
	*id = MessageID{Local: local}
	return nil
}

// Message is one entry of a conversation. The conversation scope is held by
// the owning session, not repeated per message.
type Message struct {
	ID        MessageID `json:"id"`
	Content   string    `json:"content"`
	SenderID  string    `json:"sender_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageRow is the messages table shape as the backend stores it, used
// where the conversation scope must travel with the message (inserts and
// change-feed payloads).
type MessageRow struct {
	Message
	ConversationID int64 `json:"conversation_id"`
}
