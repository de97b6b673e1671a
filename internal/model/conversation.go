package model

import (
	"time"
)

// Profile is the public slice of a user account.
type Profile struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	City      string `json:"city,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Conversation is one row of the conversation list as returned by the
// get_user_conversations backend procedure: the other participant plus a
// denormalized last-message preview.
type Conversation struct {
	ID                        int64      `json:"id"`
	OtherParticipantID        string     `json:"other_participant_id"`
	OtherParticipantFullName  string     `json:"other_participant_full_name"`
	OtherParticipantAvatarURL string     `json:"other_participant_avatar_url"`
	LastMessageContent        *string    `json:"last_message_content"`
	LastMessageAt             *time.Time `json:"last_message_at"`
}

// Recipient returns the other participant as a profile.
func (c Conversation) Recipient() Profile {
	return Profile{
		ID:        c.OtherParticipantID,
		FullName:  c.OtherParticipantFullName,
		AvatarURL: c.OtherParticipantAvatarURL,
	}
}

// Preview returns the last-message text, or a placeholder when the
// conversation has no messages yet.
func (c Conversation) Preview() string {
	if c.LastMessageContent == nil || *c.LastMessageContent == "" {
		return "Inicie a conversa!"
	}
	return *c.LastMessageContent
}
