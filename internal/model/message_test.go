package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingIDsNeverCollideWithConfirmedSpace(t *testing.T) {
	id := NewPendingID()
	assert.True(t, id.Pending())
	assert.Zero(t, id.Serial)
	assert.False(t, id.Equal(ConfirmedID(1)))

	confirmed := ConfirmedID(42)
	assert.False(t, confirmed.Pending())
	assert.Equal(t, "42", confirmed.String())
}

func TestMessageDecodesBackendRow(t *testing.T) {
	raw := `{"id":17,"content":"oi","sender_id":"u2","created_at":"2024-01-02T09:00:00Z"}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	assert.Equal(t, int64(17), msg.ID.Serial)
	assert.False(t, msg.ID.Pending())
	assert.Equal(t, "oi", msg.Content)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), msg.CreatedAt)
}

func TestMessageIDRoundTripsPendingForm(t *testing.T) {
	original := NewPendingID()

	encoded, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), "local:")

	var decoded MessageID
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.True(t, decoded.Pending())
	assert.True(t, original.Equal(decoded))
}

func TestMessageIDRejectsGarbage(t *testing.T) {
	var id MessageID
	assert.Error(t, json.Unmarshal([]byte(`"not-a-uuid"`), &id))
	assert.Error(t, json.Unmarshal([]byte(`{"nested":true}`), &id))
}

func TestConversationPreviewAndRecipient(t *testing.T) {
	content := "combinado!"
	conv := Conversation{
		ID:                       7,
		OtherParticipantID:       "u2",
		OtherParticipantFullName: "Maria",
		LastMessageContent:       &content,
	}
	assert.Equal(t, "combinado!", conv.Preview())
	assert.Equal(t, "Maria", conv.Recipient().FullName)

	assert.Equal(t, "Inicie a conversa!", Conversation{}.Preview())
}
