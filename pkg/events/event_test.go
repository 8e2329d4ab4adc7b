package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChatEvent(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	evt := NewChatEvent(ChatDeleted, "u1", []string{"c1"}, at)

	assert.Equal(t, ChatDeleted, evt.EventType())
	assert.Equal(t, at, evt.Timestamp())
	assert.Equal(t, "u1", OwnerOf(evt))
	assert.Equal(t, []string{"c1"}, evt.Payload()["chat_ids"])
}

func TestOwnerOf_SurvivesTheWire(t *testing.T) {
	raw, err := json.Marshal(NewChatEvent(ChatHistoryCleared, "u1", nil, time.Now()))
	require.NoError(t, err)

	var decoded BaseEvent
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, ChatHistoryCleared, decoded.Type)
	assert.Equal(t, "u1", OwnerOf(decoded))
	assert.Equal(t, []interface{}{}, decoded.Data["chat_ids"])
}

func TestOwnerOf_Missing(t *testing.T) {
	assert.Equal(t, "", OwnerOf(BaseEvent{Type: "OTHER", Data: map[string]interface{}{}}))
}
