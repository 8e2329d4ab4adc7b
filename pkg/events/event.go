package events

import "time"

// Chat history event types.
const (
	ChatSaved          = "CHAT_SAVED"
	ChatDeleted        = "CHAT_DELETED"
	ChatHistoryCleared = "CHAT_HISTORY_CLEARED"
	ChatShared         = "CHAT_SHARED"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "CHAT_SAVED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is also the wire envelope on the event bus.
type BaseEvent struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// NewChatEvent describes a change to ownerId's chat history.
func NewChatEvent(eventType, ownerId string, chatIds []string, occurredAt time.Time) BaseEvent {
	if chatIds == nil {
		chatIds = []string{}
	}
	return BaseEvent{
		Type: eventType,
		Data: map[string]interface{}{
			"owner_id": ownerId,
			"chat_ids": chatIds,
		},
		OccurredAt: occurredAt,
	}
}

// OwnerOf returns the owner id carried by a chat event, or "".
func OwnerOf(e Event) string {
	owner, _ := e.Payload()["owner_id"].(string)
	return owner
}
