package mapper

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/MoneTicket/monetai/internal/domain"
	"github.com/MoneTicket/monetai/internal/entity"
	"github.com/MoneTicket/monetai/internal/model"

	"gorm.io/datatypes"
)

// Hash field names of a stored chat.
const (
	FieldId        = "id"
	FieldOwnerId   = "ownerId"
	FieldTitle     = "title"
	FieldPath      = "path"
	FieldMessages  = "messages"
	FieldCreatedAt = "createdAt"
	FieldSharePath = "sharePath"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Hash Mappers

// ChatToHash flattens a chat into hash fields. The owner always comes from
// ownerId, never from chat.OwnerId.
func (m *ChatMapper) ChatToHash(chat *entity.Chat, ownerId string) (map[string]string, error) {
	messages, err := encodeMessages(chat.Messages)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{
		FieldId:       chat.Id,
		FieldOwnerId:  ownerId,
		FieldMessages: messages,
	}
	if !chat.CreatedAt.IsZero() {
		fields[FieldCreatedAt] = chat.CreatedAt.Format(time.RFC3339Nano)
	}
	if chat.SharePath != "" {
		fields[FieldSharePath] = chat.SharePath
	}
	if chat.Title != "" {
		fields[FieldTitle] = chat.Title
	}
	if chat.Path != "" {
		fields[FieldPath] = chat.Path
	}
	return fields, nil
}

// HashToChat rebuilds a chat from its hash fields. An empty map means the
// record does not exist and yields nil. A corrupt transcript still yields a
// usable chat (with no messages) together with an error wrapping
// domain.ErrMalformed, so callers can log it and carry on.
func (m *ChatMapper) HashToChat(fields map[string]string) (*entity.Chat, error) {
	if len(fields) == 0 {
		return nil, nil
	}

	chat := &entity.Chat{
		Id:        fields[FieldId],
		OwnerId:   fields[FieldOwnerId],
		Title:     fields[FieldTitle],
		Path:      fields[FieldPath],
		SharePath: fields[FieldSharePath],
	}
	if ts, ok := parseTimestamp(fields[FieldCreatedAt]); ok {
		chat.CreatedAt = ts
	}

	raw, present := fields[FieldMessages]
	if !present {
		chat.Messages = []entity.Message{}
		return chat, fmt.Errorf("chat %s has no messages field: %w", chat.Id, domain.ErrMalformed)
	}
	messages, err := decodeMessages([]byte(raw))
	chat.Messages = messages
	if err != nil {
		return chat, fmt.Errorf("chat %s: %w", chat.Id, err)
	}
	return chat, nil
}

// Relational Mappers

func (m *ChatMapper) ChatToModel(chat *entity.Chat, ownerId string, score int64) (*model.Chat, error) {
	messages, err := encodeMessages(chat.Messages)
	if err != nil {
		return nil, err
	}

	var createdAt *time.Time
	if !chat.CreatedAt.IsZero() {
		t := chat.CreatedAt
		createdAt = &t
	}

	var sharePath *string
	if chat.SharePath != "" {
		s := chat.SharePath
		sharePath = &s
	}

	return &model.Chat{
		Id:        chat.Id,
		OwnerId:   ownerId,
		Title:     chat.Title,
		Path:      chat.Path,
		Messages:  datatypes.JSON(messages),
		CreatedAt: createdAt,
		SharePath: sharePath,
		Score:     score,
	}, nil
}

// ModelToChat follows the same tolerance rules as HashToChat.
func (m *ChatMapper) ModelToChat(c *model.Chat) (*entity.Chat, error) {
	if c == nil {
		return nil, nil
	}

	chat := &entity.Chat{
		Id:      c.Id,
		OwnerId: c.OwnerId,
		Title:   c.Title,
		Path:    c.Path,
	}
	if c.CreatedAt != nil {
		chat.CreatedAt = *c.CreatedAt
	}
	if c.SharePath != nil {
		chat.SharePath = *c.SharePath
	}

	messages, err := decodeMessages(c.Messages)
	chat.Messages = messages
	if err != nil {
		return chat, fmt.Errorf("chat %s: %w", chat.Id, err)
	}
	return chat, nil
}

func encodeMessages(messages []entity.Message) (string, error) {
	if messages == nil {
		messages = []entity.Message{}
	}
	b, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("encode messages: %v: %w", err, domain.ErrValidation)
	}
	return string(b), nil
}

func decodeMessages(raw []byte) ([]entity.Message, error) {
	var messages []entity.Message
	if len(raw) == 0 {
		return []entity.Message{}, fmt.Errorf("empty messages field: %w", domain.ErrMalformed)
	}
	if err := json.Unmarshal(raw, &messages); err != nil {
		return []entity.Message{}, fmt.Errorf("decode messages: %v: %w", err, domain.ErrMalformed)
	}
	if messages == nil {
		messages = []entity.Message{}
	}
	return messages, nil
}

// parseTimestamp accepts RFC3339 strings and Unix milliseconds.
func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}
