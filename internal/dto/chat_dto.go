package dto

import (
	"time"

	"github.com/MoneTicket/monetai/internal/entity"
)

type ChatMessage struct {
	Id              string                  `json:"id,omitempty"`
	Role            string                  `json:"role" validate:"required,oneof=user assistant system tool"`
	Content         string                  `json:"content"`
	ToolInvocations []entity.ToolInvocation `json:"toolInvocations,omitempty"`
	CreatedAt       *time.Time              `json:"createdAt,omitempty"`
}

// SaveChatRequest is the full transcript after a turn; the id comes from the path.
type SaveChatRequest struct {
	Id        string        `json:"-"`
	Title     string        `json:"title" validate:"max=512"`
	Path      string        `json:"path" validate:"max=1024"`
	CreatedAt *time.Time    `json:"createdAt"`
	Messages  []ChatMessage `json:"messages" validate:"required,dive"`
}

type ChatResponse struct {
	Id        string        `json:"id"`
	OwnerId   string        `json:"ownerId"`
	Title     string        `json:"title,omitempty"`
	Path      string        `json:"path,omitempty"`
	CreatedAt *time.Time    `json:"createdAt,omitempty"`
	Messages  []ChatMessage `json:"messages"`
	SharePath string        `json:"sharePath,omitempty"`
}

type ChatListResponse struct {
	Chats []ChatResponse `json:"chats"`
}

// ChatPageResponse carries nextOffset as null when there is no further page.
type ChatPageResponse struct {
	Chats      []ChatResponse `json:"chats"`
	NextOffset *int           `json:"nextOffset"`
}
