package entity

import (
	"encoding/json"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Chat is one transcript owned by exactly one user.
type Chat struct {
	Id        string
	OwnerId   string
	Title     string
	Path      string
	Messages  []Message
	CreatedAt time.Time // zero means unset
	SharePath string    // empty means private
}

func (c *Chat) IsShared() bool {
	return c != nil && c.SharePath != ""
}

type Message struct {
	Id              string           `json:"id,omitempty"`
	Role            string           `json:"role"`
	Content         string           `json:"content"`
	ToolInvocations []ToolInvocation `json:"toolInvocations,omitempty"`
	CreatedAt       *time.Time       `json:"createdAt,omitempty"`
}

// ToolInvocation is the structured tool-call payload attached to an assistant turn.
type ToolInvocation struct {
	ToolCallId string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	State      string          `json:"state,omitempty"` // "call" | "result"
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}
