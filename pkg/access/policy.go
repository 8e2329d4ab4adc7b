package access

import "github.com/MoneTicket/monetai/internal/entity"

const sharePathPrefix = "/share/"

// Policy holds the visibility rules of a chat: the owner can do everything,
// anyone can read a chat that has a share path.
type Policy struct{}

func NewPolicy() *Policy {
	return &Policy{}
}

// IsOwner never matches an anonymous caller.
func (p *Policy) IsOwner(chat *entity.Chat, callerId string) bool {
	if chat == nil || callerId == "" {
		return false
	}
	return chat.OwnerId == callerId
}

func (p *Policy) IsPubliclyReadable(chat *entity.Chat) bool {
	return chat.IsShared()
}

func (p *Policy) CanRead(chat *entity.Chat, callerId string) bool {
	return p.IsPubliclyReadable(chat) || p.IsOwner(chat, callerId)
}

// SharePath is the canonical public path of a chat. Stable per id.
func (p *Policy) SharePath(id string) string {
	return sharePathPrefix + id
}
