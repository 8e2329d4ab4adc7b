package memory

import (
	"time"

	"github.com/MoneTicket/monetai/internal/entity"

	"github.com/patrickmn/go-cache"
)

// SharedChatCache keeps recently served shared chats for the public share-link
// path. A ttl <= 0 disables it.
type SharedChatCache struct {
	cache *cache.Cache
}

func NewSharedChatCache(ttl time.Duration) *SharedChatCache {
	if ttl <= 0 {
		return &SharedChatCache{}
	}
	return &SharedChatCache{
		cache: cache.New(ttl, 2*ttl),
	}
}

func (r *SharedChatCache) Save(chat *entity.Chat) {
	if r.cache == nil || !chat.IsShared() {
		return
	}
	r.cache.Set(chat.Id, clone(chat), cache.DefaultExpiration)
}

func (r *SharedChatCache) Get(id string) (*entity.Chat, bool) {
	if r.cache == nil {
		return nil, false
	}
	if x, found := r.cache.Get(id); found {
		return clone(x.(*entity.Chat)), true
	}
	return nil, false
}

func (r *SharedChatCache) Delete(ids ...string) {
	if r.cache == nil {
		return
	}
	for _, id := range ids {
		r.cache.Delete(id)
	}
}

func clone(chat *entity.Chat) *entity.Chat {
	c := *chat
	c.Messages = make([]entity.Message, len(chat.Messages))
	copy(c.Messages, chat.Messages)
	return &c
}
