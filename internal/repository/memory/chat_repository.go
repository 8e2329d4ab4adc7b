package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/MoneTicket/monetai/internal/domain"
	"github.com/MoneTicket/monetai/internal/entity"
	"github.com/MoneTicket/monetai/internal/mapper"
	"github.com/MoneTicket/monetai/internal/repository/contract"
)

// ChatRepository is an in-process stand-in for the Redis layout: one field map
// per chat and one score map per owner, with a single mutex playing the part
// of MULTI/EXEC. Used by tests and by CHAT_STORE=memory for local runs.
type ChatRepository struct {
	mu      sync.RWMutex
	mapper  *mapper.ChatMapper
	records map[string]map[string]string // chat id -> hash fields
	indexes map[string]map[string]int64  // owner id -> chat id -> score
}

func NewChatRepository() *ChatRepository {
	return &ChatRepository{
		mapper:  mapper.NewChatMapper(),
		records: make(map[string]map[string]string),
		indexes: make(map[string]map[string]int64),
	}
}

var _ contract.ChatRepository = (*ChatRepository)(nil)

func (r *ChatRepository) Put(ctx context.Context, chat *entity.Chat, ownerId string, score int64) error {
	fields, err := r.mapper.ChatToHash(chat, ownerId)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[chat.Id]
	if ok && existing[mapper.FieldOwnerId] != ownerId {
		return fmt.Errorf("chat %s belongs to another owner: %w", chat.Id, domain.ErrUnauthorized)
	}
	r.merge(chat.Id, fields)

	index, ok := r.indexes[ownerId]
	if !ok {
		index = make(map[string]int64)
		r.indexes[ownerId] = index
	}
	index[chat.Id] = score
	return nil
}

func (r *ChatRepository) SetSharePath(ctx context.Context, id, ownerId, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return fmt.Errorf("chat %s: %w", id, domain.ErrNotFound)
	}
	if record[mapper.FieldOwnerId] != ownerId {
		return fmt.Errorf("chat %s belongs to another owner: %w", id, domain.ErrUnauthorized)
	}
	record[mapper.FieldSharePath] = path
	return nil
}

func (r *ChatRepository) FindByID(ctx context.Context, id string) (*entity.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chat, _ := r.mapper.HashToChat(r.records[id])
	return chat, nil
}

func (r *ChatRepository) DeleteByID(ctx context.Context, id, ownerId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, id)
	if index, ok := r.indexes[ownerId]; ok {
		delete(index, id)
		if len(index) == 0 {
			delete(r.indexes, ownerId)
		}
	}
	return nil
}

func (r *ChatRepository) FindPageByOwner(ctx context.Context, ownerId string, offset, limit int) ([]*entity.Chat, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.rankedIds(ownerId)
	if offset >= len(ids) {
		return []*entity.Chat{}, 0, nil
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	chats := make([]*entity.Chat, 0, len(ids))
	for _, id := range ids {
		chat, _ := r.mapper.HashToChat(r.records[id])
		if chat == nil {
			continue
		}
		chats = append(chats, chat)
	}
	return chats, len(ids), nil
}

func (r *ChatRepository) DeleteAllByOwner(ctx context.Context, ownerId string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := r.indexes[ownerId]
	if len(index) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(index))
	for id := range index {
		delete(r.records, id)
		ids = append(ids, id)
	}
	delete(r.indexes, ownerId)
	return ids, nil
}

// merge mimics HSET: given fields overwrite, the rest stay.
func (r *ChatRepository) merge(id string, fields map[string]string) {
	record, ok := r.records[id]
	if !ok {
		record = make(map[string]string, len(fields))
		r.records[id] = record
	}
	for k, v := range fields {
		record[k] = v
	}
}

// rankedIds orders by score descending, ties broken by id descending like ZREVRANGE.
func (r *ChatRepository) rankedIds(ownerId string) []string {
	index := r.indexes[ownerId]
	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := index[ids[i]], index[ids[j]]
		if si != sj {
			return si > sj
		}
		return ids[i] > ids[j]
	})
	return ids
}
