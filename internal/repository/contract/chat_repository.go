package contract

import (
	"context"

	"github.com/MoneTicket/monetai/internal/entity"
)

// ChatRepository keeps chat records together with their per-owner recency
// index. Implementations must apply every multi-record write atomically: a
// record is never observable without its index entry, or the reverse.
type ChatRepository interface {
	// Put writes the record and upserts its index entry with the given score.
	// Fails with domain.ErrUnauthorized when the id belongs to another owner.
	Put(ctx context.Context, chat *entity.Chat, ownerId string, score int64) error
	// SetSharePath marks an existing record as shared and leaves every other
	// field and the index entry untouched. Fails with domain.ErrNotFound when
	// the record is gone and domain.ErrUnauthorized when ownerId does not own it.
	SetSharePath(ctx context.Context, id, ownerId, path string) error
	// FindByID returns nil, nil when the record does not exist.
	FindByID(ctx context.Context, id string) (*entity.Chat, error)
	// DeleteByID removes the record and its entry in ownerId's index.
	DeleteByID(ctx context.Context, id, ownerId string) error
	// FindPageByOwner walks the owner's index most-recent-first. limit <= 0
	// returns everything from offset. scanned is the number of index entries
	// read, which can exceed len(chats) when records are missing or corrupt.
	FindPageByOwner(ctx context.Context, ownerId string, offset, limit int) (chats []*entity.Chat, scanned int, err error)
	// DeleteAllByOwner removes every record in the owner's index and the index
	// itself, returning the removed ids.
	DeleteAllByOwner(ctx context.Context, ownerId string) ([]string, error)
}
