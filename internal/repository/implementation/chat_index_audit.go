package implementation

import (
	"context"
	"errors"

	"github.com/MoneTicket/monetai/internal/mapper"
	"github.com/MoneTicket/monetai/internal/repository/keyschema"

	"github.com/redis/go-redis/v9"
)

// IndexReport lists owner index entries that break the one-owner invariant.
type IndexReport struct {
	Entries int
	// Orphans are index members whose chat hash no longer exists.
	Orphans []string
	// Foreign are chats indexed for this owner but stored under another.
	Foreign []string
	// Invalid are members that are not chat keys at all.
	Invalid []string
}

func (r IndexReport) Healthy() bool {
	return len(r.Orphans) == 0 && len(r.Foreign) == 0 && len(r.Invalid) == 0
}

// AuditOwnerIndex walks one owner index and checks every member against its
// chat hash. Read only.
func AuditOwnerIndex(ctx context.Context, rdb redis.UniversalClient, version, ownerId string) (IndexReport, error) {
	members, err := rdb.ZRange(ctx, keyschema.OwnerIndexKey(version, ownerId), 0, -1).Result()
	if err != nil {
		return IndexReport{}, classify(err)
	}

	report := IndexReport{Entries: len(members)}
	var keys []string
	for _, member := range members {
		if _, ok := keyschema.ChatIdFromKey(member); !ok {
			report.Invalid = append(report.Invalid, member)
			continue
		}
		keys = append(keys, member)
	}
	if len(keys) == 0 {
		return report, nil
	}

	cmds, pipeErr := rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.HGet(ctx, key, mapper.FieldOwnerId)
		}
		return nil
	})

	failed := 0
	for i, cmd := range cmds {
		owner, err := cmd.(*redis.StringCmd).Result()
		switch {
		case errors.Is(err, redis.Nil):
			report.Orphans = append(report.Orphans, keys[i])
		case err != nil:
			failed++
			report.Invalid = append(report.Invalid, keys[i])
		case owner != ownerId:
			report.Foreign = append(report.Foreign, keys[i])
		}
	}
	if failed == len(keys) && pipeErr != nil {
		return IndexReport{}, classify(pipeErr)
	}
	return report, nil
}
