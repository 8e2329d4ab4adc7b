package implementation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"

	"github.com/MoneTicket/monetai/internal/domain"
	"github.com/MoneTicket/monetai/internal/entity"
	"github.com/MoneTicket/monetai/internal/mapper"
	"github.com/MoneTicket/monetai/internal/pkg/logger"
	"github.com/MoneTicket/monetai/internal/repository/contract"
	"github.com/MoneTicket/monetai/internal/repository/keyschema"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Optimistic transactions give up after this many lost WATCH races.
const maxWatchRetries = 3

const redisRepoModule = "ChatRepositoryRedis"

// ChatRepositoryRedis stores each chat as a hash under chat:{id} and keeps a
// sorted set per owner (score = last write, member = chat key).
type ChatRepositoryRedis struct {
	rdb     redis.UniversalClient
	mapper  *mapper.ChatMapper
	version string
	logger  logger.ILogger
	tracer  trace.Tracer
}

func NewChatRepositoryRedis(rdb redis.UniversalClient, version string, log logger.ILogger) contract.ChatRepository {
	if version == "" {
		version = keyschema.DefaultVersion
	}
	return &ChatRepositoryRedis{
		rdb:     rdb,
		mapper:  mapper.NewChatMapper(),
		version: version,
		logger:  log,
		tracer:  otel.Tracer("monetai/chat-repository-redis"),
	}
}

func (r *ChatRepositoryRedis) Put(ctx context.Context, chat *entity.Chat, ownerId string, score int64) (err error) {
	ctx, span := r.tracer.Start(ctx, "ChatRepository.Put", trace.WithAttributes(attribute.String("chat.id", chat.Id)))
	defer func() { finishSpan(span, err) }()

	fields, err := r.mapper.ChatToHash(chat, ownerId)
	if err != nil {
		return err
	}
	chatKey := keyschema.ChatKey(chat.Id)
	indexKey := keyschema.OwnerIndexKey(r.version, ownerId)

	return r.watch(ctx, func(tx *redis.Tx) error {
		storedOwner, err := tx.HGet(ctx, chatKey, mapper.FieldOwnerId).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if storedOwner != "" && storedOwner != ownerId {
			return fmt.Errorf("chat %s belongs to another owner: %w", chat.Id, domain.ErrUnauthorized)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, chatKey, hashArgs(fields))
			pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(score), Member: chatKey})
			return nil
		})
		return err
	}, chatKey)
}

func (r *ChatRepositoryRedis) SetSharePath(ctx context.Context, id, ownerId, path string) (err error) {
	ctx, span := r.tracer.Start(ctx, "ChatRepository.SetSharePath", trace.WithAttributes(attribute.String("chat.id", id)))
	defer func() { finishSpan(span, err) }()

	chatKey := keyschema.ChatKey(id)

	return r.watch(ctx, func(tx *redis.Tx) error {
		storedOwner, err := tx.HGet(ctx, chatKey, mapper.FieldOwnerId).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		// Writing a vanished record would leave a hash with no index entry
		if storedOwner == "" {
			return fmt.Errorf("chat %s: %w", id, domain.ErrNotFound)
		}
		if storedOwner != ownerId {
			return fmt.Errorf("chat %s belongs to another owner: %w", id, domain.ErrUnauthorized)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, chatKey, mapper.FieldSharePath, path)
			return nil
		})
		return err
	}, chatKey)
}

func (r *ChatRepositoryRedis) FindByID(ctx context.Context, id string) (_ *entity.Chat, err error) {
	ctx, span := r.tracer.Start(ctx, "ChatRepository.FindByID", trace.WithAttributes(attribute.String("chat.id", id)))
	defer func() { finishSpan(span, err) }()

	fields, err := r.rdb.HGetAll(ctx, keyschema.ChatKey(id)).Result()
	if err != nil {
		return nil, classify(err)
	}
	return r.decode(fields), nil
}

func (r *ChatRepositoryRedis) DeleteByID(ctx context.Context, id, ownerId string) (err error) {
	ctx, span := r.tracer.Start(ctx, "ChatRepository.DeleteByID", trace.WithAttributes(attribute.String("chat.id", id)))
	defer func() { finishSpan(span, err) }()

	chatKey := keyschema.ChatKey(id)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, chatKey)
		pipe.ZRem(ctx, keyschema.OwnerIndexKey(r.version, ownerId), chatKey)
		return nil
	})
	return classify(err)
}

func (r *ChatRepositoryRedis) FindPageByOwner(ctx context.Context, ownerId string, offset, limit int) (_ []*entity.Chat, _ int, err error) {
	ctx, span := r.tracer.Start(ctx, "ChatRepository.FindPageByOwner", trace.WithAttributes(
		attribute.Int("page.offset", offset),
		attribute.Int("page.limit", limit),
	))
	defer func() { finishSpan(span, err) }()

	start := int64(offset)
	stop := int64(-1)
	// a window past MaxInt64 reads to the end of the index
	if limit > 0 && int64(limit) <= math.MaxInt64-start {
		stop = start + int64(limit) - 1
	}

	keys, err := r.rdb.ZRevRange(ctx, keyschema.OwnerIndexKey(r.version, ownerId), start, stop).Result()
	if err != nil {
		return nil, 0, classify(err)
	}
	if len(keys) == 0 {
		return []*entity.Chat{}, 0, nil
	}

	// Plain pipeline: a failed entry must not sink the others
	cmds, pipeErr := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.HGetAll(ctx, key)
		}
		return nil
	})

	chats := make([]*entity.Chat, 0, len(keys))
	failed := 0
	for i, cmd := range cmds {
		fields, err := cmd.(*redis.MapStringStringCmd).Result()
		if err != nil {
			failed++
			r.logger.Warn(redisRepoModule, "Skipping unreadable chat", map[string]interface{}{"key": keys[i], "error": err.Error()})
			continue
		}
		chat := r.decode(fields)
		if chat == nil {
			continue
		}
		if chat.OwnerId != ownerId {
			r.logger.Warn(redisRepoModule, "Skipping chat indexed under the wrong owner", map[string]interface{}{"key": keys[i], "owner_id": ownerId})
			continue
		}
		chats = append(chats, chat)
	}

	if failed == len(keys) && pipeErr != nil {
		return nil, 0, classify(pipeErr)
	}
	return chats, len(keys), nil
}

func (r *ChatRepositoryRedis) DeleteAllByOwner(ctx context.Context, ownerId string) (ids []string, err error) {
	ctx, span := r.tracer.Start(ctx, "ChatRepository.DeleteAllByOwner")
	defer func() { finishSpan(span, err) }()

	indexKey := keyschema.OwnerIndexKey(r.version, ownerId)

	// WATCH the index so a concurrent save cannot slip a chat in between the
	// read and the delete and end up without an index entry.
	err = r.watch(ctx, func(tx *redis.Tx) error {
		keys, err := tx.ZRange(ctx, indexKey, 0, -1).Result()
		if err != nil {
			return err
		}
		ids = ids[:0]
		if len(keys) == 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			pipe.Del(ctx, indexKey)
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if id, ok := keyschema.ChatIdFromKey(key); ok {
				ids = append(ids, id)
			}
		}
		return nil
	}, indexKey)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *ChatRepositoryRedis) decode(fields map[string]string) *entity.Chat {
	chat, err := r.mapper.HashToChat(fields)
	if err != nil {
		r.logger.Warn(redisRepoModule, "Corrupt chat transcript, serving it without messages", map[string]interface{}{"error": err.Error()})
	}
	return chat
}

func (r *ChatRepositoryRedis) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return classify(err)
		}
		r.logger.Debug(redisRepoModule, "Optimistic transaction lost a race, retrying", map[string]interface{}{"keys": keys, "attempt": attempt + 1})
	}
	return fmt.Errorf("watch %v: too much contention: %w", keys, domain.ErrUnknown)
}

// classify keeps domain errors as they are and sorts raw client errors into
// ErrNotConfigured (cannot reach Redis) or ErrUnknown.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{domain.ErrUnauthorized, domain.ErrNotFound, domain.ErrValidation, domain.ErrUnknown, domain.ErrNotConfigured} {
		if errors.Is(err, known) {
			return err
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("redis: %w: %w", domain.ErrNotConfigured, err)
	}
	return fmt.Errorf("redis: %w: %w", domain.ErrUnknown, err)
}

func hashArgs(fields map[string]string) map[string]interface{} {
	args := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		args[k] = v
	}
	return args
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
