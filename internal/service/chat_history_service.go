package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MoneTicket/monetai/internal/domain"
	"github.com/MoneTicket/monetai/internal/entity"
	"github.com/MoneTicket/monetai/internal/pkg/logger"
	"github.com/MoneTicket/monetai/internal/repository/contract"
	"github.com/MoneTicket/monetai/internal/repository/memory"
	"github.com/MoneTicket/monetai/pkg/access"
	"github.com/MoneTicket/monetai/pkg/events"
)

const (
	chatHistoryModule = "ChatHistoryService"
	defaultPageSize   = 20
	maxPageSize       = 100
)

// ChatPage is one slice of an owner's history. NextOffset is nil when the
// index ran out before the page filled.
type ChatPage struct {
	Chats      []*entity.Chat
	NextOffset *int
}

type IChatHistoryService interface {
	List(ctx context.Context, ownerId string) ([]*entity.Chat, error)
	ListPage(ctx context.Context, ownerId string, limit, offset int) (*ChatPage, error)
	Get(ctx context.Context, id, callerId string) (*entity.Chat, error)
	GetShared(ctx context.Context, id string) (*entity.Chat, error)
	Save(ctx context.Context, chat *entity.Chat, ownerId string) error
	Delete(ctx context.Context, id, ownerId string) error
	ClearAll(ctx context.Context, ownerId string) error
	Share(ctx context.Context, id, ownerId string) (*entity.Chat, error)
}

type ChatHistoryOptions struct {
	PageSize          int
	EnableSaveHistory bool
}

type chatHistoryService struct {
	repo           contract.ChatRepository
	policy         *access.Policy
	sharedCache    *memory.SharedChatCache
	eventPublisher IPublisherService
	logger         logger.ILogger
	pageSize       int
	saveEnabled    bool
	now            func() time.Time
}

// NewChatHistoryService wires the store. sharedCache and eventPublisher may be nil.
func NewChatHistoryService(
	repo contract.ChatRepository,
	sharedCache *memory.SharedChatCache,
	eventPublisher IPublisherService,
	log logger.ILogger,
	opts ChatHistoryOptions,
) IChatHistoryService {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if sharedCache == nil {
		sharedCache = memory.NewSharedChatCache(0)
	}
	return &chatHistoryService{
		repo:           repo,
		policy:         access.NewPolicy(),
		sharedCache:    sharedCache,
		eventPublisher: eventPublisher,
		logger:         log,
		pageSize:       pageSize,
		saveEnabled:    opts.EnableSaveHistory,
		now:            time.Now,
	}
}

func (s *chatHistoryService) List(ctx context.Context, ownerId string) ([]*entity.Chat, error) {
	if ownerId == "" {
		return []*entity.Chat{}, nil
	}

	chats, _, err := s.repo.FindPageByOwner(ctx, ownerId, 0, 0)
	if err != nil {
		if err := s.degradeRead("list", ownerId, err); err != nil {
			return nil, err
		}
		return []*entity.Chat{}, nil
	}
	return chats, nil
}

func (s *chatHistoryService) ListPage(ctx context.Context, ownerId string, limit, offset int) (*ChatPage, error) {
	if ownerId == "" {
		return &ChatPage{Chats: []*entity.Chat{}}, nil
	}
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	if offset > math.MaxInt-limit {
		return &ChatPage{Chats: []*entity.Chat{}}, nil
	}

	chats, scanned, err := s.repo.FindPageByOwner(ctx, ownerId, offset, limit)
	if err != nil {
		if err := s.degradeRead("list page", ownerId, err); err != nil {
			return nil, err
		}
		return &ChatPage{Chats: []*entity.Chat{}}, nil
	}

	page := &ChatPage{Chats: chats}
	if scanned == limit {
		next := offset + limit
		page.NextOffset = &next
	}
	return page, nil
}

// degradeRead logs a listing failure and returns the error only when the store
// is unreachable; anything else is served as an empty history.
func (s *chatHistoryService) degradeRead(op, ownerId string, err error) error {
	s.logger.Error(chatHistoryModule, "Failed to "+op+" chats", map[string]interface{}{
		"owner_id": ownerId,
		"error":    err.Error(),
	})
	if errors.Is(err, domain.ErrNotConfigured) {
		return err
	}
	return nil
}

func (s *chatHistoryService) Get(ctx context.Context, id, callerId string) (*entity.Chat, error) {
	chat, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.logger.Error(chatHistoryModule, "Failed to get chat", map[string]interface{}{"chat_id": id, "error": err.Error()})
		return nil, fmt.Errorf("get chat %s: %w", id, err)
	}
	if !s.policy.CanRead(chat, callerId) {
		return nil, nil
	}
	return chat, nil
}

func (s *chatHistoryService) GetShared(ctx context.Context, id string) (*entity.Chat, error) {
	if cached, ok := s.sharedCache.Get(id); ok {
		return cached, nil
	}

	chat, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.logger.Error(chatHistoryModule, "Failed to get shared chat", map[string]interface{}{"chat_id": id, "error": err.Error()})
		return nil, fmt.Errorf("get shared chat %s: %w", id, err)
	}
	if !s.policy.IsPubliclyReadable(chat) {
		return nil, nil
	}
	s.sharedCache.Save(chat)
	return chat, nil
}

func (s *chatHistoryService) Save(ctx context.Context, chat *entity.Chat, ownerId string) error {
	if ownerId == "" || !s.saveEnabled {
		return nil
	}
	if chat == nil || chat.Id == "" {
		return fmt.Errorf("save chat: missing id: %w", domain.ErrValidation)
	}

	if err := s.repo.Put(ctx, chat, ownerId, s.now().UnixMilli()); err != nil {
		return s.mutationFailed("save", chat.Id, ownerId, err)
	}

	s.sharedCache.Delete(chat.Id)
	s.publish(ctx, events.ChatSaved, ownerId, chat.Id)
	return nil
}

func (s *chatHistoryService) Delete(ctx context.Context, id, ownerId string) error {
	if ownerId == "" {
		return fmt.Errorf("delete chat %s: %w", id, domain.ErrUnauthorized)
	}

	chat, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return s.mutationFailed("delete", id, ownerId, err)
	}
	if chat == nil {
		return nil
	}
	if !s.policy.IsOwner(chat, ownerId) {
		return s.mutationFailed("delete", id, ownerId, domain.ErrUnauthorized)
	}

	if err := s.repo.DeleteByID(ctx, id, ownerId); err != nil {
		return s.mutationFailed("delete", id, ownerId, err)
	}

	s.sharedCache.Delete(id)
	s.publish(ctx, events.ChatDeleted, ownerId, id)
	return nil
}

func (s *chatHistoryService) ClearAll(ctx context.Context, ownerId string) error {
	if ownerId == "" {
		return fmt.Errorf("clear chats: %w", domain.ErrUnauthorized)
	}

	removed, err := s.repo.DeleteAllByOwner(ctx, ownerId)
	if err != nil {
		return s.mutationFailed("clear", "*", ownerId, err)
	}
	if len(removed) == 0 {
		return nil
	}

	s.sharedCache.Delete(removed...)
	s.publish(ctx, events.ChatHistoryCleared, ownerId, removed...)
	s.logger.Info(chatHistoryModule, "Chat history cleared", map[string]interface{}{
		"owner_id": ownerId,
		"count":    len(removed),
	})
	return nil
}

func (s *chatHistoryService) Share(ctx context.Context, id, ownerId string) (*entity.Chat, error) {
	if ownerId == "" {
		return nil, nil
	}

	chat, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mutationFailed("share", id, ownerId, err)
	}
	if chat == nil || !s.policy.IsOwner(chat, ownerId) {
		return nil, nil
	}

	// only the share field is written, concurrent saves keep their transcript
	path := s.policy.SharePath(id)
	if err := s.repo.SetSharePath(ctx, id, ownerId, path); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, s.mutationFailed("share", id, ownerId, err)
	}

	shared, err := s.repo.FindByID(ctx, id)
	if err != nil || shared == nil {
		// the write landed; fall back to the copy read above
		chat.SharePath = path
		shared = chat
	}

	s.sharedCache.Save(shared)
	s.publish(ctx, events.ChatShared, ownerId, id)
	return shared, nil
}

// mutationFailed logs and wraps a failed write. Anything that is not already
// classified becomes ErrUnknown.
func (s *chatHistoryService) mutationFailed(op, id, ownerId string, err error) error {
	details := map[string]interface{}{
		"chat_id":  id,
		"owner_id": ownerId,
		"error":    err.Error(),
	}

	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		s.logger.Warn(chatHistoryModule, "Unauthorized attempt to "+op+" chat", details)
		return fmt.Errorf("%s chat %s: %w", op, id, err)
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotConfigured), errors.Is(err, domain.ErrUnknown):
		s.logger.Error(chatHistoryModule, "Failed to "+op+" chat", details)
		return fmt.Errorf("%s chat %s: %w", op, id, err)
	default:
		s.logger.Error(chatHistoryModule, "Failed to "+op+" chat", details)
		return fmt.Errorf("%s chat %s: %w: %w", op, id, domain.ErrUnknown, err)
	}
}

func (s *chatHistoryService) publish(ctx context.Context, eventType, ownerId string, chatIds ...string) {
	if s.eventPublisher == nil {
		return
	}
	evt := events.NewChatEvent(eventType, ownerId, chatIds, s.now())
	if err := s.eventPublisher.Publish(ctx, evt); err != nil {
		s.logger.Warn(chatHistoryModule, "Failed to publish "+eventType+" event", map[string]interface{}{"error": err.Error()})
	}
}
