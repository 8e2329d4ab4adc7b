package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/MoneTicket/monetai/internal/domain"
	"github.com/MoneTicket/monetai/internal/entity"
	"github.com/MoneTicket/monetai/internal/pkg/logger"
	"github.com/MoneTicket/monetai/internal/repository/contract"
	"github.com/MoneTicket/monetai/internal/repository/implementation"
	"github.com/MoneTicket/monetai/internal/repository/memory"
	"github.com/MoneTicket/monetai/pkg/events"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type backend struct {
	name    string
	newRepo func(t *testing.T) contract.ChatRepository
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) contract.ChatRepository { return memory.NewChatRepository() }},
		{"redis", func(t *testing.T) contract.ChatRepository {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { rdb.Close() })
			return implementation.NewChatRepositoryRedis(rdb, "v2", logger.NewNopLogger())
		}},
	}
}

func newTestService(repo contract.ChatRepository, pub IPublisherService) *chatHistoryService {
	svc := NewChatHistoryService(repo, memory.NewSharedChatCache(time.Minute), pub, logger.NewNopLogger(), ChatHistoryOptions{
		PageSize:          20,
		EnableSaveHistory: true,
	}).(*chatHistoryService)

	clock := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return svc
}

func transcript(id string, contents ...string) *entity.Chat {
	chat := &entity.Chat{Id: id, Title: "chat " + id}
	for _, c := range contents {
		chat.Messages = append(chat.Messages, entity.Message{Role: entity.RoleUser, Content: c})
	}
	return chat
}

func chatIds(chats []*entity.Chat) []string {
	out := make([]string, 0, len(chats))
	for _, c := range chats {
		out = append(out, c.Id)
	}
	return out
}

func forEachBackend(t *testing.T, fn func(t *testing.T, svc *chatHistoryService, pub *recordingPublisher)) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			fn(t, newTestService(b.newRepo(t), pub), pub)
		})
	}
}

func TestSave_Roundtrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *chatHistoryService, _ *recordingPublisher) {
		ctx := context.Background()

		require.NoError(t, svc.Save(ctx, transcript("c1", "hello", "world"), "u1"))

		got, err := svc.Get(ctx, "c1", "u1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "c1", got.Id)
		assert.Equal(t, "u1", got.OwnerId)
		assert.Equal(t, "chat c1", got.Title)
		assert.Equal(t, transcript("c1", "hello", "world").Messages, got.Messages)
		assert.False(t, got.IsShared())
	})
}

func TestSave_IsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *chatHistoryService, _ *recordingPublisher) {
		ctx := context.Background()

		require.NoError(t, svc.Save(ctx, transcript("c1", "hello"), "u1"))
		require.NoError(t, svc.Save(ctx, transcript("c1", "hello"), "u1"))

		chats, err := svc.List(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"c1"}, chatIds(chats))
	})
}

func TestSave_AnonymousIsNotPersisted(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *chatHistoryService, pub *recordingPublisher) {
		ctx := context.Background()

		require.NoError(t, svc.Save(ctx, transcript("c1", "hello"), ""))

		stored, err := svc.repo.FindByID(ctx, "c1")
		require.NoError(t, err)
		assert.Nil(t, stored)
		assert.Empty(t, pub.types())
	})
}

func TestSave_DisabledHistory(t *testing.T) {
	repo := memory.NewChatRepository()
	svc := NewChatHistoryService(repo, nil, nil, logger.NewNopLogger(), ChatHistoryOptions{EnableSaveHistory: false})
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, transcript("c1", "hello"), "u1"))

	chats, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestSave_Rejections(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *chatHistoryService, _ *recordingPublisher) {
		ctx := context.Background()

		assert.ErrorIs(t, svc.Save(ctx, transcript("", "hello"), "u1"), domain.ErrValidation)
		assert.ErrorIs(t, svc.Save(ctx, nil, "u1"), domain.ErrValidation)

		require.NoError(t, svc.Save(ctx, transcript("c1", "mine"), "u1"))
		err := svc.Save(ctx, transcript("c1", "stolen"), "u2")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)

		got, _ := svc.Get(ctx, "c1", "u1")
		require.NotNil(t, got)
		assert.Equal(t, "mine", got.Messages[0].Content)
		others, _ := svc.List(ctx, "u2")
		assert.Empty(t, others)
	})
}

func TestGet_Visibility(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *chatHistoryService, _ *recordingPublisher) {
		ctx := context.Background()
		require.NoError(t, svc.Save(ctx, transcript("c1", "hello"), "u1"))

		tests := []struct {
			name   string
			caller string
			found  bool
		}{
			{"owner", "u1", true},
			{"stranger", "u2", false},
			{"anonymous", "", false},
		}
		for _, tt := range tests {
			got, err := svc.Get(ctx, "c1", tt.caller)
			assert.NoError(t, err, tt.name)
			assert.Equal(t, tt.found, got != nil, tt.name)
		}

		missing, err := svc.Get(ctx, "nope", "u1")
		assert.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *chatHistoryService, pub *recordingPublisher) {
		ctx := context.Background()
		require.NoError(t, svc.Save(ctx, transcript("c1", "hello"), "u1"))
		require.NoError(t, svc.Save(ctx, transcript("c2", "there"), "u1"))

		assert.ErrorIs(t, svc.Delete(ctx, "c1", ""), domain.ErrUnauthorized)
		assert.ErrorIs(t, svc.Delete(ctx, "c1", "u2"), domain.ErrUnauthorized)
		still, _ := svc.Get(ctx, "c1", "u1")
		assert.NotNil(t, still)

		require.NoError(t, svc.Delete(ctx, "c1", "u1"))
		require.NoError(t, svc.Delete(ctx, "c1", "u1"))
		require.NoError(t, svc.Delete(ctx, "never-existed", "u1"))

		gone, err := svc.Get(ctx, "c1", "u1")
		assert.NoError(t, err)
		assert.Nil(t, gone)
		chats, _ := svc.List(ctx, "u1")
		assert.Equal(t, []string{"c2"}, chatIds(chats))

		assert.Equal(t, []string{events.ChatSaved, events.ChatSaved, events.ChatDeleted}, pub.types())
	})
}

func TestClearAll(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *chatHistoryService, pub *recordingPublisher) {
		ctx := context.Background()
		require.NoError(t, svc.Save(ctx, transcript("c1", "a"), "u1"))
		require.NoError(t, svc.Save(ctx, transcript("c2", "b"), "u1"))
		require.NoError(t, svc.Save(ctx, transcript("c3", "c"), "u2"))

		assert.ErrorIs(t, svc.ClearAll(ctx, ""), domain.ErrUnauthorized)

		require.NoError(t, svc.ClearAll(ctx, "u1"))
		require.NoError(t, svc.ClearAll(ctx, "u1"))

		mine, _ := svc.List(ctx, "u1")
		assert.Empty(t, mine)
		for _, id := range []string{"c1", "c2"} {
			stored, err := svc.repo.FindByID(ctx, id)
			require.NoError(t, err)
			assert.Nil(t, stored, id)
		}
		theirs, _ := svc.List(ctx, "u2")
		assert.Equal(t, []string{"c3"}, chatIds(theirs))

		// the second clear found nothing and published nothing
		assert.Equal(t, []string{events.ChatSaved, events.ChatSaved, events.ChatSaved, events.ChatHistoryCleared}, pub.types())
	})
}

func TestListPage_Walk(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *chatHistoryService, _ *recordingPublisher) {
		ctx := context.Background()
		for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
			require.NoError(t, svc.Save(ctx, transcript(id, id), "u1"))
		}

		var walked []string
		offset, pages := 0, 0
		for {
			page, err := svc.ListPage(ctx, "u1", 2, offset)
			require.NoError(t, err)
			walked = append(walked, chatIds(page.Chats)...)
			pages++
			if page.NextOffset == nil {
				break
			}
			assert.Equal(t, offset+2, *page.NextOffset)
			offset = *page.NextOffset
		}

		assert.Equal(t, 3, pages)
		assert.Equal(t, []string{"c5", "c4", "c3", "c2", "c1"}, walked)

		all, err := svc.List(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, walked, chatIds(all))
	})
}

func TestListPage_ExactMultipleEndsWithEmptyPage(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *chatHistoryService, _ *recordingPublisher) {
		ctx := context.Background()
		for _, id := range []string{"c1", "c2"} {
			require.NoError(t, svc.Save(ctx, transcript(id, id), "u1"))
		}

		first, err := svc.ListPage(ctx, "u1", 2, 0)
		require.NoError(t, err)
		require.NotNil(t, first.NextOffset)

		last, err := svc.ListPage(ctx, "u1", 2, *first.NextOffset)
		require.NoError(t, err)
		assert.Empty(t, last.Chats)
		assert.Nil(t, last.NextOffset)
	})
}

func TestListPage_Defaults(t *testing.T) {
	svc := newTestService(memory.NewChatRepository(), nil)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		require.NoError(t, svc.Save(ctx, transcript(string(rune('a'+i)), "x"), "u1"))
	}

	page, err := svc.ListPage(ctx, "u1", 0, -3)
	require.NoError(t, err)
	assert.Len(t, page.Chats, 20)
	require.NotNil(t, page.NextOffset)
	assert.Equal(t, 20, *page.NextOffset)

	anon, err := svc.ListPage(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, anon.Chats)
	assert.Nil(t, anon.NextOffset)
}

func TestListPage_OutOfRangeWindow(t *testing.T) {
	svc := newTestService(memory.NewChatRepository(), nil)
	ctx := context.Background()
	for i := 0; i < maxPageSize+5; i++ {
		require.NoError(t, svc.Save(ctx, transcript(fmt.Sprintf("c%03d", i), "x"), "u1"))
	}

	tests := []struct {
		name     string
		limit    int
		offset   int
		wantLen  int
		wantNext *int
	}{
		{"limit capped", math.MaxInt, 0, maxPageSize, intPtr(maxPageSize)},
		{"capped limit from an offset", math.MaxInt, 3, maxPageSize, intPtr(maxPageSize + 3)},
		{"offset at the top of the range", 10, math.MaxInt, 0, nil},
		{"both at the top of the range", math.MaxInt, math.MaxInt - 1, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.ListPage(ctx, "u1", tt.limit, tt.offset)

			require.NoError(t, err)
			assert.Len(t, page.Chats, tt.wantLen)
			assert.Equal(t, tt.wantNext, page.NextOffset)
		})
	}
}

func intPtr(n int) *int { return &n }

func TestShare(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *chatHistoryService, _ *recordingPublisher) {
		ctx := context.Background()
		require.NoError(t, svc.Save(ctx, transcript("c1", "hello"), "u1"))

		for _, caller := range []string{"", "u2"} {
			got, err := svc.Share(ctx, "c1", caller)
			assert.NoError(t, err)
			assert.Nil(t, got)
		}
		missing, err := svc.Share(ctx, "nope", "u1")
		assert.NoError(t, err)
		assert.Nil(t, missing)

		shared, err := svc.Share(ctx, "c1", "u1")
		require.NoError(t, err)
		require.NotNil(t, shared)
		assert.Equal(t, "/share/c1", shared.SharePath)

		again, err := svc.Share(ctx, "c1", "u1")
		require.NoError(t, err)
		assert.Equal(t, shared, again)

		// a later save of the same transcript keeps it public
		require.NoError(t, svc.Save(ctx, transcript("c1", "hello", "more"), "u1"))
		public, err := svc.GetShared(ctx, "c1")
		require.NoError(t, err)
		require.NotNil(t, public)
		assert.Equal(t, "/share/c1", public.SharePath)
		assert.Len(t, public.Messages, 2)
	})
}

// interleavingRepo runs hook once, right after the first FindByID returns.
type interleavingRepo struct {
	contract.ChatRepository
	once sync.Once
	hook func()
}

func (r *interleavingRepo) FindByID(ctx context.Context, id string) (*entity.Chat, error) {
	chat, err := r.ChatRepository.FindByID(ctx, id)
	r.once.Do(r.hook)
	return chat, err
}

func TestShare_KeepsSaveThatLandsMidway(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			repo := &interleavingRepo{ChatRepository: b.newRepo(t)}
			svc := newTestService(repo, nil)
			require.NoError(t, svc.Save(ctx, transcript("c1", "turn 1"), "u1"))

			repo.hook = func() {
				require.NoError(t, svc.Save(ctx, transcript("c1", "turn 1", "turn 2"), "u1"))
			}

			shared, err := svc.Share(ctx, "c1", "u1")
			require.NoError(t, err)
			require.NotNil(t, shared)
			assert.Len(t, shared.Messages, 2)

			stored, err := svc.Get(ctx, "c1", "u1")
			require.NoError(t, err)
			assert.Equal(t, "/share/c1", stored.SharePath)
			assert.Len(t, stored.Messages, 2)
		})
	}
}

func TestShare_KeepsUndecodableTranscript(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	svc := newTestService(implementation.NewChatRepositoryRedis(rdb, "v2", logger.NewNopLogger()), nil)

	raw := `[{"role":"user","content":"hi"`
	mr.HSet("chat:c1", "id", "c1", "ownerId", "u1", "messages", raw)

	shared, err := svc.Share(context.Background(), "c1", "u1")

	require.NoError(t, err)
	require.NotNil(t, shared)
	assert.Empty(t, shared.Messages)
	assert.Equal(t, raw, mr.HGet("chat:c1", "messages"))
	assert.Equal(t, "/share/c1", mr.HGet("chat:c1", "sharePath"))
}

func TestGetShared_PrivateChat(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *chatHistoryService, _ *recordingPublisher) {
		ctx := context.Background()
		require.NoError(t, svc.Save(ctx, transcript("c1", "hello"), "u1"))

		got, err := svc.GetShared(ctx, "c1")
		assert.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestGetShared_ServedFromCache(t *testing.T) {
	repo := memory.NewChatRepository()
	svc := newTestService(repo, nil)
	ctx := context.Background()
	require.NoError(t, svc.Save(ctx, transcript("c1", "hello"), "u1"))
	_, err := svc.Share(ctx, "c1", "u1")
	require.NoError(t, err)

	// removed behind the store's back, the cached copy is still served
	require.NoError(t, repo.DeleteByID(ctx, "c1", "u1"))
	cached, err := svc.GetShared(ctx, "c1")
	require.NoError(t, err)
	assert.NotNil(t, cached)

	// a delete through the store invalidates it
	require.NoError(t, svc.Save(ctx, transcript("c1", "hello"), "u1"))
	require.NoError(t, svc.Delete(ctx, "c1", "u1"))
	gone, err := svc.GetShared(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestScenario_ShareThenClear(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *chatHistoryService, pub *recordingPublisher) {
		ctx := context.Background()

		require.NoError(t, svc.Save(ctx, transcript("c1", "hi"), "u1"))

		hidden, err := svc.Get(ctx, "c1", "u2")
		require.NoError(t, err)
		assert.Nil(t, hidden)

		shared, err := svc.Share(ctx, "c1", "u1")
		require.NoError(t, err)
		assert.Equal(t, "/share/c1", shared.SharePath)

		visible, err := svc.Get(ctx, "c1", "u2")
		require.NoError(t, err)
		require.NotNil(t, visible)
		public, err := svc.GetShared(ctx, "c1")
		require.NoError(t, err)
		require.NotNil(t, public)

		assert.ErrorIs(t, svc.Delete(ctx, "c1", "u2"), domain.ErrUnauthorized)

		require.NoError(t, svc.ClearAll(ctx, "u1"))
		chats, err := svc.List(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, chats)
		after, err := svc.GetShared(ctx, "c1")
		require.NoError(t, err)
		assert.Nil(t, after)

		assert.Equal(t, []string{events.ChatSaved, events.ChatShared, events.ChatHistoryCleared}, pub.types())
	})
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("bus down")}
	svc := newTestService(memory.NewChatRepository(), pub)

	require.NoError(t, svc.Save(context.Background(), transcript("c1", "hi"), "u1"))

	assert.Equal(t, []string{events.ChatSaved}, pub.types())
	assert.Equal(t, "u1", events.OwnerOf(pub.events[0]))
}

type failingRepo struct {
	contract.ChatRepository
	err error
}

func (r failingRepo) FindPageByOwner(ctx context.Context, ownerId string, offset, limit int) ([]*entity.Chat, int, error) {
	return nil, 0, r.err
}

func (r failingRepo) FindByID(ctx context.Context, id string) (*entity.Chat, error) {
	return nil, r.err
}

func TestList_DegradesOnStoreFailure(t *testing.T) {
	svc := newTestService(failingRepo{err: domain.ErrUnknown}, nil)
	ctx := context.Background()

	chats, err := svc.List(ctx, "u1")
	assert.NoError(t, err)
	assert.NotNil(t, chats)
	assert.Empty(t, chats)

	page, err := svc.ListPage(ctx, "u1", 5, 0)
	assert.NoError(t, err)
	assert.Empty(t, page.Chats)
	assert.Nil(t, page.NextOffset)
}

func TestStoreUnreachable(t *testing.T) {
	svc := newTestService(failingRepo{err: domain.ErrNotConfigured}, nil)
	ctx := context.Background()

	_, err := svc.List(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	_, err = svc.Get(ctx, "c1", "u1")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	err = svc.Delete(ctx, "c1", "u1")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestMutationFailureIsUnknown(t *testing.T) {
	svc := newTestService(failingRepo{err: errors.New("boom")}, nil)

	_, err := svc.Share(context.Background(), "c1", "u1")

	assert.ErrorIs(t, err, domain.ErrUnknown)
}

func TestScenario_SaveListDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *chatHistoryService, _ *recordingPublisher) {
		ctx := context.Background()
		require.NoError(t, svc.Save(ctx, transcript("c1", "hi"), "u1"))

		page, err := svc.ListPage(ctx, "u1", 20, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"c1"}, chatIds(page.Chats))
		assert.Nil(t, page.NextOffset)

		assert.ErrorIs(t, svc.Delete(ctx, "c1", "u2"), domain.ErrUnauthorized)
		assert.NoError(t, svc.Delete(ctx, "c1", "u1"))

		page, err = svc.ListPage(ctx, "u1", 20, 0)
		require.NoError(t, err)
		assert.Empty(t, page.Chats)
		assert.Nil(t, page.NextOffset)
	})
}
