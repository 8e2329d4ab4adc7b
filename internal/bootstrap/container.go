package bootstrap

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/MoneTicket/monetai/internal/config"
	"github.com/MoneTicket/monetai/internal/controller"
	"github.com/MoneTicket/monetai/internal/pkg/logger"
	"github.com/MoneTicket/monetai/internal/repository/contract"
	"github.com/MoneTicket/monetai/internal/repository/implementation"
	"github.com/MoneTicket/monetai/internal/repository/memory"
	"github.com/MoneTicket/monetai/internal/service"
	"github.com/MoneTicket/monetai/internal/websocket"
	"github.com/MoneTicket/monetai/pkg/database"
	pktNats "github.com/MoneTicket/monetai/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	// Controllers
	ChatController controller.IChatController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	WebSocketHub    *websocket.Hub

	Logger logger.ILogger

	closers []func()
}

// NewContainer wires the chat history stack. The hub runs until ctx is done.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{}
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	c.Logger = sysLogger
	c.onClose(func() { _ = sysLogger.Sync() })

	// 1. Redis (chat store and/or hub fan-out)
	rdb, redisUp := newRedisClient(ctx, cfg.App.RedisURL)
	c.onClose(func() { _ = rdb.Close() })

	// 2. Chat repository
	repo, err := c.newChatRepository(cfg, rdb, sysLogger)
	if err != nil {
		c.Close()
		return nil, err
	}

	// 3. Event Bus
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewStdLogger(false, false),
	)
	c.onClose(func() { _ = pubSub.Close() })

	// NATS is optional; without it events stay in-process
	var relay service.EventRelay
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			relay = natsPub
			c.onClose(natsPub.Close)
		}
	}

	// 4. WebSocket Hub
	var hubRdb redis.UniversalClient
	if redisUp {
		hubRdb = rdb
	}
	wsLogger := logger.NewIsolatedLogger(cfg.App.HubLogFilePath)
	c.WebSocketHub = websocket.NewHub(hubRdb, wsLogger)
	go c.WebSocketHub.Run(ctx)

	// 5. Services
	publisherService := service.NewPublisherService(cfg.Chat.EventsTopic, pubSub)
	c.ConsumerService = service.NewConsumerService(pubSub, cfg.Chat.EventsTopic, relay, c.WebSocketHub, sysLogger)

	chatService := service.NewChatHistoryService(
		repo,
		memory.NewSharedChatCache(cfg.Chat.ShareCacheTTL),
		publisherService,
		sysLogger,
		service.ChatHistoryOptions{
			PageSize:          cfg.Chat.PageSize,
			EnableSaveHistory: cfg.Chat.EnableSaveHistory,
		},
	)

	// 6. Controllers
	c.ChatController = controller.NewChatController(chatService, c.WebSocketHub, cfg.Keys.JwtSecret)

	sysLogger.Info("Bootstrap", "Container ready", map[string]interface{}{
		"store":        cfg.Chat.Store,
		"schema":       cfg.Chat.SchemaVersion,
		"save_enabled": cfg.Chat.EnableSaveHistory,
		"nats":         relay != nil,
		"hub_cluster":  hubRdb != nil,
	})
	return c, nil
}

func (c *Container) newChatRepository(cfg *config.Config, rdb redis.UniversalClient, log logger.ILogger) (contract.ChatRepository, error) {
	switch strings.ToLower(cfg.Chat.Store) {
	case "memory":
		return memory.NewChatRepository(), nil
	case "postgres":
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			return nil, fmt.Errorf("connect chat database: %w", err)
		}
		if err := database.MigrateChatSchema(db); err != nil {
			return nil, fmt.Errorf("migrate chat schema: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			c.onClose(func() { _ = sqlDB.Close() })
		}
		return implementation.NewChatRepositoryGorm(db, log), nil
	case "redis", "":
		return implementation.NewChatRepositoryRedis(rdb, cfg.Chat.SchemaVersion, log), nil
	default:
		return nil, fmt.Errorf("unknown CHAT_STORE %q", cfg.Chat.Store)
	}
}

// newRedisClient never fails: an unreachable Redis surfaces later as
// ErrNotConfigured from the repository.
func newRedisClient(ctx context.Context, url string) (redis.UniversalClient, bool) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
		return rdb, false
	}
	return rdb, true
}

func (c *Container) onClose(fn func()) {
	c.closers = append(c.closers, fn)
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
