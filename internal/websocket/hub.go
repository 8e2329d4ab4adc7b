package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/MoneTicket/monetai/internal/pkg/logger"
	"github.com/MoneTicket/monetai/pkg/events"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	hubModule = "Hub"

	// HistoryUpdatedType is the frame type pushed to clients when their
	// chat list changed.
	HistoryUpdatedType = "chat-history-updated"

	clusterChannel = "chat_history_events"
)

type Hub struct {
	// Registered clients map: OwnerId -> List of Clients (multi-device)
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client

	// closed when Run returns
	done chan struct{}

	mu sync.RWMutex

	// Redis connection for cross-instance fan-out, nil on a single instance
	rdb redis.UniversalClient

	// instanceId tags our own cluster messages so they are not delivered twice
	instanceId string

	logger logger.ILogger
}

type clusterMessage struct {
	Origin  string          `json:"origin"`
	OwnerId string          `json:"owner_id"`
	Message json.RawMessage `json:"message"`
}

func NewHub(rdb redis.UniversalClient, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string][]*Client),
		rdb:        rdb,
		instanceId: uuid.NewString(),
		logger:     log,
	}
}

// Run serves register/unregister requests until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.OwnerId] = append(h.clients[client.OwnerId], client)
			h.mu.Unlock()
			h.logger.Info(hubModule, "Client registered", map[string]interface{}{"owner_id": client.OwnerId, "client_id": client.Id})

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// Register hands client to the hub. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister drops client and closes its Send channel. A no-op once the hub has stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.OwnerId]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.OwnerId] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.OwnerId]) == 0 {
		delete(h.clients, client.OwnerId)
		h.logger.Info(hubModule, "Client completely unregistered", map[string]interface{}{"owner_id": client.OwnerId})
	}
}

// NotifyHistoryUpdated tells every open connection of ownerId, on this and
// other instances, that the chat list changed.
func (h *Hub) NotifyHistoryUpdated(ownerId string, event events.Event) {
	data, err := json.Marshal(map[string]interface{}{
		"type":    HistoryUpdatedType,
		"reason":  event.EventType(),
		"chatIds": event.Payload()["chat_ids"],
	})
	if err != nil {
		h.logger.Error(hubModule, "Failed to encode history frame", map[string]interface{}{"error": err.Error()})
		return
	}

	h.deliver(ownerId, data)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{Origin: h.instanceId, OwnerId: ownerId, Message: data})
		if err := h.rdb.Publish(context.Background(), clusterChannel, payload).Err(); err != nil {
			h.logger.Warn(hubModule, "Failed to publish to cluster", map[string]interface{}{"error": err.Error()})
		}
	}
}

// ConnectedClients reports how many connections ownerId has on this instance.
func (h *Hub) ConnectedClients(ownerId string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[ownerId])
}

func (h *Hub) deliver(ownerId string, data []byte) {
	// held while sending so remove cannot close a channel under us
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients[ownerId] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn(hubModule, "Client Send buffer full, dropping client", map[string]interface{}{"owner_id": ownerId, "client_id": client.Id})
			go h.Unregister(client)
		}
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn(hubModule, "Cluster message parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			if payload.Origin == h.instanceId || payload.OwnerId == "" {
				continue
			}
			h.deliver(payload.OwnerId, payload.Message)
		}
	}
}
