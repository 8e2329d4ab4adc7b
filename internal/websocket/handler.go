package websocket

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs registers the connection for ownerId and blocks until it closes.
func ServeWs(hub *Hub, c *websocket.Conn, ownerId string) {
	client := NewClient(hub, c, ownerId)
	if !hub.Register(client) {
		c.Close()
		return
	}

	go client.writePump()
	client.readPump()
}

func NewClient(hub *Hub, c *websocket.Conn, ownerId string) *Client {
	return &Client{
		Hub:     hub,
		Id:      uuid.NewString(),
		Conn:    c,
		OwnerId: ownerId,
		Send:    make(chan []byte, 256),
	}
}
