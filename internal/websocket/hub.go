package websocket

import (
	"context"
	"encoding/json"
	"log"

	"iot-sim/internal/models"
)

// Hub maintains the set of connected clients and broadcasts device updates
// to all of them on one logical channel.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow or gone; drop it rather than stall the rest.
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// BroadcastDeviceUpdate sends the updated device projection to every client.
func (h *Hub) BroadcastDeviceUpdate(device *models.Device) {
	message, err := json.Marshal(map[string]any{"type": "device_update", "payload": device})
	if err != nil {
		log.Printf("WS: Error marshalling device update: %v", err)
		return
	}
	select {
	case h.broadcast <- message:
	default:
		log.Println("WS: Broadcast buffer full, dropping device update")
	}
}
