package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/KevinKickass/OpenLogoBridge/internal/auth"
	"github.com/KevinKickass/OpenLogoBridge/internal/blocks"
	"go.uber.org/zap"
)

// TokenValidator checks the token sent in a client's first message
type TokenValidator interface {
	ValidateToken(token string) (*auth.JWTClaims, []auth.Permission, error)
}

// Hub maintains active WebSocket clients and broadcasts messages
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu     sync.RWMutex
	logger *zap.Logger

	validator TokenValidator
	done      chan struct{}
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger, validator TokenValidator) *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger,
		validator:  validator,
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket Hub started")
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			h.logger.Info("WebSocket Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("remote_addr", client.remoteAddr()),
				zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("remote_addr", client.remoteAddr()),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("Failed to marshal broadcast message",
					zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// langsamer Client, wird abgehängt
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client send buffer full, unregistering",
						zap.String("remote_addr", client.remoteAddr()))
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

// Publish implements blocks.Sink.
func (h *Hub) Publish(u blocks.Update) {
	h.Broadcast(NewBlockValueMessage(u))
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
