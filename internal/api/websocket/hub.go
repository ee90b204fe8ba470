package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/KevinKickass/dcscontrol/internal/auth"
	"github.com/KevinKickass/dcscontrol/internal/types"
	"go.uber.org/zap"
)

// Authenticator resolves the token of a client's auth message.
type Authenticator interface {
	Authenticate(ctx context.Context, token, ip, userAgent string) (*auth.Principal, error)
}

type envelope struct {
	server string
	msg    Message
}

// Hub maintains active WebSocket clients and broadcasts messages
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	unregister chan *Client
	done       chan struct{}

	mu     sync.RWMutex
	logger *zap.Logger

	// nil disables client authentication
	authn Authenticator
}

func NewHub(logger *zap.Logger, authn Authenticator) *Hub {
	return &Hub{
		broadcast:  make(chan envelope, 256),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     logger,
		authn:      authn,
	}
}

// Run is the hub's event loop; it returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket Hub started")
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			close(h.done)
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub stopped")
			return

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

		case env := <-h.broadcast:
			data, err := json.Marshal(env.msg)
			if err != nil {
				h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				if !client.accepts(env.server) {
					continue
				}
				select {
				case client.send <- data:
				default:
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

// add registers an authenticated client. It fails once the hub stopped.
func (h *Hub) add(client *Client) bool {
	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		return false
	default:
	}
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("WebSocket client registered",
		zap.String("remote_addr", client.remoteAddr()),
		zap.String("subject", client.principal.Subject),
		zap.Int("total_clients", n))
	return true
}

// Broadcast queues msg for every client subscribed to server. An empty
// server reaches all clients.
func (h *Hub) Broadcast(server string, msg Message) {
	select {
	case h.broadcast <- envelope{server: server, msg: msg}:
	default:
		h.logger.Warn("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

// PublishDispatch forwards a completed dispatch to live subscribers.
func (h *Hub) PublishDispatch(ev types.DispatchEvent) {
	h.Broadcast(ev.Server, NewDispatchMessage(ev))
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
