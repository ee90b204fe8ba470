package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/KevinKickass/dcscontrol/internal/auth"
	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	authWait       = 10 * time.Second
	maxMessageSize = 8192
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one live-feed connection. Events are delivered only for
// servers the principal may read.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	logger    *zap.Logger
	principal *auth.Principal

	mu      sync.RWMutex
	servers map[string]bool
}

func (c *Client) remoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Client) accepts(server string) bool {
	if server == "" {
		return true
	}
	if c.principal == nil || !c.principal.Grants.Allows("dcs."+server, types.AccessRead) {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.servers) == 0 || c.servers[server]
}

func (c *Client) subscribe(servers []string) {
	set := make(map[string]bool, len(servers))
	for _, s := range servers {
		set[s] = true
	}
	c.mu.Lock()
	c.servers = set
	c.mu.Unlock()
}

// writeDirect sends before the client is registered with the hub.
func (c *Client) writeDirect(msg Message) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// authenticate reads the first message, which must carry a token.
func (c *Client) authenticate(r *http.Request) bool {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(authWait))

	var msg ClientMessage
	if err := c.conn.ReadJSON(&msg); err != nil {
		c.logger.Debug("WebSocket auth read failed", zap.Error(err))
		return false
	}
	if msg.Type != MessageTypeAuth || msg.Token == "" {
		c.writeDirect(NewMessage(MessageTypeAuthFailed, reasonData("first message must be authentication")))
		return false
	}

	p, err := c.hub.authn.Authenticate(r.Context(), msg.Token, c.remoteAddr(), r.UserAgent())
	if err != nil {
		c.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remote_addr", c.remoteAddr()))
		c.writeDirect(NewMessage(MessageTypeAuthFailed, reasonData("invalid or expired token")))
		return false
	}
	c.principal = p
	return true
}

func reasonData(reason string) map[string]string {
	return map[string]string{"reason": reason}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.remoteAddr()))
			}
			return
		}

		switch msg.Type {
		case MessageTypeSubscribe:
			c.subscribe(msg.Servers)
			c.queue(NewMessage(MessageTypeSubscribed, map[string][]string{"servers": msg.Servers}))
		default:
			c.logger.Debug("Ignoring client message",
				zap.String("type", string(msg.Type)),
				zap.String("remote_addr", c.remoteAddr()))
		}
	}
}

// queue hands a reply to the write pump without blocking the reader.
func (c *Client) queue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request, authenticates the client and registers it
// with the hub.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: hub.logger,
	}

	if hub.authn == nil {
		client.principal = auth.Anonymous()
	} else if !client.authenticate(r) {
		conn.Close()
		return
	}

	if err := client.writeDirect(NewMessage(MessageTypeAuthSuccess, map[string]string{"subject": client.principal.Subject})); err != nil {
		conn.Close()
		return
	}

	if !hub.add(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
