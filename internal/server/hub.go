package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/courtside/scorekeeper-server-go/internal/game"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 256
)

// Message types sent to websocket clients.
const (
	MsgNotification = "notification"
	MsgView         = "view"
	MsgResult       = "result"
	MsgError        = "error"
)

// ServerMessage is a message sent to websocket clients.
type ServerMessage struct {
	Type      string    `json:"type"`
	GameID    string    `json:"game_id"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one websocket connection following one game.
type Client struct {
	ID     string
	GameID string
	conn   *websocket.Conn
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

// trySend queues msg without blocking and reports whether it was queued.
func (c *Client) trySend(msg ServerMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub fans session notifications out to the websocket clients of each game
// and feeds their commands back into the server.
type Hub struct {
	server  *Server
	logger  *zap.Logger
	updates chan game.Notification

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	clientsMu sync.RWMutex
	clients   map[*Client]bool
}

func newHub(s *Server) *Hub {
	return &Hub{
		server:     s,
		logger:     s.logger.Named("hub"),
		updates:    make(chan game.Notification, 1024),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
	}
}

// Notify is the bus listener. It runs on the command goroutine while the
// session is locked, so it only queues.
func (h *Hub) Notify(n game.Notification) {
	if n.Event != nil {
		ev := *n.Event
		n.Event = &ev
	}
	select {
	case h.updates <- n:
	default:
		h.logger.Warn("hub update buffer full, dropping notification", zap.String("game_id", n.GameID))
	}
}

// Run processes registrations and updates until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.clientsMu.Lock()
			h.clients[c] = true
			h.clientsMu.Unlock()
			h.logger.Debug("client connected", zap.String("client_id", c.ID), zap.String("game_id", c.GameID))
			h.sendView(c.GameID, []*Client{c})
		case c := <-h.unregister:
			h.remove(c)
		case n := <-h.updates:
			clients := h.following(n.GameID)
			if len(clients) == 0 {
				continue
			}
			h.broadcast(clients, ServerMessage{Type: MsgNotification, GameID: n.GameID, Data: n, Timestamp: time.Now().UTC()})
			if n.Type != game.NotifyClock {
				h.sendView(n.GameID, clients)
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) following(gameID string) []*Client {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	var clients []*Client
	for c := range h.clients {
		if c.GameID == gameID {
			clients = append(clients, c)
		}
	}
	return clients
}

func (h *Hub) sendView(gameID string, clients []*Client) {
	var view game.View
	err := h.server.manager.Do(gameID, func(s *game.Session) error {
		view = s.View()
		return nil
	})
	if err != nil {
		return
	}
	h.broadcast(clients, ServerMessage{Type: MsgView, GameID: gameID, Data: view, Timestamp: time.Now().UTC()})
}

func (h *Hub) broadcast(clients []*Client, msg ServerMessage) {
	for _, c := range clients {
		if !c.trySend(msg) {
			h.logger.Warn("client buffer full, disconnecting", zap.String("client_id", c.ID))
			h.remove(c)
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
		h.logger.Debug("client disconnected", zap.String("client_id", c.ID))
	}
}

func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

// serveWS upgrades the request and attaches the connection to gameID.
func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request, gameID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &Client{
		ID:     uuid.NewString(),
		GameID: gameID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump executes the commands a client sends and replies to that client.
func (h *Hub) readPump(c *Client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("unexpected websocket close", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		resp, err := h.server.execute(context.Background(), c.GameID, cmd)
		msg := ServerMessage{Type: MsgResult, GameID: c.GameID, Data: resp, Timestamp: time.Now().UTC()}
		if err != nil {
			status, category := statusFor(err)
			msg.Type = MsgError
			msg.Data = ErrorResponse{Error: http.StatusText(status), Message: err.Error(), Code: status, Category: category}
		}
		c.trySend(msg)
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
