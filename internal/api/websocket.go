package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/config"
	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/logging"
	"github.com/svenyesyes/smart-lantaarn-server/internal/lamp"
	"github.com/svenyesyes/smart-lantaarn-server/internal/topology"
)

// Observer message types.
const (
	msgTypeInit         = "init"
	msgTypeUpdate       = "update"
	msgTypeDeviceStatus = "device_status"
	msgTypePositions    = "positions"

	// wsSendBufferSize is the per-observer outbound message buffer size.
	wsSendBufferSize = 256
)

// lampStateEntry pairs a lamp id with its current state in broadcasts.
type lampStateEntry struct {
	ID    string         `json:"id"`
	State lamp.LampState `json:"state"`
}

// initMessage is the full snapshot sent to a newly connected observer.
type initMessage struct {
	Type         string                       `json:"type"`
	Graph        lamp.Graph                   `json:"graph"`
	States       []lampStateEntry             `json:"states"`
	Positions    map[string]topology.Position `json:"positions"`
	ConnectedIDs []string                     `json:"connected_ids"`
}

// updateMessage carries the full recomputed state after any change.
type updateMessage struct {
	Type   string           `json:"type"`
	Graph  lamp.Graph       `json:"graph"`
	States []lampStateEntry `json:"states"`
	Events []lamp.Event     `json:"events"`
}

// deviceStatusMessage reports the live authorized device ids.
type deviceStatusMessage struct {
	Type         string   `json:"type"`
	ConnectedIDs []string `json:"connected_ids"`
}

// positionsMessage carries a replaced UI layout.
type positionsMessage struct {
	Type      string                       `json:"type"`
	Positions map[string]topology.Position `json:"positions"`
}

// Hub manages UI observer connections and fans broadcasts out to all of
// them. Observers are read-only; inbound messages only keep the
// connection alive.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient represents a connected UI observer.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new observer hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds an observer to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("observer connected", "observers", h.ClientCount())
}

// Unregister removes an observer from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("observer disconnected", "observers", h.ClientCount())
}

// BroadcastJSON sends a message to every connected observer.
func (h *Hub) BroadcastJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	// Snapshot client list under hub lock, then release before sending
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.trySend(data)
	}
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all observers and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// snapshotStates collects the current state of every lamp.
func (s *Server) snapshotStates() []lampStateEntry {
	lamps := s.lamps.Lamps()
	states := make([]lampStateEntry, 0, len(lamps))
	for _, l := range lamps {
		states = append(states, lampStateEntry{ID: l.ID, State: l.State})
	}
	return states
}

// broadcastUpdate recomputes and sends the full graph, all lamp states,
// and the event log to every observer.
func (s *Server) broadcastUpdate() {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastJSON(updateMessage{
		Type:   msgTypeUpdate,
		Graph:  s.lamps.Graph(),
		States: s.snapshotStates(),
		Events: s.lamps.Events(),
	})
}

// handleObserverWebSocket upgrades a UI observer connection and sends
// the initial snapshot.
func (s *Server) handleObserverWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("observer websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)

	init := initMessage{
		Type:         msgTypeInit,
		Graph:        s.lamps.Graph(),
		States:       s.snapshotStates(),
		Positions:    s.cachedPositions(),
		ConnectedIDs: s.sessions.ConnectedIDs(),
	}
	data, err := json.Marshal(init)
	if err != nil {
		s.logger.Error("failed to marshal init snapshot", "error", err)
		return
	}
	client.trySend(data)
}

// handleDeviceWebSocket upgrades a device connection and hands it to
// the session manager.
func (s *Server) handleDeviceWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("device websocket upgrade failed", "error", err)
		return
	}
	s.sessions.HandleConnection(conn)
}

// trySend queues a message without blocking; slow observers drop
// messages rather than stall broadcasts.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.hub.logger.Debug("send on closed observer connection dropped")
		}
	}()

	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("observer send buffer full, dropping message")
	}
}

// readPump discards observer messages; any inbound traffic just resets
// the read deadline.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("observer read error", "error", err)
			} else {
				c.hub.logger.Debug("observer connection closed", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	}
}

// writePump writes queued broadcasts and periodic pings.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
