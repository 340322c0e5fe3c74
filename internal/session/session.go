package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/config"
)

// sendBufferSize is the per-device outbound message buffer size.
const sendBufferSize = 64

// Session is one live device connection. It starts unauthenticated;
// authorize binds it to an id, and disconnection (or eviction by a
// newer authorization for the same id) closes it.
type Session struct {
	manager *Manager
	conn    *websocket.Conn
	send    chan []byte

	mu   sync.RWMutex
	id   string
	kind string
}

// identity returns the authorized id and kind; id is empty while the
// session is unauthenticated.
func (s *Session) identity() (id, kind string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id, s.kind
}

func (s *Session) setIdentity(id, kind string) {
	s.mu.Lock()
	s.id = id
	s.kind = kind
	s.mu.Unlock()
}

// trySend queues a message without blocking. If the device's buffer is
// full or the session is already closed the message is dropped;
// delivery is best-effort by contract.
func (s *Session) trySend(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.manager.logger.Debug("send on closed device session dropped")
		}
	}()

	select {
	case s.send <- data:
	default:
		s.manager.logger.Warn("device send buffer full, dropping message")
	}
}

func (s *Session) sendReply(r Reply) {
	data, err := json.Marshal(r)
	if err != nil {
		s.manager.logger.Error("failed to marshal device reply", "error", err)
		return
	}
	s.trySend(data)
}

// readPump reads device messages until the connection dies. Liveness is
// probe-based: the read deadline is extended on every pong and on every
// inbound message, so a silent device is detected within
// ping_interval + pong_timeout.
func (s *Session) readPump(cfg config.WebSocketConfig) {
	defer func() {
		s.manager.unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.manager.logger.Warn("device read error", "error", err)
			} else {
				s.manager.logger.Debug("device connection closed", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		s.manager.handle(s, message)
	}
}

// writePump writes queued messages and periodic liveness probes.
func (s *Session) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-s.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				s.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			s.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			s.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
