package services

import (
	"encoding/json"
	"sync"

	"shadowpool/internal/events"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// PushMessage is the envelope sent to websocket subscribers.
type PushMessage struct {
	Type    string      `json:"type"` // "deposit" or "withdraw"
	Payload interface{} `json:"payload"`
}

// WebSocketPushService fans pool events out to connected websocket
// clients. It implements EventPublisher; a slow or dead client is dropped
// rather than allowed to block the flows.
type WebSocketPushService struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

// NewWebSocketPushService creates an empty hub.
func NewWebSocketPushService() *WebSocketPushService {
	return &WebSocketPushService{
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// Register adds a client and returns its outbound queue. The caller owns
// the write pump draining the channel.
func (s *WebSocketPushService) Register(conn *websocket.Conn) chan []byte {
	out := make(chan []byte, 64)
	s.mu.Lock()
	s.clients[conn] = out
	s.mu.Unlock()

	log.WithField("clients", s.ClientCount()).Debug("WebSocket client registered")
	return out
}

// Unregister removes a client and closes its queue.
func (s *WebSocketPushService) Unregister(conn *websocket.Conn) {
	s.mu.Lock()
	if out, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		close(out)
	}
	s.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (s *WebSocketPushService) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *WebSocketPushService) PublishDeposit(notice events.DepositNotice) {
	s.broadcast(PushMessage{Type: "deposit", Payload: notice})
}

func (s *WebSocketPushService) PublishWithdraw(notice events.WithdrawNotice) {
	s.broadcast(PushMessage{Type: "withdraw", Payload: notice})
}

func (s *WebSocketPushService) broadcast(msg PushMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).Error("Failed to marshal push message")
		return
	}

	s.mu.RLock()
	stale := make([]*websocket.Conn, 0)
	for conn, out := range s.clients {
		select {
		case out <- data:
		default:
			// Queue full; the client is not draining.
			stale = append(stale, conn)
		}
	}
	s.mu.RUnlock()

	for _, conn := range stale {
		s.Unregister(conn)
		conn.Close()
	}
}
