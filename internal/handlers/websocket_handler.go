// WebSocket Handler - live deposit/withdrawal event stream.
package handlers

import (
	"net/http"
	"time"

	"shadowpool/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks are enforced by the CORS layer in front.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler upgrades connections and streams pool events.
type WebSocketHandler struct {
	push *services.WebSocketPushService
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(push *services.WebSocketPushService) *WebSocketHandler {
	return &WebSocketHandler{push: push}
}

// StreamHandler subscribes the caller to the live event stream.
// GET /ws/events
func (h *WebSocketHandler) StreamHandler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	out := h.push.Register(conn)
	go h.writePump(conn, out)
	go h.readPump(conn)
}

func (h *WebSocketHandler) writePump(conn *websocket.Conn, out chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.push.Unregister(conn)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.push.Unregister(conn)
				return
			}
		}
	}
}

func (h *WebSocketHandler) readPump(conn *websocket.Conn) {
	defer func() {
		h.push.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
