package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"qconf/internal/hotreload"
	"qconf/internal/logging"
	"qconf/internal/monitoring"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
)

// ChangeNotification is the message pushed to WebSocket clients when a
// configuration changes
type ChangeNotification struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      hotreload.ChangeRecord `json:"data"`
}

// Client represents a connected WebSocket client
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub broadcasts configuration change notifications to WebSocket clients
type Hub struct {
	upgrader   websocket.Upgrader
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

// Run processes client registration and broadcasts until Close is called
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
				monitoring.ConnectionClosed()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			monitoring.ConnectionOpened()
			logging.WithField("client", client.ID).Debug("websocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, exists := h.clients[client.ID]; exists {
				delete(h.clients, client.ID)
				close(client.send)
				monitoring.ConnectionClosed()
			}
			h.mu.Unlock()
			logging.WithField("client", client.ID).Debug("websocket client disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// 发送缓冲满说明客户端卡死，直接断开
					close(client.send)
					delete(h.clients, id)
					monitoring.ConnectionClosed()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Close stops the hub and disconnects all clients
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastChange pushes a change record to every connected client
func (h *Hub) BroadcastChange(record hotreload.ChangeRecord) {
	notification := ChangeNotification{
		Type:      "config_change",
		Timestamp: time.Now(),
		Data:      record,
	}

	data, err := json.Marshal(notification)
	if err != nil {
		logging.WithError(err).Error("failed to marshal change notification")
		return
	}

	select {
	case h.broadcast <- data:
	default:
		logging.Warn("websocket broadcast buffer full, notification dropped")
	}
}

// Handler returns a change handler that broadcasts every applied change
func (h *Hub) Handler() hotreload.ChangeHandler {
	return func(record hotreload.ChangeRecord) error {
		h.BroadcastChange(record)
		return nil
	}
}

// HandleWebSocket upgrades the connection and streams change notifications
// @Summary Subscribe to configuration changes
// @Description Upgrades to a WebSocket connection that receives a message for every applied configuration change
// @Tags WebSocket
// @Router /ws/changes [get]
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.WithError(err).Error("websocket upgrade failed")
		return
	}

	client := &Client{
		ID:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// writePump sends queued messages and keepalive pings to the client
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

// readPump drains client messages to keep the connection alive
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
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.WithError(err).Debug("websocket read error")
			}
			return
		}
	}
}
