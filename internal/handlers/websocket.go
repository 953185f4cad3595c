package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"netmon/internal/models"
	"netmon/internal/session"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 512 // buffered channel size per client — drops when full
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans captured records and session status changes out to
// connected WebSocket clients. It implements session.Listener.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	log     *logrus.Entry
}

// NewHub creates an empty hub. Register it on the session controller
// to receive events.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		log:     logrus.WithField("component", "ws"),
	}
}

// RecordInserted pushes one decoded record to all clients.
func (h *Hub) RecordInserted(rec models.PacketRecord) {
	payload, err := json.Marshal(newRecordJSON(&rec))
	if err != nil {
		return
	}
	h.broadcast(models.WSMessage{Type: "packet", Payload: payload})
}

// StatusChanged pushes a session state transition to all clients.
func (h *Hub) StatusChanged(st session.Status) {
	payload, err := json.Marshal(st)
	if err != nil {
		return
	}
	h.broadcast(models.WSMessage{Type: "status", Payload: payload})
}

func (h *Hub) broadcast(msg models.WSMessage) {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.send(msg)
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// Handler returns the HTTP handler performing the WebSocket upgrade.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.WithError(err).Warn("websocket upgrade failed")
			return
		}
		c := &wsClient{
			conn:   conn,
			sendCh: make(chan models.WSMessage, sendBuffer),
			done:   make(chan struct{}),
		}
		h.register(c)
		go c.writeLoop()
		c.readLoop()
		h.unregister(c)
	}
}

// wsClient wraps one WebSocket connection with an async send buffer.
type wsClient struct {
	conn   *websocket.Conn
	sendCh chan models.WSMessage
	done   chan struct{}
}

// send queues a message for delivery. Non-blocking: packet messages
// are dropped when the buffer is full so a slow client never stalls
// the capture loop; status messages displace an old packet instead.
func (c *wsClient) send(msg models.WSMessage) {
	select {
	case c.sendCh <- msg:
	default:
		if msg.Type == "packet" {
			return
		}
		select {
		case <-c.sendCh:
		default:
		}
		select {
		case c.sendCh <- msg:
		default:
		}
	}
}

func (c *wsClient) writeLoop() {
	defer c.conn.Close()
	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop consumes incoming frames until the peer disconnects. The
// API is REST-only; inbound WebSocket data is ignored.
func (c *wsClient) readLoop() {
	defer close(c.done)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
