package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bosun/internal/models"
	"bosun/pkg/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// envelope pairs a serialized message with the stream it belongs to so the
// hub can filter without re-decoding.
type envelope struct {
	streamKey string
	data      []byte
}

// Hub maintains the set of viewer connections and fans out prompt state
// changes, filtered by each connection's subscribed stream key.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	logger     logging.Logger
	mutex      sync.RWMutex

	// onCountChange reports the connection count, for metrics. Optional.
	onCountChange func(count int)
}

// Client represents a single viewer WebSocket connection
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	streamKey string // empty subscribes to all streams
	logger    logging.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// SetConnectionGauge registers a callback invoked with the connection count
// whenever it changes. Must be set before Run.
func (h *Hub) SetConnectionGauge(fn func(count int)) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.onCountChange = fn
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.notifyCount(count)
			h.logger.WithFields(logging.Fields{
				"client_count": count,
				"stream_key":   client.streamKey,
			}).Info("Viewer connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.notifyCount(count)
			h.logger.WithField("client_count", count).Info("Viewer disconnected")

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) notifyCount(count int) {
	h.mutex.RLock()
	fn := h.onCountChange
	h.mutex.RUnlock()
	if fn != nil {
		fn(count)
	}
}

// Broadcast queues a message for delivery to every connection subscribed to
// its stream. Fire-and-forget: a full hub drops the message rather than
// blocking the caller.
func (h *Hub) Broadcast(msg models.WsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal broadcast message")
		return
	}

	select {
	case h.broadcast <- envelope{streamKey: streamKeyOf(msg), data: data}:
	default:
		h.logger.Warn("Broadcast channel full, dropping message")
	}
}

func streamKeyOf(msg models.WsMessage) string {
	switch p := msg.Payload.(type) {
	case models.CurrentPromptPayload:
		return p.StreamKey
	case models.RecentPromptsPayload:
		return p.StreamKey
	case models.InitialStatePayload:
		return p.StreamKey
	default:
		return ""
	}
}

// fanOut delivers a message to every client subscribed to its stream. A
// client with a backed-up send buffer is dropped.
func (h *Hub) fanOut(msg envelope) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		if client.streamKey != "" && msg.streamKey != "" && client.streamKey != msg.streamKey {
			continue
		}

		select {
		case client.send <- msg.data:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// ClientCount returns the number of active connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a viewer connection subscribed to the
// given stream key. The initial message, if non-nil, is sent before any
// broadcast traffic.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, streamKey string, initial *models.WsMessage) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 256),
		streamKey: streamKey,
		logger:    h.logger,
	}

	if initial != nil {
		if data, err := json.Marshal(initial); err == nil {
			client.send <- data
		} else {
			h.logger.WithError(err).Error("Failed to marshal initial state message")
		}
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump drains the connection so pings/pongs and close frames are
// processed. Viewers never send application messages.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Debug("WebSocket connection error")
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
