package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	cmap "github.com/orcaman/concurrent-map/v2"
)

const (
	EventIngestState = "ingest.state"
	EventIngestBatch = "ingest.batch"

	clientBuffer   = 64
	broadcastQueue = 256
	writeTimeout   = 5 * time.Second
)

// Event is one message pushed to websocket clients.
type Event struct {
	Type      string         `json:"type"`
	BatchID   string         `json:"batchId,omitempty"`
	Filename  string         `json:"filename,omitempty"`
	State     string         `json:"state,omitempty"`
	PhotoID   uint           `json:"photoId,omitempty"`
	Error     string         `json:"error,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// Publisher is what the ingestion pipeline needs from the hub.
type Publisher interface {
	Publish(event Event)
}

type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// offer queues msg without blocking. It reports false when the queue is full.
func (c *Client) offer(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
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

// Hub fans events out to every connected client. Slow clients are dropped
// instead of blocking the publisher.
type Hub struct {
	clients   cmap.ConcurrentMap[string, *Client]
	broadcast chan []byte
	log       *slog.Logger
	upgrader  websocket.Upgrader
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:   cmap.New[*Client](),
		broadcast: make(chan []byte, broadcastQueue),
		log:       logger.With("component", "realtime"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run delivers queued events until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case message := <-h.broadcast:
			for id, client := range h.clients.Items() {
				if !client.offer(message) {
					h.log.Warn("dropping slow websocket client", "client_id", id)
					h.remove(id)
				}
			}
		case <-ctx.Done():
			for _, id := range h.clients.Keys() {
				h.remove(id)
			}
			return
		}
	}
}

func (h *Hub) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to marshal event", "type", event.Type, "error", err)
		return
	}
	select {
	case h.broadcast <- encoded:
	default:
		h.log.Warn("dropping event, broadcast queue full", "type", event.Type)
	}
}

func (h *Hub) ClientCount() int {
	return h.clients.Count()
}

// ServeWS upgrades the connection and keeps the client registered until it
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{id: uuid.NewString(), conn: conn, send: make(chan []byte, clientBuffer)}
	h.clients.Set(client.id, client)
	h.log.Debug("websocket client connected", "client_id", client.id)

	go h.writePump(client)

	// clients only listen; reads drain control frames and detect close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(client.id)
}

func (h *Hub) writePump(client *Client) {
	defer client.conn.Close()
	for msg := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = client.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
}

func (h *Hub) remove(id string) {
	if client, ok := h.clients.Pop(id); ok {
		client.close()
	}
}
