package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/efreitasn/equityledger/internal/domain"
	"github.com/efreitasn/equityledger/internal/metrics"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
	streamBuffer     = 64
)

// tradeMessage is a JSON message sent to trade feed clients.
type tradeMessage struct {
	Type          string `json:"type"`
	PropertyID    string `json:"property_id"`
	TransactionID string `json:"transaction_id"`
	Seq           int64  `json:"seq"`
	PricePerShare int64  `json:"price_per_share"`
	Quantity      int64  `json:"quantity"`
	Primary       bool   `json:"primary"`
	ExecutedAt    string `json:"executed_at"`
}

type streamClient struct {
	propertyID string
	conn       *websocket.Conn
	send       chan []byte
}

type streamMessage struct {
	propertyID string
	data       []byte
}

// Hub fans executed trades out to WebSocket clients subscribed to a
// property. Each client has its own writer goroutine; a client whose
// buffer is full is dropped.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	origins  map[string]struct{}

	broadcast  chan streamMessage
	register   chan *streamClient
	unregister chan *streamClient
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

// NewHub creates a new trade feed hub. Call Run before serving.
//
// Browsers may open the feed from the server's own host or from one of
// allowedOrigins ("scheme://host[:port]", or "*" for any origin). Requests
// without an Origin header are not browser requests and are accepted.
func NewHub(logger *slog.Logger, allowedOrigins ...string) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger:     logger,
		origins:    make(map[string]struct{}, len(allowedOrigins)),
		broadcast:  make(chan streamMessage, 256),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		done:       make(chan struct{}),
		clients:    make(map[*streamClient]struct{}),
	}
	for _, origin := range allowedOrigins {
		h.origins[strings.ToLower(strings.TrimSuffix(origin, "/"))] = struct{}{}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := h.origins["*"]; ok {
		return true
	}
	if _, ok := h.origins[strings.ToLower(origin)]; ok {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Run is the hub's event loop. It returns when ctx is done, closing every
// client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			metrics.StreamClients.Inc()
			h.logger.Debug("stream client connected", "property_id", c.propertyID)

		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if c.propertyID != msg.propertyID {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.drop(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes c. Callers hold h.mu.
func (h *Hub) drop(c *streamClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.StreamClients.Dec()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishTrades queues trades for the property's subscribers. It never
// blocks; messages are dropped when the hub is saturated.
func (h *Hub) PublishTrades(propertyID string, trades []*domain.Transaction) {
	for _, t := range trades {
		data, err := json.Marshal(tradeMessage{
			Type:          "trade",
			PropertyID:    t.PropertyID,
			TransactionID: t.TransactionID,
			Seq:           t.Seq,
			PricePerShare: t.PricePerShare,
			Quantity:      t.Quantity,
			Primary:       t.Primary(),
			ExecutedAt:    formatTime(t.ExecutedAt),
		})
		if err != nil {
			continue
		}
		select {
		case h.broadcast <- streamMessage{propertyID: propertyID, data: data}:
		default:
			h.logger.Warn("trade feed saturated, dropping message", "property_id", propertyID)
		}
	}
}

// ServeWS upgrades the request and subscribes the connection to the
// property's trades.
func (h *Hub) ServeWS(exists func(r *http.Request, propertyID string) error, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID := chi.URLParam(r, "property_id")
		if err := exists(r, propertyID); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("stream upgrade failed", "error", err, "origin", r.Header.Get("Origin"))
			return
		}

		c := &streamClient{propertyID: propertyID, conn: conn, send: make(chan []byte, streamBuffer)}
		select {
		case h.register <- c:
		case <-h.done:
			conn.Close()
			return
		}
		go h.writePump(c)
		go h.readPump(c)
	}
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *streamClient) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer of c.conn.
func (h *Hub) writePump(c *streamClient) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
