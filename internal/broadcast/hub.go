// Package broadcast fans executed trades out to live WebSocket
// subscribers. Delivery is best-effort and never blocks the matching
// path: a slow or dead subscriber is dropped, not waited on.
package broadcast

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nathanyu/exchange-core/internal/codec"
	"github.com/nathanyu/exchange-core/internal/domain"
	"github.com/nathanyu/exchange-core/internal/middleware"
)

const (
	clientSendBuffer = 256
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub maintains the set of live subscribers and broadcasts trade ticks.
// Registration and removal are serialized through the run loop, so they
// are safe to call concurrently with Publish.
type Hub struct {
	log *zap.SugaredLogger

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	count atomic.Int64
}

// NewHub creates a new broadcast hub.
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop in a goroutine.
func (h *Hub) Run() {
	go h.run()
}

// Stop shuts the hub down and disconnects all subscribers.
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			middleware.SubscribersConnected.Set(float64(len(h.clients)))
			h.log.Infow("subscriber connected", "remote", client.id, "total", len(h.clients))

		case client := <-h.unregister:
			h.drop(client)

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Send buffer full: the subscriber can't keep up.
					h.drop(client)
					middleware.SubscribersDropped.Inc()
				}
			}

		case <-h.done:
			for client := range h.clients {
				h.drop(client)
			}
			return
		}
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.count.Store(int64(len(h.clients)))
	middleware.SubscribersConnected.Set(float64(len(h.clients)))
	h.log.Infow("subscriber disconnected", "remote", client.id, "total", len(h.clients))
}

// PublishTrade encodes a trade tick and hands it to the fan-out loop.
// Non-blocking: if the hub's own buffer is full the tick is dropped with
// a warning rather than stalling the caller.
func (h *Hub) PublishTrade(trade *domain.Trade) {
	payload, err := codec.EncodeTrade(trade)
	if err != nil {
		h.log.Errorw("encode trade tick", "trade_id", trade.TradeID, "err", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.log.Warnw("broadcast buffer full, dropping tick", "trade_id", trade.TradeID)
	}
}

// ClientCount returns the number of live subscribers.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Client represents one WebSocket subscriber.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
}

// ServeWS upgrades an HTTP request and registers the connection as a
// subscriber.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "err", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		id:   conn.RemoteAddr().String(),
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

// readPump drains the connection so pings and close frames are handled;
// trade subscribers never send meaningful payloads.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pumps ticks from the hub to the connection.
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
				// Hub dropped us.
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
