/*
feed.go - Websocket change feed

PURPOSE:
  Dashboards subscribe to GET /api/feed and refetch whatever a change
  event names. Hub implements planning.Publisher, so services publish
  straight into it.

DEBOUNCE:
  Events are collected for Debounce after the first one arrives and sent
  to every client as one batch:

    {"events": [{"kind": "amendment_saved", "week_reference": "Week 12", ...}]}

  A bulk upload touching hundreds of rows reaches clients as a handful of
  messages instead of hundreds.

BACKPRESSURE:
  Publish never blocks. When the inbound buffer is full the event is
  dropped and counted. A client whose send buffer is full is disconnected;
  it reconnects and refetches.

SEE ALSO:
  - planning/events.go: ChangeEvent
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/warp/backoffice/planning"
)

const (
	DefaultDebounce = 250 * time.Millisecond

	inboundBuffer = 1024
	clientBuffer  = 16
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
)

var (
	feedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backoffice_feed_clients",
		Help: "Connected websocket feed clients",
	})
	feedDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backoffice_feed_dropped_events_total",
		Help: "Change events dropped because the hub buffer was full",
	})
)

// FeedMessage is one debounced batch.
type FeedMessage struct {
	Events []planning.ChangeEvent `json:"events"`
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

type Hub struct {
	Debounce time.Duration
	Log      zerolog.Logger

	upgrader websocket.Upgrader
	in       chan planning.ChangeEvent

	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

// NewHub creates a hub. allowedOrigins of nil or ["*"] accepts any origin.
func NewHub(debounce time.Duration, allowedOrigins []string, log zerolog.Logger) *Hub {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	h := &Hub{
		Debounce: debounce,
		Log:      log,
		in:       make(chan planning.ChangeEvent, inboundBuffer),
		clients:  make(map[*feedClient]struct{}),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Publish queues an event for the next batch. Safe on a nil hub.
func (h *Hub) Publish(e planning.ChangeEvent) {
	if h == nil {
		return
	}
	select {
	case h.in <- e:
	default:
		feedDropped.Inc()
	}
}

// Run batches and broadcasts events until ctx is done, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	var (
		pending []planning.ChangeEvent
		timer   *time.Timer
		fire    <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			h.closeAll()
			return
		case e := <-h.in:
			pending = append(pending, e)
			if timer == nil {
				timer = time.NewTimer(h.Debounce)
				fire = timer.C
			}
		case <-fire:
			h.broadcast(pending)
			pending, timer, fire = nil, nil, nil
		}
	}
}

func (h *Hub) broadcast(events []planning.ChangeEvent) {
	if len(events) == 0 {
		return
	}
	msg, err := json.Marshal(FeedMessage{Events: events})
	if err != nil {
		h.Log.Error().Err(err).Msg("failed to encode feed message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.drop(c)
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(c *feedClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	feedClients.Dec()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.drop(c)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection.
// GET /api/feed
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.Log.Warn().Err(err).Msg("feed upgrade failed")
		return
	}
	c := &feedClient{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	feedClients.Inc()

	if u, ok := userFrom(r.Context()); ok {
		h.Log.Debug().Str("user", u.ID).Msg("feed client connected")
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client messages and notices disconnects.
func (h *Hub) readPump(c *feedClient) {
	defer func() {
		h.mu.Lock()
		h.drop(c)
		h.mu.Unlock()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *feedClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
