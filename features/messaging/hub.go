package messaging

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"siteguard/internal/collector"
	"siteguard/internal/config"

	"github.com/alitto/pond/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

var ErrInvalidRole = errors.New("role must be popup or page")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one connected WebSocket peer.
type Client struct {
	ID   string
	Role Role
	// Host is the page hostname a page client reported, if any.
	Host string

	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *Client) write(msg Message, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return c.conn.WriteJSON(msg)
}

// Delivery counts the outcome of one broadcast.
type Delivery struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	cfg     config.NotifyConfig
	pool    pond.Pool
	metrics *collector.MetricsCollector

	mu      sync.RWMutex
	clients map[*Client]struct{}
	handler Handler
	closed  bool

	acks atomic.Int64
}

func NewHub(cfg config.NotifyConfig) *Hub {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	return &Hub{
		cfg:     cfg,
		pool:    pond.NewPool(workers),
		metrics: collector.Get(),
		clients: make(map[*Client]struct{}),
	}
}

// SetHandler installs who answers control messages arriving over a socket.
func (h *Hub) SetHandler(handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// ServeWS upgrades the request and serves the client until it disconnects.
// The role comes from the "role" query parameter and defaults to popup.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	role := Role(r.URL.Query().Get("role"))
	if role == "" {
		role = RolePopup
	}
	if !role.Valid() {
		http.Error(w, ErrInvalidRole.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket")
		return
	}

	c := &Client{
		ID:   xid.New().String(),
		Role: role,
		Host: r.URL.Query().Get("host"),
		conn: conn,
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	defer h.unregister(c)

	h.readLoop(r.Context(), c)
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.ClientConnected(string(c.Role))

	log.Debug().Str("client", c.ID).Str("role", string(c.Role)).Str("host", c.Host).Msg("Client connected")
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if !ok {
		return
	}
	_ = c.conn.Close()
	h.metrics.ClientDisconnected(string(c.Role))
	log.Debug().Str("client", c.ID).Str("role", string(c.Role)).Msg("Client disconnected")
}

func (h *Hub) readLoop(ctx context.Context, c *Client) {
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("client", c.ID).Msg("Client read failed")
			}
			return
		}

		if msg.Action == "" {
			if msg.Status != "" {
				h.acks.Add(1)
				log.Debug().Str("client", c.ID).Str("host", c.Host).Str("status", msg.Status).Msg("Page acknowledged")
			}
			continue
		}

		h.mu.RLock()
		handler := h.handler
		h.mu.RUnlock()

		reply := Message{Action: msg.Action, Error: "no handler installed"}
		if handler != nil {
			resp, err := handler.Handle(ctx, msg)
			reply = resp
			if reply.Action == "" {
				reply.Action = msg.Action
			}
			if err != nil {
				reply.Error = err.Error()
			}
		}

		if err := c.write(reply, h.cfg.WriteTimeout); err != nil {
			log.Debug().Err(err).Str("client", c.ID).Msg("Failed to answer client")
			return
		}
	}
}

// Broadcast sends msg to every client with role. Having no recipient is
// normal and only logged at debug. A client whose write fails is dropped.
func (h *Hub) Broadcast(ctx context.Context, role Role, msg Message) Delivery {
	recipients := h.clientsWithRole(role)
	if len(recipients) == 0 {
		h.metrics.Broadcast(string(msg.Action), "no_recipient")
		log.Debug().Str("action", string(msg.Action)).Str("role", string(role)).Msg("No listener for message")
		return Delivery{}
	}

	var sent, failed atomic.Int64
	group := h.pool.NewGroup()
	for _, c := range recipients {
		group.Submit(func() {
			if ctx.Err() != nil {
				failed.Add(1)
				return
			}
			if err := c.write(msg, h.cfg.WriteTimeout); err != nil {
				failed.Add(1)
				log.Debug().Err(err).Str("client", c.ID).Msg("Dropping client after failed write")
				h.unregister(c)
				return
			}
			sent.Add(1)
		})
	}
	_ = group.Wait()

	d := Delivery{Sent: int(sent.Load()), Failed: int(failed.Load())}
	h.metrics.Broadcast(string(msg.Action), "sent")
	log.Debug().
		Str("action", string(msg.Action)).
		Str("role", string(role)).
		Int("sent", d.Sent).
		Int("failed", d.Failed).
		Msg("Message broadcast")
	return d
}

func (h *Hub) clientsWithRole(role Role) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.Role == role {
			out = append(out, c)
		}
	}
	return out
}

// AutoToggleApplied tells popup clients a sweep re-enabled sites.
func (h *Hub) AutoToggleApplied(ctx context.Context, siteStates map[string]bool) {
	h.Broadcast(ctx, RolePopup, Message{Action: ActionAutoToggleApplied, SiteStates: siteStates})
}

// NotifyPages asks every connected page to re-run the element hider.
func (h *Hub) NotifyPages(ctx context.Context) Delivery {
	return h.Broadcast(ctx, RolePage, Message{Action: ActionHideElements})
}

// Count returns the number of connected clients with role.
func (h *Hub) Count(role Role) int {
	return len(h.clientsWithRole(role))
}

// Acks returns how many page acknowledgements were received.
func (h *Hub) Acks() int64 {
	return h.acks.Load()
}

// Close disconnects every client and stops the worker pool.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		h.unregister(c)
	}
	h.pool.StopAndWait()
}
