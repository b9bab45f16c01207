package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/drewstaylor/fomo/internal/game"
)

// WSMessage is the envelope for all WebSocket communication.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client is one event stream subscriber.
type Client struct {
	ID   uuid.UUID
	conn *websocket.Conn
	send chan WSMessage
}

// HubOptions tunes connection handling.
type HubOptions struct {
	PingInterval time.Duration
	ReadLimit    int64
	// InsecureSkipVerify disables the origin check; development only.
	InsecureSkipVerify bool
}

// Hub fans committed game events out to every subscriber.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	opts    HubOptions
	metrics *Metrics
	logger  *slog.Logger
	welcome func(ctx context.Context) (WSMessage, error)
}

func NewHub(opts HubOptions, metrics *Metrics, logger *slog.Logger) *Hub {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 4096
	}
	return &Hub{
		clients: make(map[uuid.UUID]*Client),
		opts:    opts,
		metrics: metrics,
		logger:  logger,
	}
}

// SetWelcome registers the message sent to each client right after it
// connects, typically the current game state.
func (h *Hub) SetWelcome(fn func(ctx context.Context) (WSMessage, error)) {
	h.welcome = fn
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.opts.InsecureSkipVerify,
	})
	if err != nil {
		h.logger.Error("ws accept", "err", err)
		return
	}
	conn.SetReadLimit(h.opts.ReadLimit)

	client := &Client{
		ID:   uuid.New(),
		conn: conn,
		send: make(chan WSMessage, 64),
	}

	h.register(client)
	defer h.unregister(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.greet(ctx, client)

	go h.writePump(ctx, client)
	h.readPump(ctx, client)
}

// greet queues the welcome message. Broadcasts may already have filled the
// buffer, in which case the client goes without one.
func (h *Hub) greet(ctx context.Context, c *Client) {
	if h.welcome == nil {
		return
	}
	msg, err := h.welcome(ctx)
	if err != nil {
		h.logger.Warn("ws welcome", "client", c.ID, "err", err)
		return
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("ws welcome dropped, send buffer full", "client", c.ID)
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
	if h.metrics != nil {
		h.metrics.IncrWSConn()
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
		if h.metrics != nil {
			h.metrics.DecrWSConn()
		}
	}
}

// Broadcast sends a message to every client. Slow clients miss messages
// rather than stall the sender.
func (h *Hub) Broadcast(msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("client send buffer full", "client", c.ID)
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump only answers pings; the stream is otherwise server to client.
func (h *Hub) readPump(ctx context.Context, c *Client) {
	defer func() {
		if err := c.conn.CloseNow(); err != nil {
			h.logger.Debug("close conn", "err", err)
		}
	}()
	for {
		var msg WSMessage
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			return
		}
		if msg.Type == "ping" {
			h.reply(c, WSMessage{Type: "pong"})
		}
	}
}

func (h *Hub) reply(c *Client, msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *Hub) writePump(ctx context.Context, c *Client) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, c.conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

type eventPayload struct {
	Round      uint64           `json:"round"`
	Sender     string           `json:"sender"`
	Attributes []game.Attribute `json:"attributes"`
	Transfers  []game.Transfer  `json:"transfers,omitempty"`
	State      *game.State      `json:"state"`
}

// EventType maps an action to the event name clients subscribe to.
func EventType(action string) string {
	return strings.TrimPrefix(action, "execute_")
}

// NewEvent builds the broadcast for a committed operation.
func NewEvent(c *game.Commit, resp *game.Response) (WSMessage, error) {
	payload, err := json.Marshal(eventPayload{
		Round:      c.Round,
		Sender:     c.Sender,
		Attributes: resp.Attributes,
		Transfers:  resp.Transfers,
		State:      c.State,
	})
	if err != nil {
		return WSMessage{}, err
	}
	return WSMessage{Type: EventType(resp.Action), Payload: payload}, nil
}

// StateMessage wraps a state snapshot for the welcome message.
func StateMessage(st *game.State) (WSMessage, error) {
	payload, err := json.Marshal(st)
	if err != nil {
		return WSMessage{}, err
	}
	return WSMessage{Type: "state", Payload: payload}, nil
}
