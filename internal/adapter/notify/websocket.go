package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	commandTimeout = 30 * time.Second
	replyBuffer    = 8
)

// Message types sent to websocket clients.
const (
	MessageStatus = "status"
	MessageResult = "result"
	MessageError  = "error"
)

// ErrHubClosed is returned when a client connects after Close.
var ErrHubClosed = errors.New("websocket hub closed")

// Message is the JSON frame written to clients.
type Message struct {
	Type     string                `json:"type"`
	Snapshot *domain.CacheSnapshot `json:"snapshot,omitempty"`
	Command  domain.CommandKind    `json:"command,omitempty"`
	Result   *domain.CommandResult `json:"result,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// inbound is the JSON frame clients send: {"command": "cancel_current"}.
type inbound struct {
	Command string `json:"command"`
}

// Hub pushes status snapshots to websocket clients and accepts cancel commands from them.
// Each client holds at most one pending snapshot, so a slow client only misses
// intermediate states.
//
// Thread-safety: This implementation is thread-safe.
type Hub struct {
	logger   *slog.Logger
	sender   ports.CommandSender
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
	latest  *domain.CacheSnapshot
	closed  bool
	wg      sync.WaitGroup
}

// Client is one websocket connection.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	snapshots chan domain.CacheSnapshot
	replies   chan Message
	done      chan struct{}
	once      sync.Once
}

// NewHub creates a hub. allowedOrigins limits browser origins; an empty list or "*"
// accepts any origin.
func NewHub(logger *slog.Logger, sender ports.CommandSender, allowedOrigins []string) *Hub {
	h := &Hub{
		logger:  logger.With(slog.String("component", "websocket")),
		sender:  sender,
		clients: make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// Render implements ports.StatusRenderer by offering s to every client.
func (h *Hub) Render(s domain.CacheSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = &s
	for c := range h.clients {
		c.offer(s)
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &Client{
		hub:       h,
		conn:      conn,
		snapshots: make(chan domain.CacheSnapshot, 1),
		replies:   make(chan Message, replyBuffer),
		done:      make(chan struct{}),
	}
	if err := h.register(c); err != nil {
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.clients[c] = struct{}{}
	// Both pumps are counted before Close can observe the client
	h.wg.Add(2)
	if h.latest != nil {
		c.offer(*h.latest)
	}
	h.logger.Debug("client connected", slog.Int("clients", len(h.clients)))
	return nil
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.logger.Debug("client disconnected", slog.Int("clients", len(h.clients)))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their pumps to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	h.wg.Wait()
}

// offer replaces any pending snapshot with s. Called with the hub lock held.
func (c *Client) offer(s domain.CacheSnapshot) {
	select {
	case c.snapshots <- s:
		return
	default:
	}
	select {
	case <-c.snapshots:
	default:
	}
	select {
	case c.snapshots <- s:
	default:
	}
}

func (c *Client) reply(m Message) {
	select {
	case c.replies <- m:
	default:
		c.hub.logger.Warn("dropping reply to slow client", slog.String("type", m.Type))
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump turns incoming frames into commands.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.close()
		c.hub.wg.Done()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inbound
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed", slog.Any("error", err))
			}
			return
		}
		c.handle(in)
	}
}

func (c *Client) handle(in inbound) {
	cmd, err := domain.ParseCommandKind(in.Command)
	if err != nil {
		c.reply(Message{Type: MessageError, Command: domain.CommandKind(in.Command), Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	go func() {
		// Disconnecting aborts the wait, not the command
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	res, err := c.hub.sender.Send(ctx, cmd)
	if err != nil {
		c.reply(Message{Type: MessageError, Command: cmd.Kind(), Error: err.Error()})
		return
	}
	c.reply(Message{Type: MessageResult, Command: cmd.Kind(), Result: &res})
}

// writePump serializes every write to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		c.hub.wg.Done()
	}()

	for {
		var msg Message
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		case s := <-c.snapshots:
			msg = Message{Type: MessageStatus, Snapshot: &s}
		case msg = <-c.replies:
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			c.hub.logger.Debug("websocket write failed", slog.Any("error", err))
			return
		}
	}
}

var _ ports.StatusRenderer = (*Hub)(nil)
