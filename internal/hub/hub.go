package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lllypuk/teamboard/internal/domain/user"
	"github.com/lllypuk/teamboard/internal/metrics"
)

const defaultBroadcastBufferSize = 256

// envelope is one fan-out request. A zero target means every authenticated
// connection.
type envelope struct {
	targetUserID int
	line         string
}

// Hub tracks live connections and fans messages out to them. Delivery is
// fire-and-forget: a slow or dead connection degrades only its own delivery,
// never the sender's command.
type Hub struct {
	// clients holds all connected clients, authenticated or not.
	clients map[*Client]bool

	// userClients maps user ids to their live connections. One user can be
	// connected more than once.
	userClients map[int]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan envelope

	// mu protects the maps; Bind and the fan-out path touch them outside
	// the run loop.
	mu sync.RWMutex

	// onDisconnect runs for authenticated clients after they leave the maps.
	onDisconnect func(*Client)

	logger  *slog.Logger
	metrics *metrics.Metrics

	done      chan struct{}
	running   bool
	runningMu sync.Mutex
}

// Option configures the Hub.
type Option func(*Hub)

// WithLogger sets the logger for the hub.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithBroadcastBuffer sets the shared fan-out queue length.
func WithBroadcastBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.broadcast = make(chan envelope, n)
		}
	}
}

// New creates a hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		clients:     make(map[*Client]bool),
		userClients: make(map[int]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan envelope, defaultBroadcastBufferSize),
		logger:      slog.Default(),
		metrics:     metrics.NewNop(),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetDisconnectHandler installs the cleanup callback invoked when an
// authenticated client disconnects. Must be set before Run.
func (h *Hub) SetDisconnectHandler(f func(*Client)) {
	h.onDisconnect = f
}

// Run processes registrations and fan-out until the context is cancelled or
// Stop is called. It should be run as a goroutine.
func (h *Hub) Run(ctx context.Context) {
	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		return
	}
	h.running = true
	h.runningMu.Unlock()

	h.logger.InfoContext(ctx, "hub started")

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case <-h.done:
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

// Stop signals the hub to stop.
func (h *Hub) Stop() {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if !h.running {
		return
	}
	h.running = false
	close(h.done)
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister removes a client from the hub and releases its resources.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// Bind marks a client authenticated as the given user. Called by the
// dispatcher on successful login, from the client's own read loop.
func (h *Hub) Bind(c *Client, u user.User) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}

	// Re-login on a live connection: drop the old identity's binding so
	// targeted sends stop reaching this connection.
	if c.IsAuthenticated() {
		prev := c.User()
		if prev.ID != u.ID {
			if conns, ok := h.userClients[prev.ID]; ok {
				delete(conns, c)
				if len(conns) == 0 {
					delete(h.userClients, prev.ID)
				}
			}
		}
	}

	c.bind(u)
	if h.userClients[u.ID] == nil {
		h.userClients[u.ID] = make(map[*Client]bool)
	}
	h.userClients[u.ID][c] = true
}

// BroadcastAll queues a line for every authenticated connection.
func (h *Hub) BroadcastAll(line string) {
	h.enqueue(envelope{line: line})
}

// SendToUser queues a line for every live connection of the user. A user
// with no live connection is a logged no-op, not an error.
func (h *Hub) SendToUser(userID int, line string) {
	h.enqueue(envelope{targetUserID: userID, line: line})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// UserConnectionCount returns the number of live connections for a user.
func (h *Hub) UserConnectionCount(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID])
}

// enqueue hands an envelope to the run loop without ever blocking it; if the
// fan-out buffer is full the message is dropped and counted.
func (h *Hub) enqueue(env envelope) {
	select {
	case h.broadcast <- env:
	default:
		h.metrics.DroppedDeliveries.Inc()
		h.logger.Warn("fan-out buffer full, dropping message")
	}
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = true
	h.metrics.ConnectionsOpen.Inc()

	h.logger.Debug("client registered",
		slog.String("conn_id", c.ID()),
		slog.Int("total_clients", len(h.clients)),
	)
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)

	wasAuthenticated := c.IsAuthenticated()
	if wasAuthenticated {
		u := c.User()
		if conns, ok := h.userClients[u.ID]; ok {
			delete(conns, c)
			if len(conns) == 0 {
				delete(h.userClients, u.ID)
			}
		}
	}
	h.metrics.ConnectionsOpen.Dec()
	h.mu.Unlock()

	c.Close()

	if wasAuthenticated && h.onDisconnect != nil {
		h.onDisconnect(c)
	}

	h.logger.Debug("client unregistered",
		slog.String("conn_id", c.ID()),
	)
}

// deliver fans one envelope out. Per-client delivery goes through the
// non-blocking send buffer.
func (h *Hub) deliver(env envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.metrics.BroadcastsTotal.Inc()

	if env.targetUserID != 0 {
		conns, ok := h.userClients[env.targetUserID]
		if !ok || len(conns) == 0 {
			h.logger.Info("no live connection for user, dropping delivery",
				slog.Int("user_id", env.targetUserID),
			)
			return
		}
		for c := range conns {
			c.Send(env.line)
		}
		return
	}

	for c := range h.clients {
		if c.IsAuthenticated() {
			c.Send(env.line)
		}
	}
}

func (h *Hub) shutdown() {
	h.runningMu.Lock()
	h.running = false
	h.runningMu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		c.Close()
	}
	h.clients = make(map[*Client]bool)
	h.userClients = make(map[int]map[*Client]bool)

	h.logger.Info("hub stopped")
}
