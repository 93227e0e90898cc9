// Package hub implements the broadcast bus and the per-connection client.
// Clients are transport-agnostic: anything that can read and write text
// frames can join the hub.
package hub

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lllypuk/teamboard/internal/domain/user"
)

const defaultSendBufferSize = 64

// Conn is one framed text transport. ReadFrame blocks until a frame arrives
// or the peer goes away; there is deliberately no read timeout.
type Conn interface {
	ReadFrame() (string, error)
	WriteFrame(line string) error
	Close() error
}

// Handler processes one inbound line from a client.
type Handler func(c *Client, line string)

// Client is a single live connection. Its read loop is the only place
// inbound frames are consumed, which gives strict per-connection command
// ordering.
type Client struct {
	id   string
	hub  *Hub
	conn Conn

	// send is the outbound buffer drained by WritePump. Writers never block
	// on it; a full buffer drops the delivery.
	send chan string

	// mu protects the session identity below and the closed flag.
	mu            sync.RWMutex
	authenticated bool
	user          user.User
	closed        bool

	logger *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger for the client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithSendBufferSize sets the outbound buffer capacity.
func WithSendBufferSize(n int) ClientOption {
	return func(c *Client) { c.send = make(chan string, n) }
}

// NewClient creates an unauthenticated client for the given transport.
func NewClient(h *Hub, conn Conn, opts ...ClientOption) *Client {
	c := &Client{
		id:     uuid.NewString(),
		hub:    h,
		conn:   conn,
		send:   make(chan string, defaultSendBufferSize),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// IsAuthenticated reports whether login has completed on this connection.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// User returns the identity bound at login. The zero value before login.
func (c *Client) User() user.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// bind attaches an authenticated identity. Called by the hub under its own
// registration bookkeeping.
func (c *Client) bind(u user.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authenticated = true
	c.user = u
}

// Send queues a line for delivery. It never blocks: if the client's buffer
// is full the line is dropped and counted.
func (c *Client) Send(line string) {
	// Holding the read lock keeps Close from closing the channel mid-send.
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.send <- line:
	default:
		c.hub.metrics.DroppedDeliveries.Inc()
		c.logger.Warn("client send buffer full, dropping line",
			slog.String("conn_id", c.id),
		)
	}
}

// ReadPump consumes frames until the transport fails or closes, handing each
// line to the handler. Disconnect, clean or abrupt, ends the loop and
// triggers ordinary cleanup via the hub.
func (c *Client) ReadPump(handler Handler) {
	defer c.hub.Unregister(c)

	for {
		line, err := c.conn.ReadFrame()
		if err != nil {
			return
		}
		handler(c, line)
	}
}

// WritePump drains the send buffer into the transport. A write error closes
// the transport, which in turn unblocks ReadPump.
func (c *Client) WritePump() {
	defer func() { _ = c.conn.Close() }()

	for line := range c.send {
		if err := c.conn.WriteFrame(line); err != nil {
			c.logger.Debug("client write failed",
				slog.String("conn_id", c.id),
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

// Close shuts the send channel and the transport. Safe to call once per
// client; the hub does this during unregistration.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	close(c.send)
	_ = c.conn.Close()
}
