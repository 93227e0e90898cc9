// Package server exposes the command protocol over plain TCP. Each accepted
// connection becomes a hub client with one reader and one writer goroutine.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lllypuk/teamboard/internal/dispatch"
	"github.com/lllypuk/teamboard/internal/hub"
	"github.com/lllypuk/teamboard/internal/wire"
)

const defaultWriteTimeout = 10 * time.Second

// TCP accepts line-framed command connections and registers them on the hub.
type TCP struct {
	addr           string
	hub            *hub.Hub
	dispatcher     *dispatch.Dispatcher
	logger         *slog.Logger
	sendBufferSize int

	listener net.Listener
	wg       sync.WaitGroup

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// Option configures the TCP server.
type Option func(*TCP)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *TCP) { s.logger = logger }
}

// WithSendBufferSize sets the per-connection outbound queue length.
func WithSendBufferSize(n int) Option {
	return func(s *TCP) { s.sendBufferSize = n }
}

// New creates a TCP server listening on addr once started.
func New(addr string, h *hub.Hub, d *dispatch.Dispatcher, opts ...Option) *TCP {
	s := &TCP{
		addr:       addr,
		hub:        h,
		dispatcher: d,
		logger:     slog.Default(),
		conns:      make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener and serves until Shutdown is called. It blocks.
func (s *TCP) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("tcp server listening", slog.String("addr", s.addr))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept failed", slog.Any("error", err))
			continue
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

// Shutdown stops accepting, closes live connections, and waits for their
// goroutines to finish or the context to expire.
func (s *TCP) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	listener := s.listener
	conns := make([]net.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	for _, conn := range conns {
		_ = conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the bound listener address, or nil before Start.
func (s *TCP) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *TCP) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *TCP) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	clientOpts := []hub.ClientOption{hub.WithClientLogger(s.logger)}
	if s.sendBufferSize > 0 {
		clientOpts = append(clientOpts, hub.WithSendBufferSize(s.sendBufferSize))
	}
	client := hub.NewClient(s.hub, newLineConn(conn), clientOpts...)
	s.hub.Register(client)

	s.logger.Info("tcp client connected",
		slog.String("conn_id", client.ID()),
		slog.String("remote", conn.RemoteAddr().String()),
	)

	client.Send(dispatch.WelcomeLine)

	go client.WritePump()
	client.ReadPump(s.dispatcher.Handle)
}

// lineConn adapts a net.Conn to the hub.Conn framing: one command per
// newline-terminated line.
type lineConn struct {
	conn   net.Conn
	reader *bufio.Scanner

	writeMu sync.Mutex
	writer  *bufio.Writer
}

func newLineConn(conn net.Conn) *lineConn {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), wire.MaxLineBytes)
	return &lineConn{
		conn:   conn,
		reader: scanner,
		writer: bufio.NewWriter(conn),
	}
}

func (l *lineConn) ReadFrame() (string, error) {
	if !l.reader.Scan() {
		if err := l.reader.Err(); err != nil {
			return "", err
		}
		return "", net.ErrClosed
	}
	return l.reader.Text(), nil
}

func (l *lineConn) WriteFrame(line string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	_ = l.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if _, err := l.writer.WriteString(line); err != nil {
		return err
	}
	if err := l.writer.WriteByte('\n'); err != nil {
		return err
	}
	return l.writer.Flush()
}

func (l *lineConn) Close() error {
	return l.conn.Close()
}
