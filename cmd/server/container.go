// Package main provides the collaboration server entry point.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lllypuk/teamboard/internal/config"
	"github.com/lllypuk/teamboard/internal/dispatch"
	"github.com/lllypuk/teamboard/internal/domain/user"
	"github.com/lllypuk/teamboard/internal/gateway"
	"github.com/lllypuk/teamboard/internal/hub"
	"github.com/lllypuk/teamboard/internal/metrics"
	"github.com/lllypuk/teamboard/internal/persist"
	"github.com/lllypuk/teamboard/internal/server"
	"github.com/lllypuk/teamboard/internal/store"
)

// Container holds all application dependencies and manages their lifecycle.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Snapshot  persist.Store
	Store     *store.Store
	Hub       *hub.Hub
	Dispatch  *dispatch.Dispatcher
	TCPServer *server.TCP
	Gateway   *gateway.Gateway
}

// ContainerOption configures the container.
type ContainerOption func(*Container)

// WithLogger sets the container logger.
func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *Container) { c.Logger = logger }
}

// NewContainer wires all application dependencies.
func NewContainer(cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Registry = prometheus.NewRegistry()
	c.Metrics = metrics.New(c.Registry)

	snapshot, err := newSnapshot(cfg.Persistence)
	if err != nil {
		return nil, fmt.Errorf("init persistence: %w", err)
	}
	c.Snapshot = snapshot

	st, err := store.New(
		store.WithLogger(c.Logger),
		store.WithSnapshot(snapshot),
	)
	if err != nil {
		_ = snapshot.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}
	c.Store = st

	if err := seedUsers(st); err != nil {
		_ = snapshot.Close()
		return nil, fmt.Errorf("seed users: %w", err)
	}

	c.Hub = hub.New(
		hub.WithLogger(c.Logger),
		hub.WithMetrics(c.Metrics),
		hub.WithBroadcastBuffer(cfg.Hub.BroadcastBufferSize),
	)

	c.Dispatch = dispatch.New(st, c.Hub,
		dispatch.WithLogger(c.Logger),
		dispatch.WithMetrics(c.Metrics),
	)
	c.Hub.SetDisconnectHandler(c.Dispatch.HandleDisconnect)

	c.TCPServer = server.New(cfg.TCP.Addr(), c.Hub, c.Dispatch,
		server.WithLogger(c.Logger),
		server.WithSendBufferSize(cfg.Hub.SendBufferSize),
	)

	tokens := gateway.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	c.Gateway = gateway.New(
		gateway.Config{
			Addr:           cfg.Gateway.Addr(),
			ReadTimeout:    cfg.Gateway.ReadTimeout,
			WriteTimeout:   cfg.Gateway.WriteTimeout,
			SendBufferSize: cfg.Hub.SendBufferSize,
		},
		st, c.Hub, c.Dispatch, tokens,
		gateway.WithLogger(c.Logger),
		gateway.WithMetricsRegistry(c.Registry),
	)

	return c, nil
}

// StartHub runs the fan-out loop until ctx is cancelled.
func (c *Container) StartHub(ctx context.Context) {
	go c.Hub.Run(ctx)
}

// Close releases container resources.
func (c *Container) Close() error {
	c.Hub.Stop()
	if err := c.Snapshot.Close(); err != nil {
		return fmt.Errorf("close persistence: %w", err)
	}
	return nil
}

func newSnapshot(cfg config.PersistenceConfig) (persist.Store, error) {
	switch cfg.Backend {
	case config.BackendFile:
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return persist.NewFileStore(cfg.Dir)
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return persist.OpenSQLite(cfg.SQLitePath)
	default:
		return persist.Noop{}, nil
	}
}

// seedUsers registers the built-in accounts.
func seedUsers(st *store.Store) error {
	for _, u := range []user.User{
		{ID: 1, Username: "admin", Email: "admin@company.com", Role: user.RoleAdmin},
		{ID: 2, Username: "pm1", Email: "pm1@company.com", Role: user.RoleProjectManager},
		{ID: 3, Username: "dev1", Email: "dev1@company.com", Role: user.RoleDeveloper},
		{ID: 4, Username: "dev2", Email: "dev2@company.com", Role: user.RoleDeveloper},
		{ID: 5, Username: "tester1", Email: "tester1@company.com", Role: user.RoleTester},
	} {
		if err := st.RegisterUser(u); err != nil {
			return err
		}
	}
	return nil
}
