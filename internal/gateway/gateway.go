// Package gateway exposes the workspace over HTTP: a small JSON API, a
// Prometheus endpoint and a WebSocket entry point into the command protocol.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lllypuk/teamboard/internal/dispatch"
	"github.com/lllypuk/teamboard/internal/hub"
	"github.com/lllypuk/teamboard/internal/middleware"
	"github.com/lllypuk/teamboard/internal/store"
)

const (
	defaultReadBufferSize  = 1024
	defaultWriteBufferSize = 1024
)

// Config holds the gateway's runtime settings.
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBufferSize int
}

// Gateway is the HTTP server.
type Gateway struct {
	echo       *echo.Echo
	config     Config
	store      *store.Store
	hub        *hub.Hub
	dispatcher *dispatch.Dispatcher
	tokens     *TokenManager
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	registry   prometheus.Gatherer
}

// Option configures the Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithMetricsRegistry sets the registry served on /metrics.
func WithMetricsRegistry(reg prometheus.Gatherer) Option {
	return func(g *Gateway) { g.registry = reg }
}

// New creates the gateway and registers all routes.
func New(
	cfg Config,
	st *store.Store,
	h *hub.Hub,
	d *dispatch.Dispatcher,
	tokens *TokenManager,
	opts ...Option,
) *Gateway {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	g := &Gateway{
		echo:       e,
		config:     cfg,
		store:      st,
		hub:        h,
		dispatcher: d,
		tokens:     tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  defaultReadBufferSize,
			WriteBufferSize: defaultWriteBufferSize,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		logger:   slog.Default(),
		registry: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(g)
	}

	e.Use(middleware.Recovery(g.logger))
	e.Use(middleware.Logging(middleware.LoggingConfig{
		Logger:    g.logger,
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	g.registerRoutes()
	return g
}

func (g *Gateway) registerRoutes() {
	e := g.echo

	e.GET("/healthz", g.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{})))
	e.GET("/ws", g.handleWebSocket)

	api := e.Group("/api")
	api.POST("/login", g.handleLogin)

	authed := api.Group("", g.requireAuth)
	authed.POST("/logout", g.handleLogout)
	authed.GET("/tasks", g.listTasks)
	authed.POST("/tasks", g.createTask)
	authed.GET("/tasks/:id", g.getTask)
	authed.PUT("/tasks/:id/assign", g.assignTask)
	authed.PUT("/tasks/:id/status", g.changeStatus)
	authed.PUT("/tasks/:id/priority", g.changePriority)
	authed.POST("/tasks/:id/comments", g.addComment)
	authed.GET("/tasks/:id/comments", g.getComments)
	authed.GET("/tasks/overdue", g.listOverdue)
	authed.GET("/tasks/due-soon", g.listDueSoon)
	authed.GET("/users", g.listUsers)
	authed.GET("/users/online", g.listOnline)
	authed.GET("/users/recommend", g.getRecommendation)
	authed.GET("/messages", g.listMessages)
	authed.POST("/chat", g.postChat)
	authed.POST("/chat/private", g.postPrivate)
	authed.GET("/chat/private/:userId", g.getPrivateConversation)
	authed.GET("/dashboard", g.getDashboard)
}

// Handler exposes the underlying HTTP handler, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.echo
}

// Start runs the server until Shutdown. It blocks.
func (g *Gateway) Start() error {
	g.logger.Info("http gateway listening", slog.String("addr", g.config.Addr))
	if err := g.echo.Start(g.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start gateway on %s: %w", g.config.Addr, err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if err := g.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown gateway: %w", err)
	}
	return nil
}

func (g *Gateway) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
