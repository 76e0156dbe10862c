// Package api provides the thin admin HTTP surface for edgetun: a liveness
// banner, authorized-UUID listing/refresh, and tunnel traffic statistics,
// via a Gin-based HTTP server.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nullwave/edgetun/internal/api/handlers"
	"github.com/nullwave/edgetun/internal/api/middleware"
	"github.com/nullwave/edgetun/internal/authstore"
)

// Server is the admin REST API server.
//
// Security note: do not expose this API to untrusted networks. Every route
// but the liveness banner requires API_KEY.
type Server struct {
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds a Server listening on addr. store may be nil (the UUID
// endpoints degrade to an empty snapshot); stats may be nil (the stats
// endpoint degrades to zeroed counters) until the tunnel dispatcher is
// wired in. stats and upgrader are typically the same *tunnel.Dispatcher,
// accepted as two narrow interfaces since the admin surface only needs the
// accounting view while routing only needs the upgrade hand-off.
func New(addr, apiKey string, logger *slog.Logger, store *authstore.Store, stats handlers.TunnelStats, upgrader middleware.TunnelUpgrader) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.SlogRequestLogger(logger))
	// Must run before any route registers: a WebSocket upgrade to a
	// single-segment path (the conventional tunnel path) would otherwise be
	// swallowed by the admin surface's "/:uuid" wildcard, since a matched
	// route always wins over NoRoute.
	engine.Use(middleware.InterceptTunnelUpgrade(upgrader))

	h := handlers.New(logger, store, stats)
	RegisterRoutes(engine, h, apiKey)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{logger: logger, engine: engine, httpServer: httpServer}
}

func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
