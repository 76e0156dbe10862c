// Package handlers implements the admin API endpoint handlers for edgetun:
// a liveness banner, the authorized-UUID listing/refresh pair, and tunnel
// traffic statistics.
//
// @title edgetun Admin API
// @version 1.0
// @description Thin management surface for an edgetun tunnel host.
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:8080
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/nullwave/edgetun/internal/authstore"
)

// TunnelStats is the narrow view of the tunnel dispatcher's accounting the
// admin API needs; implemented by *tunnel.Dispatcher.
type TunnelStats interface {
	ActiveTunnels() int
	TotalTunnels() uint64
	TrafficTotals() (uplink, downlink uint64)
	RejectedByBudget() uint64
}

// Handler contains dependencies for API handlers.
type Handler struct {
	logger    *slog.Logger
	store     *authstore.Store
	stats     TunnelStats
	startTime time.Time
}

// New creates a new Handler. stats may be nil before the tunnel dispatcher
// is wired up; the stats endpoint degrades to zeroed counters in that case.
func New(logger *slog.Logger, store *authstore.Store, stats TunnelStats) *Handler {
	return &Handler{
		logger:    logger,
		store:     store,
		stats:     stats,
		startTime: time.Now(),
	}
}

// refreshContext bounds the refresh handler's upstream provider fan-out so a
// slow provider can't hang an admin request forever.
func refreshContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}
