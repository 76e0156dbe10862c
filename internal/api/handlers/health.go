package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/nullwave/edgetun/internal/api/models"
)

// Liveness godoc
// @Summary Liveness banner
// @Description Returns a liveness banner enriched with a host resource snapshot
// @Tags system
// @Produce json
// @Success 200 {object} models.LivenessResponse
// @Router / [get]
func (h *Handler) Liveness(c *gin.Context) {
	uptime := time.Since(h.startTime)

	memStats := models.MemoryStats{}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		memStats.TotalMB = float64(vmStat.Total) / 1024 / 1024
		memStats.FreeMB = float64(vmStat.Available) / 1024 / 1024
		memStats.UsedMB = float64(vmStat.Used) / 1024 / 1024
		memStats.UsedPercent = vmStat.UsedPercent
	}

	cpuStats := models.CPUStats{NumCPU: runtime.NumCPU()}
	if cpuPercent, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		cpuStats.UsedPercent = cpuPercent[0]
		cpuStats.IdlePercent = 100.0 - cpuPercent[0]
	}

	c.JSON(http.StatusOK, models.LivenessResponse{
		Status:        "ok",
		StartTime:     h.startTime,
		UptimeSeconds: int64(uptime.Seconds()),
		CPU:           cpuStats,
		Memory:        memStats,
	})
}

// UUIDLookup godoc
// @Summary Look up a single UUID's authorization state
// @Description Stubbed pending a dedicated per-UUID detail view
// @Tags uuids
// @Produce json
// @Success 501 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /{uuid} [get]
func (h *Handler) UUIDLookup(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, models.ErrorResponse{Error: "per-uuid detail view not implemented"})
}

// UUIDs godoc
// @Summary List authorized UUIDs
// @Tags uuids
// @Produce json
// @Success 200 {object} models.UUIDsResponse
// @Security ApiKeyAuth
// @Router /api/uuids [get]
func (h *Handler) UUIDs(c *gin.Context) {
	snapshot := map[string]string{}
	if h.store != nil {
		snapshot = h.store.Snapshot()
	}
	c.JSON(http.StatusOK, models.UUIDsResponse{Count: len(snapshot), UUIDs: snapshot})
}

// RefreshUUIDs godoc
// @Summary Force a refresh of every authorization provider
// @Tags uuids
// @Produce json
// @Success 200 {object} models.UUIDsResponse
// @Failure 502 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/uuids/refresh [get]
func (h *Handler) RefreshUUIDs(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, models.UUIDsResponse{})
		return
	}

	ctx, cancel := refreshContext()
	defer cancel()

	merged, err := h.store.Refresh(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.UUIDsResponse{Count: len(merged), UUIDs: merged})
}

// Stats godoc
// @Summary Tunnel traffic statistics
// @Tags system
// @Produce json
// @Success 200 {object} models.TunnelStatsResponse
// @Security ApiKeyAuth
// @Router /api/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	resp := models.TunnelStatsResponse{}
	if h.stats != nil {
		resp.ActiveTunnels = h.stats.ActiveTunnels()
		resp.TotalTunnels = h.stats.TotalTunnels()
		resp.UplinkBytes, resp.DownlinkBytes = h.stats.TrafficTotals()
		resp.RejectedByBudget = h.stats.RejectedByBudget()
	}
	c.JSON(http.StatusOK, resp)
}
