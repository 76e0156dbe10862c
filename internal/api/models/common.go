// Package models defines request and response types for edgetun's admin API.
// All types are JSON-serializable.
package models

import "time"

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse represents a simple status response.
type StatusResponse struct {
	Status string `json:"status"`
}

// LivenessResponse is the payload served at GET /: a liveness banner
// enriched with a host resource snapshot.
type LivenessResponse struct {
	Status        string    `json:"status"`
	StartTime     time.Time `json:"start_time"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	CPU           CPUStats    `json:"cpu"`
	Memory        MemoryStats `json:"memory"`
}

// UUIDsResponse lists the UUIDs currently authorized, tagged with the
// provider that supplied each one.
type UUIDsResponse struct {
	Count int               `json:"count"`
	UUIDs map[string]string `json:"uuids"`
}

// TunnelStatsResponse reports accumulated tunnel traffic totals.
type TunnelStatsResponse struct {
	ActiveTunnels   int    `json:"active_tunnels"`
	TotalTunnels    uint64 `json:"total_tunnels"`
	UplinkBytes     uint64 `json:"uplink_bytes"`
	DownlinkBytes   uint64 `json:"downlink_bytes"`
	RejectedByBudget uint64 `json:"rejected_by_budget"`
}
