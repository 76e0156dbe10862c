// Package api_test provides behavior tests for the API package.
package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullwave/edgetun/internal/api"
	"github.com/nullwave/edgetun/internal/api/models"
)

func performRequest(r http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNewCreatesServer(t *testing.T) {
	server := api.New(":0", "secret", nil, nil, nil, nil)
	assert.NotNil(t, server)
	assert.NotNil(t, server.Engine())
}

func TestServerAddr(t *testing.T) {
	server := api.New("0.0.0.0:9090", "secret", nil, nil, nil, nil)
	assert.Equal(t, "0.0.0.0:9090", server.Addr())
}

func TestLivenessEndpointIsPublic(t *testing.T) {
	server := api.New(":0", "secret", nil, nil, nil, nil)

	w := performRequest(server.Engine(), http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.LivenessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestUUIDsEndpointRequiresAPIKey(t *testing.T) {
	server := api.New(":0", "secret", nil, nil, nil, nil)

	w := performRequest(server.Engine(), http.MethodGet, "/api/uuids")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUUIDsEndpointWithAPIKey(t *testing.T) {
	server := api.New(":0", "secret", nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/uuids", nil)
	req.Header.Set("X-Api-Key", "secret")
	w := httptest.NewRecorder()
	server.Engine().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.UUIDsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
}

func TestUUIDsEndpointWithWrongAPIKey(t *testing.T) {
	server := api.New(":0", "secret", nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/uuids", nil)
	req.Header.Set("X-Api-Key", "nope")
	w := httptest.NewRecorder()
	server.Engine().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatsEndpointDegradesGracefullyWithNilStats(t *testing.T) {
	server := api.New(":0", "secret", nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("X-Api-Key", "secret")
	w := httptest.NewRecorder()
	server.Engine().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.TunnelStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.ActiveTunnels)
}

func TestUUIDLookupStubReturnsNotImplemented(t *testing.T) {
	server := api.New(":0", "secret", nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/11111111-1111-1111-1111-111111111111", nil)
	req.Header.Set("X-Api-Key", "secret")
	w := httptest.NewRecorder()
	server.Engine().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestNoAPIKeyConfiguredRejectsProtectedRoutes(t *testing.T) {
	server := api.New(":0", "", nil, nil, nil, nil)

	w := performRequest(server.Engine(), http.MethodGet, "/api/uuids")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServerShutdown(t *testing.T) {
	server := api.New(":0", "secret", nil, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, server.Shutdown(ctx))
}

func TestNotFoundRoute(t *testing.T) {
	server := api.New(":0", "secret", nil, nil, nil, nil)

	w := performRequest(server.Engine(), http.MethodGet, "/api/nonexistent")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type recordingUpgrader struct {
	called bool
	path   string
}

func (u *recordingUpgrader) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	u.called = true
	u.path = r.URL.Path
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func upgradeRequest(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	return req
}

// TestWebSocketUpgradeReachesDispatcherOnSingleSegmentPath guards against the
// admin surface's "/:uuid" wildcard swallowing the conventional tunnel path:
// a WebSocket-upgrade request must reach the dispatcher even though it would
// otherwise match a registered route ahead of NoRoute.
func TestWebSocketUpgradeReachesDispatcherOnSingleSegmentPath(t *testing.T) {
	upgrader := &recordingUpgrader{}
	server := api.New(":0", "secret", nil, nil, nil, upgrader)

	w := httptest.NewRecorder()
	server.Engine().ServeHTTP(w, upgradeRequest("/11111111-1111-1111-1111-111111111111"))

	assert.True(t, upgrader.called)
	assert.Equal(t, "/11111111-1111-1111-1111-111111111111", upgrader.path)
	assert.Equal(t, http.StatusSwitchingProtocols, w.Code)
}

// TestWebSocketUpgradeReachesDispatcherOnRootPath covers the other route the
// wildcard shares precedence with: GET / (the liveness banner).
func TestWebSocketUpgradeReachesDispatcherOnRootPath(t *testing.T) {
	upgrader := &recordingUpgrader{}
	server := api.New(":0", "secret", nil, nil, nil, upgrader)

	w := httptest.NewRecorder()
	server.Engine().ServeHTTP(w, upgradeRequest("/"))

	assert.True(t, upgrader.called)
	assert.Equal(t, http.StatusSwitchingProtocols, w.Code)
}

func TestNonUpgradeRequestBypassesDispatcher(t *testing.T) {
	upgrader := &recordingUpgrader{}
	server := api.New(":0", "secret", nil, nil, nil, upgrader)

	w := performRequest(server.Engine(), http.MethodGet, "/")

	assert.False(t, upgrader.called)
	assert.Equal(t, http.StatusOK, w.Code)
}
