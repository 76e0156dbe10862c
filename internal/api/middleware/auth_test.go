package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullwave/edgetun/internal/api/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newProtectedRouter(key string) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequireAPIKey(key))
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func TestRequireAPIKeyHeader(t *testing.T) {
	r := newProtectedRouter("secret-key")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Api-Key", "secret-key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAPIKeyBearer(t *testing.T) {
	r := newProtectedRouter("secret-key")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAPIKeyQueryParam(t *testing.T) {
	r := newProtectedRouter("secret-key")

	req := httptest.NewRequest(http.MethodGet, "/test?key=secret-key", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAPIKeyWrongKey(t *testing.T) {
	r := newProtectedRouter("secret-key")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Api-Key", "wrong")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAPIKeyMissing(t *testing.T) {
	r := newProtectedRouter("secret-key")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAPIKeyNotConfiguredRejectsEverything(t *testing.T) {
	r := newProtectedRouter("")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "API_KEY not configured", body["error"])
}
