package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// TunnelUpgrader hands a WebSocket upgrade off to the tunnel dispatcher;
// implemented by *tunnel.Dispatcher.
type TunnelUpgrader interface {
	HandleUpgrade(w http.ResponseWriter, r *http.Request)
}

// InterceptTunnelUpgrade runs ahead of route matching and hands any
// WebSocket-upgrade request straight to the tunnel dispatcher, aborting the
// gin handler chain before it reaches a registered route. This is the only
// way the dispatcher sees traffic on a single-segment path: the admin
// surface's "/:uuid" wildcard would otherwise match and win against it,
// since registered routes take precedence over NoRoute.
func InterceptTunnelUpgrade(upgrader TunnelUpgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if upgrader == nil {
			c.Next()
			return
		}
		if websocket.IsWebSocketUpgrade(c.Request) {
			upgrader.HandleUpgrade(c.Writer, c.Request)
			c.Abort()
			return
		}
		c.Next()
	}
}
