package handlers

import (
	"github.com/chachabrian/mooveit-freight/internal/services"
	"github.com/gin-gonic/gin"
)

// WebSocketHandler upgrades the request. The gateway authenticates the token
// itself so guests can still follow public channels.
func WebSocketHandler(gw *services.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		gw.ServeHTTP(c.Writer, c.Request)
	}
}
