package api

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Bearer Token Authentication
//
// Reads STYLOBOT_API_TOKEN from the environment. When set, every
// inspection-API route requires: Authorization: Bearer <token>
//
// The health endpoint, /metrics and the dashboard WebSocket stay public;
// the detection middleware itself is never behind auth (it runs inside the
// host's own request path).

// AuthMiddleware validates bearer tokens against STYLOBOT_API_TOKEN.
// With no token configured all requests pass (dev mode); in release mode
// that configuration gap is logged loudly, because an open inspection API
// leaks evidence ledgers and reputation state to anyone who asks.
func AuthMiddleware() gin.HandlerFunc {
	token := os.Getenv("STYLOBOT_API_TOKEN")

	if token == "" && gin.Mode() == gin.ReleaseMode {
		log.Warn().Msg("STYLOBOT_API_TOKEN is not set in release mode; the inspection API is publicly accessible")
	}

	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "missing Authorization header",
				"hint":  "use: Authorization: Bearer <STYLOBOT_API_TOKEN>",
			})
			c.Abort()
			return
		}

		scheme, candidate, ok := strings.Cut(auth, " ")
		if !ok || scheme != "Bearer" {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid Authorization header format"})
			c.Abort()
			return
		}

		// Constant-time comparison prevents timing-based token enumeration.
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// syntheticAnalysisEnabled reports whether POST /api/analyze may drive the
// engine with fabricated snapshots. Disabled by default: synthetic traffic
// feeds the country tracker, the sliding windows and the detection store,
// so an open endpoint would let anyone poison the learned state.
func syntheticAnalysisEnabled() bool {
	return os.Getenv("STYLOBOT_ENABLE_SYNTHETIC") == "true"
}
