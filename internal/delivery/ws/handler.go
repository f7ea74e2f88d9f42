package ws

import (
	"net/http"
	"strings"

	"shramsaathi-backend/internal/delivery/http/response"
	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler upgrades an authenticated request and hands the connection to hub.
// Requests from browsers must come from one of origins; localhost is accepted
// outside production.
func Handler(hub *Hub, origins []string, production bool) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowed[origin] {
				return true
			}
			return !production && (strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:"))
		},
	}

	return func(c *gin.Context) {
		userID := c.GetInt64(string(domain.KeyUserID))
		if userID == 0 {
			response.Error(c, http.StatusUnauthorized, "Authentication required", nil)
			c.Abort()
			return
		}
		role := c.GetString(string(domain.KeyUserRole))

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already written the HTTP error
			logger.Log.Warn("WebSocket upgrade failed", "user_id", userID, "error", err)
			return
		}
		if err := hub.Serve(conn, userID, role); err != nil {
			logger.Log.Warn("Realtime hub unavailable", "user_id", userID, "error", err)
		}
	}
}
