package middleware

import (
	"net/http"
	"strings"

	"shramsaathi-backend/internal/delivery/http/response"
	"shramsaathi-backend/internal/domain"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware requires a valid session token and loads the caller's profile.
func AuthMiddleware(tokens domain.TokenIssuer, authUC domain.AuthUsecase) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			response.Error(c, http.StatusUnauthorized, "Authorization header or auth_token cookie required", nil)
			c.Abort()
			return
		}
		if !authenticate(c, tokens, authUC, tokenString) {
			return
		}
		c.Next()
	}
}

// OptionalAuth authenticates the caller when a token is present and lets
// anonymous requests through. A present but invalid token is still rejected.
func OptionalAuth(tokens domain.TokenIssuer, authUC domain.AuthUsecase) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString != "" && !authenticate(c, tokens, authUC, tokenString) {
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, tokens domain.TokenIssuer, authUC domain.AuthUsecase, tokenString string) bool {
	claims, err := tokens.Verify(tokenString)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "Invalid token", nil)
		c.Abort()
		return false
	}

	// Role comes from the stored profile, not the token
	user, err := authUC.CurrentUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "User not found", nil)
		c.Abort()
		return false
	}

	c.Set(string(domain.KeyUserID), user.ID)
	c.Set(string(domain.KeyUserPhone), user.Phone)
	c.Set(string(domain.KeyUserRole), user.Role)
	return true
}

// extractToken checks the Authorization header, then the auth_token cookie, then
// the token query parameter used by websocket clients that cannot set headers.
func extractToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	if cookie, err := c.Cookie("auth_token"); err == nil && cookie != "" {
		return cookie
	}
	return c.Query("token")
}
