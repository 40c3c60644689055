package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hust/bookingclient/adapters/tokenizer"
)

// AuthMiddleware creates middleware that validates access tokens
func AuthMiddleware(api *BookingAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		// Check if the Authorization header is present and in correct format
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		grant, err := api.ValidateAccessToken(token)
		if err != nil {
			if errors.Is(err, tokenizer.ErrTokenExpired) || errors.Is(err, ErrAccessTokenRevoked) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			return
		}

		c.Set(userIDKey, grant.UserID)

		c.Next()
	}
}
