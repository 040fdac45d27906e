package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"contactbook/api/internal/service"
)

const CurrentUserKey = "current_user"

// Auth resolves the bearer token to a user via the authentication
// service (cache-first) and stores it in the request context.
func Auth(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Could not validate credentials"})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		user, err := auth.Resolve(c.Request.Context(), tokenStr)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Could not validate credentials"})
			return
		}

		c.Set(CurrentUserKey, user)
		c.Next()
	}
}
