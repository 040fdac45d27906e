package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contactbook/api/internal/models"
	"contactbook/api/internal/service"
)

// RequireRole runs after Auth and enforces the role policy on the
// already-resolved user.
func RequireRole(role models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		userVal, exists := c.Get(CurrentUserKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Could not validate credentials"})
			return
		}
		user, ok := userVal.(models.User)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Could not validate credentials"})
			return
		}

		if err := service.Authorize(user, role); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
			return
		}

		c.Next()
	}
}
