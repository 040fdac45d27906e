package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health verifies the database connection before greeting the caller.
func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.log.Error().Err(err).Msg("database ping failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error connecting to the database"})
		return
	}

	if err := h.cache.Ping(ctx).Err(); err != nil {
		h.log.Error().Err(err).Msg("redis ping failed")
	}

	c.JSON(http.StatusOK, gin.H{"message": "Welcome to ContactAPI!"})
}
