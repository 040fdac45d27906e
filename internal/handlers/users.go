package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h HandlerSet) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Could not validate credentials"})
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// UpdateAvatar uploads a new avatar image to the object store and
// persists its URL. Admin only.
func (h HandlerSet) UpdateAvatar(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Could not validate credentials"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "File is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "File is required"})
		return
	}
	defer file.Close()

	updated, err := h.uploadSvc.UploadAvatar(c.Request.Context(), user, file, fileHeader)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, toUserResponse(updated))
}
