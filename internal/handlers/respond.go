package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"contactbook/api/internal/security"
	"contactbook/api/internal/service"
)

// statusForError maps a service error to its HTTP status and client
// message. Unknown errors become opaque 500s.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Not valid password or username"
	case errors.Is(err, service.ErrEmailNotConfirmed):
		return http.StatusUnauthorized, "Email must be confirmed"
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, "User with such email already exists"
	case errors.Is(err, service.ErrUsernameTaken):
		return http.StatusConflict, "User with such username already exists"
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "Could not validate credentials"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, service.ErrInvalidRefreshToken):
		return http.StatusUnauthorized, "Invalid or expired refresh token"
	case errors.Is(err, service.ErrVerification):
		return http.StatusBadRequest, "Verification error"
	case errors.Is(err, security.ErrTokenExpired),
		errors.Is(err, security.ErrTokenSignature),
		errors.Is(err, security.ErrTokenMalformed):
		return http.StatusUnprocessableEntity, "Invalid email verification token"
	case errors.Is(err, service.ErrContactNotFound):
		return http.StatusNotFound, "Contact not found"
	case errors.Is(err, service.ErrContactEmailExists):
		return http.StatusConflict, "Contact with such email already exists"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (h HandlerSet) fail(c *gin.Context, err error) {
	status, message := statusForError(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(status, gin.H{"message": message})
}
