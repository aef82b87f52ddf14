// Package respond writes JSON responses in the API's envelope format.
package respond

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/common"
)

// ErrorCodeKey is the gin context key under which the last error code is
// kept for the access log.
const ErrorCodeKey = "errorCode"

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// Error aborts the request with {"error":{code,message,details}}.
func Error(c *gin.Context, status int, code, message string, details any) {
	c.Set(ErrorCodeKey, code)
	c.AbortWithStatusJSON(status, api.ErrorResponse{
		Error: api.ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// FromError maps a service error to a status and code. Unknown errors become
// 500 with a generic message so storage details never reach the client.
func FromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, common.ErrNotFound):
		Error(c, http.StatusNotFound, "not_found", "resource not found", nil)
	case errors.Is(err, common.ErrConflict):
		Error(c, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, common.ErrUnsupportedMedia):
		Error(c, http.StatusUnsupportedMediaType, "unsupported_media_type", err.Error(), nil)
	case errors.Is(err, common.ErrPayloadTooLarge):
		Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", err.Error(), nil)
	case errors.Is(err, common.ErrUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
	default:
		_ = c.Error(err)
		Error(c, http.StatusInternalServerError, "internal_error", "unexpected server error", nil)
	}
}
