package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	syncpkg "github.com/smallbiznis/metersync/internal/sync"
	usagedomain "github.com/smallbiznis/metersync/internal/usage/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware converts errors attached to the context into
// JSON responses after the handler chain runs.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, usagedomain.ErrInvalidContract):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "invalid contract id",
		}
	case errors.Is(err, usagedomain.ErrContractUnknown):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "contract not found",
		}
	case errors.Is(err, syncpkg.ErrContractBusy):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "a sync is already in flight",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
