// README: Base handler utilities (JSON helpers, caller extraction, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dashr/internal/apperr"
	"dashr/internal/http/middleware"
	"dashr/internal/modules/delivery"
	"dashr/internal/modules/driver"
	"dashr/internal/modules/location"
	"dashr/internal/modules/order"
	"dashr/internal/modules/payment"
	"dashr/internal/types"
)

type errorResponse struct {
	Error  string `json:"error"`
	Domain string `json:"domain,omitempty"`
}

// isValidID accepts the uuid ids we generate and the uids issued by the auth provider.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

// pathID reads and validates a path parameter, writing 400 when it is malformed.
func pathID(c *gin.Context, name string) (types.ID, bool) {
	v := c.Param(name)
	if !isValidID(v) {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return types.ID(v), true
}

func actor(c *gin.Context) order.Actor {
	return order.Actor{ID: types.ID(middleware.CallerUID(c)), Role: order.Role(middleware.CallerRole(c))}
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeServiceError(c *gin.Context, err error) {
	if ve, ok := apperr.AsValidation(err); ok {
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: ve.Message, Domain: ve.Domain})
		return
	}
	switch {
	case errors.Is(err, location.ErrInvalidPosition):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound), errors.Is(err, delivery.ErrNotFound),
		errors.Is(err, driver.ErrNotFound), errors.Is(err, payment.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrForbidden), errors.Is(err, delivery.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrInvalidState), errors.Is(err, order.ErrConflict),
		errors.Is(err, delivery.ErrInvalidState), errors.Is(err, delivery.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
