package api

import (
	"errors"
	"log/slog"
	"net/http"

	"coffeenet/internal/models"

	"github.com/gin-gonic/gin"
)

// respondError maps an error to its status and code. Unknown errors are
// logged and reported as internal.
func respondError(c *gin.Context, log *slog.Logger, err error) {
	body := gin.H{"error": err.Error()}
	status := http.StatusInternalServerError

	var stockErr *models.StockError
	switch {
	case errors.Is(err, models.ErrInvalidTransition):
		status, body["code"] = http.StatusConflict, "invalid_transition"
	case errors.As(err, &stockErr):
		status, body["code"] = http.StatusConflict, "stock_conflict"
		body["shortages"] = stockErr.Shortages
	case errors.Is(err, models.ErrStockConflict):
		status, body["code"] = http.StatusConflict, "stock_conflict"
	case errors.Is(err, models.ErrUnauthorized):
		status, body["code"] = http.StatusForbidden, "unauthorized"
	case errors.Is(err, models.ErrNotFound):
		status, body["code"] = http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrEmptyOrder), errors.Is(err, models.ErrInvalidInput):
		status, body["code"] = http.StatusBadRequest, "invalid_request"
	default:
		log.Error("request failed", "error", err, "path", c.FullPath())
		body = gin.H{"error": "internal error", "code": "internal"}
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_request"})
}
