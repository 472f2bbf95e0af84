package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "tradeledger/internal/errors"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func fail(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// failErr maps domain errors onto HTTP statuses.
func failErr(c *gin.Context, err error) {
	var (
		verr     *apperrors.ValidationError
		oversell *apperrors.OversellError
	)
	switch {
	case errors.As(err, &verr):
		fail(c, http.StatusUnprocessableEntity, "invalid orders", map[string]any{"issues": verr.Issues})
	case errors.As(err, &oversell):
		fail(c, http.StatusConflict, err.Error(), map[string]any{
			"order":     oversell.Order,
			"available": oversell.Available,
			"shortfall": oversell.Shortfall,
		})
	case errors.Is(err, apperrors.ErrMissingPrice):
		fail(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, apperrors.ErrPersistence):
		fail(c, http.StatusInternalServerError, err.Error(), nil)
	case errors.Is(err, apperrors.ErrPortfolioBusy):
		fail(c, http.StatusServiceUnavailable, err.Error(), map[string]any{"retry": true})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		fail(c, http.StatusServiceUnavailable, err.Error(), nil)
	default:
		fail(c, http.StatusInternalServerError, err.Error(), nil)
	}
}
