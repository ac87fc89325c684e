package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "tessera/internal/errors"
	"tessera/internal/logger"
	"tessera/internal/service"
)

type Handlers struct {
	services *service.Services
}

func New(services *service.Services) *Handlers {
	return &Handlers{services: services}
}

// respondError maps domain errors onto HTTP statuses. Anything unmapped is a
// 500 with a generic body; the detail stays in the log.
func respondError(c *gin.Context, err error) {
	var validationErr *apperrors.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": validationErr.Message,
			"field": validationErr.Field,
		})
		return
	}

	var seatErr *apperrors.SeatConflictError
	if errors.As(err, &seatErr) {
		status := http.StatusConflict
		if seatErr.Invalid {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"error": seatErr.Error(),
			"seats": seatErr.Seats,
		})
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrEventNotFound),
		errors.Is(err, apperrors.ErrZoneNotFound),
		errors.Is(err, apperrors.ErrAreaNotFound),
		errors.Is(err, apperrors.ErrBookingNotFound),
		errors.Is(err, apperrors.ErrPaymentNotFound),
		errors.Is(err, apperrors.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrInsufficientCapacity),
		errors.Is(err, apperrors.ErrAlreadyPaid),
		errors.Is(err, apperrors.ErrInvalidTransition),
		errors.Is(err, apperrors.ErrTicketsAlreadyIssued),
		errors.Is(err, apperrors.ErrTicketNotRedeemable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrBookingExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrSaleClosed),
		errors.Is(err, apperrors.ErrEventStarted),
		errors.Is(err, apperrors.ErrBookingNotConfirmed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrSignatureInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		logger.WithContext(c.Request.Context()).Error("Unhandled error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func callerID(c *gin.Context) int64 {
	if v, exists := c.Get("user_id"); exists {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}
