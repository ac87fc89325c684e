package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "tessera/internal/errors"
	"tessera/internal/models"
)

// Bookings handlers

// CreateBooking - POST /api/bookings
func (h *Handlers) CreateBooking(c *gin.Context) {
	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.services.Bookings.Create(c.Request.Context(), callerID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// ListBookings - GET /api/bookings
func (h *Handlers) ListBookings(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	status := c.Query("status")

	response, err := h.services.Bookings.ListMine(c.Request.Context(), callerID(c), status, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetBooking - GET /api/bookings/:code
func (h *Handlers) GetBooking(c *gin.Context) {
	booking, err := h.services.Bookings.GetByCode(c.Request.Context(), callerID(c), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// CancelBooking - PATCH /api/bookings/cancel
func (h *Handlers) CancelBooking(c *gin.Context) {
	var req models.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := h.services.Bookings.Cancel(c.Request.Context(), callerID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// GetZoneBookingInfo - GET /api/zones/:id/booking-info
func (h *Handlers) GetZoneBookingInfo(c *gin.Context) {
	zoneID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperrors.Validation("id", "zone id must be an integer"))
		return
	}

	info, err := h.services.Bookings.GetZoneBookingInfo(c.Request.Context(), zoneID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

// AdminListBookings - GET /api/admin/bookings
func (h *Handlers) AdminListBookings(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	eventID, _ := strconv.ParseInt(c.Query("event_id"), 10, 64)

	filter := &models.BookingFilter{
		EventID:       eventID,
		Status:        c.Query("status"),
		PaymentStatus: c.Query("payment_status"),
		Page:          page,
		PageSize:      pageSize,
	}

	response, err := h.services.Bookings.ListAll(c.Request.Context(), c.Query("q"), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}
