package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tessera/internal/models"
)

// Tickets handlers

// GetTicket - GET /api/tickets/:code
func (h *Handlers) GetTicket(c *gin.Context) {
	ticket, err := h.services.Tickets.GetByCode(c.Request.Context(), callerID(c), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ticket)
}

// ListBookingTickets - GET /api/bookings/:code/tickets
func (h *Handlers) ListBookingTickets(c *gin.Context) {
	tickets, err := h.services.Tickets.ListByBooking(c.Request.Context(), callerID(c), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

// ValidateTicket - GET /api/tickets/:code/validate
func (h *Handlers) ValidateTicket(c *gin.Context) {
	response, err := h.services.Tickets.Validate(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// CheckInTicket - POST /api/tickets/check-in
func (h *Handlers) CheckInTicket(c *gin.Context) {
	var req models.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ticket, err := h.services.Tickets.CheckIn(c.Request.Context(), callerID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ticket)
}

// CancelTicket - POST /api/admin/tickets/cancel
func (h *Handlers) CancelTicket(c *gin.Context) {
	var req models.CancelTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ticket, err := h.services.Tickets.CancelTicket(c.Request.Context(), callerID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ticket)
}

// IssueTickets - POST /api/admin/tickets/issue
func (h *Handlers) IssueTickets(c *gin.Context) {
	var req models.IssueTicketsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tickets, err := h.services.Tickets.Issue(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}
