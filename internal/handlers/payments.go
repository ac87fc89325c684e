package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tessera/internal/models"
)

// Payments handlers

// CreateCheckoutSession - POST /api/payments/checkout-session
func (h *Handlers) CreateCheckoutSession(c *gin.Context) {
	var req models.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.services.Payments.CreateCheckoutSession(c.Request.Context(), callerID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// PaymentNotification - POST /api/payments/notifications
// The push-provider webhook. The body is parsed leniently: a malformed
// payload is a 400, a bad signature a 401, and an absorbed replay a plain
// 200 so the provider stops retrying.
func (h *Handlers) PaymentNotification(c *gin.Context) {
	var notification models.SettlementNotification
	if err := c.ShouldBindJSON(&notification); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.services.Payments.HandleNotification(c.Request.Context(), &notification); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// FinalizePayment - POST /api/payments/finalize
func (h *Handlers) FinalizePayment(c *gin.Context) {
	var req models.FinalizePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.services.Payments.Finalize(c.Request.Context(), callerID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// PaymentHistory - GET /api/payments
func (h *Handlers) PaymentHistory(c *gin.Context) {
	payments, err := h.services.Payments.History(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// AdminMarkPaid - POST /api/admin/payments/mark-paid
func (h *Handlers) AdminMarkPaid(c *gin.Context) {
	var req models.MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := h.services.Payments.ManualMarkPaid(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}
