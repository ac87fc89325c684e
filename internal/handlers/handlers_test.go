package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	apperrors "tessera/internal/errors"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"booking not found", apperrors.ErrBookingNotFound, http.StatusNotFound},
		{"ticket not found", apperrors.ErrTicketNotFound, http.StatusNotFound},
		{"capacity", fmt.Errorf("%w: 0 left", apperrors.ErrInsufficientCapacity), http.StatusConflict},
		{"already paid", apperrors.ErrAlreadyPaid, http.StatusConflict},
		{"invalid transition", apperrors.ErrInvalidTransition, http.StatusConflict},
		{"not redeemable", apperrors.ErrTicketNotRedeemable, http.StatusConflict},
		{"tickets already issued", apperrors.ErrTicketsAlreadyIssued, http.StatusConflict},
		{"hold expired", apperrors.ErrBookingExpired, http.StatusGone},
		{"sale closed", apperrors.ErrSaleClosed, http.StatusUnprocessableEntity},
		{"event started", apperrors.ErrEventStarted, http.StatusUnprocessableEntity},
		{"bad signature", apperrors.ErrSignatureInvalid, http.StatusUnauthorized},
		{"validation", apperrors.Validation("seats", "seat count must match quantity"), http.StatusBadRequest},
		{"seat conflict", &apperrors.SeatConflictError{Seats: []string{"A1"}}, http.StatusConflict},
		{"unknown seats", &apperrors.SeatConflictError{Seats: []string{"Z9"}, Invalid: true}, http.StatusBadRequest},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/", nil)

			respondError(c, tc.err)

			assert.Equal(t, tc.status, w.Code)
		})
	}
}
