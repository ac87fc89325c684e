// Package errors defines the error taxonomy shared by services and handlers.
//
// Sentinels cover the common not-found / conflict / replay cases so callers
// can branch with errors.Is; ValidationError and SeatConflictError carry the
// field-level detail surfaced to API clients.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrZoneNotFound    = errors.New("zone not found")
	ErrAreaNotFound    = errors.New("area not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrTicketNotFound  = errors.New("ticket not found")

	// ErrInsufficientCapacity means the conditional reserve against the zone
	// counter found fewer free tickets than requested.
	ErrInsufficientCapacity = errors.New("insufficient zone capacity")

	// ErrSaleClosed means the zone's sale window is not open.
	ErrSaleClosed = errors.New("zone is not on sale")

	// ErrInvalidTransition means the guarded status update matched zero rows
	// and the caller is the authoritative source (user cancel, check-in).
	ErrInvalidTransition = errors.New("booking state does not permit this transition")

	// ErrBookingExpired is returned when a settlement arrives for a booking
	// whose hold deadline has passed. Callers must treat it as refund-required.
	ErrBookingExpired = errors.New("booking hold has expired")

	// ErrAlreadyPaid marks a genuine double-payment attempt, reported to the
	// payer as already-paid rather than swallowed.
	ErrAlreadyPaid = errors.New("booking is already paid")

	// ErrBookingNotConfirmed guards ticket issuance for unsettled bookings.
	ErrBookingNotConfirmed = errors.New("booking is not confirmed")

	// ErrDuplicateTicketCode means a generated ticket code collided with an
	// existing row. The caller regenerates codes and retries the batch.
	ErrDuplicateTicketCode = errors.New("ticket code already exists")

	// ErrTicketsAlreadyIssued means the issuance transaction found an
	// existing ticket set for the booking. The caller returns that set
	// instead of inserting a second one.
	ErrTicketsAlreadyIssued = errors.New("tickets already issued for booking")

	// ErrTicketNotRedeemable covers check-in or cancellation of a ticket that
	// is missing, already used or already cancelled.
	ErrTicketNotRedeemable = errors.New("ticket not found or no longer redeemable")

	// ErrEventStarted blocks cancellation once the underlying event began.
	ErrEventStarted = errors.New("event has already started")

	// ErrSignatureInvalid rejects a settlement notification whose token does
	// not match the shared secret. Terminal for that delivery.
	ErrSignatureInvalid = errors.New("notification signature is invalid")

	// ErrDataIntegrity flags a guarded update that affected more than one
	// row. Structurally impossible with the unique keys in place.
	ErrDataIntegrity = errors.New("guarded update affected an unexpected row count")
)

// ValidationError reports malformed input for a single field. Rejected before
// any state change.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validation builds a ValidationError.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// SeatConflictError names the seats that could not be held.
type SeatConflictError struct {
	Seats []string
	// Invalid is true when the seats do not exist in the area at all,
	// false when they are held by another live booking.
	Invalid bool
}

func (e *SeatConflictError) Error() string {
	if e.Invalid {
		return fmt.Sprintf("seats not in area: %s", strings.Join(e.Seats, ", "))
	}
	return fmt.Sprintf("seats already booked: %s", strings.Join(e.Seats, ", "))
}

// Is lets errors.Is treat any seat conflict as interchangeable.
func (e *SeatConflictError) Is(target error) bool {
	_, ok := target.(*SeatConflictError)
	return ok
}
