package models

import (
	"encoding/json"
	"time"
)

// CreateBookingRequest - request body for POST /api/bookings
type CreateBookingRequest struct {
	EventID       int64    `json:"event_id" binding:"required"`
	ZoneID        int64    `json:"zone_id" binding:"required"`
	AreaID        *int64   `json:"area_id,omitempty"`
	Seats         []string `json:"seats,omitempty"`
	Quantity      int      `json:"quantity" binding:"required,min=1"`
	CustomerEmail string   `json:"customer_email" binding:"required,email"`
	CustomerName  *string  `json:"customer_name,omitempty"`
	CustomerPhone *string  `json:"customer_phone,omitempty"`
	Notes         *string  `json:"notes,omitempty"`
}

// CreateBookingResponse carries the generated code and the hold deadline.
type CreateBookingResponse struct {
	ID          int64     `json:"id"`
	BookingCode string    `json:"booking_code"`
	Status      string    `json:"status"`
	TotalPrice  int64     `json:"total_price"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// CancelBookingRequest - request body for PATCH /api/bookings/cancel
type CancelBookingRequest struct {
	BookingCode string  `json:"booking_code" binding:"required"`
	Reason      *string `json:"reason,omitempty"`
}

// BookingFilter narrows admin booking listings.
type BookingFilter struct {
	EventID       int64
	Status        string
	PaymentStatus string
	Page          int
	PageSize      int
}

// Pagination echoes the page window of a list response.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// BookingListResponse - paginated booking listing
type BookingListResponse struct {
	Bookings   []Booking  `json:"bookings"`
	Pagination Pagination `json:"pagination"`
}

// ZoneAvailability is the availability snapshot fanned out to subscribers
// and cached for zone-info reads.
type ZoneAvailability struct {
	ZoneID             int64 `json:"zone_id"`
	EventID            int64 `json:"event_id"`
	Capacity           int   `json:"capacity"`
	SoldCount          int   `json:"sold_count"`
	ConfirmedSoldCount int   `json:"confirmed_sold_count"`
	Available          int   `json:"available"`
}

// ZoneBookingInfo is returned by the zone-info read path before checkout.
type ZoneBookingInfo struct {
	Event        Event            `json:"event"`
	Zone         Zone             `json:"zone"`
	Availability ZoneAvailability `json:"availability"`
	Areas        []Area           `json:"areas,omitempty"`
	TakenSeats   []string         `json:"taken_seats,omitempty"`
}

// ProviderKind tags the shape of a settlement source.
type ProviderKind string

const (
	ProviderPush   ProviderKind = "push"
	ProviderPull   ProviderKind = "pull"
	ProviderManual ProviderKind = "manual"
)

// Settlement is the provider-neutral result of a verified payment
// confirmation; every provider shape is normalized into one of these before
// it touches booking state.
type Settlement struct {
	Provider      ProviderKind
	TransactionID string
	BookingID     int64
	BookingCode   string
	UserID        int64
	Amount        int64
	Currency      string
	Method        string
	Metadata      json.RawMessage
}

// SettlementNotification - push-provider webhook payload. The token is a
// shared-secret digest over the other fields; Metadata carries the
// correlation keys set at checkout-session creation.
type SettlementNotification struct {
	TransactionID string            `json:"transaction_id" binding:"required"`
	Status        string            `json:"status" binding:"required"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Method        string            `json:"method"`
	Timestamp     string            `json:"timestamp"`
	Token         string            `json:"token" binding:"required"`
	Metadata      map[string]string `json:"metadata"`
}

// CreateCheckoutRequest - request body for POST /api/payments/checkout-session
type CreateCheckoutRequest struct {
	BookingCode string `json:"booking_code" binding:"required"`
}

// CreateCheckoutResponse points the client at the provider-hosted page.
type CreateCheckoutResponse struct {
	CheckoutURL string    `json:"checkout_url"`
	OrderID     string    `json:"order_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// FinalizePaymentRequest - request body for POST /api/payments/finalize
// (pull-capture providers).
type FinalizePaymentRequest struct {
	ProviderOrderID string `json:"provider_order_id" binding:"required"`
}

// FinalizePaymentResponse reports whether this call performed the capture or
// found it already done.
type FinalizePaymentResponse struct {
	BookingCode      string `json:"booking_code"`
	Status           string `json:"status"`
	AlreadyFinalized bool   `json:"already_finalized"`
}

// MarkPaidRequest - admin manual settlement override.
type MarkPaidRequest struct {
	BookingCode string `json:"booking_code" binding:"required"`
	Reference   string `json:"reference" binding:"required"`
	Amount      int64  `json:"amount"`
	Method      string `json:"method"`
}

// CheckInRequest - request body for POST /api/tickets/check-in
type CheckInRequest struct {
	TicketCode string `json:"ticket_code" binding:"required"`
	Location   string `json:"location" binding:"required"`
	DeviceInfo string `json:"device_info,omitempty"`
}

// CancelTicketRequest - request body for POST /api/tickets/cancel
type CancelTicketRequest struct {
	TicketCode string `json:"ticket_code" binding:"required"`
}

// IssueTicketsRequest - manual replay of ticket issuance for a settled
// booking whose issuance previously failed.
type IssueTicketsRequest struct {
	BookingCode string `json:"booking_code" binding:"required"`
}

// TicketValidationResponse - non-consuming ticket check.
type TicketValidationResponse struct {
	Valid   bool       `json:"valid"`
	Message string     `json:"message"`
	UsedAt  *time.Time `json:"used_at,omitempty"`
	Ticket  *Ticket    `json:"ticket,omitempty"`
}
