package models

import (
	"encoding/json"
	"time"
)

// Booking status domain. Terminal states are confirmed, cancelled and expired.
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusExpired   = "expired"
)

// Payment status recorded on the booking itself.
const (
	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

// Settlement record status.
const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
)

// Ticket status. used and cancelled are terminal.
const (
	TicketStatusValid     = "valid"
	TicketStatusUsed      = "used"
	TicketStatusCancelled = "cancelled"
	TicketStatusExpired   = "expired"
)

// Event is the projection of the external catalog's event record.
type Event struct {
	ID        int64     `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Location  string    `json:"location" db:"location"`
	StartsAt  time.Time `json:"starts_at" db:"starts_at"`
	EndsAt    time.Time `json:"ends_at" db:"ends_at"`
	IsDeleted bool      `json:"-" db:"is_deleted"`
}

// Zone is a bookable inventory pool with a fixed capacity. SoldCount tracks
// provisional holds; ConfirmedSoldCount the settled subset.
type Zone struct {
	ID                 int64      `json:"id" db:"id"`
	EventID            int64      `json:"event_id" db:"event_id"`
	Name               string     `json:"name" db:"name"`
	Price              int64      `json:"price" db:"price"`
	Capacity           int        `json:"capacity" db:"capacity"`
	SoldCount          int        `json:"sold_count" db:"sold_count"`
	ConfirmedSoldCount int        `json:"confirmed_sold_count" db:"confirmed_sold_count"`
	HasSeating         bool       `json:"has_seating" db:"has_seating"`
	SaleStartsAt       *time.Time `json:"sale_starts_at" db:"sale_starts_at"`
	SaleEndsAt         *time.Time `json:"sale_ends_at" db:"sale_ends_at"`
	IsDeleted          bool       `json:"-" db:"is_deleted"`
}

// Available returns the number of tickets not provisionally held.
func (z *Zone) Available() int {
	return z.Capacity - z.SoldCount
}

// OnSale reports whether the sale window is open at t. A missing bound
// leaves that side of the window open.
func (z *Zone) OnSale(t time.Time) bool {
	if z.SaleStartsAt != nil && t.Before(*z.SaleStartsAt) {
		return false
	}
	if z.SaleEndsAt != nil && t.After(*z.SaleEndsAt) {
		return false
	}
	return true
}

// Area is a named seat group inside a seated zone.
type Area struct {
	ID        int64    `json:"id" db:"id"`
	ZoneID    int64    `json:"zone_id" db:"zone_id"`
	EventID   int64    `json:"event_id" db:"event_id"`
	Name      string   `json:"name" db:"name"`
	RowLabel  string   `json:"row_label" db:"row_label"`
	Seats     []string `json:"seats" db:"seats"`
	IsDeleted bool     `json:"-" db:"is_deleted"`
}

// HasSeat reports whether label is one of the area's seat labels.
func (a *Area) HasSeat(label string) bool {
	for _, s := range a.Seats {
		if s == label {
			return true
		}
	}
	return false
}

// Booking is a time-bounded reservation against a zone. All monetary amounts
// are integer minor units.
type Booking struct {
	ID                 int64      `json:"id" db:"id"`
	BookingCode        string     `json:"booking_code" db:"booking_code"`
	UserID             int64      `json:"user_id" db:"user_id"`
	EventID            int64      `json:"event_id" db:"event_id"`
	ZoneID             int64      `json:"zone_id" db:"zone_id"`
	AreaID             *int64     `json:"area_id,omitempty" db:"area_id"`
	Seats              []string   `json:"seats" db:"seats"`
	Quantity           int        `json:"quantity" db:"quantity"`
	UnitPrice          int64      `json:"unit_price" db:"unit_price"`
	TotalPrice         int64      `json:"total_price" db:"total_price"`
	Status             string     `json:"status" db:"status"`
	PaymentStatus      string     `json:"payment_status" db:"payment_status"`
	ProviderTxnID      *string    `json:"provider_txn_id,omitempty" db:"provider_txn_id"`
	CustomerEmail      string     `json:"customer_email" db:"customer_email"`
	CustomerName       *string    `json:"customer_name,omitempty" db:"customer_name"`
	CustomerPhone      *string    `json:"customer_phone,omitempty" db:"customer_phone"`
	Notes              *string    `json:"notes,omitempty" db:"notes"`
	ExpiresAt          time.Time  `json:"expires_at" db:"expires_at"`
	PaidAt             *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason *string    `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	IsDeleted          bool       `json:"-" db:"is_deleted"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// Seated reports whether the booking holds named seats.
func (b *Booking) Seated() bool {
	return len(b.Seats) > 0
}

// Payment is a settlement record. ProviderTxnID is the idempotency key for
// settlement application; at most one succeeded Payment exists per booking.
type Payment struct {
	ID            int64           `json:"id" db:"id"`
	BookingID     int64           `json:"booking_id" db:"booking_id"`
	UserID        int64           `json:"user_id" db:"user_id"`
	Provider      string          `json:"provider" db:"provider"`
	ProviderTxnID string          `json:"provider_txn_id" db:"provider_txn_id"`
	Amount        int64           `json:"amount" db:"amount"`
	Currency      string          `json:"currency" db:"currency"`
	Method        string          `json:"method" db:"method"`
	Status        string          `json:"status" db:"status"`
	ErrorMessage  *string         `json:"error_message,omitempty" db:"error_message"`
	Metadata      json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	PaidAt        *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
	RefundedAt    *time.Time      `json:"refunded_at,omitempty" db:"refunded_at"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Ticket is a one-time-use artifact issued after settlement.
type Ticket struct {
	ID              int64      `json:"id" db:"id"`
	TicketCode      string     `json:"ticket_code" db:"ticket_code"`
	BookingID       int64      `json:"booking_id" db:"booking_id"`
	UserID          int64      `json:"user_id" db:"user_id"`
	EventID         int64      `json:"event_id" db:"event_id"`
	ZoneID          int64      `json:"zone_id" db:"zone_id"`
	AreaID          *int64     `json:"area_id,omitempty" db:"area_id"`
	SeatLabel       *string    `json:"seat_label,omitempty" db:"seat_label"`
	Price           int64      `json:"price" db:"price"`
	Status          string     `json:"status" db:"status"`
	QRCode          string     `json:"qr_code,omitempty" db:"qr_code"`
	CheckedInAt     *time.Time `json:"checked_in_at,omitempty" db:"checked_in_at"`
	CheckedInBy     *int64     `json:"checked_in_by,omitempty" db:"checked_in_by"`
	CheckInLocation *string    `json:"check_in_location,omitempty" db:"check_in_location"`
	DeviceInfo      *string    `json:"device_info,omitempty" db:"device_info"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelledBy     *int64     `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}
