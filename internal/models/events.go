package models

import "time"

// NATS subjects for lifecycle fan-out. Delivery is fire-and-forget: publish
// failures never roll back the state transition that produced them.
const (
	EventBookingCreated   = "booking.created"
	EventBookingExpired   = "booking.expired"
	EventBookingCancelled = "booking.cancelled"
	EventPaymentSettled   = "payment.settled"
	EventTicketIssued     = "ticket.issued"
	EventTicketCheckedIn  = "ticket.checked_in"
	EventZoneInventory    = "zone.inventory_changed"
)

// BookingCreatedEvent is published once a hold is placed.
type BookingCreatedEvent struct {
	BookingID   int64     `json:"booking_id"`
	BookingCode string    `json:"booking_code"`
	EventID     int64     `json:"event_id"`
	ZoneID      int64     `json:"zone_id"`
	UserID      int64     `json:"user_id"`
	Quantity    int       `json:"quantity"`
	ExpiresAt   time.Time `json:"expires_at"`
	Timestamp   time.Time `json:"timestamp"`
}

// BookingExpiredEvent is published when the sweeper wins the expiry guard.
type BookingExpiredEvent struct {
	BookingID   int64     `json:"booking_id"`
	BookingCode string    `json:"booking_code"`
	ZoneID      int64     `json:"zone_id"`
	Quantity    int       `json:"quantity"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

// BookingCancelledEvent is published on user/admin cancellation.
type BookingCancelledEvent struct {
	BookingID   int64     `json:"booking_id"`
	BookingCode string    `json:"booking_code"`
	ZoneID      int64     `json:"zone_id"`
	Refunded    bool      `json:"refunded"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

// PaymentSettledEvent is published on the first successful application of a
// settlement, never on replays.
type PaymentSettledEvent struct {
	BookingID     int64     `json:"booking_id"`
	BookingCode   string    `json:"booking_code"`
	Provider      string    `json:"provider"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Timestamp     time.Time `json:"timestamp"`
}

// TicketIssuedEvent is published when a booking's ticket set is created.
type TicketIssuedEvent struct {
	BookingCode string    `json:"booking_code"`
	TicketCodes []string  `json:"ticket_codes"`
	EventID     int64     `json:"event_id"`
	ZoneID      int64     `json:"zone_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// TicketCheckedInEvent is published when a ticket transitions valid -> used.
type TicketCheckedInEvent struct {
	TicketCode  string    `json:"ticket_code"`
	EventID     int64     `json:"event_id"`
	ZoneID      int64     `json:"zone_id"`
	SeatLabel   *string   `json:"seat_label,omitempty"`
	CheckedInAt time.Time `json:"checked_in_at"`
	Location    string    `json:"location"`
}

// ZoneInventoryEvent broadcasts the zone's availability snapshot after any
// reserve, release or confirm.
type ZoneInventoryEvent struct {
	ZoneAvailability
	Timestamp time.Time `json:"timestamp"`
}
