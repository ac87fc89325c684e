package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tessera_bookings_created_total",
		Help: "Bookings that successfully reserved capacity.",
	})

	BookingsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tessera_bookings_expired_total",
		Help: "Pending bookings reclaimed by the expiry sweeper.",
	})

	BookingsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tessera_bookings_cancelled_total",
		Help: "Bookings cancelled by the customer or an operator.",
	})

	SettlementsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_settlements_applied_total",
		Help: "Settlements that won the confirmation guard, by provider kind.",
	}, []string{"provider"})

	SettlementsDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_settlements_duplicate_total",
		Help: "Settlement replays absorbed without side effects, by provider kind.",
	}, []string{"provider"})

	SettlementsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_settlements_rejected_total",
		Help: "Settlements rejected before applying, by reason.",
	}, []string{"reason"})

	TicketsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tessera_tickets_issued_total",
		Help: "Tickets written by the issuance path.",
	})

	TicketsCheckedIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tessera_tickets_checked_in_total",
		Help: "Tickets redeemed at the gate.",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tessera_sweep_duration_seconds",
		Help:    "Duration of a single expiry sweep.",
		Buckets: prometheus.DefBuckets,
	})
)
