package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tessera/internal/errors"
	"tessera/internal/models"
)

func confirmedBooking() *models.Booking {
	return &models.Booking{
		ID:          42,
		BookingCode: "BK1",
		UserID:      7,
		EventID:     1,
		ZoneID:      10,
		Quantity:    2,
		UnitPrice:   5000,
		Status:      models.BookingStatusConfirmed,
	}
}

func newTestTicketService(tickets *mockTicketRepo, bookings *mockBookingRepo, pub *mockPublisher) *TicketService {
	return &TicketService{
		ticketRepo:  tickets,
		bookingRepo: bookings,
		publisher:   pub,
		now:         fixedNow,
	}
}

func TestIssueFromBookingCreatesTicketSet(t *testing.T) {
	pub := &mockPublisher{}
	var inserted []*models.Ticket
	tickets := &mockTicketRepo{
		ListByBookingFn: func(ctx context.Context, bookingID int64) ([]models.Ticket, error) {
			return nil, nil
		},
		InsertBatchFn: func(ctx context.Context, batch []*models.Ticket) error {
			inserted = batch
			return nil
		},
	}

	svc := newTestTicketService(tickets, &mockBookingRepo{}, pub)

	issued, err := svc.IssueFromBooking(context.Background(), confirmedBooking())
	require.NoError(t, err)

	require.Len(t, issued, 2)
	require.Len(t, inserted, 2)
	for _, ticket := range inserted {
		assert.True(t, strings.HasPrefix(ticket.TicketCode, "TK"))
		assert.Equal(t, models.TicketStatusValid, ticket.Status)
		assert.Equal(t, int64(5000), ticket.Price)
		assert.True(t, strings.HasPrefix(ticket.QRCode, "data:image/png;base64,"))
	}
	assert.NotEqual(t, inserted[0].TicketCode, inserted[1].TicketCode)
	assert.Equal(t, 1, pub.published(models.EventTicketIssued))
}

func TestIssueFromBookingSeated(t *testing.T) {
	booking := confirmedBooking()
	areaID := int64(5)
	booking.AreaID = &areaID
	booking.Seats = []string{"A1", "A2"}

	var inserted []*models.Ticket
	tickets := &mockTicketRepo{
		ListByBookingFn: func(ctx context.Context, bookingID int64) ([]models.Ticket, error) {
			return nil, nil
		},
		InsertBatchFn: func(ctx context.Context, batch []*models.Ticket) error {
			inserted = batch
			return nil
		},
	}

	svc := newTestTicketService(tickets, &mockBookingRepo{}, &mockPublisher{})

	_, err := svc.IssueFromBooking(context.Background(), booking)
	require.NoError(t, err)

	require.Len(t, inserted, 2)
	require.NotNil(t, inserted[0].SeatLabel)
	require.NotNil(t, inserted[1].SeatLabel)
	assert.Equal(t, "A1", *inserted[0].SeatLabel)
	assert.Equal(t, "A2", *inserted[1].SeatLabel)
}

func TestIssueFromBookingIdempotent(t *testing.T) {
	existing := []models.Ticket{{ID: 1, TicketCode: "TK-EXISTING"}}
	tickets := &mockTicketRepo{
		ListByBookingFn: func(ctx context.Context, bookingID int64) ([]models.Ticket, error) {
			return existing, nil
		},
		InsertBatchFn: func(ctx context.Context, batch []*models.Ticket) error {
			t.Fatal("must not insert when tickets already exist")
			return nil
		},
	}

	pub := &mockPublisher{}
	svc := newTestTicketService(tickets, &mockBookingRepo{}, pub)

	issued, err := svc.IssueFromBooking(context.Background(), confirmedBooking())
	require.NoError(t, err)
	assert.Equal(t, existing, issued)
	assert.Equal(t, 0, pub.published(models.EventTicketIssued), "replay must not re-announce issuance")
}

func TestIssueFromBookingRequiresConfirmed(t *testing.T) {
	booking := confirmedBooking()
	booking.Status = models.BookingStatusPending

	svc := newTestTicketService(&mockTicketRepo{}, &mockBookingRepo{}, &mockPublisher{})

	_, err := svc.IssueFromBooking(context.Background(), booking)
	assert.ErrorIs(t, err, apperrors.ErrBookingNotConfirmed)
}

func TestIssueFromBookingRetriesOnCodeCollision(t *testing.T) {
	attempts := 0
	tickets := &mockTicketRepo{
		ListByBookingFn: func(ctx context.Context, bookingID int64) ([]models.Ticket, error) {
			return nil, nil
		},
		InsertBatchFn: func(ctx context.Context, batch []*models.Ticket) error {
			attempts++
			if attempts == 1 {
				return apperrors.ErrDuplicateTicketCode
			}
			return nil
		},
	}

	svc := newTestTicketService(tickets, &mockBookingRepo{}, &mockPublisher{})

	issued, err := svc.IssueFromBooking(context.Background(), confirmedBooking())
	require.NoError(t, err)
	assert.Len(t, issued, 2)
	assert.Equal(t, 2, attempts)
}

func TestIssueFromBookingAlreadyIssuedReturnsExisting(t *testing.T) {
	winner := []models.Ticket{{ID: 9, TicketCode: "TK-WINNER"}, {ID: 10, TicketCode: "TK-WINNER-2"}}
	calls := 0
	tickets := &mockTicketRepo{
		ListByBookingFn: func(ctx context.Context, bookingID int64) ([]models.Ticket, error) {
			calls++
			if calls == 1 {
				return nil, nil
			}
			return winner, nil
		},
		InsertBatchFn: func(ctx context.Context, batch []*models.Ticket) error {
			return apperrors.ErrTicketsAlreadyIssued
		},
	}

	pub := &mockPublisher{}
	svc := newTestTicketService(tickets, &mockBookingRepo{}, pub)

	issued, err := svc.IssueFromBooking(context.Background(), confirmedBooking())
	require.NoError(t, err)
	assert.Equal(t, winner, issued)
	assert.Equal(t, 0, pub.published(models.EventTicketIssued))
}

// Two issuers race past the empty read with disjoint random codes, so the
// per-code unique index alone cannot stop the second set. The insert-side
// guard admits one full set and hands the loser the winner's tickets.
func TestConcurrentIssuanceSingleTicketSet(t *testing.T) {
	booking := confirmedBooking()

	var mu sync.Mutex
	var stored []models.Ticket

	// Both issuers must observe the empty set before either inserts.
	var reads int32
	var emptyReads sync.WaitGroup
	emptyReads.Add(2)

	tickets := &mockTicketRepo{
		ListByBookingFn: func(ctx context.Context, bookingID int64) ([]models.Ticket, error) {
			if atomic.AddInt32(&reads, 1) <= 2 {
				emptyReads.Done()
				emptyReads.Wait()
			}
			mu.Lock()
			defer mu.Unlock()
			out := make([]models.Ticket, len(stored))
			copy(out, stored)
			return out, nil
		},
		InsertBatchFn: func(ctx context.Context, batch []*models.Ticket) error {
			mu.Lock()
			defer mu.Unlock()
			if len(stored) > 0 {
				return apperrors.ErrTicketsAlreadyIssued
			}
			for _, tk := range batch {
				stored = append(stored, *tk)
			}
			return nil
		},
	}

	pub := &mockPublisher{}
	svc := newTestTicketService(tickets, &mockBookingRepo{}, pub)

	var wg sync.WaitGroup
	results := make(chan []models.Ticket, 2)
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			issued, err := svc.IssueFromBooking(context.Background(), booking)
			results <- issued
			errs <- err
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	for issued := range results {
		assert.Len(t, issued, booking.Quantity)
	}
	assert.Len(t, stored, booking.Quantity, "exactly one ticket set per booking")
	assert.Equal(t, 1, pub.published(models.EventTicketIssued))
}

func TestIssueFromBookingCollisionFindsConcurrentWinner(t *testing.T) {
	winner := []models.Ticket{{ID: 9, TicketCode: "TK-WINNER"}}
	calls := 0
	tickets := &mockTicketRepo{
		ListByBookingFn: func(ctx context.Context, bookingID int64) ([]models.Ticket, error) {
			calls++
			if calls == 1 {
				return nil, nil
			}
			return winner, nil
		},
		InsertBatchFn: func(ctx context.Context, batch []*models.Ticket) error {
			return apperrors.ErrDuplicateTicketCode
		},
	}

	svc := newTestTicketService(tickets, &mockBookingRepo{}, &mockPublisher{})

	issued, err := svc.IssueFromBooking(context.Background(), confirmedBooking())
	require.NoError(t, err)
	assert.Equal(t, winner, issued)
}

func TestCheckInPublishesEvent(t *testing.T) {
	pub := &mockPublisher{}
	checkedInAt := fixedNow()
	tickets := &mockTicketRepo{
		CheckInFn: func(ctx context.Context, code string, at time.Time, location, deviceInfo string, operatorID int64) (*models.Ticket, error) {
			assert.Equal(t, int64(55), operatorID)
			return &models.Ticket{
				TicketCode:  code,
				EventID:     1,
				ZoneID:      10,
				Status:      models.TicketStatusUsed,
				CheckedInAt: &checkedInAt,
			}, nil
		},
	}

	svc := newTestTicketService(tickets, &mockBookingRepo{}, pub)

	ticket, err := svc.CheckIn(context.Background(), 55, &models.CheckInRequest{
		TicketCode: "TK1",
		Location:   "Gate A",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusUsed, ticket.Status)
	assert.Equal(t, 1, pub.published(models.EventTicketCheckedIn))
}

func TestCheckInSecondScanLoses(t *testing.T) {
	pub := &mockPublisher{}
	tickets := &mockTicketRepo{
		CheckInFn: func(ctx context.Context, code string, at time.Time, location, deviceInfo string, operatorID int64) (*models.Ticket, error) {
			return nil, apperrors.ErrTicketNotRedeemable
		},
	}

	svc := newTestTicketService(tickets, &mockBookingRepo{}, pub)

	_, err := svc.CheckIn(context.Background(), 55, &models.CheckInRequest{
		TicketCode: "TK1",
		Location:   "Gate A",
	})
	assert.ErrorIs(t, err, apperrors.ErrTicketNotRedeemable)
	assert.Equal(t, 0, pub.published(models.EventTicketCheckedIn))
}

func TestValidateTicketStates(t *testing.T) {
	usedAt := fixedNow().Add(-time.Hour)

	cases := []struct {
		name    string
		ticket  *models.Ticket
		err     error
		valid   bool
		message string
	}{
		{
			name:    "valid",
			ticket:  &models.Ticket{TicketCode: "TK1", Status: models.TicketStatusValid},
			valid:   true,
			message: "ticket is valid",
		},
		{
			name:    "used",
			ticket:  &models.Ticket{TicketCode: "TK1", Status: models.TicketStatusUsed, CheckedInAt: &usedAt},
			message: "ticket already used",
		},
		{
			name:    "cancelled",
			ticket:  &models.Ticket{TicketCode: "TK1", Status: models.TicketStatusCancelled},
			message: "ticket cancelled",
		},
		{
			name:    "not found",
			err:     apperrors.ErrTicketNotFound,
			message: "ticket not found",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tickets := &mockTicketRepo{
				GetByCodeFn: func(ctx context.Context, code string) (*models.Ticket, error) {
					return tc.ticket, tc.err
				},
			}
			svc := newTestTicketService(tickets, &mockBookingRepo{}, &mockPublisher{})

			resp, err := svc.Validate(context.Background(), "TK1")
			require.NoError(t, err)
			assert.Equal(t, tc.valid, resp.Valid)
			assert.Equal(t, tc.message, resp.Message)
			if tc.ticket != nil && tc.ticket.Status == models.TicketStatusUsed {
				assert.Equal(t, &usedAt, resp.UsedAt)
			}
		})
	}
}

func TestGetTicketOwnership(t *testing.T) {
	tickets := &mockTicketRepo{
		GetByCodeFn: func(ctx context.Context, code string) (*models.Ticket, error) {
			return &models.Ticket{TicketCode: code, UserID: 7}, nil
		},
	}

	svc := newTestTicketService(tickets, &mockBookingRepo{}, &mockPublisher{})

	_, err := svc.GetByCode(context.Background(), 7, "TK1")
	assert.NoError(t, err)

	_, err = svc.GetByCode(context.Background(), 99, "TK1")
	assert.ErrorIs(t, err, apperrors.ErrTicketNotFound)
}

func TestIssueByCodeLoadsBooking(t *testing.T) {
	bookings := &mockBookingRepo{
		GetByCodeFn: func(ctx context.Context, code string) (*models.Booking, error) {
			assert.Equal(t, "BK1", code)
			return confirmedBooking(), nil
		},
	}
	tickets := &mockTicketRepo{
		ListByBookingFn: func(ctx context.Context, bookingID int64) ([]models.Ticket, error) {
			return nil, nil
		},
		InsertBatchFn: func(ctx context.Context, batch []*models.Ticket) error {
			return nil
		},
	}

	svc := newTestTicketService(tickets, bookings, &mockPublisher{})

	issued, err := svc.Issue(context.Background(), &models.IssueTicketsRequest{BookingCode: "BK1"})
	require.NoError(t, err)
	assert.Len(t, issued, 2)
}
