package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tessera/internal/errors"
	"tessera/internal/external"
	"tessera/internal/models"
)

const testSecret = "webhook-secret"

func pendingBooking() *models.Booking {
	return &models.Booking{
		ID:            42,
		BookingCode:   "BK1",
		UserID:        7,
		EventID:       1,
		ZoneID:        10,
		Quantity:      2,
		UnitPrice:     5000,
		TotalPrice:    10000,
		Status:        models.BookingStatusPending,
		PaymentStatus: models.PaymentStatusUnpaid,
		CustomerEmail: "fan@example.com",
		ExpiresAt:     fixedNow().Add(10 * time.Minute),
	}
}

type paymentFixture struct {
	svc      *PaymentService
	bookings *mockBookingRepo
	payments *mockPaymentRepo
	zones    *mockZoneRepo
	tickets  *mockTicketRepo
	pub      *mockPublisher
	mailer   *mockMailer
	capture  *mockCapture
}

// newPaymentFixture wires a settlement-ready service: pending booking, winnable
// confirmation guard, empty ticket set. Tests override the parts they exercise.
func newPaymentFixture() *paymentFixture {
	state := pendingBooking()
	var mu sync.Mutex

	bookings := &mockBookingRepo{
		GetByCodeFn: func(ctx context.Context, code string) (*models.Booking, error) {
			mu.Lock()
			defer mu.Unlock()
			b := *state
			return &b, nil
		},
		GetByIDFn: func(ctx context.Context, id int64) (*models.Booking, error) {
			mu.Lock()
			defer mu.Unlock()
			b := *state
			return &b, nil
		},
		MarkConfirmedFn: func(ctx context.Context, id int64, providerTxnID string, paidAt time.Time) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if state.Status != models.BookingStatusPending {
				return false, nil
			}
			state.Status = models.BookingStatusConfirmed
			state.PaymentStatus = models.PaymentStatusPaid
			state.ProviderTxnID = &providerTxnID
			return true, nil
		},
		MarkExpiredFn: func(ctx context.Context, id int64) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if state.Status != models.BookingStatusPending {
				return false, nil
			}
			state.Status = models.BookingStatusExpired
			return true, nil
		},
	}

	payments := &mockPaymentRepo{
		CreateFn:          func(ctx context.Context, p *models.Payment) error { return nil },
		UpsertSucceededFn: func(ctx context.Context, p *models.Payment) error { return nil },
		GetByProviderTxnIDFn: func(ctx context.Context, txnID string) (*models.Payment, error) {
			return nil, apperrors.ErrPaymentNotFound
		},
	}

	zones := &mockZoneRepo{
		GetByIDFn: func(ctx context.Context, id int64) (*models.Zone, error) {
			return openZone(id, 1), nil
		},
		ConfirmSoldFn: func(ctx context.Context, zoneID int64, quantity int) error { return nil },
		ReleaseFn:     func(ctx context.Context, zoneID int64, quantity int, wasConfirmed bool) error { return nil },
	}

	var issuedMu sync.Mutex
	var issued []models.Ticket
	tickets := &mockTicketRepo{
		ListByBookingFn: func(ctx context.Context, bookingID int64) ([]models.Ticket, error) {
			issuedMu.Lock()
			defer issuedMu.Unlock()
			return issued, nil
		},
		InsertBatchFn: func(ctx context.Context, batch []*models.Ticket) error {
			issuedMu.Lock()
			defer issuedMu.Unlock()
			for _, t := range batch {
				issued = append(issued, *t)
			}
			return nil
		},
	}

	pub := &mockPublisher{}
	mailer := &mockMailer{}
	capture := &mockCapture{}

	ticketSvc := &TicketService{
		ticketRepo:  tickets,
		bookingRepo: bookings,
		publisher:   pub,
		now:         fixedNow,
	}

	svc := &PaymentService{
		bookingRepo: bookings,
		paymentRepo: payments,
		zoneRepo:    zones,
		tickets:     ticketSvc,
		publisher:   pub,
		capture:     capture,
		mailer:      mailer,
		secret:      testSecret,
		currency:    "USD",
		now:         fixedNow,
	}

	return &paymentFixture{
		svc:      svc,
		bookings: bookings,
		payments: payments,
		zones:    zones,
		tickets:  tickets,
		pub:      pub,
		mailer:   mailer,
		capture:  capture,
	}
}

func signedNotification(txnID string, amount int64) *models.SettlementNotification {
	n := &models.SettlementNotification{
		TransactionID: txnID,
		Status:        "succeeded",
		Amount:        amount,
		Currency:      "USD",
		Method:        "card",
		Metadata:      map[string]string{"booking_code": "BK1"},
	}
	n.Token = external.SignParams(map[string]string{
		"TransactionId": n.TransactionID,
		"Status":        n.Status,
		"Amount":        strconv.FormatInt(n.Amount, 10),
		"Currency":      n.Currency,
	}, testSecret)
	return n
}

func TestHandleNotificationRejectsBadSignature(t *testing.T) {
	f := newPaymentFixture()

	n := signedNotification("txn-1", 10000)
	n.Token = "forged"

	err := f.svc.HandleNotification(context.Background(), n)
	assert.ErrorIs(t, err, apperrors.ErrSignatureInvalid)
}

func TestHandleNotificationAppliesSettlement(t *testing.T) {
	f := newPaymentFixture()

	confirmSold := 0
	f.zones.ConfirmSoldFn = func(ctx context.Context, zoneID int64, quantity int) error {
		confirmSold++
		assert.Equal(t, 2, quantity)
		return nil
	}

	var recorded *models.Payment
	f.payments.UpsertSucceededFn = func(ctx context.Context, p *models.Payment) error {
		recorded = p
		return nil
	}

	err := f.svc.HandleNotification(context.Background(), signedNotification("txn-1", 10000))
	require.NoError(t, err)

	assert.Equal(t, 1, confirmSold)
	require.NotNil(t, recorded)
	assert.Equal(t, "txn-1", recorded.ProviderTxnID)
	assert.Equal(t, string(models.ProviderPush), recorded.Provider)

	assert.Equal(t, 1, f.pub.published(models.EventPaymentSettled))
	assert.Equal(t, 1, f.pub.published(models.EventTicketIssued))
	assert.Equal(t, []string{"fan@example.com"}, f.mailer.sent)

	tickets, err := f.tickets.ListByBookingFn(context.Background(), 42)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
}

func TestSettlementReplayIsAbsorbed(t *testing.T) {
	f := newPaymentFixture()

	n := signedNotification("txn-1", 10000)
	require.NoError(t, f.svc.HandleNotification(context.Background(), n))

	confirmSoldAfterFirst := f.pub.published(models.EventPaymentSettled)
	ticketsAfterFirst, _ := f.tickets.ListByBookingFn(context.Background(), 42)

	// Same transaction again: accepted, but nothing moves.
	require.NoError(t, f.svc.HandleNotification(context.Background(), n))

	assert.Equal(t, confirmSoldAfterFirst, f.pub.published(models.EventPaymentSettled))
	ticketsAfterSecond, _ := f.tickets.ListByBookingFn(context.Background(), 42)
	assert.Equal(t, len(ticketsAfterFirst), len(ticketsAfterSecond))
}

func TestSettlementConflictingTransaction(t *testing.T) {
	f := newPaymentFixture()

	require.NoError(t, f.svc.HandleNotification(context.Background(), signedNotification("txn-1", 10000)))

	err := f.svc.HandleNotification(context.Background(), signedNotification("txn-2", 10000))
	assert.ErrorIs(t, err, apperrors.ErrAlreadyPaid)
}

func TestSettlementAfterHoldExpiry(t *testing.T) {
	f := newPaymentFixture()

	f.svc.now = func() time.Time { return fixedNow().Add(time.Hour) }

	released := 0
	f.zones.ReleaseFn = func(ctx context.Context, zoneID int64, quantity int, wasConfirmed bool) error {
		released++
		assert.False(t, wasConfirmed)
		return nil
	}
	recorded := 0
	f.payments.UpsertSucceededFn = func(ctx context.Context, p *models.Payment) error {
		recorded++
		return nil
	}

	n := signedNotification("txn-late", 10000)
	err := f.svc.HandleNotification(context.Background(), n)
	assert.ErrorIs(t, err, apperrors.ErrBookingExpired)

	assert.Equal(t, 1, released, "expired hold must be reclaimed")
	assert.Equal(t, 1, recorded, "late settlement still leaves an audit record")
	assert.Equal(t, 0, f.pub.published(models.EventPaymentSettled))
}

func TestSettlementAmountMismatch(t *testing.T) {
	f := newPaymentFixture()

	err := f.svc.HandleNotification(context.Background(), signedNotification("txn-1", 9999))
	var validationErr *apperrors.ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Equal(t, 0, f.pub.published(models.EventPaymentSettled))
}

func TestHandleNotificationIgnoresNonSettledStatus(t *testing.T) {
	f := newPaymentFixture()

	n := &models.SettlementNotification{
		TransactionID: "txn-1",
		Status:        "failed",
		Amount:        10000,
		Currency:      "USD",
	}
	n.Token = external.SignParams(map[string]string{
		"TransactionId": n.TransactionID,
		"Status":        n.Status,
		"Amount":        "10000",
		"Currency":      n.Currency,
	}, testSecret)

	require.NoError(t, f.svc.HandleNotification(context.Background(), n))
	assert.Equal(t, 0, f.pub.published(models.EventPaymentSettled))
}

// checkoutRow is the pending payment a checkout session leaves behind, keyed
// by the provider order id.
func checkoutRow(orderID string) *models.Payment {
	return &models.Payment{
		ID:            1,
		BookingID:     42,
		UserID:        7,
		Provider:      string(models.ProviderPull),
		ProviderTxnID: orderID,
		Amount:        10000,
		Currency:      "USD",
		Method:        "checkout",
		Status:        models.PaymentPending,
	}
}

func TestFinalizeCapturesOnce(t *testing.T) {
	f := newPaymentFixture()

	f.payments.GetByProviderTxnIDFn = func(ctx context.Context, txnID string) (*models.Payment, error) {
		return checkoutRow(txnID), nil
	}
	f.capture.CaptureOrderFn = func(ctx context.Context, orderID string) (*external.CaptureOrderResponse, error) {
		return &external.CaptureOrderResponse{
			OrderID:       orderID,
			TransactionID: "cap-1",
			Status:        "COMPLETED",
			Amount:        10000,
			Currency:      "USD",
			ReferenceID:   "BK1",
		}, nil
	}

	var upserted []*models.Payment
	f.payments.UpsertSucceededFn = func(ctx context.Context, p *models.Payment) error {
		upserted = append(upserted, p)
		return nil
	}

	first, err := f.svc.Finalize(context.Background(), 7, &models.FinalizePaymentRequest{ProviderOrderID: "ord-1"})
	require.NoError(t, err)
	assert.False(t, first.AlreadyFinalized)
	assert.Equal(t, models.BookingStatusConfirmed, first.Status)

	second, err := f.svc.Finalize(context.Background(), 7, &models.FinalizePaymentRequest{ProviderOrderID: "ord-1"})
	require.NoError(t, err)
	assert.True(t, second.AlreadyFinalized)

	assert.Equal(t, 1, f.pub.published(models.EventPaymentSettled))

	// The capture lands on the checkout row itself, not a second record.
	require.NotEmpty(t, upserted)
	for _, p := range upserted {
		assert.Equal(t, "ord-1", p.ProviderTxnID)
		assert.Contains(t, string(p.Metadata), "cap-1")
	}
}

func TestFinalizeRejectsUnsettledOrder(t *testing.T) {
	f := newPaymentFixture()

	f.payments.GetByProviderTxnIDFn = func(ctx context.Context, txnID string) (*models.Payment, error) {
		return checkoutRow(txnID), nil
	}
	f.capture.CaptureOrderFn = func(ctx context.Context, orderID string) (*external.CaptureOrderResponse, error) {
		return &external.CaptureOrderResponse{OrderID: orderID, Status: "PENDING"}, nil
	}

	_, err := f.svc.Finalize(context.Background(), 7, &models.FinalizePaymentRequest{ProviderOrderID: "ord-1"})
	var validationErr *apperrors.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestFinalizeNotOwner(t *testing.T) {
	f := newPaymentFixture()

	f.payments.GetByProviderTxnIDFn = func(ctx context.Context, txnID string) (*models.Payment, error) {
		return checkoutRow(txnID), nil
	}
	f.capture.CaptureOrderFn = func(ctx context.Context, orderID string) (*external.CaptureOrderResponse, error) {
		t.Fatal("must not capture an order the caller does not own")
		return nil, nil
	}

	_, err := f.svc.Finalize(context.Background(), 99, &models.FinalizePaymentRequest{ProviderOrderID: "ord-1"})
	assert.ErrorIs(t, err, apperrors.ErrPaymentNotFound)
}

func TestFinalizeUnknownOrder(t *testing.T) {
	f := newPaymentFixture()

	_, err := f.svc.Finalize(context.Background(), 7, &models.FinalizePaymentRequest{ProviderOrderID: "ord-missing"})
	assert.ErrorIs(t, err, apperrors.ErrPaymentNotFound)
}

func TestManualMarkPaidDefaultsAmount(t *testing.T) {
	f := newPaymentFixture()

	var recorded *models.Payment
	f.payments.UpsertSucceededFn = func(ctx context.Context, p *models.Payment) error {
		recorded = p
		return nil
	}

	booking, err := f.svc.ManualMarkPaid(context.Background(), &models.MarkPaidRequest{
		BookingCode: "BK1",
		Reference:   "bank-wire-77",
	})
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
	require.NotNil(t, recorded)
	assert.Equal(t, int64(10000), recorded.Amount)
	assert.Equal(t, string(models.ProviderManual), recorded.Provider)
	assert.Equal(t, "bank-wire-77", recorded.ProviderTxnID)
}

func TestCreateCheckoutSession(t *testing.T) {
	f := newPaymentFixture()

	f.capture.CreateOrderFn = func(ctx context.Context, req *external.CreateOrderRequest) (*external.CreateOrderResponse, error) {
		assert.Equal(t, "BK1", req.ReferenceID)
		assert.Equal(t, int64(10000), req.Amount)
		return &external.CreateOrderResponse{
			OrderID:    "ord-9",
			Status:     "CREATED",
			ApproveURL: "https://provider.example/approve/ord-9",
		}, nil
	}

	var created *models.Payment
	f.payments.CreateFn = func(ctx context.Context, p *models.Payment) error {
		created = p
		return nil
	}

	resp, err := f.svc.CreateCheckoutSession(context.Background(), 7, &models.CreateCheckoutRequest{BookingCode: "BK1"})
	require.NoError(t, err)

	assert.Equal(t, "ord-9", resp.OrderID)
	assert.Equal(t, "https://provider.example/approve/ord-9", resp.CheckoutURL)
	require.NotNil(t, created)
	assert.Equal(t, models.PaymentPending, created.Status)
}

func TestCreateCheckoutSessionExpiredHold(t *testing.T) {
	f := newPaymentFixture()
	f.svc.now = func() time.Time { return fixedNow().Add(time.Hour) }

	released := 0
	f.zones.ReleaseFn = func(ctx context.Context, zoneID int64, quantity int, wasConfirmed bool) error {
		released++
		return nil
	}

	_, err := f.svc.CreateCheckoutSession(context.Background(), 7, &models.CreateCheckoutRequest{BookingCode: "BK1"})
	assert.ErrorIs(t, err, apperrors.ErrBookingExpired)
	assert.Equal(t, 1, released)
}

func TestCreateCheckoutSessionNotOwner(t *testing.T) {
	f := newPaymentFixture()

	_, err := f.svc.CreateCheckoutSession(context.Background(), 99, &models.CreateCheckoutRequest{BookingCode: "BK1"})
	assert.ErrorIs(t, err, apperrors.ErrBookingNotFound)
}

// Two settlement channels race for the same booking; exactly one wins the
// guard and runs the side effects.
func TestConcurrentSettlementSingleWinner(t *testing.T) {
	f := newPaymentFixture()

	var confirmSold int32
	var csMu sync.Mutex
	f.zones.ConfirmSoldFn = func(ctx context.Context, zoneID int64, quantity int) error {
		csMu.Lock()
		confirmSold++
		csMu.Unlock()
		return nil
	}

	n := signedNotification("txn-1", 10000)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.svc.HandleNotification(context.Background(), n)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), confirmSold)
	assert.Equal(t, 1, f.pub.published(models.EventPaymentSettled))
}
