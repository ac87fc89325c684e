package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tessera/internal/cache"
	"tessera/internal/config"
	apperrors "tessera/internal/errors"
	"tessera/internal/external"
	"tessera/internal/logger"
	"tessera/internal/metrics"
	"tessera/internal/models"
	"tessera/internal/repository"
	"tessera/internal/search"
)

// PaymentService funnels every settlement source - push webhook, pull
// capture, manual override - into one idempotent application path.
type PaymentService struct {
	bookingRepo  repository.BookingRepository
	paymentRepo  repository.PaymentRepository
	zoneRepo     repository.ZoneRepository
	tickets      *TicketService
	publisher    eventPublisher
	capture      orderCapturer
	mailer       mailSender
	availability *cache.AvailabilityCache
	bookingIndex *search.BookingIndex
	secret       string
	currency     string
	now          func() time.Time
}

func NewPaymentService(
	cfg *config.Config,
	repos *repository.Repositories,
	tickets *TicketService,
	publisher eventPublisher,
	captureClient *external.CaptureClient,
	mailer *external.Mailer,
	availability *cache.AvailabilityCache,
	bookingIndex *search.BookingIndex,
) *PaymentService {
	return &PaymentService{
		bookingRepo:  repos.Bookings,
		paymentRepo:  repos.Payments,
		zoneRepo:     repos.Zones,
		tickets:      tickets,
		publisher:    publisher,
		capture:      captureClient,
		mailer:       mailer,
		availability: availability,
		bookingIndex: bookingIndex,
		secret:       cfg.Payment.WebhookSecret,
		currency:     cfg.Payment.Currency,
		now:          time.Now,
	}
}

// CreateCheckoutSession opens a provider order for a pending booking. A
// booking whose hold already lapsed is expired on the spot rather than handed
// to the provider.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, userID int64, req *models.CreateCheckoutRequest) (*models.CreateCheckoutResponse, error) {
	booking, err := s.bookingRepo.GetByCode(ctx, req.BookingCode)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, apperrors.ErrBookingNotFound
	}
	if booking.PaymentStatus == models.PaymentStatusPaid {
		return nil, apperrors.ErrAlreadyPaid
	}
	if booking.Status != models.BookingStatusPending {
		return nil, apperrors.ErrInvalidTransition
	}
	if !s.now().Before(booking.ExpiresAt) {
		s.expireStale(ctx, booking)
		return nil, apperrors.ErrBookingExpired
	}

	order, err := s.capture.CreateOrder(ctx, &external.CreateOrderRequest{
		ReferenceID: booking.BookingCode,
		Amount:      booking.TotalPrice,
		Currency:    s.currency,
		Description: fmt.Sprintf("Booking %s", booking.BookingCode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	// Pending row keyed by the order id; Finalize settles it in place when
	// the capture lands.
	payment := &models.Payment{
		BookingID:     booking.ID,
		UserID:        booking.UserID,
		Provider:      string(models.ProviderPull),
		ProviderTxnID: order.OrderID,
		Amount:        booking.TotalPrice,
		Currency:      s.currency,
		Method:        "checkout",
		Status:        models.PaymentPending,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, err
	}

	return &models.CreateCheckoutResponse{
		CheckoutURL: order.ApproveURL,
		OrderID:     order.OrderID,
		ExpiresAt:   booking.ExpiresAt,
	}, nil
}

// HandleNotification processes a push-provider settlement webhook. The
// response contract is: nil for anything the provider should stop retrying
// (applied or replay), error for anything worth a retry or an alert.
func (s *PaymentService) HandleNotification(ctx context.Context, n *models.SettlementNotification) error {
	if err := external.VerifyNotification(n, s.secret); err != nil {
		metrics.SettlementsRejected.WithLabelValues("bad_signature").Inc()
		return err
	}

	if !settledStatus(n.Status) {
		logger.WithContext(ctx).Info("Ignoring non-settled notification",
			"transaction_id", n.TransactionID, "status", n.Status)
		return nil
	}

	bookingCode := n.Metadata["booking_code"]
	if bookingCode == "" {
		metrics.SettlementsRejected.WithLabelValues("missing_metadata").Inc()
		return apperrors.Validation("metadata", "booking_code is required")
	}

	_, _, err := s.applySettlement(ctx, &models.Settlement{
		Provider:      models.ProviderPush,
		TransactionID: n.TransactionID,
		BookingCode:   bookingCode,
		Amount:        n.Amount,
		Currency:      n.Currency,
		Method:        n.Method,
	})
	return err
}

// Finalize captures an approved pull-provider order and applies the result.
// The settlement is keyed on the order id, so the pending checkout row
// settles in place. Safe to call repeatedly; the second caller sees
// AlreadyFinalized.
func (s *PaymentService) Finalize(ctx context.Context, userID int64, req *models.FinalizePaymentRequest) (*models.FinalizePaymentResponse, error) {
	// The checkout row ties the order to its creator; capturing someone
	// else's order reads as not found.
	checkout, err := s.paymentRepo.GetByProviderTxnID(ctx, req.ProviderOrderID)
	if err != nil {
		return nil, err
	}
	if checkout.UserID != userID {
		return nil, apperrors.ErrPaymentNotFound
	}

	captured, err := s.capture.CaptureOrder(ctx, req.ProviderOrderID)
	if err != nil {
		return nil, err
	}
	if !captured.Captured() {
		return nil, apperrors.Validation("provider_order_id",
			fmt.Sprintf("order is not settled (status %s)", captured.Status))
	}

	metadata, _ := json.Marshal(map[string]string{"capture_txn_id": captured.TransactionID})

	booking, applied, err := s.applySettlement(ctx, &models.Settlement{
		Provider:      models.ProviderPull,
		TransactionID: req.ProviderOrderID,
		BookingCode:   captured.ReferenceID,
		Amount:        captured.Amount,
		Currency:      captured.Currency,
		Method:        "capture",
		Metadata:      metadata,
	})
	if err != nil {
		return nil, err
	}

	return &models.FinalizePaymentResponse{
		BookingCode:      booking.BookingCode,
		Status:           booking.Status,
		AlreadyFinalized: !applied,
	}, nil
}

// ManualMarkPaid is the operator override for settlements the automated
// channels missed. The reference doubles as the idempotency key.
func (s *PaymentService) ManualMarkPaid(ctx context.Context, req *models.MarkPaidRequest) (*models.Booking, error) {
	method := req.Method
	if method == "" {
		method = "manual"
	}

	booking, _, err := s.applySettlement(ctx, &models.Settlement{
		Provider:      models.ProviderManual,
		TransactionID: req.Reference,
		BookingCode:   req.BookingCode,
		Amount:        req.Amount,
		Currency:      s.currency,
		Method:        method,
	})
	return booking, err
}

// History lists the caller's payment records, newest first.
func (s *PaymentService) History(ctx context.Context, userID int64) ([]models.Payment, error) {
	return s.paymentRepo.ListByUser(ctx, userID)
}

// applySettlement is the single idempotent sink for all three settlement
// channels. Exactly one caller per booking wins the confirmation guard and
// runs the side effects; replays are absorbed, conflicts are surfaced.
func (s *PaymentService) applySettlement(ctx context.Context, settle *models.Settlement) (*models.Booking, bool, error) {
	booking, err := s.bookingRepo.GetByCode(ctx, settle.BookingCode)
	if err != nil {
		metrics.SettlementsRejected.WithLabelValues("unknown_booking").Inc()
		return nil, false, err
	}

	if err := s.checkAmount(booking, settle); err != nil {
		metrics.SettlementsRejected.WithLabelValues("amount_mismatch").Inc()
		return nil, false, err
	}

	// Money arriving for a lapsed hold is flagged, never silently confirmed.
	// The payment record still lands so the refund queue has something to
	// work from.
	if booking.Status == models.BookingStatusPending && !s.now().Before(booking.ExpiresAt) {
		s.expireStale(ctx, booking)
		s.recordPayment(ctx, booking, settle)
		metrics.SettlementsRejected.WithLabelValues("hold_expired").Inc()
		logger.WithContext(ctx).Error("Settlement arrived after hold expiry, refund required",
			"booking_code", booking.BookingCode, "transaction_id", settle.TransactionID,
			"provider", string(settle.Provider))
		return booking, false, apperrors.ErrBookingExpired
	}

	s.recordPayment(ctx, booking, settle)

	won, err := s.bookingRepo.MarkConfirmed(ctx, booking.ID, settle.TransactionID, s.now())
	if err != nil {
		return nil, false, err
	}

	if !won {
		return s.resolveLostGuard(ctx, booking, settle)
	}

	if err := s.zoneRepo.ConfirmSold(ctx, booking.ZoneID, booking.Quantity); err != nil {
		logger.WithContext(ctx).Error("Failed to confirm sold count after settlement",
			"error", err, "booking_id", booking.ID, "zone_id", booking.ZoneID)
	}

	metrics.SettlementsApplied.WithLabelValues(string(settle.Provider)).Inc()
	s.availability.InvalidateZone(ctx, booking.ZoneID)

	booking, err = s.bookingRepo.GetByID(ctx, booking.ID)
	if err != nil {
		return nil, false, err
	}
	s.indexBooking(ctx, booking)

	s.publish(ctx, models.EventPaymentSettled, models.PaymentSettledEvent{
		BookingID:     booking.ID,
		BookingCode:   booking.BookingCode,
		Provider:      string(settle.Provider),
		TransactionID: settle.TransactionID,
		Amount:        settle.Amount,
		Currency:      settle.Currency,
		Timestamp:     s.now(),
	})
	s.publishZoneInventory(ctx, booking.ZoneID)

	// Issuance failures do not unwind the settlement; the replay endpoint
	// covers them.
	if _, err := s.tickets.IssueFromBooking(ctx, booking); err != nil {
		logger.WithContext(ctx).Error("Failed to issue tickets after settlement",
			"error", err, "booking_code", booking.BookingCode)
	}

	s.sendConfirmation(ctx, booking)

	return booking, true, nil
}

// resolveLostGuard classifies a settlement that found the booking already out
// of pending: a replay of the same transaction is a clean no-op, anything
// else is a conflict.
func (s *PaymentService) resolveLostGuard(ctx context.Context, stale *models.Booking, settle *models.Settlement) (*models.Booking, bool, error) {
	booking, err := s.bookingRepo.GetByID(ctx, stale.ID)
	if err != nil {
		return nil, false, err
	}

	switch booking.Status {
	case models.BookingStatusConfirmed:
		if booking.ProviderTxnID != nil && *booking.ProviderTxnID == settle.TransactionID {
			metrics.SettlementsDuplicate.WithLabelValues(string(settle.Provider)).Inc()
			logger.WithContext(ctx).Info("Settlement replay absorbed",
				"booking_code", booking.BookingCode, "transaction_id", settle.TransactionID)
			return booking, false, nil
		}
		metrics.SettlementsRejected.WithLabelValues("double_payment").Inc()
		logger.WithContext(ctx).Error("Second settlement for a confirmed booking, refund required",
			"booking_code", booking.BookingCode,
			"transaction_id", settle.TransactionID)
		return booking, false, apperrors.ErrAlreadyPaid
	case models.BookingStatusExpired:
		metrics.SettlementsRejected.WithLabelValues("hold_expired").Inc()
		return booking, false, apperrors.ErrBookingExpired
	default:
		metrics.SettlementsRejected.WithLabelValues("invalid_state").Inc()
		return booking, false, apperrors.ErrInvalidTransition
	}
}

func (s *PaymentService) checkAmount(booking *models.Booking, settle *models.Settlement) error {
	// Manual settlements may omit the amount; the operator asserts it.
	if settle.Amount == 0 && settle.Provider == models.ProviderManual {
		settle.Amount = booking.TotalPrice
	}
	if settle.Amount != booking.TotalPrice {
		return apperrors.Validation("amount",
			fmt.Sprintf("settlement amount %d does not match booking total %d", settle.Amount, booking.TotalPrice))
	}
	if settle.Currency != "" && !strings.EqualFold(settle.Currency, s.currency) {
		return apperrors.Validation("currency",
			fmt.Sprintf("unexpected settlement currency %s", settle.Currency))
	}
	return nil
}

// recordPayment upserts the payment row keyed by provider transaction id.
// Recorded before the confirmation guard so even rejected settlements leave
// an audit trail.
func (s *PaymentService) recordPayment(ctx context.Context, booking *models.Booking, settle *models.Settlement) {
	now := s.now()
	payment := &models.Payment{
		BookingID:     booking.ID,
		UserID:        booking.UserID,
		Provider:      string(settle.Provider),
		ProviderTxnID: settle.TransactionID,
		Amount:        settle.Amount,
		Currency:      settle.Currency,
		Method:        settle.Method,
		Metadata:      settle.Metadata,
		PaidAt:        &now,
	}
	if payment.Currency == "" {
		payment.Currency = s.currency
	}
	if err := s.paymentRepo.UpsertSucceeded(ctx, payment); err != nil {
		logger.WithContext(ctx).Error("Failed to record payment",
			"error", err, "transaction_id", settle.TransactionID)
	}
}

func (s *PaymentService) expireStale(ctx context.Context, booking *models.Booking) {
	won, err := s.bookingRepo.MarkExpired(ctx, booking.ID)
	if err != nil {
		logger.WithContext(ctx).Error("Lazy expiry failed", "error", err, "booking_id", booking.ID)
		return
	}
	if !won {
		return
	}

	if err := s.zoneRepo.Release(ctx, booking.ZoneID, booking.Quantity, false); err != nil {
		logger.WithContext(ctx).Error("Failed to release zone capacity after lazy expiry",
			"error", err, "booking_id", booking.ID, "zone_id", booking.ZoneID)
	}
	metrics.BookingsExpired.Inc()
	s.availability.InvalidateZone(ctx, booking.ZoneID)
	s.publish(ctx, models.EventBookingExpired, models.BookingExpiredEvent{
		BookingID:   booking.ID,
		BookingCode: booking.BookingCode,
		ZoneID:      booking.ZoneID,
		Quantity:    booking.Quantity,
		Reason:      "hold lapsed",
		Timestamp:   s.now(),
	})
	s.publishZoneInventory(ctx, booking.ZoneID)
}

func (s *PaymentService) sendConfirmation(ctx context.Context, booking *models.Booking) {
	if s.mailer == nil || booking.CustomerEmail == "" {
		return
	}

	subject := fmt.Sprintf("Booking %s confirmed", booking.BookingCode)
	html := fmt.Sprintf(
		"<p>Your booking <strong>%s</strong> is confirmed.</p><p>Tickets: %d. Total paid: %d.</p>",
		booking.BookingCode, booking.Quantity, booking.TotalPrice)

	if err := s.mailer.Send(ctx, booking.CustomerEmail, subject, html); err != nil {
		logger.WithContext(ctx).Warn("Failed to send confirmation email",
			"error", err, "booking_code", booking.BookingCode)
	}
}

func (s *PaymentService) publish(ctx context.Context, subject string, data interface{}) {
	if err := s.publisher.Publish(subject, data); err != nil {
		logger.WithContext(ctx).Error("Failed to publish event",
			"error", err, "subject", subject)
	}
}

func (s *PaymentService) publishZoneInventory(ctx context.Context, zoneID int64) {
	zone, err := s.zoneRepo.GetByID(ctx, zoneID)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to load zone for inventory event",
			"error", err, "zone_id", zoneID)
		return
	}

	s.publish(ctx, models.EventZoneInventory, models.ZoneInventoryEvent{
		ZoneAvailability: models.ZoneAvailability{
			ZoneID:             zone.ID,
			EventID:            zone.EventID,
			Capacity:           zone.Capacity,
			SoldCount:          zone.SoldCount,
			ConfirmedSoldCount: zone.ConfirmedSoldCount,
			Available:          zone.Available(),
		},
		Timestamp: s.now(),
	})
}

func (s *PaymentService) indexBooking(ctx context.Context, booking *models.Booking) {
	if s.bookingIndex == nil {
		return
	}
	if err := s.bookingIndex.IndexBooking(ctx, booking); err != nil {
		logger.WithContext(ctx).Warn("Failed to index booking",
			"error", err, "booking_id", booking.ID)
	}
}

func settledStatus(status string) bool {
	switch strings.ToLower(status) {
	case "succeeded", "completed", "confirmed", "paid":
		return true
	}
	return false
}
