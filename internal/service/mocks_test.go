package service

import (
	"context"
	"sync"
	"time"

	"tessera/internal/external"
	"tessera/internal/models"
)

type mockEventRepo struct {
	GetByIDFn func(ctx context.Context, id int64) (*models.Event, error)
}

func (m *mockEventRepo) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	return m.GetByIDFn(ctx, id)
}

type mockZoneRepo struct {
	GetByIDFn     func(ctx context.Context, id int64) (*models.Zone, error)
	ReserveFn     func(ctx context.Context, zoneID int64, quantity int) error
	ReleaseFn     func(ctx context.Context, zoneID int64, quantity int, wasConfirmed bool) error
	ConfirmSoldFn func(ctx context.Context, zoneID int64, quantity int) error
}

func (m *mockZoneRepo) GetByID(ctx context.Context, id int64) (*models.Zone, error) {
	return m.GetByIDFn(ctx, id)
}

func (m *mockZoneRepo) Reserve(ctx context.Context, zoneID int64, quantity int) error {
	return m.ReserveFn(ctx, zoneID, quantity)
}

func (m *mockZoneRepo) Release(ctx context.Context, zoneID int64, quantity int, wasConfirmed bool) error {
	return m.ReleaseFn(ctx, zoneID, quantity, wasConfirmed)
}

func (m *mockZoneRepo) ConfirmSold(ctx context.Context, zoneID int64, quantity int) error {
	return m.ConfirmSoldFn(ctx, zoneID, quantity)
}

type mockAreaRepo struct {
	GetByIDFn    func(ctx context.Context, id int64) (*models.Area, error)
	ListByZoneFn func(ctx context.Context, zoneID int64) ([]models.Area, error)
}

func (m *mockAreaRepo) GetByID(ctx context.Context, id int64) (*models.Area, error) {
	return m.GetByIDFn(ctx, id)
}

func (m *mockAreaRepo) ListByZone(ctx context.Context, zoneID int64) ([]models.Area, error) {
	return m.ListByZoneFn(ctx, zoneID)
}

type mockBookingRepo struct {
	CreateReservedFn func(ctx context.Context, b *models.Booking) error
	GetByIDFn        func(ctx context.Context, id int64) (*models.Booking, error)
	GetByCodeFn      func(ctx context.Context, code string) (*models.Booking, error)
	ListByUserFn     func(ctx context.Context, userID int64, status string, page, pageSize int) ([]models.Booking, int, error)
	ListFn           func(ctx context.Context, filter *models.BookingFilter) ([]models.Booking, int, error)
	ListExpiredFn    func(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
	TakenSeatsFn     func(ctx context.Context, zoneID int64, areaID int64) ([]string, error)
	MarkConfirmedFn  func(ctx context.Context, id int64, providerTxnID string, paidAt time.Time) (bool, error)
	MarkExpiredFn    func(ctx context.Context, id int64) (bool, error)
	MarkCancelledFn  func(ctx context.Context, id int64, reason string, refunded bool, at time.Time) (bool, error)
}

func (m *mockBookingRepo) CreateReserved(ctx context.Context, b *models.Booking) error {
	return m.CreateReservedFn(ctx, b)
}

func (m *mockBookingRepo) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	return m.GetByIDFn(ctx, id)
}

func (m *mockBookingRepo) GetByCode(ctx context.Context, code string) (*models.Booking, error) {
	return m.GetByCodeFn(ctx, code)
}

func (m *mockBookingRepo) ListByUser(ctx context.Context, userID int64, status string, page, pageSize int) ([]models.Booking, int, error) {
	return m.ListByUserFn(ctx, userID, status, page, pageSize)
}

func (m *mockBookingRepo) List(ctx context.Context, filter *models.BookingFilter) ([]models.Booking, int, error) {
	return m.ListFn(ctx, filter)
}

func (m *mockBookingRepo) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	return m.ListExpiredFn(ctx, cutoff, limit)
}

func (m *mockBookingRepo) TakenSeats(ctx context.Context, zoneID int64, areaID int64) ([]string, error) {
	return m.TakenSeatsFn(ctx, zoneID, areaID)
}

func (m *mockBookingRepo) MarkConfirmed(ctx context.Context, id int64, providerTxnID string, paidAt time.Time) (bool, error) {
	return m.MarkConfirmedFn(ctx, id, providerTxnID, paidAt)
}

func (m *mockBookingRepo) MarkExpired(ctx context.Context, id int64) (bool, error) {
	return m.MarkExpiredFn(ctx, id)
}

func (m *mockBookingRepo) MarkCancelled(ctx context.Context, id int64, reason string, refunded bool, at time.Time) (bool, error) {
	return m.MarkCancelledFn(ctx, id, reason, refunded, at)
}

type mockPaymentRepo struct {
	CreateFn             func(ctx context.Context, p *models.Payment) error
	UpsertSucceededFn    func(ctx context.Context, p *models.Payment) error
	GetByProviderTxnIDFn func(ctx context.Context, txnID string) (*models.Payment, error)
	ListByUserFn         func(ctx context.Context, userID int64) ([]models.Payment, error)
}

func (m *mockPaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	return m.CreateFn(ctx, p)
}

func (m *mockPaymentRepo) UpsertSucceeded(ctx context.Context, p *models.Payment) error {
	return m.UpsertSucceededFn(ctx, p)
}

func (m *mockPaymentRepo) GetByProviderTxnID(ctx context.Context, txnID string) (*models.Payment, error) {
	return m.GetByProviderTxnIDFn(ctx, txnID)
}

func (m *mockPaymentRepo) ListByUser(ctx context.Context, userID int64) ([]models.Payment, error) {
	return m.ListByUserFn(ctx, userID)
}

type mockTicketRepo struct {
	ListByBookingFn func(ctx context.Context, bookingID int64) ([]models.Ticket, error)
	InsertBatchFn   func(ctx context.Context, tickets []*models.Ticket) error
	GetByCodeFn     func(ctx context.Context, code string) (*models.Ticket, error)
	CheckInFn       func(ctx context.Context, code string, at time.Time, location, deviceInfo string, operatorID int64) (*models.Ticket, error)
	CancelFn        func(ctx context.Context, code string, cancelledBy int64, at time.Time) (*models.Ticket, error)
}

func (m *mockTicketRepo) ListByBooking(ctx context.Context, bookingID int64) ([]models.Ticket, error) {
	return m.ListByBookingFn(ctx, bookingID)
}

func (m *mockTicketRepo) InsertBatch(ctx context.Context, tickets []*models.Ticket) error {
	return m.InsertBatchFn(ctx, tickets)
}

func (m *mockTicketRepo) GetByCode(ctx context.Context, code string) (*models.Ticket, error) {
	return m.GetByCodeFn(ctx, code)
}

func (m *mockTicketRepo) CheckIn(ctx context.Context, code string, at time.Time, location, deviceInfo string, operatorID int64) (*models.Ticket, error) {
	return m.CheckInFn(ctx, code, at, location, deviceInfo, operatorID)
}

func (m *mockTicketRepo) Cancel(ctx context.Context, code string, cancelledBy int64, at time.Time) (*models.Ticket, error) {
	return m.CancelFn(ctx, code, cancelledBy, at)
}

// mockPublisher records published events; safe for concurrent use.
type mockPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []interface{}
}

func (m *mockPublisher) Publish(subject string, data interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	m.payloads = append(m.payloads, data)
	return nil
}

func (m *mockPublisher) published(subject string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.subjects {
		if s == subject {
			count++
		}
	}
	return count
}

type mockCapture struct {
	CreateOrderFn  func(ctx context.Context, req *external.CreateOrderRequest) (*external.CreateOrderResponse, error)
	CaptureOrderFn func(ctx context.Context, orderID string) (*external.CaptureOrderResponse, error)
}

func (m *mockCapture) CreateOrder(ctx context.Context, req *external.CreateOrderRequest) (*external.CreateOrderResponse, error) {
	return m.CreateOrderFn(ctx, req)
}

func (m *mockCapture) CaptureOrder(ctx context.Context, orderID string) (*external.CaptureOrderResponse, error) {
	return m.CaptureOrderFn(ctx, orderID)
}

type mockMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *mockMailer) Send(ctx context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return nil
}

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}
