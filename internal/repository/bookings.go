package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"tessera/internal/database"
	apperrors "tessera/internal/errors"
	"tessera/internal/logger"
	"tessera/internal/models"
)

type PostgresBookingRepository struct {
	db *database.DB
}

func NewBookingRepository(db *database.DB) *PostgresBookingRepository {
	return &PostgresBookingRepository{db: db}
}

const bookingColumns = `
	id, booking_code, user_id, event_id, zone_id, area_id, seats, quantity,
	unit_price, total_price, status, payment_status, provider_txn_id,
	customer_email, customer_name, customer_phone, notes, expires_at,
	paid_at, cancelled_at, cancellation_reason, created_at, updated_at`

// CreateReserved holds zone capacity and persists the booking in one
// transaction. The zone row is locked first, so the seat-conflict check and
// the counter increment cannot interleave with a concurrent creation against
// the same zone. The increment itself is the ledger's guarded reserve, not a
// bare counter write.
func (r *PostgresBookingRepository) CreateReserved(ctx context.Context, b *models.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var capacity, soldCount int
	lockQuery := `SELECT capacity, sold_count FROM zones WHERE id = $1 AND is_deleted = FALSE FOR UPDATE`
	err = tx.QueryRowContext(ctx, lockQuery, b.ZoneID).Scan(&capacity, &soldCount)
	if err == sql.ErrNoRows {
		return apperrors.ErrZoneNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock zone: %w", err)
	}

	if available := capacity - soldCount; available < b.Quantity {
		return fmt.Errorf("%w: %d left", apperrors.ErrInsufficientCapacity, available)
	}

	if len(b.Seats) > 0 {
		taken, err := takenSeatsTx(ctx, tx, b.ZoneID, *b.AreaID)
		if err != nil {
			return fmt.Errorf("failed to check seat conflicts: %w", err)
		}
		if conflicts := intersect(b.Seats, taken); len(conflicts) > 0 {
			return &apperrors.SeatConflictError{Seats: conflicts}
		}
	}

	if err := reserveZoneTx(ctx, tx, b.ZoneID, b.Quantity); err != nil {
		return err
	}

	insertQuery := `
		INSERT INTO bookings (
			booking_code, user_id, event_id, zone_id, area_id, seats, quantity,
			unit_price, total_price, status, payment_status, customer_email,
			customer_name, customer_phone, notes, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRowContext(ctx, insertQuery,
		b.BookingCode,
		b.UserID,
		b.EventID,
		b.ZoneID,
		b.AreaID,
		pq.Array(b.Seats),
		b.Quantity,
		b.UnitPrice,
		b.TotalPrice,
		b.Status,
		b.PaymentStatus,
		b.CustomerEmail,
		b.CustomerName,
		b.CustomerPhone,
		b.Notes,
		b.ExpiresAt,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	return tx.Commit()
}

func (r *PostgresBookingRepository) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 AND is_deleted = FALSE`
	return r.getOne(ctx, query, id)
}

func (r *PostgresBookingRepository) GetByCode(ctx context.Context, code string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_code = $1 AND is_deleted = FALSE`
	return r.getOne(ctx, query, code)
}

func (r *PostgresBookingRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Booking, error) {
	booking := &models.Booking{}
	err := scanBooking(r.db.QueryRowContext(ctx, query, arg), booking)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

func (r *PostgresBookingRepository) ListByUser(ctx context.Context, userID int64, status string, page, pageSize int) ([]models.Booking, int, error) {
	filter := &models.BookingFilter{Status: status, Page: page, PageSize: pageSize}
	where := `WHERE user_id = $1 AND is_deleted = FALSE`
	args := []interface{}{userID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}
	return r.list(ctx, where, args, filter)
}

func (r *PostgresBookingRepository) List(ctx context.Context, filter *models.BookingFilter) ([]models.Booking, int, error) {
	where := `WHERE is_deleted = FALSE`
	var args []interface{}
	argIndex := 1

	if filter.EventID != 0 {
		where += fmt.Sprintf(" AND event_id = $%d", argIndex)
		args = append(args, filter.EventID)
		argIndex++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, filter.Status)
		argIndex++
	}
	if filter.PaymentStatus != "" {
		where += fmt.Sprintf(" AND payment_status = $%d", argIndex)
		args = append(args, filter.PaymentStatus)
	}

	return r.list(ctx, where, args, filter)
}

func (r *PostgresBookingRepository) list(ctx context.Context, where string, args []interface{}, filter *models.BookingFilter) ([]models.Booking, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM bookings ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	query := fmt.Sprintf(`SELECT %s FROM bookings %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		bookingColumns, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		var b models.Booking
		if err := scanBooking(rows, &b); err != nil {
			return nil, 0, err
		}
		bookings = append(bookings, b)
	}

	return bookings, total, rows.Err()
}

func (r *PostgresBookingRepository) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'pending' AND expires_at < $1 AND is_deleted = FALSE
		ORDER BY expires_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		var b models.Booking
		if err := scanBooking(rows, &b); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}

	return bookings, rows.Err()
}

func (r *PostgresBookingRepository) TakenSeats(ctx context.Context, zoneID int64, areaID int64) ([]string, error) {
	return takenSeatsTx(ctx, r.db, zoneID, areaID)
}

// MarkConfirmed applies the settlement transition. The guard loses both when
// the booking already left pending and when it is already marked paid, so a
// replayed settlement can never re-run side effects.
func (r *PostgresBookingRepository) MarkConfirmed(ctx context.Context, id int64, providerTxnID string, paidAt time.Time) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'confirmed', payment_status = 'paid', provider_txn_id = $2,
		    paid_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND payment_status <> 'paid'`

	result, err := r.db.ExecContext(ctx, query, id, providerTxnID, paidAt)
	if err != nil {
		return false, fmt.Errorf("failed to confirm booking: %w", err)
	}
	return r.guardResult(result, id)
}

func (r *PostgresBookingRepository) MarkExpired(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to expire booking: %w", err)
	}
	return r.guardResult(result, id)
}

func (r *PostgresBookingRepository) MarkCancelled(ctx context.Context, id int64, reason string, refunded bool, at time.Time) (bool, error) {
	paymentStatus := models.PaymentStatusUnpaid
	if refunded {
		paymentStatus = models.PaymentStatusRefunded
	}

	query := `
		UPDATE bookings
		SET status = 'cancelled', payment_status = $2, cancelled_at = $3,
		    cancellation_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'confirmed')`

	result, err := r.db.ExecContext(ctx, query, id, paymentStatus, at, reason)
	if err != nil {
		return false, fmt.Errorf("failed to cancel booking: %w", err)
	}
	return r.guardResult(result, id)
}

// guardResult maps affected rows to won/lost. Anything beyond one row on a
// primary-key guard is a defect, not a race.
func (r *PostgresBookingRepository) guardResult(result sql.Result, id int64) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	switch n {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		logger.Get().Error("Guarded booking update affected multiple rows",
			"booking_id", id, "rows", n)
		return false, apperrors.ErrDataIntegrity
	}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// takenSeatsTx collects the seat labels held by live bookings in a zone+area.
// Runs inside the zone-locking transaction during creation so the answer
// stays true until commit.
func takenSeatsTx(ctx context.Context, q querier, zoneID, areaID int64) ([]string, error) {
	query := `
		SELECT seats FROM bookings
		WHERE zone_id = $1 AND area_id = $2
		  AND status IN ('pending', 'confirmed')
		  AND is_deleted = FALSE
		  AND cardinality(seats) > 0`

	rows, err := q.QueryContext(ctx, query, zoneID, areaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var taken []string
	for rows.Next() {
		var seats []string
		if err := rows.Scan(pq.Array(&seats)); err != nil {
			return nil, err
		}
		taken = append(taken, seats...)
	}

	return taken, rows.Err()
}

func intersect(requested, taken []string) []string {
	set := make(map[string]struct{}, len(taken))
	for _, s := range taken {
		set[s] = struct{}{}
	}

	var conflicts []string
	for _, s := range requested {
		if _, ok := set[s]; ok {
			conflicts = append(conflicts, s)
		}
	}
	return conflicts
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner, b *models.Booking) error {
	return row.Scan(
		&b.ID,
		&b.BookingCode,
		&b.UserID,
		&b.EventID,
		&b.ZoneID,
		&b.AreaID,
		pq.Array(&b.Seats),
		&b.Quantity,
		&b.UnitPrice,
		&b.TotalPrice,
		&b.Status,
		&b.PaymentStatus,
		&b.ProviderTxnID,
		&b.CustomerEmail,
		&b.CustomerName,
		&b.CustomerPhone,
		&b.Notes,
		&b.ExpiresAt,
		&b.PaidAt,
		&b.CancelledAt,
		&b.CancellationReason,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
}
