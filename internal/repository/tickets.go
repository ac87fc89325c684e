package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"tessera/internal/database"
	apperrors "tessera/internal/errors"
	"tessera/internal/models"
)

type PostgresTicketRepository struct {
	db *database.DB
}

func NewTicketRepository(db *database.DB) *PostgresTicketRepository {
	return &PostgresTicketRepository{db: db}
}

const ticketColumns = `
	id, ticket_code, booking_id, user_id, event_id, zone_id, area_id,
	seat_label, price, status, qr_code, checked_in_at, checked_in_by,
	check_in_location, device_info, cancelled_at, cancelled_by,
	created_at, updated_at`

func (r *PostgresTicketRepository) ListByBooking(ctx context.Context, bookingID int64) ([]models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE booking_id = $1 ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		var t models.Ticket
		if err := scanTicket(rows, &t); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}

	return tickets, rows.Err()
}

// InsertBatch writes all tickets of a booking in one transaction. The booking
// row is locked and the existing set re-checked first: two concurrent issuers
// generate disjoint random codes, so the per-code unique index alone cannot
// stop a second full set. A ticket code collision surfaces as
// ErrDuplicateTicketCode so the caller can regenerate codes and retry the
// whole batch.
func (r *PostgresTicketRepository) InsertBatch(ctx context.Context, tickets []*models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var bookingID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM bookings WHERE id = $1 FOR UPDATE`, tickets[0].BookingID,
	).Scan(&bookingID)
	if err == sql.ErrNoRows {
		return apperrors.ErrBookingNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock booking for issuance: %w", err)
	}

	var existing int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE booking_id = $1`, bookingID,
	).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to check existing tickets: %w", err)
	}
	if existing > 0 {
		return apperrors.ErrTicketsAlreadyIssued
	}

	query := `
		INSERT INTO tickets (
			ticket_code, booking_id, user_id, event_id, zone_id, area_id,
			seat_label, price, status, qr_code
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	for _, t := range tickets {
		err := tx.QueryRowContext(ctx, query,
			t.TicketCode,
			t.BookingID,
			t.UserID,
			t.EventID,
			t.ZoneID,
			t.AreaID,
			t.SeatLabel,
			t.Price,
			t.Status,
			t.QRCode,
		).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				return apperrors.ErrDuplicateTicketCode
			}
			return fmt.Errorf("failed to insert ticket: %w", err)
		}
	}

	return tx.Commit()
}

func (r *PostgresTicketRepository) GetByCode(ctx context.Context, code string) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_code = $1`

	ticket := &models.Ticket{}
	err := scanTicket(r.db.QueryRowContext(ctx, query, code), ticket)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return ticket, nil
}

// CheckIn redeems a ticket. The status guard makes a second scan of the same
// code lose cleanly instead of double-admitting.
func (r *PostgresTicketRepository) CheckIn(ctx context.Context, code string, at time.Time, location, deviceInfo string, operatorID int64) (*models.Ticket, error) {
	query := `
		UPDATE tickets
		SET status = 'used', checked_in_at = $2, checked_in_by = $3,
		    check_in_location = $4, device_info = $5, updated_at = NOW()
		WHERE ticket_code = $1 AND status = 'valid'
		RETURNING ` + ticketColumns

	ticket := &models.Ticket{}
	err := scanTicket(r.db.QueryRowContext(ctx, query,
		code, at, operatorID, nullableString(location), nullableString(deviceInfo),
	), ticket)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrTicketNotRedeemable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check in ticket: %w", err)
	}
	return ticket, nil
}

func (r *PostgresTicketRepository) Cancel(ctx context.Context, code string, cancelledBy int64, at time.Time) (*models.Ticket, error) {
	query := `
		UPDATE tickets
		SET status = 'cancelled', cancelled_at = $2, cancelled_by = $3, updated_at = NOW()
		WHERE ticket_code = $1 AND status = 'valid'
		RETURNING ` + ticketColumns

	ticket := &models.Ticket{}
	err := scanTicket(r.db.QueryRowContext(ctx, query, code, at, cancelledBy), ticket)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrTicketNotRedeemable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel ticket: %w", err)
	}
	return ticket, nil
}

func scanTicket(row rowScanner, t *models.Ticket) error {
	return row.Scan(
		&t.ID,
		&t.TicketCode,
		&t.BookingID,
		&t.UserID,
		&t.EventID,
		&t.ZoneID,
		&t.AreaID,
		&t.SeatLabel,
		&t.Price,
		&t.Status,
		&t.QRCode,
		&t.CheckedInAt,
		&t.CheckedInBy,
		&t.CheckInLocation,
		&t.DeviceInfo,
		&t.CancelledAt,
		&t.CancelledBy,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
