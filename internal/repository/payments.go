package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tessera/internal/database"
	apperrors "tessera/internal/errors"
	"tessera/internal/models"
)

type PostgresPaymentRepository struct {
	db *database.DB
}

func NewPaymentRepository(db *database.DB) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

const paymentColumns = `
	id, booking_id, user_id, provider, provider_txn_id, amount, currency,
	method, status, metadata, paid_at, refunded_at, created_at, updated_at`

func (r *PostgresPaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (
			booking_id, user_id, provider, provider_txn_id, amount, currency,
			method, status, metadata, paid_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		p.BookingID,
		p.UserID,
		p.Provider,
		p.ProviderTxnID,
		p.Amount,
		p.Currency,
		p.Method,
		p.Status,
		nullableJSON(p.Metadata),
		p.PaidAt,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// UpsertSucceeded records a settled payment keyed by the provider transaction
// id. A replayed notification lands on the conflict arm and only refreshes
// the row, so the record stays exactly-once per provider_txn_id. The pull
// channel settles through the same arm: its checkout session left a pending
// row under the order id, and the capture resolves that row in place.
func (r *PostgresPaymentRepository) UpsertSucceeded(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (
			booking_id, user_id, provider, provider_txn_id, amount, currency,
			method, status, metadata, paid_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 'succeeded', $8, $9)
		ON CONFLICT (provider_txn_id) DO UPDATE
		SET status = 'succeeded', method = EXCLUDED.method, paid_at = EXCLUDED.paid_at,
		    metadata = COALESCE(EXCLUDED.metadata, payments.metadata), updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		p.BookingID,
		p.UserID,
		p.Provider,
		p.ProviderTxnID,
		p.Amount,
		p.Currency,
		p.Method,
		nullableJSON(p.Metadata),
		p.PaidAt,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert payment: %w", err)
	}

	p.Status = models.PaymentSucceeded
	return nil
}

func (r *PostgresPaymentRepository) GetByProviderTxnID(ctx context.Context, txnID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_txn_id = $1`

	payment := &models.Payment{}
	var metadata sql.NullString
	err := r.db.QueryRowContext(ctx, query, txnID).Scan(
		&payment.ID,
		&payment.BookingID,
		&payment.UserID,
		&payment.Provider,
		&payment.ProviderTxnID,
		&payment.Amount,
		&payment.Currency,
		&payment.Method,
		&payment.Status,
		&metadata,
		&payment.PaidAt,
		&payment.RefundedAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	if metadata.Valid {
		payment.Metadata = []byte(metadata.String)
	}
	return payment, nil
}

func (r *PostgresPaymentRepository) ListByUser(ctx context.Context, userID int64) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		var metadata sql.NullString
		err := rows.Scan(
			&p.ID,
			&p.BookingID,
			&p.UserID,
			&p.Provider,
			&p.ProviderTxnID,
			&p.Amount,
			&p.Currency,
			&p.Method,
			&p.Status,
			&metadata,
			&p.PaidAt,
			&p.RefundedAt,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if metadata.Valid {
			p.Metadata = []byte(metadata.String)
		}
		payments = append(payments, p)
	}

	return payments, rows.Err()
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
