package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tessera/internal/database"
	apperrors "tessera/internal/errors"
	"tessera/internal/logger"
	"tessera/internal/models"
)

type PostgresZoneRepository struct {
	db *database.DB
}

func NewZoneRepository(db *database.DB) *PostgresZoneRepository {
	return &PostgresZoneRepository{db: db}
}

func (r *PostgresZoneRepository) GetByID(ctx context.Context, id int64) (*models.Zone, error) {
	zone := &models.Zone{}
	query := `
		SELECT id, event_id, name, price, capacity, sold_count, confirmed_sold_count,
		       has_seating, sale_starts_at, sale_ends_at
		FROM zones
		WHERE id = $1 AND is_deleted = FALSE`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&zone.ID,
		&zone.EventID,
		&zone.Name,
		&zone.Price,
		&zone.Capacity,
		&zone.SoldCount,
		&zone.ConfirmedSoldCount,
		&zone.HasSeating,
		&zone.SaleStartsAt,
		&zone.SaleEndsAt,
	)

	if err == sql.ErrNoRows {
		return nil, apperrors.ErrZoneNotFound
	}

	return zone, err
}

// Reserve is a test-and-increment against the zone counter. It never reads
// the counter first; the WHERE clause is the capacity check.
func (r *PostgresZoneRepository) Reserve(ctx context.Context, zoneID int64, quantity int) error {
	return reserveZoneTx(ctx, r.db, zoneID, quantity)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// reserveZoneTx is the guarded increment behind Reserve. Booking creation
// runs the same statement inside its zone-locking transaction, so every
// sold_count write goes through this one capacity check.
func reserveZoneTx(ctx context.Context, ex execer, zoneID int64, quantity int) error {
	query := `
		UPDATE zones
		SET sold_count = sold_count + $2, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
		  AND sold_count + $2 <= capacity`

	result, err := ex.ExecContext(ctx, query, zoneID, quantity)
	if err != nil {
		return fmt.Errorf("failed to reserve zone capacity: %w", err)
	}

	return checkOneRow(result, zoneID, apperrors.ErrInsufficientCapacity)
}

func (r *PostgresZoneRepository) Release(ctx context.Context, zoneID int64, quantity int, wasConfirmed bool) error {
	confirmedDelta := 0
	if wasConfirmed {
		confirmedDelta = quantity
	}

	query := `
		UPDATE zones
		SET sold_count = sold_count - $2,
		    confirmed_sold_count = confirmed_sold_count - $3,
		    updated_at = NOW()
		WHERE id = $1 AND sold_count >= $2 AND confirmed_sold_count >= $3`

	result, err := r.db.ExecContext(ctx, query, zoneID, quantity, confirmedDelta)
	if err != nil {
		return fmt.Errorf("failed to release zone capacity: %w", err)
	}

	return checkOneRow(result, zoneID, apperrors.ErrDataIntegrity)
}

func (r *PostgresZoneRepository) ConfirmSold(ctx context.Context, zoneID int64, quantity int) error {
	query := `
		UPDATE zones
		SET confirmed_sold_count = confirmed_sold_count + $2, updated_at = NOW()
		WHERE id = $1 AND confirmed_sold_count + $2 <= sold_count`

	result, err := r.db.ExecContext(ctx, query, zoneID, quantity)
	if err != nil {
		return fmt.Errorf("failed to confirm sold count: %w", err)
	}

	return checkOneRow(result, zoneID, apperrors.ErrDataIntegrity)
}

// checkOneRow enforces the 0-or-1 affected-rows contract of guarded zone
// updates. Zero rows maps to noneErr; more than one row cannot happen with a
// primary-key guard and is treated as a defect.
func checkOneRow(result sql.Result, zoneID int64, noneErr error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	switch n {
	case 1:
		return nil
	case 0:
		return noneErr
	default:
		logger.Get().Error("Guarded zone update affected multiple rows",
			"zone_id", zoneID, "rows", n)
		return apperrors.ErrDataIntegrity
	}
}
