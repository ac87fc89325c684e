package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"tessera/internal/database"
	apperrors "tessera/internal/errors"
	"tessera/internal/models"
)

type PostgresAreaRepository struct {
	db *database.DB
}

func NewAreaRepository(db *database.DB) *PostgresAreaRepository {
	return &PostgresAreaRepository{db: db}
}

func (r *PostgresAreaRepository) GetByID(ctx context.Context, id int64) (*models.Area, error) {
	area := &models.Area{}
	query := `
		SELECT id, zone_id, event_id, name, COALESCE(row_label, ''), seats
		FROM areas
		WHERE id = $1 AND is_deleted = FALSE`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&area.ID,
		&area.ZoneID,
		&area.EventID,
		&area.Name,
		&area.RowLabel,
		pq.Array(&area.Seats),
	)

	if err == sql.ErrNoRows {
		return nil, apperrors.ErrAreaNotFound
	}

	return area, err
}

func (r *PostgresAreaRepository) ListByZone(ctx context.Context, zoneID int64) ([]models.Area, error) {
	var areas []models.Area
	query := `
		SELECT id, zone_id, event_id, name, COALESCE(row_label, ''), seats
		FROM areas
		WHERE zone_id = $1 AND is_deleted = FALSE
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, zoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var area models.Area
		err := rows.Scan(
			&area.ID,
			&area.ZoneID,
			&area.EventID,
			&area.Name,
			&area.RowLabel,
			pq.Array(&area.Seats),
		)
		if err != nil {
			return nil, err
		}
		areas = append(areas, area)
	}

	return areas, rows.Err()
}
