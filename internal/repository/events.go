package repository

import (
	"context"
	"database/sql"

	"tessera/internal/database"
	apperrors "tessera/internal/errors"
	"tessera/internal/models"
)

type PostgresEventRepository struct {
	db *database.DB
}

func NewEventRepository(db *database.DB) *PostgresEventRepository {
	return &PostgresEventRepository{db: db}
}

func (r *PostgresEventRepository) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	event := &models.Event{}
	query := `
		SELECT id, title, COALESCE(location, ''), starts_at, ends_at
		FROM events
		WHERE id = $1 AND is_deleted = FALSE`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&event.ID,
		&event.Title,
		&event.Location,
		&event.StartsAt,
		&event.EndsAt,
	)

	if err == sql.ErrNoRows {
		return nil, apperrors.ErrEventNotFound
	}

	return event, err
}
