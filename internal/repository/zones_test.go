package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tessera/internal/errors"
)

type fakeResult struct{ rows int64 }

func (f fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (f fakeResult) RowsAffected() (int64, error) { return f.rows, nil }

type fakeExecer struct {
	query string
	args  []interface{}
	rows  int64
}

func (f *fakeExecer) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.query = query
	f.args = args
	return fakeResult{rows: f.rows}, nil
}

// Booking creation shares this statement, so the capacity guard must live in
// the SQL itself rather than in any caller-side read.
func TestReserveZoneTxGuardsCapacity(t *testing.T) {
	ex := &fakeExecer{rows: 1}
	require.NoError(t, reserveZoneTx(context.Background(), ex, 10, 3))
	assert.Contains(t, ex.query, "sold_count + $2 <= capacity")
	assert.Equal(t, []interface{}{int64(10), 3}, ex.args)

	ex = &fakeExecer{rows: 0}
	assert.ErrorIs(t, reserveZoneTx(context.Background(), ex, 10, 3), apperrors.ErrInsufficientCapacity)
}

func TestCheckOneRowContract(t *testing.T) {
	assert.NoError(t, checkOneRow(fakeResult{rows: 1}, 10, apperrors.ErrInsufficientCapacity))
	assert.ErrorIs(t, checkOneRow(fakeResult{rows: 0}, 10, apperrors.ErrInsufficientCapacity), apperrors.ErrInsufficientCapacity)
	assert.ErrorIs(t, checkOneRow(fakeResult{rows: 2}, 10, apperrors.ErrDataIntegrity), apperrors.ErrDataIntegrity)
}
