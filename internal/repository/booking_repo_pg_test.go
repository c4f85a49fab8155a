package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func versionRow(mock pgxmock.PgxPoolIface, version int64, at time.Time) *pgxmock.Rows {
	return mock.NewRows([]string{"version", "updated_at"}).AddRow(version, at)
}

func noVersionRow(mock pgxmock.PgxPoolIface) *pgxmock.Rows {
	return mock.NewRows([]string{"version", "updated_at"})
}

func TestNewRepositories(t *testing.T) {
	mock := newMock(t)

	assert.NotNil(t, NewBookingRepository(mock))
	assert.NotNil(t, NewDisputeRepository(mock))
	assert.NotNil(t, NewReleaseRepository(mock))
	assert.NotNil(t, NewPayoutRepository(mock))
	assert.NotNil(t, NewFinanceConfigRepository(mock))
	assert.NotNil(t, NewAuditRepository(mock))
}

func TestBookingUpdate_BumpsVersion(t *testing.T) {
	mock := newMock(t)
	repo := NewBookingRepository(mock)
	at := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE bookings SET status=\$3`).
		WithArgs(append([]any{"b1", int64(3)}, anyArgs(8)...)...).
		WillReturnRows(versionRow(mock, 4, at))

	b := &domain.Booking{ID: "b1", Version: 3, Status: domain.BookingStatusActive, StayStatus: domain.StayStatusCheckedIn}
	require.NoError(t, repo.Update(context.Background(), b))

	assert.Equal(t, int64(4), b.Version)
	assert.Equal(t, at, b.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingUpdate_StaleVersionConflicts(t *testing.T) {
	mock := newMock(t)
	repo := NewBookingRepository(mock)

	mock.ExpectQuery(`UPDATE bookings SET status=\$3`).
		WithArgs(append([]any{"b1", int64(3)}, anyArgs(8)...)...).
		WillReturnRows(noVersionRow(mock))

	b := &domain.Booking{ID: "b1", Version: 3}
	err := repo.Update(context.Background(), b)

	assert.ErrorIs(t, err, domain.ErrVersionConflict)
	assert.Equal(t, int64(3), b.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
