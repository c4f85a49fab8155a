package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const claimSlotSQL = `UPDATE bookings SET guest_dispute_id=\$3`

var readAt = time.Date(2024, 6, 11, 8, 0, 0, 0, time.UTC)

func guestDispute() *domain.Dispute {
	return &domain.Dispute{
		ID: "d1", BookingID: "b1", OpenedBy: domain.PartyGuest, ActorID: "g1",
		Writeup: "The flat had no running water for two days.", Status: domain.DisputeStatusOpen,
	}
}

func readBooking() *domain.Booking {
	return &domain.Booking{ID: "b1", Version: 3, UpdatedAt: readAt}
}

func TestDisputeFile_TakesSlot(t *testing.T) {
	mock := newMock(t)
	repo := NewDisputeRepository(mock)
	created := readAt.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(claimSlotSQL).WithArgs("b1", int64(3), "d1").WillReturnRows(versionRow(mock, 4, created))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("b1", pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO disputes`).WithArgs(anyArgs(9)...).
		WillReturnRows(mock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectCommit()

	b, d := readBooking(), guestDispute()
	require.NoError(t, repo.File(context.Background(), b, d))

	assert.Equal(t, int64(4), b.Version)
	assert.Equal(t, "d1", b.GuestDisputeID)
	assert.Equal(t, created, d.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisputeFile_GuardedReleaseExists(t *testing.T) {
	mock := newMock(t)
	repo := NewDisputeRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(claimSlotSQL).WithArgs("b1", int64(3), "d1").WillReturnRows(versionRow(mock, 4, time.Now()))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("b1", []string{string(domain.ReleaseRoomFee), string(domain.ReleaseCleaningFee)}).
		WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	b := readBooking()
	err := repo.File(context.Background(), b, guestDispute())

	assert.ErrorIs(t, err, domain.ErrWindowClosed)
	assert.Equal(t, int64(3), b.Version)
	assert.Equal(t, readAt, b.UpdatedAt)
	assert.Empty(t, b.GuestDisputeID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisputeFile_StaleBookingConflicts(t *testing.T) {
	mock := newMock(t)
	repo := NewDisputeRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(claimSlotSQL).WithArgs("b1", int64(3), "d1").WillReturnRows(noVersionRow(mock))
	mock.ExpectRollback()

	err := repo.File(context.Background(), readBooking(), guestDispute())

	assert.ErrorIs(t, err, domain.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisputeFile_ConsumedSlotNeedsNoQuery(t *testing.T) {
	mock := newMock(t)
	repo := NewDisputeRepository(mock)

	b := readBooking()
	b.GuestDisputeID = "d0"
	err := repo.File(context.Background(), b, guestDispute())

	assert.ErrorIs(t, err, domain.ErrWindowClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisputeFile_FailureAfterClaimRestoresVersion(t *testing.T) {
	transient := &pgconn.PgError{Code: sqlstateSerializationFailure}
	tests := []struct {
		name   string
		expect func(mock pgxmock.PgxPoolIface)
		want   error
	}{
		{
			name: "insert fails",
			expect: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO disputes`).WithArgs(anyArgs(9)...).WillReturnError(transient)
				mock.ExpectRollback()
			},
			want: domain.ErrTransientStorage,
		},
		{
			name: "insert hits the unique slot",
			expect: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO disputes`).WithArgs(anyArgs(9)...).
					WillReturnError(&pgconn.PgError{Code: sqlstateUniqueViolation})
				mock.ExpectRollback()
			},
			want: domain.ErrWindowClosed,
		},
		{
			name: "commit fails",
			expect: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO disputes`).WithArgs(anyArgs(9)...).
					WillReturnRows(mock.NewRows([]string{"created_at"}).AddRow(time.Now()))
				mock.ExpectCommit().WillReturnError(transient)
			},
			want: domain.ErrTransientStorage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			repo := NewDisputeRepository(mock)

			mock.ExpectBegin()
			mock.ExpectQuery(claimSlotSQL).WithArgs("b1", int64(3), "d1").
				WillReturnRows(versionRow(mock, 4, readAt.Add(time.Hour)))
			mock.ExpectQuery(`SELECT EXISTS`).WithArgs(anyArgs(2)...).
				WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(false))
			tt.expect(mock)

			b := readBooking()
			err := repo.File(context.Background(), b, guestDispute())

			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, int64(3), b.Version)
			assert.Equal(t, readAt, b.UpdatedAt)
			assert.Empty(t, b.GuestDisputeID)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
