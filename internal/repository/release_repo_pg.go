package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/jackc/pgx/v5"
)

const releaseColumns = `id, booking_id, host_id, event_type, amount, claimed_amount, release_date, status, created_at`

type PGReleaseRepository struct {
	db DB
}

func NewReleaseRepository(db DB) ReleaseRepository {
	return &PGReleaseRepository{db: db}
}

// Create claims the booking at the version the caller read, so a dispute
// filed in between makes it fail, then inserts with ON CONFLICT DO NOTHING.
func (r *PGReleaseRepository) Create(ctx context.Context, booking *domain.Booking, event *domain.ReleaseEvent) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, classify(err)
	}
	defer tx.Rollback(ctx)

	read := booking.Version
	if err := bumpVersion(ctx, tx, booking); err != nil {
		return false, err
	}

	err = tx.QueryRow(ctx, `INSERT INTO release_events (id, booking_id, host_id, event_type, amount, claimed_amount, release_date, status)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
		ON CONFLICT (booking_id, event_type) DO NOTHING
		RETURNING created_at`,
		event.ID, event.BookingID, event.HostID, event.EventType, event.Amount, event.ReleaseDate, event.Status).
		Scan(&event.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		booking.Version = read
		return false, nil
	case isUniqueViolation(err):
		booking.Version = read
		return false, fmt.Errorf("%w: %s for booking %s", domain.ErrDuplicateRelease, event.EventType, event.BookingID)
	case err != nil:
		booking.Version = read
		return false, classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		booking.Version = read
		return false, classify(err)
	}
	return true, nil
}

func (r *PGReleaseRepository) ListByBooking(ctx context.Context, bookingID string) ([]domain.ReleaseEvent, error) {
	rows, err := r.db.Query(ctx, `SELECT `+releaseColumns+` FROM release_events WHERE booking_id=$1 ORDER BY release_date, created_at`, bookingID)
	if err != nil {
		return nil, classify(err)
	}
	return collectReleases(rows)
}

func (r *PGReleaseRepository) ListAvailable(ctx context.Context, hostID string) ([]domain.ReleaseEvent, error) {
	rows, err := r.db.Query(ctx, `SELECT `+releaseColumns+` FROM release_events
		WHERE host_id=$1 AND status=$2 AND event_type <> $3 AND claimed_amount < amount
		ORDER BY release_date, created_at`,
		hostID, domain.ReleaseStatusReleased, domain.RefundSecurityDeposit)
	if err != nil {
		return nil, classify(err)
	}
	return collectReleases(rows)
}

func collectReleases(rows pgx.Rows) ([]domain.ReleaseEvent, error) {
	defer rows.Close()
	var out []domain.ReleaseEvent
	for rows.Next() {
		var e domain.ReleaseEvent
		if err := rows.Scan(&e.ID, &e.BookingID, &e.HostID, &e.EventType, &e.Amount, &e.ClaimedAmount,
			&e.ReleaseDate, &e.Status, &e.CreatedAt); err != nil {
			return nil, classify(err)
		}
		out = append(out, e)
	}
	return out, classify(rows.Err())
}

var _ ReleaseRepository = (*PGReleaseRepository)(nil)
