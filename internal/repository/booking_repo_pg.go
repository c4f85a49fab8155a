package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/jackc/pgx/v5"
)

const bookingColumns = `id, guest_id, host_id, property_id, check_in_date, check_out_date, status, stay_status,
	room_fee, cleaning_fee, security_deposit, financial_snapshot, blocked_dates, checked_in_on, checked_out_on,
	guest_dispute_id, host_dispute_id, version, confirmed_at, cancelled_at, completed_at, created_at, updated_at`

type PGBookingRepository struct {
	db DB
}

func NewBookingRepository(db DB) BookingRepository {
	return &PGBookingRepository{db: db}
}

func (r *PGBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	booking.Version = 1
	err := r.db.QueryRow(ctx, `INSERT INTO bookings (id, guest_id, host_id, property_id, check_in_date, check_out_date,
			status, stay_status, room_fee, cleaning_fee, security_deposit, blocked_dates, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		booking.ID, booking.GuestID, booking.HostID, booking.PropertyID,
		booking.CheckInDate.Time(), booking.CheckOutDate.Time(),
		booking.Status, booking.StayStatus,
		booking.Quote.RoomFee, booking.Quote.CleaningFee, booking.Quote.SecurityDeposit,
		booking.BlockedDates, booking.Version).
		Scan(&booking.CreatedAt, &booking.UpdatedAt)
	return classify(err)
}

func (r *PGBookingRepository) Get(ctx context.Context, id string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, fmt.Errorf("booking %s: %w", id, classify(err))
	}
	return b, nil
}

// Update writes the mutable lifecycle columns. The snapshot column is only
// written while it is still NULL.
func (r *PGBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	return updateBooking(ctx, r.db, booking)
}

func (r *PGBookingRepository) ListSettlementEligible(ctx context.Context) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE status=$1 AND stay_status IN ($2, $3) AND NOT blocked_dates AND financial_snapshot IS NOT NULL
		ORDER BY check_in_date, id`,
		domain.BookingStatusActive, domain.StayStatusCheckedIn, domain.StayStatusCheckedOut)
	if err != nil {
		return nil, classify(err)
	}
	return collectBookings(rows)
}

func (r *PGBookingRepository) ListDueForActivation(ctx context.Context, today domain.Date) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE status=$1 AND NOT blocked_dates AND check_in_date <= $2
		ORDER BY check_in_date, id`,
		domain.BookingStatusConfirmed, today.Time())
	if err != nil {
		return nil, classify(err)
	}
	return collectBookings(rows)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func updateBooking(ctx context.Context, q querier, booking *domain.Booking) error {
	read := booking.Version
	err := q.QueryRow(ctx, `UPDATE bookings SET status=$3, stay_status=$4,
			financial_snapshot=COALESCE(financial_snapshot, $5), checked_in_on=$6, checked_out_on=$7,
			confirmed_at=$8, cancelled_at=$9, completed_at=$10, version=version+1, updated_at=now()
		WHERE id=$1 AND version=$2
		RETURNING version, updated_at`,
		booking.ID, read, booking.Status, booking.StayStatus, booking.Snapshot,
		dateArg(booking.CheckedInOn), dateArg(booking.CheckedOutOn),
		booking.ConfirmedAt, booking.CancelledAt, booking.CompletedAt).
		Scan(&booking.Version, &booking.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: booking %s changed since version %d", domain.ErrVersionConflict, booking.ID, read)
	}
	return classify(err)
}

// bumpVersion claims the booking at the version the caller read.
func bumpVersion(ctx context.Context, q querier, booking *domain.Booking) error {
	read := booking.Version
	err := q.QueryRow(ctx, `UPDATE bookings SET version=version+1, updated_at=now()
		WHERE id=$1 AND version=$2 RETURNING version, updated_at`, booking.ID, read).
		Scan(&booking.Version, &booking.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: booking %s changed since version %d", domain.ErrVersionConflict, booking.ID, read)
	}
	return classify(err)
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()
	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *b)
	}
	return out, classify(rows.Err())
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b                         domain.Booking
		checkIn, checkOut         time.Time
		checkedIn, checkedOut     *time.Time
		guestDispute, hostDispute *string
	)
	err := row.Scan(&b.ID, &b.GuestID, &b.HostID, &b.PropertyID, &checkIn, &checkOut, &b.Status, &b.StayStatus,
		&b.Quote.RoomFee, &b.Quote.CleaningFee, &b.Quote.SecurityDeposit, &b.Snapshot, &b.BlockedDates,
		&checkedIn, &checkedOut, &guestDispute, &hostDispute, &b.Version,
		&b.ConfirmedAt, &b.CancelledAt, &b.CompletedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.CheckInDate = domain.DateOf(checkIn, time.UTC)
	b.CheckOutDate = domain.DateOf(checkOut, time.UTC)
	b.CheckedInOn = optionalDate(checkedIn)
	b.CheckedOutOn = optionalDate(checkedOut)
	b.GuestDisputeID = deref(guestDispute)
	b.HostDisputeID = deref(hostDispute)
	return &b, nil
}

func optionalDate(t *time.Time) *domain.Date {
	if t == nil {
		return nil
	}
	d := domain.DateOf(*t, time.UTC)
	return &d
}

func dateArg(d *domain.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time()
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ BookingRepository = (*PGBookingRepository)(nil)
