package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/jackc/pgx/v5"
)

const disputeColumns = `id, booking_id, opened_by, actor_id, category, claimed_amount, writeup, evidence,
	status, outcome, adjustment_amount, resolved_by, created_at, resolved_at`

type PGDisputeRepository struct {
	db DB
}

func NewDisputeRepository(db DB) DisputeRepository {
	return &PGDisputeRepository{db: db}
}

// File takes the party's dispute slot at the version the caller read and
// inserts the dispute in the same transaction. It fails with ErrWindowClosed
// when the slot is taken or a release the window guards already exists. On
// any failure the booking keeps the version it was read at.
func (r *PGDisputeRepository) File(ctx context.Context, booking *domain.Booking, dispute *domain.Dispute) error {
	column, taken := "guest_dispute_id", booking.GuestDisputeID
	if dispute.OpenedBy == domain.PartyHost {
		column, taken = "host_dispute_id", booking.HostDisputeID
	}
	if taken != "" {
		return fmt.Errorf("%w: %s window already consumed", domain.ErrWindowClosed, dispute.OpenedBy)
	}
	guarded := make([]string, 0, 2)
	for _, t := range domain.GuardedTypes(dispute.OpenedBy) {
		guarded = append(guarded, string(t))
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	read, readAt := booking.Version, booking.UpdatedAt
	committed := false
	defer func() {
		if !committed {
			booking.Version, booking.UpdatedAt = read, readAt
		}
	}()

	err = tx.QueryRow(ctx, `UPDATE bookings SET `+column+`=$3, version=version+1, updated_at=now()
		WHERE id=$1 AND version=$2 AND `+column+` IS NULL
		RETURNING version, updated_at`, booking.ID, read, dispute.ID).
		Scan(&booking.Version, &booking.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: booking %s changed since version %d", domain.ErrVersionConflict, booking.ID, read)
	}
	if err != nil {
		return classify(err)
	}

	var released bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM release_events WHERE booking_id=$1 AND event_type = ANY($2))`,
		booking.ID, guarded).Scan(&released); err != nil {
		return classify(err)
	}
	if released {
		return fmt.Errorf("%w: funds guarded by the %s window were already released", domain.ErrWindowClosed, dispute.OpenedBy)
	}

	if err := tx.QueryRow(ctx, `INSERT INTO disputes (id, booking_id, opened_by, actor_id, category, claimed_amount,
			writeup, evidence, status, adjustment_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0)
		RETURNING created_at`,
		dispute.ID, dispute.BookingID, dispute.OpenedBy, dispute.ActorID, dispute.Category, dispute.ClaimedAmount,
		dispute.Writeup, dispute.Evidence, dispute.Status).Scan(&dispute.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s window already consumed", domain.ErrWindowClosed, dispute.OpenedBy)
		}
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	committed = true
	if dispute.OpenedBy == domain.PartyHost {
		booking.HostDisputeID = dispute.ID
	} else {
		booking.GuestDisputeID = dispute.ID
	}
	return nil
}

func (r *PGDisputeRepository) Get(ctx context.Context, id string) (*domain.Dispute, error) {
	d, err := scanDispute(r.db.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id=$1`, id))
	if err != nil {
		return nil, fmt.Errorf("dispute %s: %w", id, classify(err))
	}
	return d, nil
}

func (r *PGDisputeRepository) ListByBooking(ctx context.Context, bookingID string) ([]domain.Dispute, error) {
	rows, err := r.db.Query(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE booking_id=$1 ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *d)
	}
	return out, classify(rows.Err())
}

func (r *PGDisputeRepository) Resolve(ctx context.Context, dispute *domain.Dispute) error {
	tag, err := r.db.Exec(ctx, `UPDATE disputes SET status=$2, outcome=$3, adjustment_amount=$4, resolved_by=$5, resolved_at=$6
		WHERE id=$1 AND status=$7`,
		dispute.ID, domain.DisputeStatusResolved, dispute.Outcome, dispute.AdjustmentAmount,
		dispute.ResolvedBy, dispute.ResolvedAt, domain.DisputeStatusOpen)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: dispute %s is not open", domain.ErrInvalidTransition, dispute.ID)
	}
	dispute.Status = domain.DisputeStatusResolved
	return nil
}

func scanDispute(row pgx.Row) (*domain.Dispute, error) {
	var (
		d                   domain.Dispute
		outcome, resolvedBy *string
	)
	if err := row.Scan(&d.ID, &d.BookingID, &d.OpenedBy, &d.ActorID, &d.Category, &d.ClaimedAmount, &d.Writeup,
		&d.Evidence, &d.Status, &outcome, &d.AdjustmentAmount, &resolvedBy, &d.CreatedAt, &d.ResolvedAt); err != nil {
		return nil, err
	}
	d.Outcome = domain.Outcome(deref(outcome))
	d.ResolvedBy = deref(resolvedBy)
	return &d, nil
}

var _ DisputeRepository = (*PGDisputeRepository)(nil)
