package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/jackc/pgx/v5"
)

const payoutColumns = `id, host_id, amount, currency, status, reference, failure_reason,
	created_at, updated_at, processing_at, completed_at, failed_at`

type PGPayoutRepository struct {
	db DB
}

func NewPayoutRepository(db DB) PayoutRepository {
	return &PGPayoutRepository{db: db}
}

func (r *PGPayoutRepository) UpsertAccount(ctx context.Context, account *domain.PayoutAccount) error {
	err := r.db.QueryRow(ctx, `INSERT INTO payout_accounts (host_id, provider, destination)
		VALUES ($1, $2, $3)
		ON CONFLICT (host_id) DO UPDATE SET provider=EXCLUDED.provider, destination=EXCLUDED.destination
		RETURNING created_at`, account.HostID, account.Provider, account.Destination).Scan(&account.CreatedAt)
	return classify(err)
}

func (r *PGPayoutRepository) GetAccount(ctx context.Context, hostID string) (*domain.PayoutAccount, error) {
	var a domain.PayoutAccount
	err := r.db.QueryRow(ctx, `SELECT host_id, provider, destination, created_at FROM payout_accounts WHERE host_id=$1`, hostID).
		Scan(&a.HostID, &a.Provider, &a.Destination, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("payout account %s: %w", hostID, classify(err))
	}
	return &a, nil
}

// CreateWithClaims holds the host's account row for the whole allocation so
// concurrent requests for one host run one after another.
func (r *PGPayoutRepository) CreateWithClaims(ctx context.Context, payout *domain.PayoutRequest) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	var locked string
	if err := tx.QueryRow(ctx, `SELECT host_id FROM payout_accounts WHERE host_id=$1 FOR UPDATE`, payout.HostID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: host %s", domain.ErrPayoutAccountMissing, payout.HostID)
		}
		return classify(err)
	}

	rows, err := tx.Query(ctx, `SELECT `+releaseColumns+` FROM release_events
		WHERE host_id=$1 AND status=$2 AND event_type <> $3 AND claimed_amount < amount
		ORDER BY release_date, created_at
		FOR UPDATE`,
		payout.HostID, domain.ReleaseStatusReleased, domain.RefundSecurityDeposit)
	if err != nil {
		return classify(err)
	}
	available, err := collectReleases(rows)
	if err != nil {
		return err
	}
	claims, err := domain.AllocateClaims(available, payout.Amount)
	if err != nil {
		return err
	}

	if err := tx.QueryRow(ctx, `INSERT INTO payout_requests (id, host_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`,
		payout.ID, payout.HostID, payout.Amount, payout.Currency, domain.PayoutStatusPending).
		Scan(&payout.CreatedAt, &payout.UpdatedAt); err != nil {
		return classify(err)
	}

	batch := &pgx.Batch{}
	for _, c := range claims {
		batch.Queue(`UPDATE release_events SET claimed_amount = claimed_amount + $2 WHERE id=$1`, c.ReleaseEventID, c.Amount)
		batch.Queue(`INSERT INTO payout_claims (payout_id, release_event_id, amount) VALUES ($1, $2, $3)`, payout.ID, c.ReleaseEventID, c.Amount)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	payout.Status = domain.PayoutStatusPending
	payout.Claims = claims
	return nil
}

func (r *PGPayoutRepository) Get(ctx context.Context, id string) (*domain.PayoutRequest, error) {
	p, err := scanPayout(r.db.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE id=$1`, id))
	if err != nil {
		return nil, fmt.Errorf("payout %s: %w", id, classify(err))
	}
	if p.Claims, err = loadClaims(ctx, r.db, id); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PGPayoutRepository) ListByStatus(ctx context.Context, status domain.PayoutStatus, limit int) ([]domain.PayoutRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE status=$1 ORDER BY created_at LIMIT $2`, status, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.PayoutRequest
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *p)
	}
	return out, classify(rows.Err())
}

func (r *PGPayoutRepository) ApplyResult(ctx context.Context, id string, result domain.GatewayResult, at time.Time) (*domain.PayoutRequest, bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, classify(err)
	}
	defer tx.Rollback(ctx)

	p, err := scanPayout(tx.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, false, fmt.Errorf("payout %s: %w", id, classify(err))
	}
	if p.Claims, err = loadClaims(ctx, tx, id); err != nil {
		return nil, false, err
	}
	noop, err := domain.PayoutTransition(p.Status, result.Status)
	if err != nil {
		return nil, false, err
	}
	if noop {
		return p, false, nil
	}

	p.Stamp(result.Status, at)
	if result.Reference != "" {
		p.Reference = result.Reference
	}
	if result.Status == domain.PayoutStatusFailed {
		p.FailureReason = result.Reason
	}
	if _, err := tx.Exec(ctx, `UPDATE payout_requests SET status=$2, reference=$3, failure_reason=$4, updated_at=$5,
			processing_at=$6, completed_at=$7, failed_at=$8
		WHERE id=$1`,
		p.ID, p.Status, p.Reference, p.FailureReason, p.UpdatedAt, p.ProcessingAt, p.CompletedAt, p.FailedAt); err != nil {
		return nil, false, classify(err)
	}
	if result.Status == domain.PayoutStatusFailed {
		for _, c := range p.Claims {
			if _, err := tx.Exec(ctx, `UPDATE release_events SET claimed_amount = claimed_amount - $2 WHERE id=$1`,
				c.ReleaseEventID, c.Amount); err != nil {
				return nil, false, classify(err)
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, classify(err)
	}
	return p, true, nil
}

type rowsQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadClaims(ctx context.Context, q rowsQuerier, payoutID string) ([]domain.PayoutClaim, error) {
	rows, err := q.Query(ctx, `SELECT release_event_id, amount FROM payout_claims WHERE payout_id=$1 ORDER BY release_event_id`, payoutID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.PayoutClaim
	for rows.Next() {
		var c domain.PayoutClaim
		if err := rows.Scan(&c.ReleaseEventID, &c.Amount); err != nil {
			return nil, classify(err)
		}
		out = append(out, c)
	}
	return out, classify(rows.Err())
}

func scanPayout(row pgx.Row) (*domain.PayoutRequest, error) {
	var p domain.PayoutRequest
	if err := row.Scan(&p.ID, &p.HostID, &p.Amount, &p.Currency, &p.Status, &p.Reference, &p.FailureReason,
		&p.CreatedAt, &p.UpdatedAt, &p.ProcessingAt, &p.CompletedAt, &p.FailedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

var _ PayoutRepository = (*PGPayoutRepository)(nil)
