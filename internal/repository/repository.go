package repository

import (
	"context"
	"time"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the part of *pgxpool.Pool the Postgres repositories use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Every booking mutation is conditional on the version the caller read.
// Implementations bump Version on success and return ErrVersionConflict when
// the stored row has moved on.

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	Get(ctx context.Context, id string) (*domain.Booking, error)
	Update(ctx context.Context, booking *domain.Booking) error
	ListSettlementEligible(ctx context.Context) ([]domain.Booking, error)
	ListDueForActivation(ctx context.Context, today domain.Date) ([]domain.Booking, error)
}

type DisputeRepository interface {
	// File stores the dispute id on the booking's window and inserts the
	// dispute in one step. It fails with ErrWindowClosed when the window is
	// already consumed or a release it guards exists.
	File(ctx context.Context, booking *domain.Booking, dispute *domain.Dispute) error
	Get(ctx context.Context, id string) (*domain.Dispute, error)
	ListByBooking(ctx context.Context, bookingID string) ([]domain.Dispute, error)
	// Resolve records the outcome of an OPEN dispute.
	Resolve(ctx context.Context, dispute *domain.Dispute) error
}

type ReleaseRepository interface {
	// Create inserts a RELEASED event keyed by (booking, event type). created
	// is false when the event already exists.
	Create(ctx context.Context, booking *domain.Booking, event *domain.ReleaseEvent) (created bool, err error)
	ListByBooking(ctx context.Context, bookingID string) ([]domain.ReleaseEvent, error)
	ListAvailable(ctx context.Context, hostID string) ([]domain.ReleaseEvent, error)
}

type PayoutRepository interface {
	UpsertAccount(ctx context.Context, account *domain.PayoutAccount) error
	GetAccount(ctx context.Context, hostID string) (*domain.PayoutAccount, error)
	// CreateWithClaims serializes on the host, allocates payout.Amount from
	// available release events and inserts the PENDING request.
	CreateWithClaims(ctx context.Context, payout *domain.PayoutRequest) error
	Get(ctx context.Context, id string) (*domain.PayoutRequest, error)
	ListByStatus(ctx context.Context, status domain.PayoutStatus, limit int) ([]domain.PayoutRequest, error)
	// ApplyResult moves the payout to result.Status. A FAILED result returns
	// the payout's claims to the available pool.
	ApplyResult(ctx context.Context, id string, result domain.GatewayResult, at time.Time) (payout *domain.PayoutRequest, changed bool, err error)
}

type FinanceConfigRepository interface {
	Active(ctx context.Context) (*domain.FinanceConfig, error)
	// Publish stores cfg as the next version and makes it active.
	Publish(ctx context.Context, cfg *domain.FinanceConfig) error
}

type AuditRepository interface {
	Insert(ctx context.Context, entry *domain.AuditEntry) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error)
}
