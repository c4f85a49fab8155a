package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/Domenick1991/shortlet/internal/repository"
	"go.uber.org/zap"
)

type FinanceUseCase interface {
	ConfirmBooking(ctx context.Context, actor domain.Actor, bookingID string, cfg domain.FinanceConfig) (*domain.Booking, error)
}

type Notifier interface {
	Notify(ctx context.Context, event domain.LifecycleEvent)
}

type Auditor interface {
	Record(ctx context.Context, actorID, action, entityType, entityID string, before, after any)
}

// SnapshotService freezes the active finance configuration onto bookings.
type SnapshotService struct {
	bookings repository.BookingRepository
	notifier Notifier
	auditor  Auditor
	log      *zap.Logger
	now      func() time.Time
}

type SnapshotServiceOption func(*SnapshotService)

func WithClock(now func() time.Time) SnapshotServiceOption {
	return func(s *SnapshotService) {
		s.now = now
	}
}

func WithNotifier(n Notifier) SnapshotServiceOption {
	return func(s *SnapshotService) {
		s.notifier = n
	}
}

func WithAuditor(a Auditor) SnapshotServiceOption {
	return func(s *SnapshotService) {
		s.auditor = a
	}
}

func NewSnapshotService(bookings repository.BookingRepository, log *zap.Logger, opts ...SnapshotServiceOption) *SnapshotService {
	s := &SnapshotService{bookings: bookings, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConfirmBooking moves a PENDING booking to CONFIRMED and writes its
// financial snapshot from cfg. cfg is read once; later config changes
// never reach the snapshot.
func (s *SnapshotService) ConfirmBooking(ctx context.Context, actor domain.Actor, bookingID string, cfg domain.FinanceConfig) (*domain.Booking, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	before, after, err := repository.MutateBooking(ctx, s.bookings, bookingID, 2, func(b *domain.Booking) error {
		if err := canConfirm(actor, b); err != nil {
			return err
		}
		if err := b.Apply(domain.ActionConfirm); err != nil {
			return err
		}
		now := s.now()
		quote := b.Quote
		if b.BlockedDates {
			quote = domain.Quote{}
		}
		snap, err := domain.NewSnapshot(quote, cfg, now)
		if err != nil {
			return err
		}
		b.Snapshot = &snap
		b.ConfirmedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking confirmed",
		zap.String("booking_id", after.ID),
		zap.Int64("config_version", after.Snapshot.ConfigVersion),
		zap.Int64("host_share", int64(after.Snapshot.HostShareAmount())))
	if s.auditor != nil {
		s.auditor.Record(ctx, actor.ID, "booking.confirm", "booking", after.ID, before, after)
	}
	if s.notifier != nil {
		event := domain.BookingEvent(domain.EventBookingConfirmed, after, s.now())
		event.Amount = after.Snapshot.TotalCharged
		s.notifier.Notify(ctx, event)
	}
	return after, nil
}

// Confirmation follows payment, so the guest cannot confirm their own
// booking; the host, an admin or the payment system can.
func canConfirm(actor domain.Actor, b *domain.Booking) error {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleSystem:
		return nil
	case domain.RoleHost:
		if actor.ID == b.HostID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s cannot confirm booking %s", domain.ErrForbidden, actor.Role, actor.ID, b.ID)
}

var _ FinanceUseCase = (*SnapshotService)(nil)
