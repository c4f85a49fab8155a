package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/Domenick1991/shortlet/internal/repository"
	"github.com/Domenick1991/shortlet/internal/retry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SettlementUseCase interface {
	RunSettlementPass(ctx context.Context) (Report, error)
}

type Notifier interface {
	Notify(ctx context.Context, event domain.LifecycleEvent)
}

// Report summarizes one settlement pass.
type Report struct {
	Processed int              `json:"processed"`
	Released  int              `json:"released"`
	Completed int              `json:"completed"`
	Errors    int              `json:"errors"`
	Failures  []BookingFailure `json:"failures,omitempty"`
}

type BookingFailure struct {
	BookingID string `json:"booking_id"`
	Error     string `json:"error"`
}

type Options struct {
	Calendar      domain.Calendar
	Windows       domain.WindowPolicy
	DelayDays     int
	Retry         retry.Policy
	ConflictLimit int
}

type SettlementService struct {
	bookings repository.BookingRepository
	disputes repository.DisputeRepository
	releases repository.ReleaseRepository
	opts     Options
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

type SettlementServiceOption func(*SettlementService)

func WithClock(now func() time.Time) SettlementServiceOption {
	return func(s *SettlementService) {
		s.now = now
	}
}

func WithNotifier(n Notifier) SettlementServiceOption {
	return func(s *SettlementService) {
		s.notifier = n
	}
}

func NewSettlementService(
	bookings repository.BookingRepository,
	disputes repository.DisputeRepository,
	releases repository.ReleaseRepository,
	opts Options,
	log *zap.Logger,
	options ...SettlementServiceOption,
) *SettlementService {
	if opts.ConflictLimit <= 0 {
		opts.ConflictLimit = 1
	}
	s := &SettlementService{
		bookings: bookings,
		disputes: disputes,
		releases: releases,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// outcome accumulates what settling one booking did across retries.
type outcome struct {
	released  int
	completed bool
}

// RunSettlementPass releases every escrowed amount that is due and
// completes fully settled bookings. A failing booking is logged and
// counted without stopping the pass. The returned error is set only when
// the pass could not run at all. Running it again is always safe.
func (s *SettlementService) RunSettlementPass(ctx context.Context) (Report, error) {
	var report Report
	started := s.now()

	var eligible []domain.Booking
	err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
		var err error
		eligible, err = s.bookings.ListSettlementEligible(ctx)
		return err
	})
	if err != nil {
		return report, fmt.Errorf("list settlement-eligible bookings: %w", err)
	}

	for i := range eligible {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		b := eligible[i]
		report.Processed++

		var out outcome
		err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
			return s.settle(ctx, &b, &out)
		})
		report.Released += out.released
		if out.completed {
			report.Completed++
		}
		if err != nil {
			report.Errors++
			report.Failures = append(report.Failures, BookingFailure{BookingID: b.ID, Error: err.Error()})
			s.log.Error("settle booking", zap.String("booking_id", b.ID), zap.Error(err))
		}
	}

	s.log.Info("settlement pass finished",
		zap.Int("processed", report.Processed),
		zap.Int("released", report.Released),
		zap.Int("completed", report.Completed),
		zap.Int("errors", report.Errors),
		zap.Duration("took", s.now().Sub(started)))
	return report, nil
}

// settle re-reads the booking after losing a race with a concurrent
// check-out or dispute, up to the configured number of times.
func (s *SettlementService) settle(ctx context.Context, listed *domain.Booking, out *outcome) error {
	b := listed
	for attempt := 0; ; attempt++ {
		err := s.settleOnce(ctx, b, out)
		if !errors.Is(err, domain.ErrVersionConflict) || attempt >= s.opts.ConflictLimit {
			return err
		}
		s.log.Debug("booking changed during settlement, re-reading", zap.String("booking_id", listed.ID))
		fresh, err := s.bookings.Get(ctx, listed.ID)
		if err != nil {
			return err
		}
		b = fresh
	}
}

func (s *SettlementService) settleOnce(ctx context.Context, b *domain.Booking, out *outcome) error {
	if !b.SettlementEligible() {
		return nil
	}
	disputes, err := s.disputes.ListByBooking(ctx, b.ID)
	if err != nil {
		return err
	}
	existing, err := s.releases.ListByBooking(ctx, b.ID)
	if err != nil {
		return err
	}
	released := make(map[domain.ReleaseEventType]bool, len(existing))
	for _, e := range existing {
		released[e.EventType] = true
	}

	now := s.now()
	p := planReleases(b, disputes, s.opts.Calendar, s.opts.Windows, s.opts.DelayDays, now)
	pending := 0
	for _, item := range p.items {
		if released[item.eventType] {
			continue
		}
		if !item.ready(now) {
			pending++
			continue
		}
		event := &domain.ReleaseEvent{
			ID:          uuid.NewString(),
			BookingID:   b.ID,
			HostID:      b.HostID,
			EventType:   item.eventType,
			Amount:      item.amount,
			ReleaseDate: item.at,
			Status:      domain.ReleaseStatusReleased,
		}
		created, err := s.releases.Create(ctx, b, event)
		switch {
		case errors.Is(err, domain.ErrDuplicateRelease):
			s.log.Warn("duplicate release ignored", zap.String("booking_id", b.ID), zap.String("event_type", string(item.eventType)))
		case err != nil:
			return err
		case created:
			out.released++
			s.released(ctx, b, event)
		}
		released[item.eventType] = true
	}

	if pending > 0 || !p.settled {
		return nil
	}
	next := *b
	if err := next.Apply(domain.ActionComplete); err != nil {
		return err
	}
	next.CompletedAt = &now
	if err := s.bookings.Update(ctx, &next); err != nil {
		return err
	}
	*b = next
	out.completed = true
	s.log.Info("booking completed", zap.String("booking_id", b.ID))
	if s.notifier != nil {
		s.notifier.Notify(ctx, domain.BookingEvent(domain.EventBookingCompleted, b, now))
	}
	return nil
}

func (s *SettlementService) released(ctx context.Context, b *domain.Booking, e *domain.ReleaseEvent) {
	s.log.Info("release created",
		zap.String("booking_id", b.ID),
		zap.String("event_type", string(e.EventType)),
		zap.Int64("amount", int64(e.Amount)))
	if s.notifier != nil {
		event := domain.BookingEvent(domain.EventReleaseCreated, b, s.now())
		event.Amount = e.Amount
		event.Attributes = map[string]string{"event_type": string(e.EventType)}
		s.notifier.Notify(ctx, event)
	}
}

var _ SettlementUseCase = (*SettlementService)(nil)
