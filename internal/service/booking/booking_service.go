package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/Domenick1991/shortlet/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, actor domain.Actor, input CreateBookingInput) (*domain.Booking, error)
	GetBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	Activate(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	ActivateDue(ctx context.Context) (ActivationReport, error)
	CheckIn(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	CheckOut(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	Cancel(ctx context.Context, actor domain.Actor, id string) (*Cancellation, error)
	Windows(ctx context.Context, actor domain.Actor, id string) (domain.Windows, error)
}

type Notifier interface {
	Notify(ctx context.Context, event domain.LifecycleEvent)
}

type Auditor interface {
	Record(ctx context.Context, actorID, action, entityType, entityID string, before, after any)
}

type BookingService struct {
	bookings     repository.BookingRepository
	calendar     domain.Calendar
	windows      domain.WindowPolicy
	cancellation CancellationPolicy
	notifier     Notifier
	auditor      Auditor
	log          *zap.Logger
	now          func() time.Time
}

type CreateBookingInput struct {
	GuestID      string       `json:"guest_id"`
	HostID       string       `json:"host_id"`
	PropertyID   string       `json:"property_id"`
	CheckInDate  domain.Date  `json:"check_in_date"`
	CheckOutDate domain.Date  `json:"check_out_date"`
	Quote        domain.Quote `json:"quote"`
	BlockedDates bool         `json:"blocked_dates"`
}

type BookingServiceOption func(*BookingService)

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func WithNotifier(n Notifier) BookingServiceOption {
	return func(s *BookingService) {
		s.notifier = n
	}
}

func WithAuditor(a Auditor) BookingServiceOption {
	return func(s *BookingService) {
		s.auditor = a
	}
}

func WithCancellationPolicy(p CancellationPolicy) BookingServiceOption {
	return func(s *BookingService) {
		s.cancellation = p
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	calendar domain.Calendar,
	windows domain.WindowPolicy,
	log *zap.Logger,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:     bookings,
		calendar:     calendar,
		windows:      windows,
		cancellation: LeadTimePolicy{FullRefundDays: 7, PartialRefundDays: 1},
		log:          log,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *BookingService) CreateBooking(ctx context.Context, actor domain.Actor, input CreateBookingInput) (*domain.Booking, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	switch {
	case actor.Role == domain.RoleAdmin:
	case input.BlockedDates && actor.Role == domain.RoleHost && actor.ID == input.HostID:
	case !input.BlockedDates && actor.Role == domain.RoleGuest && actor.ID == input.GuestID:
	default:
		return nil, fmt.Errorf("%w: %s %s cannot create this booking", domain.ErrForbidden, actor.Role, actor.ID)
	}

	booking := &domain.Booking{
		ID:           uuid.NewString(),
		GuestID:      input.GuestID,
		HostID:       input.HostID,
		PropertyID:   input.PropertyID,
		CheckInDate:  input.CheckInDate,
		CheckOutDate: input.CheckOutDate,
		Status:       domain.BookingStatusPending,
		StayStatus:   domain.StayStatusNone,
		Quote:        input.Quote,
		BlockedDates: input.BlockedDates,
	}
	if booking.BlockedDates {
		booking.Quote = domain.Quote{}
	}
	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, err
	}
	s.log.Info("booking created", zap.String("booking_id", booking.ID), zap.Bool("blocked_dates", booking.BlockedDates))
	s.audit(ctx, actor, "booking.create", nil, booking)
	return booking, nil
}

func validateInput(in CreateBookingInput) error {
	switch {
	case in.HostID == "":
		return fmt.Errorf("%w: host_id is required", domain.ErrValidation)
	case in.GuestID == "" && !in.BlockedDates:
		return fmt.Errorf("%w: guest_id is required", domain.ErrValidation)
	case in.CheckInDate.IsZero() || in.CheckOutDate.IsZero():
		return fmt.Errorf("%w: check-in and check-out dates are required", domain.ErrValidation)
	case !in.CheckOutDate.After(in.CheckInDate):
		return fmt.Errorf("%w: check-out must be after check-in", domain.ErrValidation)
	case in.Quote.RoomFee < 0 || in.Quote.CleaningFee < 0 || in.Quote.SecurityDeposit < 0:
		return fmt.Errorf("%w: fees must be non-negative", domain.ErrValidation)
	}
	return nil
}

func (s *BookingService) GetBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	b, err := s.bookings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canView(actor, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Activate starts the stay once its check-in day has been reached.
func (s *BookingService) Activate(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	today := s.today()
	return s.mutate(ctx, actor, id, "booking.activate", domain.EventBookingActivated, func(b *domain.Booking) error {
		if err := canManage(actor, b); err != nil {
			return err
		}
		return activate(b, today)
	})
}

func activate(b *domain.Booking, today domain.Date) error {
	if b.Status == domain.BookingStatusConfirmed && today.Before(b.CheckInDate) {
		return fmt.Errorf("%w: booking %s activates on %s", domain.ErrWindowClosed, b.ID, b.CheckInDate)
	}
	return b.Apply(domain.ActionActivate)
}

type ActivationReport struct {
	Activated int `json:"activated"`
	Errors    int `json:"errors"`
}

// ActivateDue activates every confirmed guest booking whose check-in day
// has arrived. A failing booking is logged and skipped.
func (s *BookingService) ActivateDue(ctx context.Context) (ActivationReport, error) {
	var report ActivationReport
	today := s.today()
	due, err := s.bookings.ListDueForActivation(ctx, today)
	if err != nil {
		return report, fmt.Errorf("list bookings due for activation: %w", err)
	}
	for _, b := range due {
		_, err := s.Activate(ctx, domain.SystemActor, b.ID)
		switch {
		case err == nil:
			report.Activated++
		case errors.Is(err, domain.ErrInvalidTransition):
			// cancelled or activated by someone else since the listing
		default:
			report.Errors++
			s.log.Error("activate booking", zap.String("booking_id", b.ID), zap.Error(err))
		}
	}
	return report, nil
}

// CheckIn records the guest's arrival. A guest may only check in on the
// check-in day; the host may do it on that day or later. A confirmed
// booking whose check-in day has come is activated on the way.
func (s *BookingService) CheckIn(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	today := s.today()
	return s.mutate(ctx, actor, id, "booking.check_in", domain.EventBookingCheckedIn, func(b *domain.Booking) error {
		if b.BlockedDates {
			return fmt.Errorf("%w: booking %s blocks dates and has no stay", domain.ErrInvalidTransition, b.ID)
		}
		if _, err := b.PartyOf(actor); err != nil {
			return err
		}
		awaiting := b.StayStatus == domain.StayStatusNone &&
			(b.Status == domain.BookingStatusConfirmed || b.Status == domain.BookingStatusActive)
		if awaiting {
			if err := domain.CheckInAllowed(actor.Role, b.CheckInDate, today); err != nil {
				return err
			}
		}
		if b.Status == domain.BookingStatusConfirmed && !today.Before(b.CheckInDate) {
			if err := b.Apply(domain.ActionActivate); err != nil {
				return err
			}
		}
		if _, err := domain.Transition(b.State(), domain.ActionCheckIn); err != nil {
			return err
		}
		if err := b.Apply(domain.ActionCheckIn); err != nil {
			return err
		}
		b.CheckedInOn = &today
		return nil
	})
}

// CheckOut is a guest action and only follows a check-in.
func (s *BookingService) CheckOut(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	today := s.today()
	return s.mutate(ctx, actor, id, "booking.check_out", domain.EventBookingCheckedOut, func(b *domain.Booking) error {
		if b.BlockedDates {
			return fmt.Errorf("%w: booking %s blocks dates and has no stay", domain.ErrInvalidTransition, b.ID)
		}
		party, err := b.PartyOf(actor)
		if err != nil {
			return err
		}
		if party != domain.PartyGuest {
			return fmt.Errorf("%w: only the guest checks out", domain.ErrForbidden)
		}
		if err := b.Apply(domain.ActionCheckOut); err != nil {
			return err
		}
		b.CheckedOutOn = &today
		return nil
	})
}

type Cancellation struct {
	Booking *domain.Booking `json:"booking"`
	Refund  domain.Money    `json:"refund"`
}

// Cancel ends a booking before its stay starts. The refund is computed
// from the frozen snapshot only.
func (s *BookingService) Cancel(ctx context.Context, actor domain.Actor, id string) (*Cancellation, error) {
	today := s.today()
	var refund domain.Money
	before, after, err := repository.MutateBooking(ctx, s.bookings, id, 2, func(b *domain.Booking) error {
		if err := canCancel(actor, b); err != nil {
			return err
		}
		if err := b.Apply(domain.ActionCancel); err != nil {
			return err
		}
		refund = s.cancellation.Refund(b.Snapshot, today.DaysUntil(b.CheckInDate))
		at := s.now()
		b.CancelledAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking cancelled", zap.String("booking_id", id), zap.Int64("refund", int64(refund)))
	s.audit(ctx, actor, "booking.cancel", before, Cancellation{Booking: after, Refund: refund})
	if s.notifier != nil {
		event := domain.BookingEvent(domain.EventBookingCancelled, after, s.now())
		event.Amount = refund
		s.notifier.Notify(ctx, event)
	}
	return &Cancellation{Booking: after, Refund: refund}, nil
}

// Windows returns both dispute windows as of today.
func (s *BookingService) Windows(ctx context.Context, actor domain.Actor, id string) (domain.Windows, error) {
	b, err := s.GetBooking(ctx, actor, id)
	if err != nil {
		return domain.Windows{}, err
	}
	return domain.ComputeWindows(b, s.today(), s.windows), nil
}

func (s *BookingService) mutate(ctx context.Context, actor domain.Actor, id, action string, event domain.LifecycleEventType, fn func(*domain.Booking) error) (*domain.Booking, error) {
	before, after, err := repository.MutateBooking(ctx, s.bookings, id, 2, fn)
	if err != nil {
		return nil, err
	}
	s.log.Info(action,
		zap.String("booking_id", after.ID),
		zap.String("status", string(after.Status)),
		zap.String("stay_status", string(after.StayStatus)),
		zap.String("actor_id", actor.ID))
	s.audit(ctx, actor, action, before, after)
	if s.notifier != nil {
		s.notifier.Notify(ctx, domain.BookingEvent(event, after, s.now()))
	}
	return after, nil
}

func (s *BookingService) audit(ctx context.Context, actor domain.Actor, action string, before *domain.Booking, after any) {
	if s.auditor == nil {
		return
	}
	var id string
	switch v := after.(type) {
	case *domain.Booking:
		id = v.ID
	case Cancellation:
		id = v.Booking.ID
	}
	var prev any
	if before != nil {
		prev = before
	}
	s.auditor.Record(ctx, actor.ID, action, "booking", id, prev, after)
}

func (s *BookingService) today() domain.Date {
	return s.calendar.Today(s.now())
}

func canView(actor domain.Actor, b *domain.Booking) error {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleSystem:
		return nil
	}
	_, err := b.PartyOf(actor)
	return err
}

func canManage(actor domain.Actor, b *domain.Booking) error {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleSystem:
		return nil
	case domain.RoleHost:
		if actor.ID == b.HostID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s cannot manage booking %s", domain.ErrForbidden, actor.Role, actor.ID, b.ID)
}

func canCancel(actor domain.Actor, b *domain.Booking) error {
	if err := canManage(actor, b); err == nil {
		return nil
	}
	if actor.Role == domain.RoleGuest && actor.ID == b.GuestID {
		return nil
	}
	return fmt.Errorf("%w: %s %s cannot cancel booking %s", domain.ErrForbidden, actor.Role, actor.ID, b.ID)
}

var _ BookingUseCase = (*BookingService)(nil)
