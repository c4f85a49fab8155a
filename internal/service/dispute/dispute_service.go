package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/Domenick1991/shortlet/internal/media"
	"github.com/Domenick1991/shortlet/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DisputeUseCase interface {
	OpenDispute(ctx context.Context, actor domain.Actor, input OpenDisputeInput) (*domain.Dispute, error)
	ResolveDispute(ctx context.Context, actor domain.Actor, disputeID string, res domain.Resolution) (*domain.Dispute, error)
	ListDisputes(ctx context.Context, actor domain.Actor, bookingID string) ([]domain.Dispute, error)
	UploadEvidence(ctx context.Context, actor domain.Actor, bookingID string, files []media.File) (*EvidenceUpload, error)
}

type EvidenceStore interface {
	Upload(ctx context.Context, bookingID string, files []media.File) ([]domain.EvidenceRef, []media.Failure)
}

type Notifier interface {
	Notify(ctx context.Context, event domain.LifecycleEvent)
}

type Auditor interface {
	Record(ctx context.Context, actorID, action, entityType, entityID string, before, after any)
}

type DisputeService struct {
	bookings repository.BookingRepository
	disputes repository.DisputeRepository
	calendar domain.Calendar
	windows  domain.WindowPolicy
	evidence EvidenceStore
	notifier Notifier
	auditor  Auditor
	log      *zap.Logger
	now      func() time.Time
}

type OpenDisputeInput struct {
	BookingID     string                 `json:"booking_id"`
	Category      domain.DisputeCategory `json:"category"`
	Writeup       string                 `json:"writeup"`
	Evidence      []domain.EvidenceRef   `json:"evidence"`
	ClaimedAmount domain.Money           `json:"claimed_amount"`
}

type EvidenceUpload struct {
	Evidence []domain.EvidenceRef `json:"evidence"`
	Failures []media.Failure      `json:"failures,omitempty"`
}

type DisputeServiceOption func(*DisputeService)

func WithClock(now func() time.Time) DisputeServiceOption {
	return func(s *DisputeService) {
		s.now = now
	}
}

func WithEvidenceStore(store EvidenceStore) DisputeServiceOption {
	return func(s *DisputeService) {
		s.evidence = store
	}
}

func WithNotifier(n Notifier) DisputeServiceOption {
	return func(s *DisputeService) {
		s.notifier = n
	}
}

func WithAuditor(a Auditor) DisputeServiceOption {
	return func(s *DisputeService) {
		s.auditor = a
	}
}

func NewDisputeService(
	bookings repository.BookingRepository,
	disputes repository.DisputeRepository,
	calendar domain.Calendar,
	windows domain.WindowPolicy,
	log *zap.Logger,
	opts ...DisputeServiceOption,
) *DisputeService {
	s := &DisputeService{
		bookings: bookings,
		disputes: disputes,
		calendar: calendar,
		windows:  windows,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenDispute files a dispute in the actor's window. Checks run in a fixed
// order: window open, writeup length, evidence present, then the host's
// claimed amount. A lost race against a concurrent update is retried once
// with a fresh read.
func (s *DisputeService) OpenDispute(ctx context.Context, actor domain.Actor, input OpenDisputeInput) (*domain.Dispute, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		b, err := s.bookings.Get(ctx, input.BookingID)
		if err != nil {
			return nil, err
		}
		d, err := s.prepare(b, actor, input)
		if err != nil {
			return nil, err
		}
		err = s.disputes.File(ctx, b, d)
		if err == nil {
			s.opened(ctx, actor, b, d)
			return d, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *DisputeService) prepare(b *domain.Booking, actor domain.Actor, input OpenDisputeInput) (*domain.Dispute, error) {
	if b.BlockedDates {
		return nil, fmt.Errorf("%w: booking %s blocks dates and has no stay", domain.ErrInvalidTransition, b.ID)
	}
	party, err := b.PartyOf(actor)
	if err != nil {
		return nil, err
	}

	window := domain.ComputeWindows(b, s.calendar.Today(s.now()), s.windows).For(party)
	if window.State != domain.WindowOpen {
		return nil, fmt.Errorf("%w: %s dispute window is %s", domain.ErrWindowClosed, party, window.State)
	}
	if err := domain.ValidateWriteup(input.Writeup); err != nil {
		return nil, err
	}
	evidence := domain.ValidEvidence(input.Evidence)
	if len(evidence) == 0 {
		return nil, fmt.Errorf("%w: at least one uploaded file is required", domain.ErrEvidenceRequired)
	}

	claimed := domain.Money(0)
	if party == domain.PartyHost {
		var deposit domain.Money
		if b.Snapshot != nil {
			deposit = b.Snapshot.SecurityDeposit
		}
		if input.ClaimedAmount <= 0 || input.ClaimedAmount > deposit {
			return nil, fmt.Errorf("%w: claimed amount %d must be in (0, %d]", domain.ErrValidation, input.ClaimedAmount, deposit)
		}
		claimed = input.ClaimedAmount
	}
	if p, ok := input.Category.PartyOf(); !ok || p != party {
		return nil, fmt.Errorf("%w: category %q is not available to %s", domain.ErrValidation, input.Category, party)
	}

	return &domain.Dispute{
		ID:            uuid.NewString(),
		BookingID:     b.ID,
		OpenedBy:      party,
		ActorID:       actor.ID,
		Category:      input.Category,
		ClaimedAmount: claimed,
		Writeup:       input.Writeup,
		Evidence:      evidence,
		Status:        domain.DisputeStatusOpen,
	}, nil
}

func (s *DisputeService) opened(ctx context.Context, actor domain.Actor, b *domain.Booking, d *domain.Dispute) {
	s.log.Info("dispute opened",
		zap.String("booking_id", b.ID),
		zap.String("dispute_id", d.ID),
		zap.String("party", string(d.OpenedBy)),
		zap.String("category", string(d.Category)))
	if s.auditor != nil {
		s.auditor.Record(ctx, actor.ID, "dispute.open", "dispute", d.ID, nil, d)
	}
	if s.notifier != nil {
		event := domain.BookingEvent(domain.EventDisputeOpened, b, s.now())
		event.Amount = d.ClaimedAmount
		event.Attributes = map[string]string{"category": string(d.Category), "party": string(d.OpenedBy)}
		s.notifier.Notify(ctx, event)
	}
}

// ResolveDispute applies an adjudication decision. The award is capped by
// the category ceiling computed from the frozen snapshot.
func (s *DisputeService) ResolveDispute(ctx context.Context, actor domain.Actor, disputeID string, res domain.Resolution) (*domain.Dispute, error) {
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSystem {
		return nil, fmt.Errorf("%w: only adjudicators resolve disputes", domain.ErrForbidden)
	}
	d, err := s.disputes.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status != domain.DisputeStatusOpen {
		return nil, fmt.Errorf("%w: dispute %s is %s", domain.ErrInvalidTransition, d.ID, d.Status)
	}
	b, err := s.bookings.Get(ctx, d.BookingID)
	if err != nil {
		return nil, err
	}
	var snapshot domain.FinancialSnapshot
	if b.Snapshot != nil {
		snapshot = *b.Snapshot
	}
	amount, err := d.Award(res, snapshot)
	if err != nil {
		return nil, err
	}

	before := *d
	at := s.now()
	d.Outcome = res.Outcome
	d.AdjustmentAmount = amount
	d.ResolvedBy = actor.ID
	d.ResolvedAt = &at
	if err := s.disputes.Resolve(ctx, d); err != nil {
		return nil, err
	}

	s.log.Info("dispute resolved",
		zap.String("dispute_id", d.ID),
		zap.String("outcome", string(d.Outcome)),
		zap.Int64("adjustment", int64(amount)))
	if s.auditor != nil {
		s.auditor.Record(ctx, actor.ID, "dispute.resolve", "dispute", d.ID, before, d)
	}
	if s.notifier != nil {
		event := domain.BookingEvent(domain.EventDisputeResolved, b, at)
		event.Amount = amount
		event.Attributes = map[string]string{"outcome": string(d.Outcome), "party": string(d.OpenedBy)}
		s.notifier.Notify(ctx, event)
	}
	return d, nil
}

func (s *DisputeService) ListDisputes(ctx context.Context, actor domain.Actor, bookingID string) ([]domain.Dispute, error) {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin {
		if _, err := b.PartyOf(actor); err != nil {
			return nil, err
		}
	}
	return s.disputes.ListByBooking(ctx, bookingID)
}

// UploadEvidence stores files with the media collaborator ahead of
// OpenDispute. Files that failed to upload are reported, never returned
// as evidence.
func (s *DisputeService) UploadEvidence(ctx context.Context, actor domain.Actor, bookingID string, files []media.File) (*EvidenceUpload, error) {
	if s.evidence == nil {
		return nil, fmt.Errorf("%w: evidence storage is not configured", domain.ErrValidation)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files", domain.ErrEvidenceRequired)
	}
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if _, err := b.PartyOf(actor); err != nil {
		return nil, err
	}
	refs, failures := s.evidence.Upload(ctx, bookingID, files)
	return &EvidenceUpload{Evidence: refs, Failures: failures}, nil
}

var _ DisputeUseCase = (*DisputeService)(nil)
