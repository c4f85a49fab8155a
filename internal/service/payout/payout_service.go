package payout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/shortlet/internal/cache"
	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/Domenick1991/shortlet/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PayoutUseCase interface {
	RegisterAccount(ctx context.Context, actor domain.Actor, hostID, destination string) (*domain.PayoutAccount, error)
	Balance(ctx context.Context, actor domain.Actor, hostID string) (domain.Money, error)
	RequestPayout(ctx context.Context, actor domain.Actor, hostID string, amount domain.Money) (*domain.PayoutRequest, error)
	GetPayout(ctx context.Context, actor domain.Actor, id string) (*domain.PayoutRequest, error)
	DispatchPending(ctx context.Context) (DispatchReport, error)
	ApplyGatewayResult(ctx context.Context, payoutID string, result domain.GatewayResult) (*domain.PayoutRequest, error)
}

// Locker serializes payout requests of one host across processes.
type Locker interface {
	AcquirePayoutLock(ctx context.Context, hostID string, ttl time.Duration) (func(context.Context) error, error)
}

type Gateway interface {
	Submit(p *domain.PayoutRequest, account *domain.PayoutAccount) (domain.GatewayResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, event domain.LifecycleEvent)
}

type Auditor interface {
	Record(ctx context.Context, actorID, action, entityType, entityID string, before, after any)
}

type Options struct {
	Currency string
	LockTTL  time.Duration
	// Batch caps how many pending payouts one dispatch run submits.
	Batch int
}

type DispatchReport struct {
	Submitted int `json:"submitted"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
}

type PayoutService struct {
	payouts  repository.PayoutRepository
	releases repository.ReleaseRepository
	locker   Locker
	gateway  Gateway
	opts     Options
	notifier Notifier
	auditor  Auditor
	log      *zap.Logger
	now      func() time.Time
}

type PayoutServiceOption func(*PayoutService)

func WithClock(now func() time.Time) PayoutServiceOption {
	return func(s *PayoutService) {
		s.now = now
	}
}

func WithNotifier(n Notifier) PayoutServiceOption {
	return func(s *PayoutService) {
		s.notifier = n
	}
}

func WithAuditor(a Auditor) PayoutServiceOption {
	return func(s *PayoutService) {
		s.auditor = a
	}
}

func WithGateway(g Gateway) PayoutServiceOption {
	return func(s *PayoutService) {
		s.gateway = g
	}
}

func NewPayoutService(
	payouts repository.PayoutRepository,
	releases repository.ReleaseRepository,
	locker Locker,
	opts Options,
	log *zap.Logger,
	options ...PayoutServiceOption,
) *PayoutService {
	if opts.Currency == "" {
		opts.Currency = "NGN"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.Batch <= 0 {
		opts.Batch = 100
	}
	s := &PayoutService{
		payouts:  payouts,
		releases: releases,
		locker:   locker,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *PayoutService) RegisterAccount(ctx context.Context, actor domain.Actor, hostID, destination string) (*domain.PayoutAccount, error) {
	if err := canAccess(actor, hostID); err != nil {
		return nil, err
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, fmt.Errorf("%w: destination is required", domain.ErrValidation)
	}

	before, err := s.payouts.GetAccount(ctx, hostID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	account := &domain.PayoutAccount{HostID: hostID, Provider: "stripe", Destination: destination}
	if err := s.payouts.UpsertAccount(ctx, account); err != nil {
		return nil, err
	}
	s.log.Info("payout account registered", zap.String("host_id", hostID))
	s.audit(ctx, actor, "payout_account.register", "payout_account", hostID, before, account)
	return account, nil
}

// Balance is the host's released, unclaimed funds.
func (s *PayoutService) Balance(ctx context.Context, actor domain.Actor, hostID string) (domain.Money, error) {
	if err := canAccess(actor, hostID); err != nil {
		return 0, err
	}
	available, err := s.releases.ListAvailable(ctx, hostID)
	if err != nil {
		return 0, err
	}
	return domain.Balance(available), nil
}

// RequestPayout reserves amount from the host's released funds, oldest
// first, and records a PENDING payout. The redis lock keeps concurrent
// requests of one host from racing; the repository locks the host row as
// well, so a lost lock never allows an overdraw.
func (s *PayoutService) RequestPayout(ctx context.Context, actor domain.Actor, hostID string, amount domain.Money) (*domain.PayoutRequest, error) {
	if err := canAccess(actor, hostID); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: payout amount must be positive", domain.ErrValidation)
	}
	if _, err := s.payouts.GetAccount(ctx, hostID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: host %s", domain.ErrPayoutAccountMissing, hostID)
		}
		return nil, err
	}

	if s.locker != nil {
		unlock, err := s.locker.AcquirePayoutLock(ctx, hostID, s.opts.LockTTL)
		switch {
		case errors.Is(err, cache.ErrLockHeld):
			return nil, fmt.Errorf("%w: another payout request for host %s is in progress", domain.ErrVersionConflict, hostID)
		case err != nil:
			s.log.Warn("payout lock unavailable, relying on row lock", zap.String("host_id", hostID), zap.Error(err))
		default:
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					s.log.Warn("release payout lock", zap.String("host_id", hostID), zap.Error(err))
				}
			}()
		}
	}

	p := &domain.PayoutRequest{
		ID:       uuid.NewString(),
		HostID:   hostID,
		Amount:   amount,
		Currency: s.opts.Currency,
	}
	if err := s.payouts.CreateWithClaims(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info("payout requested",
		zap.String("payout_id", p.ID),
		zap.String("host_id", hostID),
		zap.Int64("amount", int64(amount)),
		zap.Int("claims", len(p.Claims)))
	s.audit(ctx, actor, "payout.request", "payout", p.ID, nil, p)
	s.notify(ctx, domain.EventPayoutRequested, p)
	return p, nil
}

func (s *PayoutService) GetPayout(ctx context.Context, actor domain.Actor, id string) (*domain.PayoutRequest, error) {
	p, err := s.payouts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canAccess(actor, p.HostID); err != nil {
		return nil, err
	}
	return p, nil
}

// DispatchPending submits PENDING payouts to the gateway. The payout id is
// the idempotency key, so a payout left PENDING by a crash is safe to send
// again on the next run.
func (s *PayoutService) DispatchPending(ctx context.Context) (DispatchReport, error) {
	var report DispatchReport
	if s.gateway == nil {
		return report, errors.New("payout gateway is not configured")
	}
	pending, err := s.payouts.ListByStatus(ctx, domain.PayoutStatusPending, s.opts.Batch)
	if err != nil {
		return report, fmt.Errorf("list pending payouts: %w", err)
	}

	for i := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		p := &pending[i]
		result, err := s.submit(ctx, p)
		if err != nil {
			report.Errors++
			s.log.Error("submit payout", zap.String("payout_id", p.ID), zap.Error(err))
			continue
		}
		if _, err := s.ApplyGatewayResult(ctx, p.ID, result); err != nil {
			report.Errors++
			s.log.Error("record gateway result", zap.String("payout_id", p.ID), zap.Error(err))
			continue
		}
		if result.Status == domain.PayoutStatusFailed {
			report.Failed++
		} else {
			report.Submitted++
		}
	}

	s.log.Info("payout dispatch finished",
		zap.Int("submitted", report.Submitted),
		zap.Int("failed", report.Failed),
		zap.Int("errors", report.Errors))
	return report, nil
}

func (s *PayoutService) submit(ctx context.Context, p *domain.PayoutRequest) (domain.GatewayResult, error) {
	account, err := s.payouts.GetAccount(ctx, p.HostID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.GatewayResult{Status: domain.PayoutStatusFailed, Reason: "payout account missing"}, nil
	}
	if err != nil {
		return domain.GatewayResult{}, err
	}
	return s.gateway.Submit(p, account)
}

// ApplyGatewayResult records a gateway status report. Reports that repeat
// the current state change nothing. A completion that overtakes the
// acceptance report moves the payout through PROCESSING first.
func (s *PayoutService) ApplyGatewayResult(ctx context.Context, payoutID string, result domain.GatewayResult) (*domain.PayoutRequest, error) {
	switch result.Status {
	case domain.PayoutStatusProcessing, domain.PayoutStatusCompleted, domain.PayoutStatusFailed:
	default:
		return nil, fmt.Errorf("%w: unsupported gateway status %q", domain.ErrValidation, result.Status)
	}

	if result.Status == domain.PayoutStatusCompleted {
		current, err := s.payouts.Get(ctx, payoutID)
		if err != nil {
			return nil, err
		}
		if current.Status == domain.PayoutStatusPending {
			accepted := domain.GatewayResult{Status: domain.PayoutStatusProcessing, Reference: result.Reference}
			if _, err := s.apply(ctx, payoutID, accepted); err != nil {
				return nil, err
			}
		}
	}
	return s.apply(ctx, payoutID, result)
}

func (s *PayoutService) apply(ctx context.Context, payoutID string, result domain.GatewayResult) (*domain.PayoutRequest, error) {
	p, changed, err := s.payouts.ApplyResult(ctx, payoutID, result, s.now())
	if err != nil {
		return nil, err
	}
	if !changed {
		s.log.Debug("gateway result already applied", zap.String("payout_id", payoutID), zap.String("status", string(result.Status)))
		return p, nil
	}

	s.log.Info("payout status changed",
		zap.String("payout_id", p.ID),
		zap.String("host_id", p.HostID),
		zap.String("status", string(p.Status)),
		zap.String("reference", p.Reference))
	s.audit(ctx, domain.SystemActor, "payout.status", "payout", p.ID, nil, p)
	switch p.Status {
	case domain.PayoutStatusCompleted:
		s.notify(ctx, domain.EventPayoutCompleted, p)
	case domain.PayoutStatusFailed:
		s.notify(ctx, domain.EventPayoutFailed, p)
	}
	return p, nil
}

func (s *PayoutService) notify(ctx context.Context, t domain.LifecycleEventType, p *domain.PayoutRequest) {
	if s.notifier == nil {
		return
	}
	event := domain.LifecycleEvent{
		Type:       t,
		HostID:     p.HostID,
		Amount:     p.Amount,
		OccurredAt: s.now(),
		Attributes: map[string]string{"payout_id": p.ID},
	}
	if p.FailureReason != "" {
		event.Attributes["reason"] = p.FailureReason
	}
	s.notifier.Notify(ctx, event)
}

func (s *PayoutService) audit(ctx context.Context, actor domain.Actor, action, entityType, entityID string, before, after any) {
	if s.auditor != nil {
		s.auditor.Record(ctx, actor.ID, action, entityType, entityID, before, after)
	}
}

func canAccess(actor domain.Actor, hostID string) error {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleSystem:
		return nil
	case domain.RoleHost:
		if actor.ID == hostID {
			return nil
		}
	}
	return fmt.Errorf("%w: payouts of host %s", domain.ErrForbidden, hostID)
}

var _ PayoutUseCase = (*PayoutService)(nil)
