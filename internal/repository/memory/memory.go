// Package memory is an in-process implementation of the repository
// interfaces. All repositories share one lock so cross-entity operations
// (dispute filing, release creation, payout allocation) are atomic exactly
// as they are in the Postgres implementation.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/Domenick1991/shortlet/internal/repository"
)

type store struct {
	mu       sync.Mutex
	now      func() time.Time
	bookings map[string]domain.Booking
	disputes map[string]domain.Dispute
	releases map[string]domain.ReleaseEvent
	accounts map[string]domain.PayoutAccount
	payouts  map[string]domain.PayoutRequest
	configs  []domain.FinanceConfig
	audit    []domain.AuditEntry
	// failures injects errors per operation name, consumed one at a time.
	failures map[string][]error
}

type Repositories struct {
	Bookings       *BookingRepository
	Disputes       *DisputeRepository
	Releases       *ReleaseRepository
	Payouts        *PayoutRepository
	FinanceConfigs *FinanceConfigRepository
	Audit          *AuditRepository

	s *store
}

func NewRepositories() *Repositories {
	s := &store{
		now:      time.Now,
		bookings: map[string]domain.Booking{},
		disputes: map[string]domain.Dispute{},
		releases: map[string]domain.ReleaseEvent{},
		accounts: map[string]domain.PayoutAccount{},
		payouts:  map[string]domain.PayoutRequest{},
		failures: map[string][]error{},
	}
	return &Repositories{
		Bookings:       &BookingRepository{s: s},
		Disputes:       &DisputeRepository{s: s},
		Releases:       &ReleaseRepository{s: s},
		Payouts:        &PayoutRepository{s: s},
		FinanceConfigs: &FinanceConfigRepository{s: s},
		Audit:          &AuditRepository{s: s},
		s:              s,
	}
}

// SetClock replaces the clock used for created/updated timestamps.
func (r *Repositories) SetClock(now func() time.Time) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.now = now
}

// FailNext makes the next call of op return err. Ops are named
// "<Repository>.<Method>", e.g. "Bookings.ListSettlementEligible".
func (r *Repositories) FailNext(op string, errs ...error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.failures[op] = append(r.s.failures[op], errs...)
}

// fail must be called with the lock held.
func (s *store) fail(op string) error {
	q := s.failures[op]
	if len(q) == 0 {
		return nil
	}
	s.failures[op] = q[1:]
	return q[0]
}

func versionConflict(b *domain.Booking, read int64) error {
	return fmt.Errorf("%w: booking %s changed since version %d", domain.ErrVersionConflict, b.ID, read)
}

type BookingRepository struct{ s *store }

func (r *BookingRepository) Create(_ context.Context, booking *domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Bookings.Create"); err != nil {
		return err
	}
	if _, ok := r.s.bookings[booking.ID]; ok {
		return fmt.Errorf("%w: booking %s already exists", domain.ErrValidation, booking.ID)
	}
	now := r.s.now()
	booking.Version = 1
	booking.CreatedAt, booking.UpdatedAt = now, now
	r.s.bookings[booking.ID] = cloneBooking(*booking)
	return nil
}

func (r *BookingRepository) Get(_ context.Context, id string) (*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Bookings.Get"); err != nil {
		return nil, err
	}
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
	}
	out := cloneBooking(b)
	return &out, nil
}

func (r *BookingRepository) Update(_ context.Context, booking *domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Bookings.Update"); err != nil {
		return err
	}
	stored, ok := r.s.bookings[booking.ID]
	if !ok {
		return fmt.Errorf("%w: booking %s", domain.ErrNotFound, booking.ID)
	}
	if stored.Version != booking.Version {
		return versionConflict(booking, booking.Version)
	}
	next := cloneBooking(*booking)
	if stored.Snapshot != nil {
		next.Snapshot = stored.Snapshot
	}
	// dispute ids are only written by DisputeRepository.File
	next.GuestDisputeID, next.HostDisputeID = stored.GuestDisputeID, stored.HostDisputeID
	next.Version = stored.Version + 1
	next.UpdatedAt = r.s.now()
	r.s.bookings[booking.ID] = next

	*booking = cloneBooking(next)
	return nil
}

func (r *BookingRepository) ListSettlementEligible(_ context.Context) ([]domain.Booking, error) {
	return r.list("Bookings.ListSettlementEligible", func(b domain.Booking) bool {
		return b.SettlementEligible()
	})
}

func (r *BookingRepository) ListDueForActivation(_ context.Context, today domain.Date) ([]domain.Booking, error) {
	return r.list("Bookings.ListDueForActivation", func(b domain.Booking) bool {
		return b.Status == domain.BookingStatusConfirmed && !b.BlockedDates && !b.CheckInDate.After(today)
	})
}

func (r *BookingRepository) list(op string, keep func(domain.Booking) bool) ([]domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(op); err != nil {
		return nil, err
	}
	var out []domain.Booking
	for _, b := range r.s.bookings {
		if keep(b) {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CheckInDate.Equal(out[j].CheckInDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].CheckInDate.Before(out[j].CheckInDate)
	})
	return out, nil
}

type DisputeRepository struct{ s *store }

func (r *DisputeRepository) File(_ context.Context, booking *domain.Booking, dispute *domain.Dispute) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Disputes.File"); err != nil {
		return err
	}
	stored, ok := r.s.bookings[booking.ID]
	if !ok {
		return fmt.Errorf("%w: booking %s", domain.ErrNotFound, booking.ID)
	}
	if stored.Version != booking.Version {
		return versionConflict(booking, booking.Version)
	}
	slot := &stored.GuestDisputeID
	if dispute.OpenedBy == domain.PartyHost {
		slot = &stored.HostDisputeID
	}
	if *slot != "" {
		return fmt.Errorf("%w: %s window already consumed", domain.ErrWindowClosed, dispute.OpenedBy)
	}
	for _, t := range domain.GuardedTypes(dispute.OpenedBy) {
		if _, released := r.s.findRelease(booking.ID, t); released {
			return fmt.Errorf("%w: funds guarded by the %s window were already released", domain.ErrWindowClosed, dispute.OpenedBy)
		}
	}

	now := r.s.now()
	*slot = dispute.ID
	stored.Version++
	stored.UpdatedAt = now
	r.s.bookings[booking.ID] = stored

	dispute.CreatedAt = now
	r.s.disputes[dispute.ID] = cloneDispute(*dispute)

	*booking = cloneBooking(stored)
	return nil
}

func (r *DisputeRepository) Get(_ context.Context, id string) (*domain.Dispute, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Disputes.Get"); err != nil {
		return nil, err
	}
	d, ok := r.s.disputes[id]
	if !ok {
		return nil, fmt.Errorf("%w: dispute %s", domain.ErrNotFound, id)
	}
	out := cloneDispute(d)
	return &out, nil
}

func (r *DisputeRepository) ListByBooking(_ context.Context, bookingID string) ([]domain.Dispute, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Disputes.ListByBooking"); err != nil {
		return nil, err
	}
	var out []domain.Dispute
	for _, d := range r.s.disputes {
		if d.BookingID == bookingID {
			out = append(out, cloneDispute(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *DisputeRepository) Resolve(_ context.Context, dispute *domain.Dispute) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Disputes.Resolve"); err != nil {
		return err
	}
	stored, ok := r.s.disputes[dispute.ID]
	if !ok {
		return fmt.Errorf("%w: dispute %s", domain.ErrNotFound, dispute.ID)
	}
	if stored.Status != domain.DisputeStatusOpen {
		return fmt.Errorf("%w: dispute %s is not open", domain.ErrInvalidTransition, dispute.ID)
	}
	stored.Status = domain.DisputeStatusResolved
	stored.Outcome = dispute.Outcome
	stored.AdjustmentAmount = dispute.AdjustmentAmount
	stored.ResolvedBy = dispute.ResolvedBy
	stored.ResolvedAt = dispute.ResolvedAt
	r.s.disputes[dispute.ID] = stored
	dispute.Status = domain.DisputeStatusResolved
	return nil
}

type ReleaseRepository struct{ s *store }

func (r *ReleaseRepository) Create(_ context.Context, booking *domain.Booking, event *domain.ReleaseEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Releases.Create"); err != nil {
		return false, err
	}
	stored, ok := r.s.bookings[booking.ID]
	if !ok {
		return false, fmt.Errorf("%w: booking %s", domain.ErrNotFound, booking.ID)
	}
	if stored.Version != booking.Version {
		return false, versionConflict(booking, booking.Version)
	}
	if _, exists := r.s.findRelease(event.BookingID, event.EventType); exists {
		return false, nil
	}

	now := r.s.now()
	stored.Version++
	stored.UpdatedAt = now
	r.s.bookings[booking.ID] = stored
	booking.Version, booking.UpdatedAt = stored.Version, now

	event.CreatedAt = now
	event.ClaimedAmount = 0
	r.s.releases[event.ID] = *event
	return true, nil
}

func (r *ReleaseRepository) ListByBooking(_ context.Context, bookingID string) ([]domain.ReleaseEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Releases.ListByBooking"); err != nil {
		return nil, err
	}
	return r.s.releasesWhere(func(e domain.ReleaseEvent) bool { return e.BookingID == bookingID }), nil
}

func (r *ReleaseRepository) ListAvailable(_ context.Context, hostID string) ([]domain.ReleaseEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Releases.ListAvailable"); err != nil {
		return nil, err
	}
	return r.s.availableFor(hostID), nil
}

func (s *store) findRelease(bookingID string, t domain.ReleaseEventType) (domain.ReleaseEvent, bool) {
	for _, e := range s.releases {
		if e.BookingID == bookingID && e.EventType == t {
			return e, true
		}
	}
	return domain.ReleaseEvent{}, false
}

func (s *store) availableFor(hostID string) []domain.ReleaseEvent {
	return s.releasesWhere(func(e domain.ReleaseEvent) bool {
		return e.HostID == hostID && e.Available() > 0
	})
}

func (s *store) releasesWhere(keep func(domain.ReleaseEvent) bool) []domain.ReleaseEvent {
	var out []domain.ReleaseEvent
	for _, e := range s.releases {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReleaseDate.Equal(out[j].ReleaseDate) {
			if out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].ID < out[j].ID
			}
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ReleaseDate.Before(out[j].ReleaseDate)
	})
	return out
}

type PayoutRepository struct{ s *store }

func (r *PayoutRepository) UpsertAccount(_ context.Context, account *domain.PayoutAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Payouts.UpsertAccount"); err != nil {
		return err
	}
	if existing, ok := r.s.accounts[account.HostID]; ok {
		account.CreatedAt = existing.CreatedAt
	} else {
		account.CreatedAt = r.s.now()
	}
	r.s.accounts[account.HostID] = *account
	return nil
}

func (r *PayoutRepository) GetAccount(_ context.Context, hostID string) (*domain.PayoutAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Payouts.GetAccount"); err != nil {
		return nil, err
	}
	a, ok := r.s.accounts[hostID]
	if !ok {
		return nil, fmt.Errorf("%w: payout account %s", domain.ErrNotFound, hostID)
	}
	return &a, nil
}

func (r *PayoutRepository) CreateWithClaims(_ context.Context, payout *domain.PayoutRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Payouts.CreateWithClaims"); err != nil {
		return err
	}
	if _, ok := r.s.accounts[payout.HostID]; !ok {
		return fmt.Errorf("%w: host %s", domain.ErrPayoutAccountMissing, payout.HostID)
	}
	claims, err := domain.AllocateClaims(r.s.availableFor(payout.HostID), payout.Amount)
	if err != nil {
		return err
	}
	for _, c := range claims {
		e := r.s.releases[c.ReleaseEventID]
		e.ClaimedAmount += c.Amount
		r.s.releases[c.ReleaseEventID] = e
	}
	now := r.s.now()
	payout.Status = domain.PayoutStatusPending
	payout.Claims = claims
	payout.CreatedAt, payout.UpdatedAt = now, now
	r.s.payouts[payout.ID] = clonePayout(*payout)
	return nil
}

func (r *PayoutRepository) Get(_ context.Context, id string) (*domain.PayoutRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Payouts.Get"); err != nil {
		return nil, err
	}
	p, ok := r.s.payouts[id]
	if !ok {
		return nil, fmt.Errorf("%w: payout %s", domain.ErrNotFound, id)
	}
	out := clonePayout(p)
	return &out, nil
}

func (r *PayoutRepository) ListByStatus(_ context.Context, status domain.PayoutStatus, limit int) ([]domain.PayoutRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Payouts.ListByStatus"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	var out []domain.PayoutRequest
	for _, p := range r.s.payouts {
		if p.Status == status {
			out = append(out, clonePayout(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *PayoutRepository) ApplyResult(_ context.Context, id string, result domain.GatewayResult, at time.Time) (*domain.PayoutRequest, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Payouts.ApplyResult"); err != nil {
		return nil, false, err
	}
	p, ok := r.s.payouts[id]
	if !ok {
		return nil, false, fmt.Errorf("%w: payout %s", domain.ErrNotFound, id)
	}
	noop, err := domain.PayoutTransition(p.Status, result.Status)
	if err != nil {
		return nil, false, err
	}
	if noop {
		out := clonePayout(p)
		return &out, false, nil
	}
	p.Stamp(result.Status, at)
	if result.Reference != "" {
		p.Reference = result.Reference
	}
	if result.Status == domain.PayoutStatusFailed {
		p.FailureReason = result.Reason
		for _, c := range p.Claims {
			e := r.s.releases[c.ReleaseEventID]
			e.ClaimedAmount -= c.Amount
			r.s.releases[c.ReleaseEventID] = e
		}
	}
	r.s.payouts[id] = p
	out := clonePayout(p)
	return &out, true, nil
}

type FinanceConfigRepository struct{ s *store }

func (r *FinanceConfigRepository) Active(_ context.Context) (*domain.FinanceConfig, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("FinanceConfigs.Active"); err != nil {
		return nil, err
	}
	now := r.s.now()
	for i := len(r.s.configs) - 1; i >= 0; i-- {
		if !r.s.configs[i].EffectiveFrom.After(now) {
			c := cloneConfig(r.s.configs[i])
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: no active finance config", domain.ErrNotFound)
}

func (r *FinanceConfigRepository) Publish(_ context.Context, cfg *domain.FinanceConfig) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("FinanceConfigs.Publish"); err != nil {
		return err
	}
	cfg.Version = int64(len(r.s.configs) + 1)
	if cfg.EffectiveFrom.IsZero() {
		cfg.EffectiveFrom = r.s.now()
	}
	r.s.configs = append(r.s.configs, cloneConfig(*cfg))
	return nil
}

type AuditRepository struct{ s *store }

func (r *AuditRepository) Insert(_ context.Context, entry *domain.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Audit.Insert"); err != nil {
		return err
	}
	e := *entry
	e.Before = append(json.RawMessage(nil), entry.Before...)
	e.After = append(json.RawMessage(nil), entry.After...)
	r.s.audit = append(r.s.audit, e)
	return nil
}

func (r *AuditRepository) ListByEntity(_ context.Context, entityType, entityID string) ([]domain.AuditEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range r.s.audit {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func cloneBooking(b domain.Booking) domain.Booking {
	if b.Snapshot != nil {
		s := *b.Snapshot
		b.Snapshot = &s
	}
	if b.CheckedInOn != nil {
		d := *b.CheckedInOn
		b.CheckedInOn = &d
	}
	if b.CheckedOutOn != nil {
		d := *b.CheckedOutOn
		b.CheckedOutOn = &d
	}
	return b
}

func cloneDispute(d domain.Dispute) domain.Dispute {
	d.Evidence = append([]domain.EvidenceRef(nil), d.Evidence...)
	return d
}

func clonePayout(p domain.PayoutRequest) domain.PayoutRequest {
	p.Claims = append([]domain.PayoutClaim(nil), p.Claims...)
	return p
}

func cloneConfig(c domain.FinanceConfig) domain.FinanceConfig {
	c.CommissionRate = cloneRate(c.CommissionRate)
	c.HostSharePercent = cloneRate(c.HostSharePercent)
	c.ServiceFeeRate = cloneRate(c.ServiceFeeRate)
	return c
}

func cloneRate(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return domain.Rate(*v)
}

var (
	_ repository.BookingRepository       = (*BookingRepository)(nil)
	_ repository.DisputeRepository       = (*DisputeRepository)(nil)
	_ repository.ReleaseRepository       = (*ReleaseRepository)(nil)
	_ repository.PayoutRepository        = (*PayoutRepository)(nil)
	_ repository.FinanceConfigRepository = (*FinanceConfigRepository)(nil)
	_ repository.AuditRepository         = (*AuditRepository)(nil)
)
