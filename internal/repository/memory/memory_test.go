package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func seedBooking(t *testing.T, repos *Repositories) *domain.Booking {
	t.Helper()
	b := &domain.Booking{
		ID:           "b1",
		GuestID:      "g1",
		HostID:       "h1",
		CheckInDate:  domain.NewDate(2024, 6, 10),
		CheckOutDate: domain.NewDate(2024, 6, 14),
		Status:       domain.BookingStatusActive,
		StayStatus:   domain.StayStatusCheckedIn,
		Snapshot:     &domain.FinancialSnapshot{RoomFee: 100_000, CleaningFee: 5_000, SecurityDeposit: 50_000, HostSharePercent: 0.9},
	}
	require.NoError(t, repos.Bookings.Create(context.Background(), b))
	return b
}

func TestBookingRepository_OptimisticVersion(t *testing.T) {
	repos := NewRepositories()
	repos.SetClock(func() time.Time { return t0 })
	ctx := context.Background()
	seedBooking(t, repos)

	first, err := repos.Bookings.Get(ctx, "b1")
	require.NoError(t, err)
	second, err := repos.Bookings.Get(ctx, "b1")
	require.NoError(t, err)

	first.StayStatus = domain.StayStatusCheckedOut
	require.NoError(t, repos.Bookings.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Status = domain.BookingStatusCompleted
	err = repos.Bookings.Update(ctx, second)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	stored, err := repos.Bookings.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.StayStatusCheckedOut, stored.StayStatus)
	assert.Equal(t, domain.BookingStatusActive, stored.Status)
}

func TestBookingRepository_SnapshotWrittenOnce(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()
	seedBooking(t, repos)

	b, err := repos.Bookings.Get(ctx, "b1")
	require.NoError(t, err)
	b.Snapshot = &domain.FinancialSnapshot{RoomFee: 1}
	require.NoError(t, repos.Bookings.Update(ctx, b))

	stored, err := repos.Bookings.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.Money(100_000), stored.Snapshot.RoomFee)
}

func TestBookingRepository_GetMissing(t *testing.T) {
	_, err := NewRepositories().Bookings.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReleaseRepository_CreateIsIdempotent(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()
	b := seedBooking(t, repos)

	event := &domain.ReleaseEvent{ID: "r1", BookingID: "b1", HostID: "h1", EventType: domain.ReleaseRoomFee, Amount: 90_000, Status: domain.ReleaseStatusReleased}
	created, err := repos.Releases.Create(ctx, b, event)
	require.NoError(t, err)
	assert.True(t, created)

	dup := &domain.ReleaseEvent{ID: "r2", BookingID: "b1", HostID: "h1", EventType: domain.ReleaseRoomFee, Amount: 90_000, Status: domain.ReleaseStatusReleased}
	created, err = repos.Releases.Create(ctx, b, dup)
	require.NoError(t, err)
	assert.False(t, created)

	events, err := repos.Releases.ListByBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestDisputeAndRelease_NeverBothSucceed(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()
	seedBooking(t, repos)

	// Both sides read the same version of the booking.
	forDispute, err := repos.Bookings.Get(ctx, "b1")
	require.NoError(t, err)
	forRelease, err := repos.Bookings.Get(ctx, "b1")
	require.NoError(t, err)

	dispute := &domain.Dispute{ID: "d1", BookingID: "b1", OpenedBy: domain.PartyGuest, Category: domain.CategoryMinorInconvenience, Status: domain.DisputeStatusOpen}
	require.NoError(t, repos.Disputes.File(ctx, forDispute, dispute))
	assert.Equal(t, "d1", forDispute.GuestDisputeID)

	event := &domain.ReleaseEvent{ID: "r1", BookingID: "b1", HostID: "h1", EventType: domain.ReleaseRoomFee, Amount: 90_000, Status: domain.ReleaseStatusReleased}
	_, err = repos.Releases.Create(ctx, forRelease, event)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	events, err := repos.Releases.ListByBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDisputeRepository_RefusedAfterGuardedRelease(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()
	b := seedBooking(t, repos)

	event := &domain.ReleaseEvent{ID: "r1", BookingID: "b1", HostID: "h1", EventType: domain.ReleaseCleaningFee, Amount: 5_000, Status: domain.ReleaseStatusReleased}
	_, err := repos.Releases.Create(ctx, b, event)
	require.NoError(t, err)

	dispute := &domain.Dispute{ID: "d1", BookingID: "b1", OpenedBy: domain.PartyGuest, Status: domain.DisputeStatusOpen}
	err = repos.Disputes.File(ctx, b, dispute)
	assert.ErrorIs(t, err, domain.ErrWindowClosed)

	// A host dispute guards a different release and is still accepted.
	hostDispute := &domain.Dispute{ID: "d2", BookingID: "b1", OpenedBy: domain.PartyHost, Status: domain.DisputeStatusOpen}
	require.NoError(t, repos.Disputes.File(ctx, b, hostDispute))
}

func TestDisputeRepository_ResolveOnlyOpen(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()
	b := seedBooking(t, repos)

	d := &domain.Dispute{ID: "d1", BookingID: "b1", OpenedBy: domain.PartyGuest, Status: domain.DisputeStatusOpen}
	require.NoError(t, repos.Disputes.File(ctx, b, d))

	d.Outcome = domain.OutcomeRejected
	require.NoError(t, repos.Disputes.Resolve(ctx, d))
	assert.ErrorIs(t, repos.Disputes.Resolve(ctx, d), domain.ErrInvalidTransition)
}

func seedReleases(t *testing.T, repos *Repositories) {
	t.Helper()
	ctx := context.Background()
	b := seedBooking(t, repos)
	for i, e := range []domain.ReleaseEvent{
		{ID: "r-room", EventType: domain.ReleaseRoomFee, Amount: 90_000, ReleaseDate: t0.Add(time.Hour)},
		{ID: "r-clean", EventType: domain.ReleaseCleaningFee, Amount: 5_000, ReleaseDate: t0},
	} {
		e.BookingID, e.HostID, e.Status = "b1", "h1", domain.ReleaseStatusReleased
		created, err := repos.Releases.Create(ctx, b, &e)
		require.NoError(t, err, i)
		require.True(t, created)
	}
	require.NoError(t, repos.Payouts.UpsertAccount(ctx, &domain.PayoutAccount{HostID: "h1", Provider: "stripe", Destination: "acct_1"}))
}

func TestPayoutRepository_ClaimsAndFailureReturnsFunds(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()
	seedReleases(t, repos)

	p := &domain.PayoutRequest{ID: "p1", HostID: "h1", Amount: 10_000, Currency: "NGN"}
	require.NoError(t, repos.Payouts.CreateWithClaims(ctx, p))
	assert.Equal(t, []domain.PayoutClaim{
		{ReleaseEventID: "r-clean", Amount: 5_000},
		{ReleaseEventID: "r-room", Amount: 5_000},
	}, p.Claims)

	available, err := repos.Releases.ListAvailable(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, domain.Money(85_000), domain.Balance(available))

	_, changed, err := repos.Payouts.ApplyResult(ctx, "p1", domain.GatewayResult{Status: domain.PayoutStatusFailed, Reason: "account closed"}, t0)
	require.NoError(t, err)
	assert.True(t, changed)

	available, err = repos.Releases.ListAvailable(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, domain.Money(95_000), domain.Balance(available))

	// Repeating the callback changes nothing.
	_, changed, err = repos.Payouts.ApplyResult(ctx, "p1", domain.GatewayResult{Status: domain.PayoutStatusFailed}, t0)
	require.NoError(t, err)
	assert.False(t, changed)
	available, err = repos.Releases.ListAvailable(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, domain.Money(95_000), domain.Balance(available))
}

func TestPayoutRepository_ConcurrentRequestsNeverOverdraw(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()
	seedReleases(t, repos)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted domain.Money
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := &domain.PayoutRequest{ID: "p" + string(rune('a'+i)), HostID: "h1", Amount: 10_000}
			if err := repos.Payouts.CreateWithClaims(ctx, p); err == nil {
				mu.Lock()
				accepted += p.Amount
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, domain.Money(90_000), accepted)
	available, err := repos.Releases.ListAvailable(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, domain.Money(5_000), domain.Balance(available))
}

func TestPayoutRepository_MissingAccount(t *testing.T) {
	repos := NewRepositories()
	err := repos.Payouts.CreateWithClaims(context.Background(), &domain.PayoutRequest{ID: "p1", HostID: "h9", Amount: 1})
	assert.ErrorIs(t, err, domain.ErrPayoutAccountMissing)
}

func TestFinanceConfigRepository_PublishVersions(t *testing.T) {
	repos := NewRepositories()
	repos.SetClock(func() time.Time { return t0 })
	ctx := context.Background()

	_, err := repos.FinanceConfigs.Active(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repos.FinanceConfigs.Publish(ctx, &domain.FinanceConfig{CommissionRate: domain.Rate(0.1), Currency: "NGN"}))
	require.NoError(t, repos.FinanceConfigs.Publish(ctx, &domain.FinanceConfig{CommissionRate: domain.Rate(0.2), Currency: "NGN"}))
	require.NoError(t, repos.FinanceConfigs.Publish(ctx, &domain.FinanceConfig{CommissionRate: domain.Rate(0.3), Currency: "NGN", EffectiveFrom: t0.Add(24 * time.Hour)}))

	active, err := repos.FinanceConfigs.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), active.Version)
	assert.Equal(t, 0.2, *active.CommissionRate)
}

func TestFailNext(t *testing.T) {
	repos := NewRepositories()
	seedBooking(t, repos)
	repos.FailNext("Bookings.Get", domain.ErrTransientStorage)

	_, err := repos.Bookings.Get(context.Background(), "b1")
	assert.ErrorIs(t, err, domain.ErrTransientStorage)
	_, err = repos.Bookings.Get(context.Background(), "b1")
	assert.NoError(t, err)
}
