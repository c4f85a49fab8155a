package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/Domenick1991/shortlet/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	lagos = time.FixedZone("WAT", 3600)
	guest = domain.Actor{ID: "g1", Role: domain.RoleGuest}
	host  = domain.Actor{ID: "h1", Role: domain.RoleHost}
	admin = domain.Actor{ID: "a1", Role: domain.RoleAdmin}
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.LifecycleEventType
}

func (n *recordingNotifier) Notify(_ context.Context, e domain.LifecycleEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e.Type)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

// at sets the clock to hh:mm local time on the given June 2024 day.
func (c *clock) at(day, hh, mm int) { c.t = time.Date(2024, 6, day, hh, mm, 0, 0, lagos) }

type fixture struct {
	repos    *memory.Repositories
	svc      *BookingService
	clock    *clock
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{repos: memory.NewRepositories(), clock: &clock{}, notifier: &recordingNotifier{}}
	f.clock.at(1, 12, 0)
	f.svc = NewBookingService(f.repos.Bookings, domain.NewCalendar(lagos), domain.WindowPolicy{GuestDays: 3, HostDays: 2}, zap.NewNop(),
		WithClock(f.clock.now), WithNotifier(f.notifier))
	return f
}

// seed stores a booking for 2024-06-10..14 in the given state.
func (f *fixture) seed(t *testing.T, status domain.BookingStatus, stay domain.StayStatus) *domain.Booking {
	t.Helper()
	b := &domain.Booking{
		ID:           "b1",
		GuestID:      "g1",
		HostID:       "h1",
		CheckInDate:  domain.NewDate(2024, 6, 10),
		CheckOutDate: domain.NewDate(2024, 6, 14),
		Status:       status,
		StayStatus:   stay,
	}
	if status != domain.BookingStatusPending {
		b.Snapshot = &domain.FinancialSnapshot{RoomFee: 100_000, CleaningFee: 5_000, ServiceFee: 2_000, SecurityDeposit: 50_000, HostSharePercent: 0.9}
	}
	require.NoError(t, f.repos.Bookings.Create(context.Background(), b))
	return b
}

func TestCreateBooking(t *testing.T) {
	f := newFixture(t)
	in := CreateBookingInput{
		GuestID: "g1", HostID: "h1", PropertyID: "p1",
		CheckInDate: domain.NewDate(2024, 6, 10), CheckOutDate: domain.NewDate(2024, 6, 14),
		Quote: domain.Quote{RoomFee: 100_000, CleaningFee: 5_000, SecurityDeposit: 50_000},
	}

	b, err := f.svc.CreateBooking(context.Background(), guest, in)
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, domain.BookingStatusPending, b.Status)
	assert.Equal(t, domain.StayStatusNone, b.StayStatus)
	assert.Nil(t, b.Snapshot)
}

func TestCreateBooking_Validation(t *testing.T) {
	f := newFixture(t)
	base := CreateBookingInput{GuestID: "g1", HostID: "h1", CheckInDate: domain.NewDate(2024, 6, 10), CheckOutDate: domain.NewDate(2024, 6, 14)}

	tests := []struct {
		name  string
		actor domain.Actor
		edit  func(*CreateBookingInput)
		want  error
	}{
		{"check-out before check-in", guest, func(in *CreateBookingInput) { in.CheckOutDate = domain.NewDate(2024, 6, 9) }, domain.ErrValidation},
		{"same day", guest, func(in *CreateBookingInput) { in.CheckOutDate = in.CheckInDate }, domain.ErrValidation},
		{"negative fee", guest, func(in *CreateBookingInput) { in.Quote.RoomFee = -1 }, domain.ErrValidation},
		{"missing host", guest, func(in *CreateBookingInput) { in.HostID = "" }, domain.ErrValidation},
		{"guest for someone else", domain.Actor{ID: "g2", Role: domain.RoleGuest}, func(*CreateBookingInput) {}, domain.ErrForbidden},
		{"guest blocking dates", guest, func(in *CreateBookingInput) { in.BlockedDates = true }, domain.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.edit(&in)
			_, err := f.svc.CreateBooking(context.Background(), tt.actor, in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateBooking_HostBlocksDates(t *testing.T) {
	f := newFixture(t)
	b, err := f.svc.CreateBooking(context.Background(), host, CreateBookingInput{
		HostID: "h1", CheckInDate: domain.NewDate(2024, 6, 10), CheckOutDate: domain.NewDate(2024, 6, 12),
		BlockedDates: true, Quote: domain.Quote{RoomFee: 10},
	})
	require.NoError(t, err)
	assert.True(t, b.BlockedDates)
	assert.Equal(t, domain.Money(0), b.Quote.RoomFee)
}

func TestActivate_OnlyFromCheckInDay(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.BookingStatusConfirmed, domain.StayStatusNone)

	f.clock.at(9, 23, 59)
	_, err := f.svc.Activate(context.Background(), host, "b1")
	assert.ErrorIs(t, err, domain.ErrWindowClosed)

	f.clock.at(10, 0, 1)
	b, err := f.svc.Activate(context.Background(), host, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusActive, b.Status)

	_, err = f.svc.Activate(context.Background(), host, "b1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestActivateDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, b := range []domain.Booking{
		{ID: "due", HostID: "h1", CheckInDate: domain.NewDate(2024, 6, 10), CheckOutDate: domain.NewDate(2024, 6, 12), Status: domain.BookingStatusConfirmed, StayStatus: domain.StayStatusNone},
		{ID: "late", HostID: "h1", CheckInDate: domain.NewDate(2024, 6, 8), CheckOutDate: domain.NewDate(2024, 6, 12), Status: domain.BookingStatusConfirmed, StayStatus: domain.StayStatusNone},
		{ID: "future", HostID: "h1", CheckInDate: domain.NewDate(2024, 6, 11), CheckOutDate: domain.NewDate(2024, 6, 12), Status: domain.BookingStatusConfirmed, StayStatus: domain.StayStatusNone},
		{ID: "pending", HostID: "h1", CheckInDate: domain.NewDate(2024, 6, 10), CheckOutDate: domain.NewDate(2024, 6, 12), Status: domain.BookingStatusPending, StayStatus: domain.StayStatusNone},
		{ID: "blocked", HostID: "h1", CheckInDate: domain.NewDate(2024, 6, 10), CheckOutDate: domain.NewDate(2024, 6, 12), Status: domain.BookingStatusConfirmed, StayStatus: domain.StayStatusNone, BlockedDates: true},
	} {
		b := b
		require.NoError(t, f.repos.Bookings.Create(ctx, &b))
	}
	f.clock.at(10, 8, 0)

	report, err := f.svc.ActivateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActivationReport{Activated: 2}, report)

	for id, want := range map[string]domain.BookingStatus{
		"due": domain.BookingStatusActive, "late": domain.BookingStatusActive,
		"future": domain.BookingStatusConfirmed, "pending": domain.BookingStatusPending, "blocked": domain.BookingStatusConfirmed,
	} {
		b, err := f.repos.Bookings.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, b.Status, id)
	}
}

func TestActivateDue_ListFailure(t *testing.T) {
	f := newFixture(t)
	f.repos.FailNext("Bookings.ListDueForActivation", domain.ErrTransientStorage)
	_, err := f.svc.ActivateDue(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransientStorage)
}

func TestCheckIn_GuestOnlyOnCheckInDay(t *testing.T) {
	tests := []struct {
		name string
		day  int
		want error
	}{
		{"day before", 9, domain.ErrWindowClosed},
		{"check-in day", 10, nil},
		{"day after", 11, domain.ErrWindowClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			// nothing activates the booking before its check-in day
			f.seed(t, domain.BookingStatusConfirmed, domain.StayStatusNone)
			f.clock.at(tt.day, 23, 30)

			b, err := f.svc.CheckIn(context.Background(), guest, "b1")
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.StayStatusCheckedIn, b.StayStatus)
			assert.Equal(t, domain.NewDate(2024, 6, 10), *b.CheckedInOn)
		})
	}
}

func TestCheckIn_HostOnOrAfterCheckInDay(t *testing.T) {
	for day, ok := range map[int]bool{9: false, 10: true, 12: true} {
		f := newFixture(t)
		f.seed(t, domain.BookingStatusConfirmed, domain.StayStatusNone)
		f.clock.at(day, 9, 0)

		b, err := f.svc.CheckIn(context.Background(), host, "b1")
		if !ok {
			assert.ErrorIs(t, err, domain.ErrWindowClosed, day)
			continue
		}
		require.NoError(t, err, day)
		assert.Equal(t, domain.NewDate(2024, 6, day), *b.CheckedInOn)
	}
}

func TestCheckIn_EarlyLeavesBookingConfirmed(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.BookingStatusConfirmed, domain.StayStatusNone)
	f.clock.at(9, 12, 0)

	for _, actor := range []domain.Actor{guest, host} {
		_, err := f.svc.CheckIn(context.Background(), actor, "b1")
		assert.ErrorIs(t, err, domain.ErrWindowClosed, actor.Role)
		assert.NotErrorIs(t, err, domain.ErrInvalidTransition, actor.Role)
	}

	stored, err := f.repos.Bookings.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, stored.Status)
	assert.Equal(t, domain.StayStatusNone, stored.StayStatus)
}

func TestCheckIn_AlreadyCheckedInIsATransitionError(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.BookingStatusActive, domain.StayStatusCheckedIn)
	f.clock.at(11, 9, 0)

	_, err := f.svc.CheckIn(context.Background(), guest, "b1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCheckIn_UsesCanonicalTimezone(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.BookingStatusActive, domain.StayStatusNone)
	// 23:30 UTC on the 9th is already the 10th in Lagos.
	f.clock.t = time.Date(2024, 6, 9, 23, 30, 0, 0, time.UTC)

	_, err := f.svc.CheckIn(context.Background(), guest, "b1")
	assert.NoError(t, err)
}

func TestCheckIn_ActivatesConfirmedBooking(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.BookingStatusConfirmed, domain.StayStatusNone)
	f.clock.at(10, 15, 0)

	b, err := f.svc.CheckIn(context.Background(), guest, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusActive, b.Status)
	assert.Equal(t, domain.StayStatusCheckedIn, b.StayStatus)
}

func TestCheckIn_Guards(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.BookingStatusActive, domain.StayStatusCheckedIn)
	f.clock.at(10, 9, 0)
	ctx := context.Background()

	_, err := f.svc.CheckIn(ctx, guest, "b1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.CheckIn(ctx, domain.Actor{ID: "g2", Role: domain.RoleGuest}, "b1")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.CheckIn(ctx, admin, "b1")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCheckIn_BlockedDatesExcluded(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repos.Bookings.Create(context.Background(), &domain.Booking{
		ID: "blk", HostID: "h1", CheckInDate: domain.NewDate(2024, 6, 10), CheckOutDate: domain.NewDate(2024, 6, 12),
		Status: domain.BookingStatusActive, StayStatus: domain.StayStatusNone, BlockedDates: true,
	}))
	f.clock.at(10, 9, 0)
	_, err := f.svc.CheckIn(context.Background(), host, "blk")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCheckOut(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.BookingStatusActive, domain.StayStatusCheckedIn)
	f.clock.at(14, 11, 0)
	ctx := context.Background()

	_, err := f.svc.CheckOut(ctx, host, "b1")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	b, err := f.svc.CheckOut(ctx, guest, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.StayStatusCheckedOut, b.StayStatus)
	assert.Equal(t, domain.NewDate(2024, 6, 14), *b.CheckedOutOn)

	_, err = f.svc.CheckOut(ctx, guest, "b1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assert.Equal(t, []domain.LifecycleEventType{domain.EventBookingCheckedOut}, f.notifier.events)
}

func TestCheckOut_RequiresCheckIn(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.BookingStatusActive, domain.StayStatusNone)
	_, err := f.svc.CheckOut(context.Background(), guest, "b1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancel_RefundByLeadTime(t *testing.T) {
	tests := []struct {
		name string
		day  int
		want domain.Money
	}{
		{"a week ahead", 3, 157_000},
		{"two days ahead", 8, 100_000},
		{"same day", 10, 50_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, domain.BookingStatusConfirmed, domain.StayStatusNone)
			f.clock.at(tt.day, 9, 0)

			res, err := f.svc.Cancel(context.Background(), guest, "b1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Refund)
			assert.Equal(t, domain.BookingStatusCancelled, res.Booking.Status)
			assert.NotNil(t, res.Booking.CancelledAt)
		})
	}
}

func TestCancel_PendingRefundsNothing(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.BookingStatusPending, domain.StayStatusNone)
	res, err := f.svc.Cancel(context.Background(), host, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.Money(0), res.Refund)
}

func TestCancel_RejectedOnceActive(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.BookingStatusActive, domain.StayStatusNone)
	_, err := f.svc.Cancel(context.Background(), guest, "b1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.Cancel(context.Background(), domain.Actor{ID: "x", Role: domain.RoleGuest}, "b1")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

type fixedPolicy domain.Money

func (p fixedPolicy) Refund(*domain.FinancialSnapshot, int) domain.Money { return domain.Money(p) }

func TestCancel_CustomPolicy(t *testing.T) {
	f := newFixture(t)
	f.svc = NewBookingService(f.repos.Bookings, domain.NewCalendar(lagos), domain.WindowPolicy{GuestDays: 3, HostDays: 2}, zap.NewNop(),
		WithClock(f.clock.now), WithCancellationPolicy(fixedPolicy(42)))
	f.seed(t, domain.BookingStatusConfirmed, domain.StayStatusNone)

	res, err := f.svc.Cancel(context.Background(), admin, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.Money(42), res.Refund)
}

func TestWindows(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.BookingStatusActive, domain.StayStatusNone)
	ctx := context.Background()

	f.clock.at(10, 10, 0)
	_, err := f.svc.CheckIn(ctx, guest, "b1")
	require.NoError(t, err)

	w, err := f.svc.Windows(ctx, guest, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.WindowOpen, w.Guest.State)
	assert.Equal(t, domain.NewDate(2024, 6, 13), w.Guest.Deadline)
	assert.Equal(t, domain.WindowNotYetOpen, w.Host.State)

	f.clock.at(13, 0, 0)
	w, err = f.svc.Windows(ctx, host, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.WindowExpired, w.Guest.State)

	_, err = f.svc.Windows(ctx, domain.Actor{ID: "x", Role: domain.RoleHost}, "b1")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestConcurrentCheckInAppliesOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.BookingStatusActive, domain.StayStatusNone)
	f.clock.at(10, 10, 0)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.CheckIn(context.Background(), guest, "b1"); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}
