package email

import (
	"context"
	"testing"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name    string
		event   domain.LifecycleEvent
		to      []string
		subject string
	}{
		{
			name:    "confirmation goes to both parties",
			event:   domain.LifecycleEvent{Type: domain.EventBookingConfirmed, BookingID: "b1", GuestID: "g1", HostID: "h1"},
			to:      []string{"g1", "h1"},
			subject: "Booking confirmed",
		},
		{
			name:    "fee release goes to host",
			event:   domain.LifecycleEvent{Type: domain.EventReleaseCreated, GuestID: "g1", HostID: "h1", Attributes: map[string]string{"event_type": "RELEASE_ROOM_FEE"}},
			to:      []string{"h1"},
			subject: "Funds released",
		},
		{
			name:    "deposit refund goes to guest",
			event:   domain.LifecycleEvent{Type: domain.EventReleaseCreated, GuestID: "g1", HostID: "h1", Attributes: map[string]string{"event_type": "REFUND_SECURITY_DEPOSIT"}},
			to:      []string{"g1"},
			subject: "Funds released",
		},
		{
			name:    "payout failure",
			event:   domain.LifecycleEvent{Type: domain.EventPayoutFailed, HostID: "h1", Amount: 10, Attributes: map[string]string{"reason": "closed"}},
			to:      []string{"h1"},
			subject: "Payout failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := Render(tt.event)
			assert.True(t, ok)
			assert.Equal(t, tt.to, msg.To)
			assert.Equal(t, tt.subject, msg.Subject)
			assert.NotEmpty(t, msg.Body)
		})
	}
}

func TestRender_Unknown(t *testing.T) {
	_, ok := Render(domain.LifecycleEvent{Type: "something.else"})
	assert.False(t, ok)
}

func TestSender_Send(t *testing.T) {
	s := NewSender(zap.NewNop())
	assert.NoError(t, s.Send(context.Background(), domain.LifecycleEvent{Type: domain.EventBookingActivated}))
	assert.NoError(t, s.Send(context.Background(), domain.LifecycleEvent{Type: domain.EventPayoutCompleted, HostID: "h1"}))
}
