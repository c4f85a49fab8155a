package email

import (
	"context"
	"fmt"

	"github.com/Domenick1991/shortlet/internal/domain"
	"go.uber.org/zap"
)

type Message struct {
	To      []string
	Subject string
	Body    string
}

// Sender renders lifecycle events into e-mails. Delivery is a log line
// until a mail provider is configured.
type Sender struct {
	log *zap.Logger
}

func NewSender(log *zap.Logger) *Sender {
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, event domain.LifecycleEvent) error {
	msg, ok := Render(event)
	if !ok {
		s.log.Debug("no template for event", zap.String("type", string(event.Type)))
		return nil
	}
	s.log.Info("send email",
		zap.Strings("to", msg.To), zap.String("subject", msg.Subject), zap.String("booking_id", event.BookingID))
	return nil
}

// Render picks the recipients and wording for an event.
func Render(e domain.LifecycleEvent) (Message, bool) {
	both := nonEmpty(e.GuestID, e.HostID)
	switch e.Type {
	case domain.EventBookingConfirmed:
		return Message{both, "Booking confirmed", fmt.Sprintf("Booking %s is confirmed.", e.BookingID)}, true
	case domain.EventBookingCheckedIn:
		return Message{both, "Guest checked in", fmt.Sprintf("Check-in recorded for booking %s.", e.BookingID)}, true
	case domain.EventBookingCheckedOut:
		return Message{both, "Guest checked out", fmt.Sprintf("Check-out recorded for booking %s.", e.BookingID)}, true
	case domain.EventBookingCancelled:
		return Message{both, "Booking cancelled", fmt.Sprintf("Booking %s was cancelled. Refund: %d.", e.BookingID, e.Amount)}, true
	case domain.EventBookingCompleted:
		return Message{both, "Stay settled", fmt.Sprintf("All funds for booking %s have been settled.", e.BookingID)}, true
	case domain.EventDisputeOpened:
		return Message{both, "Dispute opened", fmt.Sprintf("A %s dispute was opened on booking %s.", e.Attributes["category"], e.BookingID)}, true
	case domain.EventDisputeResolved:
		return Message{both, "Dispute resolved", fmt.Sprintf("The dispute on booking %s was resolved: %s.", e.BookingID, e.Attributes["outcome"])}, true
	case domain.EventReleaseCreated:
		to := nonEmpty(e.HostID)
		if domain.ReleaseEventType(e.Attributes["event_type"]) == domain.RefundSecurityDeposit {
			to = nonEmpty(e.GuestID)
		}
		return Message{to, "Funds released", fmt.Sprintf("%d released for booking %s.", e.Amount, e.BookingID)}, true
	case domain.EventPayoutRequested:
		return Message{nonEmpty(e.HostID), "Payout requested", fmt.Sprintf("Your payout of %d is being processed.", e.Amount)}, true
	case domain.EventPayoutCompleted:
		return Message{nonEmpty(e.HostID), "Payout sent", fmt.Sprintf("Your payout of %d has been sent.", e.Amount)}, true
	case domain.EventPayoutFailed:
		return Message{nonEmpty(e.HostID), "Payout failed", fmt.Sprintf("Your payout of %d failed: %s. The funds are available again.", e.Amount, e.Attributes["reason"])}, true
	}
	return Message{}, false
}

func nonEmpty(ids ...string) []string {
	var out []string
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
