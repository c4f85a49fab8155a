package domain

import (
	"encoding/json"
	"time"
)

type LifecycleEventType string

const (
	EventBookingConfirmed  LifecycleEventType = "booking.confirmed"
	EventBookingActivated  LifecycleEventType = "booking.activated"
	EventBookingCheckedIn  LifecycleEventType = "booking.checked_in"
	EventBookingCheckedOut LifecycleEventType = "booking.checked_out"
	EventBookingCancelled  LifecycleEventType = "booking.cancelled"
	EventBookingCompleted  LifecycleEventType = "booking.completed"
	EventDisputeOpened     LifecycleEventType = "dispute.opened"
	EventDisputeResolved   LifecycleEventType = "dispute.resolved"
	EventReleaseCreated    LifecycleEventType = "release.created"
	EventPayoutRequested   LifecycleEventType = "payout.requested"
	EventPayoutCompleted   LifecycleEventType = "payout.completed"
	EventPayoutFailed      LifecycleEventType = "payout.failed"
)

// LifecycleEvent is the notification payload published on status changes.
type LifecycleEvent struct {
	Type       LifecycleEventType `json:"type"`
	BookingID  string             `json:"booking_id,omitempty"`
	HostID     string             `json:"host_id,omitempty"`
	GuestID    string             `json:"guest_id,omitempty"`
	Amount     Money              `json:"amount,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
	Attributes map[string]string  `json:"attributes,omitempty"`
}

// Key is the partition key; events for one booking stay ordered.
func (e LifecycleEvent) Key() string {
	if e.BookingID != "" {
		return e.BookingID
	}
	return e.HostID
}

func BookingEvent(t LifecycleEventType, b *Booking, at time.Time) LifecycleEvent {
	return LifecycleEvent{
		Type:       t,
		BookingID:  b.ID,
		HostID:     b.HostID,
		GuestID:    b.GuestID,
		OccurredAt: at,
	}
}

type AuditEntry struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	ActorID    string          `json:"actor_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
