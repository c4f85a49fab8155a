package domain

import (
	"fmt"
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusActive    BookingStatus = "ACTIVE"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

type StayStatus string

const (
	StayStatusNone       StayStatus = "NONE"
	StayStatusCheckedIn  StayStatus = "CHECKED_IN"
	StayStatusCheckedOut StayStatus = "CHECKED_OUT"
)

type Role string

const (
	RoleGuest  Role = "GUEST"
	RoleHost   Role = "HOST"
	RoleAdmin  Role = "ADMIN"
	RoleSystem Role = "SYSTEM"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
}

var SystemActor = Actor{ID: "system", Role: RoleSystem}

// Quote holds the fee inputs captured when the booking is requested. They
// are frozen into the FinancialSnapshot at confirmation.
type Quote struct {
	RoomFee         Money `json:"room_fee"`
	CleaningFee     Money `json:"cleaning_fee"`
	SecurityDeposit Money `json:"security_deposit"`
}

type Booking struct {
	ID           string             `json:"id"`
	GuestID      string             `json:"guest_id"`
	HostID       string             `json:"host_id"`
	PropertyID   string             `json:"property_id"`
	CheckInDate  Date               `json:"check_in_date"`
	CheckOutDate Date               `json:"check_out_date"`
	Status       BookingStatus      `json:"status"`
	StayStatus   StayStatus         `json:"stay_status"`
	Quote        Quote              `json:"quote"`
	Snapshot     *FinancialSnapshot `json:"financial_snapshot,omitempty"`
	// BlockedDates marks a host self-block rather than a real guest stay.
	BlockedDates   bool       `json:"blocked_dates"`
	CheckedInOn    *Date      `json:"checked_in_on,omitempty"`
	CheckedOutOn   *Date      `json:"checked_out_on,omitempty"`
	GuestDisputeID string     `json:"guest_dispute_id,omitempty"`
	HostDisputeID  string     `json:"host_dispute_id,omitempty"`
	Version        int64      `json:"version"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Action is a booking lifecycle command.
type Action string

const (
	ActionConfirm  Action = "CONFIRM"
	ActionActivate Action = "ACTIVATE"
	ActionCheckIn  Action = "CHECK_IN"
	ActionCheckOut Action = "CHECK_OUT"
	ActionCancel   Action = "CANCEL"
	ActionComplete Action = "COMPLETE"
)

// BookingState is the (status, stayStatus) pair.
type BookingState struct {
	Status BookingStatus
	Stay   StayStatus
}

func (b *Booking) State() BookingState {
	return BookingState{Status: b.Status, Stay: b.StayStatus}
}

// ValidState reports whether the pair is one the lifecycle can produce.
func ValidState(s BookingState) bool {
	switch s.Status {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled:
		return s.Stay == StayStatusNone
	case BookingStatusActive:
		switch s.Stay {
		case StayStatusNone, StayStatusCheckedIn, StayStatusCheckedOut:
			return true
		}
		return false
	case BookingStatusCompleted:
		return s.Stay == StayStatusCheckedOut
	default:
		return false
	}
}

// Transition returns the state reached by applying a to s, or
// ErrInvalidTransition. Role and date guards are applied by the caller.
func Transition(s BookingState, a Action) (BookingState, error) {
	if !ValidState(s) {
		return s, fmt.Errorf("%w: unknown state %s/%s", ErrInvalidTransition, s.Status, s.Stay)
	}
	next, ok := s, false
	switch a {
	case ActionConfirm:
		if s.Status == BookingStatusPending {
			next, ok = BookingState{BookingStatusConfirmed, StayStatusNone}, true
		}
	case ActionActivate:
		if s.Status == BookingStatusConfirmed {
			next, ok = BookingState{BookingStatusActive, StayStatusNone}, true
		}
	case ActionCheckIn:
		if s.Status == BookingStatusActive && s.Stay == StayStatusNone {
			next, ok = BookingState{BookingStatusActive, StayStatusCheckedIn}, true
		}
	case ActionCheckOut:
		if s.Status == BookingStatusActive && s.Stay == StayStatusCheckedIn {
			next, ok = BookingState{BookingStatusActive, StayStatusCheckedOut}, true
		}
	case ActionCancel:
		if s.Status == BookingStatusPending || s.Status == BookingStatusConfirmed {
			next, ok = BookingState{BookingStatusCancelled, StayStatusNone}, true
		}
	case ActionComplete:
		if s.Status == BookingStatusActive && s.Stay == StayStatusCheckedOut {
			next, ok = BookingState{BookingStatusCompleted, StayStatusCheckedOut}, true
		}
	}
	if !ok {
		return s, fmt.Errorf("%w: cannot %s booking in %s/%s", ErrInvalidTransition, a, s.Status, s.Stay)
	}
	return next, nil
}

// Apply moves the booking to the state reached by a.
func (b *Booking) Apply(a Action) error {
	next, err := Transition(b.State(), a)
	if err != nil {
		return err
	}
	b.Status, b.StayStatus = next.Status, next.Stay
	return nil
}

// PartyOf returns the booking party the actor acts as, or ErrForbidden.
func (b *Booking) PartyOf(actor Actor) (Party, error) {
	switch {
	case actor.Role == RoleGuest && actor.ID == b.GuestID:
		return PartyGuest, nil
	case actor.Role == RoleHost && actor.ID == b.HostID:
		return PartyHost, nil
	}
	return "", fmt.Errorf("%w: actor %s is not a party of booking %s", ErrForbidden, actor.ID, b.ID)
}

// CheckInAnchor is the day the guest window and the fee release delay are
// measured from.
func (b *Booking) CheckInAnchor() Date {
	if b.CheckedInOn != nil {
		return *b.CheckedInOn
	}
	return b.CheckInDate
}

// CheckOutAnchor is the day the host window is measured from.
func (b *Booking) CheckOutAnchor() Date {
	if b.CheckedOutOn != nil {
		return *b.CheckedOutOn
	}
	return b.CheckOutDate
}

// SettlementEligible reports whether the escrow scheduler should consider b.
func (b *Booking) SettlementEligible() bool {
	if b.BlockedDates || b.Status != BookingStatusActive || b.Snapshot == nil {
		return false
	}
	return b.StayStatus == StayStatusCheckedIn || b.StayStatus == StayStatusCheckedOut
}

// CheckInAllowed applies the role-specific calendar guard for check-in: a
// guest only on the check-in day itself, a host on that day or any later one.
func CheckInAllowed(role Role, checkIn, today Date) error {
	switch role {
	case RoleGuest:
		if today.Equal(checkIn) {
			return nil
		}
		return fmt.Errorf("%w: guests may only check in on %s", ErrWindowClosed, checkIn)
	case RoleHost:
		if !today.Before(checkIn) {
			return nil
		}
		return fmt.Errorf("%w: check-in opens on %s", ErrWindowClosed, checkIn)
	default:
		return fmt.Errorf("%w: role %s cannot check in", ErrForbidden, role)
	}
}
