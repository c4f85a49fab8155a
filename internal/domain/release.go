package domain

import "time"

type ReleaseEventType string

const (
	ReleaseRoomFee        ReleaseEventType = "RELEASE_ROOM_FEE"
	ReleaseCleaningFee    ReleaseEventType = "RELEASE_CLEANING_FEE"
	RefundSecurityDeposit ReleaseEventType = "REFUND_SECURITY_DEPOSIT"
	ReleaseDepositClaim   ReleaseEventType = "RELEASE_DEPOSIT_CLAIM"
)

// ReleaseEventTypes is the evaluation order used by the settlement pass.
var ReleaseEventTypes = []ReleaseEventType{
	ReleaseRoomFee,
	ReleaseCleaningFee,
	RefundSecurityDeposit,
	ReleaseDepositClaim,
}

// HostPayable reports whether released funds of this type count towards
// the host's withdrawable balance.
func (t ReleaseEventType) HostPayable() bool {
	return t != RefundSecurityDeposit
}

// GuardedBy returns the dispute window whose filing blocks this type.
// RELEASE_DEPOSIT_CLAIM is created from a resolved host dispute and so
// has no guard.
func (t ReleaseEventType) GuardedBy() (Party, bool) {
	switch t {
	case ReleaseRoomFee, ReleaseCleaningFee:
		return PartyGuest, true
	case RefundSecurityDeposit:
		return PartyHost, true
	}
	return "", false
}

// GuardedTypes lists the release types a dispute in p's window blocks.
func GuardedTypes(p Party) []ReleaseEventType {
	var out []ReleaseEventType
	for _, t := range ReleaseEventTypes {
		if g, ok := t.GuardedBy(); ok && g == p {
			out = append(out, t)
		}
	}
	return out
}

type ReleaseStatus string

const (
	ReleaseStatusPending  ReleaseStatus = "PENDING"
	ReleaseStatusReleased ReleaseStatus = "RELEASED"
)

type ReleaseEvent struct {
	ID            string           `json:"id"`
	BookingID     string           `json:"booking_id"`
	HostID        string           `json:"host_id"`
	EventType     ReleaseEventType `json:"event_type"`
	Amount        Money            `json:"amount"`
	ClaimedAmount Money            `json:"claimed_amount"`
	ReleaseDate   time.Time        `json:"release_date"`
	Status        ReleaseStatus    `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Available is the part of a released, host-payable event not yet claimed
// by a payout request.
func (e ReleaseEvent) Available() Money {
	if e.Status != ReleaseStatusReleased || !e.EventType.HostPayable() {
		return 0
	}
	if a := e.Amount - e.ClaimedAmount; a > 0 {
		return a
	}
	return 0
}
