package domain

import (
	"fmt"
	"sort"
	"time"
)

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusCompleted  PayoutStatus = "COMPLETED"
	PayoutStatusFailed     PayoutStatus = "FAILED"
)

// PayoutTransition validates from -> to. noop is true when the payout is
// already in the target state, which gateway retries rely on.
func PayoutTransition(from, to PayoutStatus) (noop bool, err error) {
	if from == to {
		return true, nil
	}
	switch {
	case from == PayoutStatusPending && (to == PayoutStatusProcessing || to == PayoutStatusFailed):
		return false, nil
	case from == PayoutStatusProcessing && (to == PayoutStatusCompleted || to == PayoutStatusFailed):
		return false, nil
	}
	return false, fmt.Errorf("%w: payout cannot move from %s to %s", ErrInvalidTransition, from, to)
}

// PayoutAccount is the host's registered transfer destination.
type PayoutAccount struct {
	HostID      string    `json:"host_id"`
	Provider    string    `json:"provider"`
	Destination string    `json:"destination"`
	CreatedAt   time.Time `json:"created_at"`
}

// PayoutClaim is the part of one release event reserved by a payout request.
type PayoutClaim struct {
	ReleaseEventID string `json:"release_event_id"`
	Amount         Money  `json:"amount"`
}

type PayoutRequest struct {
	ID            string        `json:"id"`
	HostID        string        `json:"host_id"`
	Amount        Money         `json:"amount"`
	Currency      string        `json:"currency"`
	Status        PayoutStatus  `json:"status"`
	Reference     string        `json:"reference,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Claims        []PayoutClaim `json:"claims"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	ProcessingAt  *time.Time    `json:"processing_at,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	FailedAt      *time.Time    `json:"failed_at,omitempty"`
}

// GatewayResult is a status report from the payment gateway.
type GatewayResult struct {
	Status    PayoutStatus `json:"status"`
	Reference string       `json:"reference,omitempty"`
	Reason    string       `json:"reason,omitempty"`
}

// Stamp records the time of a status change on p.
func (p *PayoutRequest) Stamp(status PayoutStatus, at time.Time) {
	p.Status = status
	p.UpdatedAt = at
	switch status {
	case PayoutStatusProcessing:
		p.ProcessingAt = &at
	case PayoutStatusCompleted:
		p.CompletedAt = &at
	case PayoutStatusFailed:
		p.FailedAt = &at
	}
}

// AllocateClaims reserves amount from events oldest-first. It returns
// ErrInsufficientBalance when the available total is short.
func AllocateClaims(events []ReleaseEvent, amount Money) ([]PayoutClaim, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: payout amount must be positive", ErrValidation)
	}
	sorted := make([]ReleaseEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ReleaseDate.Equal(sorted[j].ReleaseDate) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ReleaseDate.Before(sorted[j].ReleaseDate)
	})

	var claims []PayoutClaim
	remaining := amount
	for _, e := range sorted {
		if remaining == 0 {
			break
		}
		avail := e.Available()
		if avail == 0 {
			continue
		}
		take := min(avail, remaining)
		claims = append(claims, PayoutClaim{ReleaseEventID: e.ID, Amount: take})
		remaining -= take
	}
	if remaining > 0 {
		return nil, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientBalance, amount, amount-remaining)
	}
	return claims, nil
}

// Balance sums the unclaimed host-payable funds in events.
func Balance(events []ReleaseEvent) Money {
	var total Money
	for _, e := range events {
		total += e.Available()
	}
	return total
}
