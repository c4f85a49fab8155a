package booking

import "github.com/Domenick1991/shortlet/internal/domain"

// CancellationPolicy decides how much of the charged amount a cancelled
// booking returns. It sees only the frozen snapshot, never live rates.
type CancellationPolicy interface {
	Refund(snapshot *domain.FinancialSnapshot, daysBeforeCheckIn int) domain.Money
}

// LeadTimePolicy refunds everything when cancelled at least FullRefundDays
// ahead, half the room fee at least PartialRefundDays ahead, and otherwise
// nothing but the deposit.
type LeadTimePolicy struct {
	FullRefundDays    int
	PartialRefundDays int
}

func (p LeadTimePolicy) Refund(s *domain.FinancialSnapshot, days int) domain.Money {
	if s == nil {
		// not confirmed, nothing was charged
		return 0
	}
	switch {
	case days >= p.FullRefundDays:
		return s.RoomFee + s.CleaningFee + s.ServiceFee + s.SecurityDeposit
	case days >= p.PartialRefundDays:
		return s.RoomFee/2 + s.SecurityDeposit
	default:
		return s.SecurityDeposit
	}
}
