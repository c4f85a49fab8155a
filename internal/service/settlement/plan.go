package settlement

import (
	"time"

	"github.com/Domenick1991/shortlet/internal/domain"
)

// due is one release a booking is owed, with the instant it becomes
// payable. blocked is set while a dispute guarding it is still open.
type due struct {
	eventType domain.ReleaseEventType
	amount    domain.Money
	at        time.Time
	blocked   bool
}

type plan struct {
	items       []due
	openDispute bool
	// settled is false while a dispute window can still be used or the
	// guest has not checked out.
	settled bool
}

// planReleases works out which releases b is owed. It only reads the
// frozen snapshot, the dispute outcomes and the calendar.
func planReleases(b *domain.Booking, disputes []domain.Dispute, cal domain.Calendar, policy domain.WindowPolicy, delayDays int, now time.Time) plan {
	snap := b.Snapshot
	var guestDispute, hostDispute *domain.Dispute
	for i := range disputes {
		d := &disputes[i]
		switch {
		case d.OpenedBy == domain.PartyGuest && d.ID == b.GuestDisputeID:
			guestDispute = d
		case d.OpenedBy == domain.PartyHost && d.ID == b.HostDisputeID:
			hostDispute = d
		}
	}
	guestOpen := isOpen(guestDispute) || (b.GuestDisputeID != "" && guestDispute == nil)
	hostOpen := isOpen(hostDispute) || (b.HostDisputeID != "" && hostDispute == nil)

	var p plan
	p.openDispute = guestOpen || hostOpen

	var refund domain.Money
	if guestDispute != nil && !guestOpen {
		refund = guestDispute.AdjustmentAmount
	}
	feesAt := cal.Start(b.CheckInAnchor().AddDays(delayDays))
	if amount := snap.HostShareOf(snap.RoomFee - refund); amount > 0 {
		p.items = append(p.items, due{domain.ReleaseRoomFee, amount, feesAt, guestOpen})
	}
	if snap.CleaningFee > 0 {
		p.items = append(p.items, due{domain.ReleaseCleaningFee, snap.CleaningFee, feesAt, guestOpen})
	}

	checkedOut := b.StayStatus == domain.StayStatusCheckedOut
	if checkedOut {
		var award domain.Money
		if hostDispute != nil && !hostOpen {
			award = hostDispute.AdjustmentAmount
		}
		depositAt := cal.Start(b.CheckOutAnchor().AddDays(policy.HostDays))
		if amount := snap.SecurityDeposit - award; amount > 0 {
			p.items = append(p.items, due{domain.RefundSecurityDeposit, amount, depositAt, hostOpen})
		}
		if award > 0 {
			at := now
			if hostDispute.ResolvedAt != nil {
				at = *hostDispute.ResolvedAt
			}
			p.items = append(p.items, due{domain.ReleaseDepositClaim, award, at, false})
		}
	}

	windows := domain.ComputeWindows(b, cal.Today(now), policy)
	p.settled = checkedOut && !p.openDispute &&
		windows.Guest.State != domain.WindowOpen && windows.Host.State != domain.WindowOpen
	return p
}

func isOpen(d *domain.Dispute) bool {
	return d != nil && d.Status == domain.DisputeStatusOpen
}

func (d due) ready(now time.Time) bool {
	return !d.blocked && !now.Before(d.at)
}
