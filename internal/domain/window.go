package domain

type Party string

const (
	PartyGuest Party = "GUEST"
	PartyHost  Party = "HOST"
)

type WindowState string

const (
	WindowNotYetOpen WindowState = "NOT_YET_OPEN"
	WindowOpen       WindowState = "OPEN"
	WindowExpired    WindowState = "EXPIRED"
	WindowConsumed   WindowState = "CONSUMED"
)

// WindowPolicy is the rules table the dispute windows are derived from.
type WindowPolicy struct {
	GuestDays int
	HostDays  int
}

// DisputeWindow is derived on demand and never stored. Deadline is the first
// day on which the window is no longer open.
type DisputeWindow struct {
	Party    Party       `json:"party"`
	OpensOn  Date        `json:"opens_on"`
	Deadline Date        `json:"deadline"`
	State    WindowState `json:"state"`
}

type Windows struct {
	Guest DisputeWindow `json:"guest"`
	Host  DisputeWindow `json:"host"`
}

func (w Windows) For(p Party) DisputeWindow {
	if p == PartyHost {
		return w.Host
	}
	return w.Guest
}

// ComputeWindows derives both dispute windows for b on the calendar day today.
func ComputeWindows(b *Booking, today Date, policy WindowPolicy) Windows {
	guestOpen := b.StayStatus == StayStatusCheckedIn || b.StayStatus == StayStatusCheckedOut
	hostOpen := b.StayStatus == StayStatusCheckedOut

	guestAnchor := b.CheckInAnchor()
	hostAnchor := b.CheckOutAnchor()

	return Windows{
		Guest: window(PartyGuest, guestAnchor, policy.GuestDays, guestOpen, b.GuestDisputeID != "", today),
		Host:  window(PartyHost, hostAnchor, policy.HostDays, hostOpen, b.HostDisputeID != "", today),
	}
}

func window(p Party, anchor Date, days int, reached, consumed bool, today Date) DisputeWindow {
	w := DisputeWindow{Party: p, OpensOn: anchor, Deadline: anchor.AddDays(days)}
	switch {
	case consumed:
		w.State = WindowConsumed
	case !reached:
		w.State = WindowNotYetOpen
	case today.Before(w.Deadline):
		w.State = WindowOpen
	default:
		w.State = WindowExpired
	}
	return w
}
