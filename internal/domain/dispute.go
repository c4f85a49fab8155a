package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// MinWriteupLength is counted in characters after trimming whitespace.
const MinWriteupLength = 20

type DisputeCategory string

const (
	CategoryMinorInconvenience     DisputeCategory = "MINOR_INCONVENIENCE"
	CategoryMissingAmenities       DisputeCategory = "MISSING_AMENITIES"
	CategoryMajorMisrepresentation DisputeCategory = "MAJOR_MISREPRESENTATION"
	CategorySafetyUninhabitable    DisputeCategory = "SAFETY_UNINHABITABLE"

	CategoryPropertyDamage    DisputeCategory = "PROPERTY_DAMAGE"
	CategoryMissingItems      DisputeCategory = "MISSING_ITEMS"
	CategoryCleaningRequired  DisputeCategory = "CLEANING_REQUIRED"
	CategoryOtherDepositClaim DisputeCategory = "OTHER_DEPOSIT_CLAIM"
)

type ceilingRule struct {
	party Party
	rate  float64
}

// ceilings: guest categories are a share of the room fee, host categories a
// share of the security deposit.
var ceilings = map[DisputeCategory]ceilingRule{
	CategoryMinorInconvenience:     {PartyGuest, 0.30},
	CategoryMissingAmenities:       {PartyGuest, 0.30},
	CategoryMajorMisrepresentation: {PartyGuest, 1},
	CategorySafetyUninhabitable:    {PartyGuest, 1},
	CategoryPropertyDamage:         {PartyHost, 1},
	CategoryMissingItems:           {PartyHost, 1},
	CategoryCleaningRequired:       {PartyHost, 1},
	CategoryOtherDepositClaim:      {PartyHost, 1},
}

// PartyOf returns the party allowed to file disputes of category c.
func (c DisputeCategory) PartyOf() (Party, bool) {
	r, ok := ceilings[c]
	return r.party, ok
}

// Ceiling is the largest refund or claim category c can be resolved for.
func (c DisputeCategory) Ceiling(s FinancialSnapshot) Money {
	r, ok := ceilings[c]
	if !ok {
		return 0
	}
	base := s.RoomFee
	if r.party == PartyHost {
		base = s.SecurityDeposit
	}
	return applyRate(base, r.rate)
}

type DisputeStatus string

const (
	DisputeStatusOpen     DisputeStatus = "OPEN"
	DisputeStatusResolved DisputeStatus = "RESOLVED"
)

type Outcome string

const (
	OutcomeAccepted Outcome = "ACCEPTED"
	OutcomePartial  Outcome = "PARTIAL"
	OutcomeRejected Outcome = "REJECTED"
)

// EvidenceRef is a media reference returned by a successful upload.
type EvidenceRef struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id,omitempty"`
}

type Dispute struct {
	ID               string          `json:"id"`
	BookingID        string          `json:"booking_id"`
	OpenedBy         Party           `json:"opened_by"`
	ActorID          string          `json:"actor_id"`
	Category         DisputeCategory `json:"category"`
	ClaimedAmount    Money           `json:"claimed_amount,omitempty"`
	Writeup          string          `json:"writeup"`
	Evidence         []EvidenceRef   `json:"evidence"`
	Status           DisputeStatus   `json:"status"`
	Outcome          Outcome         `json:"outcome,omitempty"`
	AdjustmentAmount Money           `json:"adjustment_amount"`
	ResolvedBy       string          `json:"resolved_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
}

// Resolution is the adjudication decision applied to an open dispute.
type Resolution struct {
	Outcome Outcome `json:"outcome"`
	Amount  Money   `json:"amount"`
}

// ValidateWriteup checks the minimum justification length.
func ValidateWriteup(w string) error {
	if utf8.RuneCountInString(strings.TrimSpace(w)) < MinWriteupLength {
		return fmt.Errorf("%w: writeup must be at least %d characters", ErrValidation, MinWriteupLength)
	}
	return nil
}

// ValidEvidence keeps only references with an absolute http(s) URL.
func ValidEvidence(refs []EvidenceRef) []EvidenceRef {
	var out []EvidenceRef
	for _, r := range refs {
		u, err := url.Parse(strings.TrimSpace(r.URL))
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		out = append(out, EvidenceRef{URL: u.String(), PublicID: r.PublicID})
	}
	return out
}

// Award returns the adjustment amount res grants for d under the frozen
// snapshot. Guest awards are refunded from the room fee; host awards are
// paid from the security deposit.
func (d *Dispute) Award(res Resolution, s FinancialSnapshot) (Money, error) {
	limit := d.Category.Ceiling(s)
	if d.OpenedBy == PartyHost && d.ClaimedAmount < limit {
		limit = d.ClaimedAmount
	}
	switch res.Outcome {
	case OutcomeAccepted:
		return limit, nil
	case OutcomeRejected:
		return 0, nil
	case OutcomePartial:
		if res.Amount <= 0 || res.Amount > limit {
			return 0, fmt.Errorf("%w: partial amount %d must be in (0, %d]", ErrValidation, res.Amount, limit)
		}
		return res.Amount, nil
	default:
		return 0, fmt.Errorf("%w: unknown outcome %q", ErrValidation, res.Outcome)
	}
}
