package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Money is an amount in minor units (kobo, cents) of a single currency.
type Money int64

// rateTolerance bounds float error when checking that rates add up to 1.
const rateTolerance = 1e-9

// FinanceConfig is the platform's commission and fee configuration. Only
// one version is active at a time; bookings copy it by value when confirmed.
type FinanceConfig struct {
	Version          int64     `json:"version"`
	CommissionRate   *float64  `json:"commission_rate"`
	HostSharePercent *float64  `json:"host_share_percent,omitempty"`
	ServiceFeeRate   *float64  `json:"service_fee_rate,omitempty"`
	Currency         string    `json:"currency"`
	EffectiveFrom    time.Time `json:"effective_from"`
}

func Rate(v float64) *float64 { return &v }

// Rates returns the validated commission, host share and service fee rates.
func (c FinanceConfig) Rates() (commission, hostShare, serviceFee float64, err error) {
	if c.CommissionRate == nil {
		return 0, 0, 0, fmt.Errorf("%w: commission rate is missing", ErrInvalidConfig)
	}
	commission = *c.CommissionRate
	if !inUnitRange(commission) {
		return 0, 0, 0, fmt.Errorf("%w: commission rate %v outside [0,1]", ErrInvalidConfig, commission)
	}
	hostShare = 1 - commission
	if c.HostSharePercent != nil {
		hostShare = *c.HostSharePercent
		if !inUnitRange(hostShare) {
			return 0, 0, 0, fmt.Errorf("%w: host share %v outside [0,1]", ErrInvalidConfig, hostShare)
		}
		if math.Abs(hostShare+commission-1) > rateTolerance {
			return 0, 0, 0, fmt.Errorf("%w: host share %v and commission %v do not add up to 1", ErrInvalidConfig, hostShare, commission)
		}
	}
	if c.ServiceFeeRate != nil {
		serviceFee = *c.ServiceFeeRate
		if !inUnitRange(serviceFee) {
			return 0, 0, 0, fmt.Errorf("%w: service fee rate %v outside [0,1]", ErrInvalidConfig, serviceFee)
		}
	}
	return commission, hostShare, serviceFee, nil
}

func (c FinanceConfig) Validate() error {
	if _, _, _, err := c.Rates(); err != nil {
		return err
	}
	if len(strings.TrimSpace(c.Currency)) != 3 {
		return fmt.Errorf("%w: currency %q is not an ISO code", ErrInvalidConfig, c.Currency)
	}
	return nil
}

func inUnitRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// FinancialSnapshot is the financial split frozen onto a booking when it is
// confirmed. It is never recomputed from live configuration.
type FinancialSnapshot struct {
	RoomFee          Money     `json:"room_fee"`
	CleaningFee      Money     `json:"cleaning_fee"`
	ServiceFee       Money     `json:"service_fee"`
	SecurityDeposit  Money     `json:"security_deposit"`
	TotalCharged     Money     `json:"total_charged"`
	Currency         string    `json:"currency"`
	CommissionRate   float64   `json:"commission_rate"`
	HostSharePercent float64   `json:"host_share_percent"`
	ConfigVersion    int64     `json:"config_version"`
	FrozenAt         time.Time `json:"frozen_at"`
}

// NewSnapshot freezes cfg and the booking quote into a snapshot.
func NewSnapshot(q Quote, cfg FinanceConfig, at time.Time) (FinancialSnapshot, error) {
	if err := cfg.Validate(); err != nil {
		return FinancialSnapshot{}, err
	}
	if q.RoomFee < 0 || q.CleaningFee < 0 || q.SecurityDeposit < 0 {
		return FinancialSnapshot{}, fmt.Errorf("%w: fees must be non-negative", ErrValidation)
	}
	commission, hostShare, serviceRate, _ := cfg.Rates()
	s := FinancialSnapshot{
		RoomFee:          q.RoomFee,
		CleaningFee:      q.CleaningFee,
		ServiceFee:       applyRate(q.RoomFee, serviceRate),
		SecurityDeposit:  q.SecurityDeposit,
		Currency:         strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		CommissionRate:   commission,
		HostSharePercent: hostShare,
		ConfigVersion:    cfg.Version,
		FrozenAt:         at,
	}
	s.TotalCharged = s.RoomFee + s.CleaningFee + s.ServiceFee + s.SecurityDeposit
	return s, nil
}

// HostShareAmount is the host's part of the room fee under the frozen rate.
func (s FinancialSnapshot) HostShareAmount() Money {
	return s.HostShareOf(s.RoomFee)
}

// PlatformShareAmount is the remainder of the room fee, so the two shares
// always add up to RoomFee exactly.
func (s FinancialSnapshot) PlatformShareAmount() Money {
	return s.RoomFee - s.HostShareAmount()
}

// HostShareOf applies the frozen host share to an arbitrary room-fee amount.
func (s FinancialSnapshot) HostShareOf(roomFee Money) Money {
	if roomFee <= 0 {
		return 0
	}
	return applyRate(roomFee, s.HostSharePercent)
}

func applyRate(amount Money, rate float64) Money {
	return Money(math.Round(float64(amount) * rate))
}
