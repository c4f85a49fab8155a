package repository

import (
	"context"
	"fmt"

	"github.com/Domenick1991/shortlet/internal/domain"
)

type PGFinanceConfigRepository struct {
	db DB
}

func NewFinanceConfigRepository(db DB) FinanceConfigRepository {
	return &PGFinanceConfigRepository{db: db}
}

// Active returns the latest version whose effective time has passed.
func (r *PGFinanceConfigRepository) Active(ctx context.Context) (*domain.FinanceConfig, error) {
	var c domain.FinanceConfig
	err := r.db.QueryRow(ctx, `SELECT version, commission_rate, host_share_percent, service_fee_rate, currency, effective_from
		FROM finance_configs WHERE effective_from <= now()
		ORDER BY version DESC LIMIT 1`).
		Scan(&c.Version, &c.CommissionRate, &c.HostSharePercent, &c.ServiceFeeRate, &c.Currency, &c.EffectiveFrom)
	if err != nil {
		return nil, fmt.Errorf("active finance config: %w", classify(err))
	}
	return &c, nil
}

func (r *PGFinanceConfigRepository) Publish(ctx context.Context, cfg *domain.FinanceConfig) error {
	err := r.db.QueryRow(ctx, `INSERT INTO finance_configs (commission_rate, host_share_percent, service_fee_rate, currency, effective_from)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		RETURNING version, effective_from`,
		cfg.CommissionRate, cfg.HostSharePercent, cfg.ServiceFeeRate, cfg.Currency, nullableTime(cfg.EffectiveFrom)).
		Scan(&cfg.Version, &cfg.EffectiveFrom)
	return classify(err)
}

var _ FinanceConfigRepository = (*PGFinanceConfigRepository)(nil)
