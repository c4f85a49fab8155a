package finance

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/Domenick1991/shortlet/internal/repository"
	"go.uber.org/zap"
)

type ConfigUseCase interface {
	Active(ctx context.Context) (*domain.FinanceConfig, error)
	Publish(ctx context.Context, actor domain.Actor, cfg domain.FinanceConfig) (*domain.FinanceConfig, error)
}

type ConfigCache interface {
	GetFinanceConfig(ctx context.Context) (*domain.FinanceConfig, error)
	SetFinanceConfig(ctx context.Context, cfg *domain.FinanceConfig) error
	InvalidateFinanceConfig(ctx context.Context) error
}

type ConfigService struct {
	repo    repository.FinanceConfigRepository
	cache   ConfigCache
	auditor Auditor
	log     *zap.Logger
}

func NewConfigService(repo repository.FinanceConfigRepository, cache ConfigCache, auditor Auditor, log *zap.Logger) *ConfigService {
	return &ConfigService{repo: repo, cache: cache, auditor: auditor, log: log}
}

// Active returns the configuration new confirmations freeze. Cache errors
// fall through to the repository.
func (s *ConfigService) Active(ctx context.Context) (*domain.FinanceConfig, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetFinanceConfig(ctx); err == nil && cached != nil {
			return cached, nil
		}
	}

	cfg, err := s.repo.Active(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetFinanceConfig(ctx, cfg); err != nil {
			s.log.Warn("cache finance config", zap.Error(err))
		}
	}
	return cfg, nil
}

func (s *ConfigService) Publish(ctx context.Context, actor domain.Actor, cfg domain.FinanceConfig) (*domain.FinanceConfig, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("%w: only admins publish finance config", domain.ErrForbidden)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	previous, err := s.repo.Active(ctx)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	if err := s.repo.Publish(ctx, &cfg); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.InvalidateFinanceConfig(ctx); err != nil {
			s.log.Warn("invalidate finance config cache", zap.Error(err))
		}
	}
	s.log.Info("finance config published", zap.Int64("version", cfg.Version), zap.Float64("commission_rate", *cfg.CommissionRate))
	if s.auditor != nil {
		s.auditor.Record(ctx, actor.ID, "finance_config.publish", "finance_config", fmt.Sprint(cfg.Version), previous, cfg)
	}
	return &cfg, nil
}

var _ ConfigUseCase = (*ConfigService)(nil)

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
