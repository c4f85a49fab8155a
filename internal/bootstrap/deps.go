package bootstrap

import (
	"context"
	"fmt"

	"github.com/Domenick1991/shortlet/config"
	"github.com/Domenick1991/shortlet/internal/audit"
	"github.com/Domenick1991/shortlet/internal/cache"
	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/Domenick1991/shortlet/internal/gateway"
	"github.com/Domenick1991/shortlet/internal/kafka"
	"github.com/Domenick1991/shortlet/internal/media"
	"github.com/Domenick1991/shortlet/internal/notify"
	"github.com/Domenick1991/shortlet/internal/repository"
	"github.com/Domenick1991/shortlet/internal/retry"
	"github.com/Domenick1991/shortlet/internal/service/booking"
	"github.com/Domenick1991/shortlet/internal/service/dispute"
	"github.com/Domenick1991/shortlet/internal/service/finance"
	"github.com/Domenick1991/shortlet/internal/service/payout"
	"github.com/Domenick1991/shortlet/internal/service/settlement"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Services is everything the binaries run, wired against Postgres, Redis
// and Kafka.
type Services struct {
	Bookings   *booking.BookingService
	Finance    *finance.SnapshotService
	Configs    *finance.ConfigService
	Disputes   *dispute.DisputeService
	Settlement *settlement.SettlementService
	Payouts    *payout.PayoutService
	// Stripe is nil when no secret key is configured.
	Stripe *gateway.Stripe

	pool     *pgxpool.Pool
	cache    *cache.RedisCache
	producer *kafka.Producer
	notifier *notify.Notifier
	log      *zap.Logger
}

type BuildOptions struct {
	// Migrate applies the embedded schema before anything else runs.
	Migrate bool
}

func Build(ctx context.Context, cfg *config.Config, log *zap.Logger, opts BuildOptions) (*Services, error) {
	loc, err := cfg.Settlement.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	calendar := domain.NewCalendar(loc)
	windows := domain.WindowPolicy{GuestDays: cfg.Settlement.GuestWindowDays, HostDays: cfg.Settlement.HostWindowDays}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if opts.Migrate {
		if err := repository.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("schema applied")
	}

	s := &Services{
		pool:     pool,
		cache:    cache.NewRedisCache(cfg.Redis, cfg.Finance.CacheTTL()),
		producer: kafka.NewProducer(cfg.Kafka.Brokers, log),
		log:      log,
	}
	checkBroker(ctx, s.producer, log)
	s.notifier = notify.NewNotifier(s.producer, cfg.Kafka.NotificationsTopic, log)

	bookingRepo := repository.NewBookingRepository(pool)
	disputeRepo := repository.NewDisputeRepository(pool)
	releaseRepo := repository.NewReleaseRepository(pool)
	payoutRepo := repository.NewPayoutRepository(pool)
	configRepo := repository.NewFinanceConfigRepository(pool)
	auditor := audit.NewRecorder(repository.NewAuditRepository(pool), log)

	s.Bookings = booking.NewBookingService(bookingRepo, calendar, windows, log,
		booking.WithNotifier(s.notifier),
		booking.WithAuditor(auditor),
		booking.WithCancellationPolicy(booking.LeadTimePolicy{
			FullRefundDays:    cfg.Settlement.LeadTimeFullRefund,
			PartialRefundDays: cfg.Settlement.LeadTimePartialRefund,
		}))
	s.Finance = finance.NewSnapshotService(bookingRepo, log,
		finance.WithNotifier(s.notifier),
		finance.WithAuditor(auditor))
	s.Configs = finance.NewConfigService(configRepo, s.cache, auditor, log)

	disputeOpts := []dispute.DisputeServiceOption{dispute.WithNotifier(s.notifier), dispute.WithAuditor(auditor)}
	if cfg.Cloudinary.URL != "" {
		store, err := media.NewEvidenceStore(cfg.Cloudinary.URL, cfg.Cloudinary.Folder, log)
		if err != nil {
			s.Close()
			return nil, err
		}
		disputeOpts = append(disputeOpts, dispute.WithEvidenceStore(store))
	} else {
		log.Warn("cloudinary is not configured, evidence uploads are disabled")
	}
	s.Disputes = dispute.NewDisputeService(bookingRepo, disputeRepo, calendar, windows, log, disputeOpts...)

	s.Settlement = settlement.NewSettlementService(bookingRepo, disputeRepo, releaseRepo, settlement.Options{
		Calendar:      calendar,
		Windows:       windows,
		DelayDays:     cfg.Settlement.ReleaseDelayDays,
		Retry:         retry.Policy{Attempts: cfg.Settlement.MaxAttempts, Backoff: cfg.Settlement.Backoff()},
		ConflictLimit: cfg.Settlement.MaxConflictRetries,
	}, log, settlement.WithNotifier(s.notifier))

	payoutOpts := []payout.PayoutServiceOption{payout.WithNotifier(s.notifier), payout.WithAuditor(auditor)}
	if cfg.Stripe.SecretKey != "" {
		s.Stripe = gateway.NewStripe(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
		payoutOpts = append(payoutOpts, payout.WithGateway(s.Stripe))
	} else {
		log.Warn("stripe is not configured, payouts will not be dispatched")
	}
	s.Payouts = payout.NewPayoutService(payoutRepo, releaseRepo, s.cache, payout.Options{
		Currency: cfg.Payout.Currency,
		LockTTL:  cfg.Payout.LockTTL(),
		Batch:    cfg.Payout.DispatchBatch,
	}, log, payoutOpts...)

	return s, nil
}

type connectionChecker interface {
	CheckConnection(ctx context.Context) error
}

// checkBroker only warns: notifications are best effort and the broker
// may come up after the API.
func checkBroker(ctx context.Context, c connectionChecker, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, brokerCheckTimeout)
	defer cancel()
	if err := c.CheckConnection(ctx); err != nil {
		log.Warn("kafka is unreachable at startup", zap.Error(err))
	}
}

// Close waits for queued notifications and releases every connection.
func (s *Services) Close() {
	if s.notifier != nil && !s.notifier.Close(notifyDrainTimeout) {
		s.log.Warn("notifications still in flight at shutdown")
	}
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			s.log.Warn("close kafka producer", zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.log.Warn("close redis", zap.Error(err))
		}
	}
	s.pool.Close()
}
