package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/shortlet/config"
	"github.com/Domenick1991/shortlet/internal/bootstrap"
	"github.com/Domenick1991/shortlet/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	_ "time/tzdata"
)

// Run once per invocation by cron. The bare command runs the settlement
// pass and exits 1 only when the pass could not run at all.
func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "worker",
		Short:         "Release escrowed booking funds that are due",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withServices(func(ctx context.Context, s *bootstrap.Services, log *zap.Logger) error {
			report, err := s.Settlement.RunSettlementPass(ctx)
			if err != nil {
				return fmt.Errorf("settlement pass aborted: %w", err)
			}
			if report.Errors > 0 {
				log.Warn("settlement pass finished with failed bookings", zap.Any("failures", report.Failures))
			}
			return nil
		}),
	}
	cmd.PersistentFlags().String("config", "", "path to config.yaml (defaults to $CONFIG_PATH or ./config.yaml)")
	cmd.PersistentFlags().Bool("migrate", false, "apply the database schema before running")

	cmd.AddCommand(activateCmd(), dispatchPayoutsCmd())
	return cmd
}

func activateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate",
		Short: "Activate confirmed bookings whose check-in day has arrived",
		RunE: withServices(func(ctx context.Context, s *bootstrap.Services, _ *zap.Logger) error {
			_, err := s.Bookings.ActivateDue(ctx)
			return err
		}),
	}
}

func dispatchPayoutsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch-payouts",
		Short: "Submit pending payout requests to the payment gateway",
		RunE: withServices(func(ctx context.Context, s *bootstrap.Services, _ *zap.Logger) error {
			_, err := s.Payouts.DispatchPending(ctx)
			return err
		}),
	}
}

type job func(ctx context.Context, s *bootstrap.Services, log *zap.Logger) error

func withServices(run job) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		if cfgPath == "" {
			cfgPath = os.Getenv("CONFIG_PATH")
		}
		if cfgPath == "" {
			cfgPath = "config.yaml"
		}
		migrate, _ := cmd.Flags().GetBool("migrate")

		cfg, err := config.LoadConfig(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log, err := logger.New(cfg.Log.Env, cfg.Log.Level)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		log = log.With(zap.String("job", cmd.Name()))

		ctx := cmd.Context()
		services, err := bootstrap.Build(ctx, cfg, log, bootstrap.BuildOptions{Migrate: migrate})
		if err != nil {
			return err
		}
		defer services.Close()

		return run(ctx, services, log)
	}
}
