package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Stripe     StripeConfig     `yaml:"stripe"`
	Cloudinary CloudinaryConfig `yaml:"cloudinary"`
	Settlement SettlementConfig `yaml:"settlement"`
	Payout     PayoutConfig     `yaml:"payout"`
	Finance    FinanceConfig    `yaml:"finance"`
	Log        LogConfig        `yaml:"log"`
}

type HTTPConfig struct {
	Address         string  `yaml:"address"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`

	// URL, when set, takes precedence over the individual fields.
	URL string `yaml:"url"`
}

func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type CloudinaryConfig struct {
	URL    string `yaml:"url"`
	Folder string `yaml:"folder"`
}

type SettlementConfig struct {
	Timezone              string `yaml:"timezone"`
	GuestWindowDays       int    `yaml:"guest_window_days"`
	HostWindowDays        int    `yaml:"host_window_days"`
	ReleaseDelayDays      int    `yaml:"release_delay_days"`
	MaxAttempts           int    `yaml:"max_attempts"`
	BackoffMillis         int    `yaml:"backoff_millis"`
	MaxConflictRetries    int    `yaml:"max_conflict_retries"`
	LeadTimeFullRefund    int    `yaml:"lead_time_full_refund_days"`
	LeadTimePartialRefund int    `yaml:"lead_time_partial_refund_days"`
}

// Location resolves the canonical timezone all calendar-day comparisons use.
func (s SettlementConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

func (s SettlementConfig) Backoff() time.Duration {
	return time.Duration(s.BackoffMillis) * time.Millisecond
}

type PayoutConfig struct {
	Currency       string `yaml:"currency"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
	DispatchBatch  int    `yaml:"dispatch_batch"`
}

func (p PayoutConfig) LockTTL() time.Duration {
	return time.Duration(p.LockTTLSeconds) * time.Second
}

type FinanceConfig struct {
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

func (f FinanceConfig) CacheTTL() time.Duration {
	return time.Duration(f.CacheTTLSeconds) * time.Second
}

type LogConfig struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default returns the values used for keys missing from the YAML file.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Address: ":8080", RateLimitPerSec: 10, RateLimitBurst: 20},
		Database: DatabaseConfig{
			Host: "localhost", Port: 5432, User: "postgres", Name: "shortlet", SSLMode: "disable",
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Kafka: KafkaConfig{
			Brokers:            []string{"localhost:9092"},
			NotificationsTopic: "shortlet.notifications",
			GroupID:            "shortlet-notifier",
		},
		Cloudinary: CloudinaryConfig{Folder: "dispute-evidence"},
		Settlement: SettlementConfig{
			Timezone:              "Africa/Lagos",
			GuestWindowDays:       3,
			HostWindowDays:        2,
			ReleaseDelayDays:      3,
			MaxAttempts:           3,
			BackoffMillis:         200,
			MaxConflictRetries:    3,
			LeadTimeFullRefund:    7,
			LeadTimePartialRefund: 1,
		},
		Payout:  PayoutConfig{Currency: "NGN", LockTTLSeconds: 30, DispatchBatch: 100},
		Finance: FinanceConfig{CacheTTLSeconds: 60},
		Log:     LogConfig{Env: "production", Level: "info"},
	}
}

func (c *Config) applyEnv() error {
	var errs []error
	intVar := func(key string, dst *int) {
		n, err := envInt(key, *dst)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = n
	}

	c.HTTP.Address = envOrDefault("HTTP_ADDRESS", c.HTTP.Address)
	c.Database.URL = envOrDefault("DATABASE_DSN", c.Database.URL)
	c.Redis.Addr = envOrDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envOrDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Kafka.Brokers = envCSV("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.NotificationsTopic = envOrDefault("KAFKA_NOTIFICATIONS_TOPIC", c.Kafka.NotificationsTopic)
	c.Stripe.SecretKey = envOrDefault("STRIPE_SECRET_KEY", c.Stripe.SecretKey)
	c.Stripe.WebhookSecret = envOrDefault("STRIPE_WEBHOOK_SECRET", c.Stripe.WebhookSecret)
	c.Cloudinary.URL = envOrDefault("CLOUDINARY_URL", c.Cloudinary.URL)
	c.Settlement.Timezone = envOrDefault("SETTLEMENT_TIMEZONE", c.Settlement.Timezone)
	intVar("GUEST_WINDOW_DAYS", &c.Settlement.GuestWindowDays)
	intVar("HOST_WINDOW_DAYS", &c.Settlement.HostWindowDays)
	intVar("RELEASE_DELAY_DAYS", &c.Settlement.ReleaseDelayDays)
	c.Log.Env = envOrDefault("LOG_ENV", c.Log.Env)
	c.Log.Level = envOrDefault("LOG_LEVEL", c.Log.Level)
	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Settlement.Location(); err != nil {
		errs = append(errs, fmt.Errorf("settlement.timezone %q: %w", c.Settlement.Timezone, err))
	}
	if c.Settlement.GuestWindowDays <= 0 || c.Settlement.HostWindowDays <= 0 {
		errs = append(errs, errors.New("dispute window lengths must be positive"))
	}
	// Fees must not leave escrow while the guest can still dispute them.
	if c.Settlement.ReleaseDelayDays < c.Settlement.GuestWindowDays {
		errs = append(errs, fmt.Errorf("settlement.release_delay_days (%d) must be at least guest_window_days (%d)",
			c.Settlement.ReleaseDelayDays, c.Settlement.GuestWindowDays))
	}
	if c.Settlement.MaxAttempts <= 0 {
		errs = append(errs, errors.New("settlement.max_attempts must be positive"))
	}
	if c.Settlement.LeadTimeFullRefund < c.Settlement.LeadTimePartialRefund {
		errs = append(errs, errors.New("cancellation lead times are inverted"))
	}
	if len(c.Payout.Currency) != 3 {
		errs = append(errs, fmt.Errorf("payout.currency %q is not an ISO code", c.Payout.Currency))
	}
	return errors.Join(errs...)
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s=%q is not an integer", key, v)
	}
	return n, nil
}

func envCSV(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
