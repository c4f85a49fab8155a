package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_DefaultsAndYAML(t *testing.T) {
	path := writeConfig(t, `
http:
  address: ":9090"
settlement:
  timezone: UTC
  guest_window_days: 2
  release_delay_days: 4
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Address)
	assert.Equal(t, 2, cfg.Settlement.GuestWindowDays)
	assert.Equal(t, 4, cfg.Settlement.ReleaseDelayDays)
	assert.Equal(t, 2, cfg.Settlement.HostWindowDays)
	assert.Equal(t, "shortlet.notifications", cfg.Kafka.NotificationsTopic)
	assert.Equal(t, "NGN", cfg.Payout.Currency)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "settlement:\n  timezone: UTC\n")
	t.Setenv("DATABASE_DSN", "postgres://u:p@db:5432/shortlet")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("RELEASE_DELAY_DAYS", "5")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/shortlet", cfg.Database.DSN())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "sk_test_123", cfg.Stripe.SecretKey)
	assert.Equal(t, 5, cfg.Settlement.ReleaseDelayDays)
}

func TestLoadConfig_MalformedIntegerEnv(t *testing.T) {
	path := writeConfig(t, "settlement:\n  timezone: UTC\n")
	t.Setenv("RELEASE_DELAY_DAYS", "three")
	t.Setenv("HOST_WINDOW_DAYS", "2d")

	_, err := LoadConfig(path)

	require.Error(t, err)
	assert.ErrorContains(t, err, `RELEASE_DELAY_DAYS="three" is not an integer`)
	assert.ErrorContains(t, err, `HOST_WINDOW_DAYS="2d" is not an integer`)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"unknown timezone", func(c *Config) { c.Settlement.Timezone = "Mars/Olympus" }, "settlement.timezone"},
		{"release before guest window closes", func(c *Config) { c.Settlement.ReleaseDelayDays = 1 }, "release_delay_days"},
		{"zero window", func(c *Config) { c.Settlement.HostWindowDays = 0 }, "window lengths"},
		{"bad currency", func(c *Config) { c.Payout.Currency = "NAIRA" }, "payout.currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Settlement.Timezone = "UTC"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDatabaseConfig_DSNFromFields(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())
}
