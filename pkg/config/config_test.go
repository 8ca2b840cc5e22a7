package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, 720*time.Hour, cfg.PlanDuration)
	assert.Equal(t, 48*time.Hour, cfg.GracePeriod)
	assert.Equal(t, "2990.00", cfg.PriceRegular)
	assert.Equal(t, "1.00", cfg.PriceBonus)
	assert.Equal(t, "RUB", cfg.Currency)
	assert.Equal(t, time.Hour, cfg.InviteTTL)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.True(t, cfg.OutboxProcessorEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PLAN_DURATION", "168h")
	t.Setenv("CHANNEL_ID", "-1001234567890")
	t.Setenv("BONUS_WINDOW_START", "2025-06-01T00:00:00Z")
	t.Setenv("BONUS_WINDOW_END", "2025-06-08T23:59:59Z")
	t.Setenv("OUTBOX_BATCH_SIZE", "25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 168*time.Hour, cfg.PlanDuration)
	assert.Equal(t, int64(-1001234567890), cfg.ChannelID)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), cfg.BonusWindowStart)
	assert.Equal(t, 25, cfg.OutboxBatchSize)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PLAN_DURATION", "not-a-duration")
	t.Setenv("CHANNEL_ID", "abc")
	t.Setenv("BONUS_WINDOW_START", "June 1st")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 720*time.Hour, cfg.PlanDuration)
	assert.Equal(t, int64(0), cfg.ChannelID)
	assert.True(t, cfg.BonusWindowStart.IsZero())
}
