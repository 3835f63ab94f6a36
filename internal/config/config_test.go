package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPEN_LEAD", "")
	t.Setenv("CLOSE_GRACE", "")
	t.Setenv("CAMPUS_TZ", "")

	cfg := Load()
	assert.Equal(t, 5*time.Minute, cfg.OpenLead)
	assert.Equal(t, time.Minute, cfg.CloseGrace)
	assert.Equal(t, "Asia/Manila", cfg.CampusTZ)
	assert.False(t, cfg.Production())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Manila", loc.String())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("SWEEP_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("ACCESS_TTL", "not-a-duration")

	cfg := Load()
	assert.True(t, cfg.Production())
	assert.Equal(t, time.Minute, cfg.SweepEvery)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.Equal(t, 12*time.Hour, cfg.AccessTTL)
}

func TestLocation_Invalid(t *testing.T) {
	_, err := App{CampusTZ: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}
