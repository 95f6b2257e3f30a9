package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Scheduler.TickInterval)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.InterCallDelay)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, "call_status_events", cfg.Queue.CallEventsQueue)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.GetServerAddr())
	assert.False(t, cfg.App.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SCHEDULER_TICK_INTERVAL", "1s")
	t.Setenv("SCHEDULER_WORKERS", "8")
	t.Setenv("SCHEDULER_DEFAULT_TIMEZONE", "Europe/London")
	t.Setenv("DB_NAME", "engine")
	t.Setenv("APP_ENVIRONMENT", "production")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Scheduler.TickInterval)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, "Europe/London", cfg.Scheduler.Location().String())
	assert.Contains(t, cfg.Database.GetDatabaseURL(), "dbname=engine")
	assert.True(t, cfg.App.IsProduction())
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Run("workers", func(t *testing.T) {
		t.Setenv("SCHEDULER_WORKERS", "0")
		_, err := Load(context.Background())
		assert.Error(t, err)
	})

	t.Run("timezone", func(t *testing.T) {
		t.Setenv("SCHEDULER_DEFAULT_TIMEZONE", "Mars/Olympus")
		_, err := Load(context.Background())
		assert.Error(t, err)
	})
}
