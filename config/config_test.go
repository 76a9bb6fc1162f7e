package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CRM_SYNC_MODE", "")
	t.Setenv("CRM_TIMEOUT", "")

	cfg := Load()

	assert.Equal(t, SyncModeOutbox, cfg.CRM.SyncMode)
	assert.Equal(t, 5*time.Second, cfg.CRM.Timeout)
	assert.Equal(t, "alpineiq", cfg.Loyalty.Provider)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CRM_SYNC_MODE", "INLINE")
	t.Setenv("CRM_TIMEOUT", "750ms")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := Load()

	assert.Equal(t, SyncModeInline, cfg.CRM.SyncMode)
	assert.Equal(t, 750*time.Millisecond, cfg.CRM.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestGetDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("OUTBOX_POLL_INTERVAL", "soon")
	assert.Equal(t, time.Second, getDuration("OUTBOX_POLL_INTERVAL", time.Second))
}
