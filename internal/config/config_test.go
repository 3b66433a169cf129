package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"STORE_BACKEND", "QUEUE_BACKEND", "DEVICE_AUTH", "RATE_LIMIT_PER_MIN", "REQUEST_TIMEOUT", "HTTP_PORT"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "memory", cfg.QueueBackend)
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.False(t, cfg.DeviceAuth)
	assert.Equal(t, 600, cfg.RateLimitPerMin)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("SELECTION_BACKEND", "redis")
	t.Setenv("DEVICE_AUTH", "true")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ACCESS_TTL", "15m")
	t.Setenv("APP_ENV", "production")

	cfg := Load()
	assert.Equal(t, "mongo", cfg.StoreBackend)
	assert.Equal(t, "redis", cfg.SelectionBackend)
	assert.True(t, cfg.DeviceAuth)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.True(t, cfg.Production())
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DEVICE_AUTH", "maybe")
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")
	t.Setenv("REFRESH_TTL", "forever")

	cfg := Load()
	assert.False(t, cfg.DeviceAuth)
	assert.Equal(t, 600, cfg.RateLimitPerMin)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTTL)
}

func TestLocation(t *testing.T) {
	assert.Equal(t, "UTC", App{Timezone: "UTC"}.Location().String())
	assert.Equal(t, "Asia/Kolkata", App{Timezone: "Asia/Kolkata"}.Location().String())
	assert.Equal(t, time.Local, App{Timezone: "Mars/Olympus"}.Location())
}
