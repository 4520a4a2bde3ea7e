package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	defaultBroker = "localhost:9092"
	testAPIKey    = "kma-test-key"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("KMA_API_KEY", testAPIKey)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "weather-features", cfg.KafkaSinkTopic)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "https://apihub.kma.go.kr/api/typ01/url", cfg.KMABaseURL)
	assert.Equal(t, testAPIKey, cfg.KMAAPIKey)
	assert.Equal(t, "0", cfg.KMAStationID)
	assert.Equal(t, 30*time.Second, cfg.KMATimeout)
	assert.Equal(t, 24, cfg.KMACacheSize)
	assert.Equal(t, 10*time.Minute, cfg.ScheduleOffset)
	assert.Equal(t, time.Hour, cfg.TickLag)
	assert.False(t, cfg.RunOnStart)
	assert.Empty(t, cfg.ArchivePath)
	assert.Empty(t, cfg.ReferencePath)
}

func TestLoad_CustomEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SINK_TOPIC", "custom-sink")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("KMA_BASE_URL", "http://kma.local/api/")
	t.Setenv("KMA_STATION_ID", "108")
	t.Setenv("KMA_TIMEOUT", "5s")
	t.Setenv("KMA_CACHE_SIZE", "6")
	t.Setenv("SCHEDULE_OFFSET", "15m")
	t.Setenv("TICK_LAG", "2h")
	t.Setenv("RUN_ON_START", "true")
	t.Setenv("ARCHIVE_PATH", "/var/lib/features.db")
	t.Setenv("REFERENCE_PATH", "/etc/features/reference.yaml")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-sink", cfg.KafkaSinkTopic)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "http://kma.local/api", cfg.KMABaseURL)
	assert.Equal(t, "108", cfg.KMAStationID)
	assert.Equal(t, 5*time.Second, cfg.KMATimeout)
	assert.Equal(t, 6, cfg.KMACacheSize)
	assert.Equal(t, 15*time.Minute, cfg.ScheduleOffset)
	assert.Equal(t, 2*time.Hour, cfg.TickLag)
	assert.True(t, cfg.RunOnStart)
	assert.Equal(t, "/var/lib/features.db", cfg.ArchivePath)
	assert.Equal(t, "/etc/features/reference.yaml", cfg.ReferencePath)
}

func TestLoad_MissingAPIKey(t *testing.T) {
	t.Setenv("KMA_API_KEY", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KMA_API_KEY")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"SHUTDOWN_TIMEOUT", "-1s"},
		{"KMA_TIMEOUT", "bad"},
		{"KMA_TIMEOUT", "0s"},
		{"SCHEDULE_OFFSET", "90m"},
		{"SCHEDULE_OFFSET", "-5m"},
		{"TICK_LAG", "-1h"},
		{"KMA_CACHE_SIZE", "0"},
		{"KMA_CACHE_SIZE", "lots"},
		{"RUN_ON_START", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
