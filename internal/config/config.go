package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers    []string
	KafkaSinkTopic  string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// KMA API Hub source feeds.
	KMABaseURL   string
	KMAAPIKey    string
	KMAStationID string
	KMATimeout   time.Duration
	KMACacheSize int

	// Scheduling. A tick runs every hour at ScheduleOffset past the hour and
	// covers the hour TickLag before that.
	ScheduleOffset time.Duration
	TickLag        time.Duration
	RunOnStart     bool

	// ArchivePath is the SQLite archive file; empty disables archiving.
	ArchivePath string
	// ReferencePath is an optional YAML override of the reference data.
	ReferencePath string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	kmaTimeout, err := parsePositiveDuration("KMA_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	offset, err := parseDuration("SCHEDULE_OFFSET", "10m")
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset >= time.Hour {
		return nil, errors.New("SCHEDULE_OFFSET must be within [0, 1h)")
	}

	lag, err := parseDuration("TICK_LAG", "1h")
	if err != nil {
		return nil, err
	}
	if lag < 0 {
		return nil, errors.New("TICK_LAG must not be negative")
	}

	cacheSize, err := parsePositiveInt("KMA_CACHE_SIZE", 24)
	if err != nil {
		return nil, err
	}

	runOnStart, err := parseBool("RUN_ON_START", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:  sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "weather-features"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KMABaseURL:   strings.TrimRight(sharedcfg.EnvOrDefault("KMA_BASE_URL", "https://apihub.kma.go.kr/api/typ01/url"), "/"),
		KMAAPIKey:    os.Getenv("KMA_API_KEY"),
		KMAStationID: sharedcfg.EnvOrDefault("KMA_STATION_ID", "0"),
		KMATimeout:   kmaTimeout,
		KMACacheSize: cacheSize,

		ScheduleOffset: offset,
		TickLag:        lag,
		RunOnStart:     runOnStart,

		ArchivePath:   os.Getenv("ARCHIVE_PATH"),
		ReferencePath: os.Getenv("REFERENCE_PATH"),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.KMAAPIKey == "" {
		return nil, errors.New("KMA_API_KEY is required")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := parseDuration(key, def)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
