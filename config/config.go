// Package config loads service configuration from the environment, after
// merging an optional dotenv file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"taengine/internal/indicator"
	"taengine/internal/numeric"
)

// DefaultIndicators is used when INDICATOR_CONFIGS is empty.
const DefaultIndicators = "SMA:9,SMA:20,EMA:9,EMA:21,RSI:14,MACD:12:26:9,BB:20:2,STOCH:14:3,ATR:14"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string // empty disables SQLite
	HTTPAddr      string // /metrics, /healthz and /reload

	// Streams
	BarStream     string // bar input stream
	BarStartID    string // overrides the restored cursor when set
	LiveChannel   string // PubSub channel of forming bars, empty disables previews
	ConfigChannel string // PubSub channel of indicator set updates
	ResultPrefix  string
	ResultMaxLen  int64

	// Checkpoints
	SnapshotKey      string
	SnapshotInterval time.Duration
	SnapshotTTL      time.Duration
	SnapshotKeep     int

	NumericScale int32
	LogLevel     string
	Indicators   []indicator.Spec
}

// Load merges the dotenv file named by ENV_FILE (default ".env"; a missing
// file is ignored) into the environment and reads the configuration.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", envFile, err)
	}
	return FromEnv()
}

// FromEnv reads the configuration from the current environment.
func FromEnv() (*Config, error) {
	p := &parser{}
	c := &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       p.int("REDIS_DB", 0),
		SQLitePath:    os.Getenv("SQLITE_PATH"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":9095"),

		BarStream:     getEnv("BAR_STREAM", "bars"),
		BarStartID:    os.Getenv("BAR_START_ID"),
		LiveChannel:   os.Getenv("LIVE_BAR_CHANNEL"),
		ConfigChannel: getEnv("CONFIG_CHANNEL", "config:indicators"),
		ResultPrefix:  getEnv("RESULT_STREAM_PREFIX", "ind"),
		ResultMaxLen:  int64(p.int("RESULT_STREAM_MAXLEN", 10000)),

		SnapshotKey:      getEnv("SNAPSHOT_KEY", "ind:snapshot:engine"),
		SnapshotInterval: time.Duration(p.int("SNAPSHOT_INTERVAL_SEC", 30)) * time.Second,
		SnapshotTTL:      time.Duration(p.int("SNAPSHOT_TTL_SEC", 86400)) * time.Second,
		SnapshotKeep:     p.int("SNAPSHOT_KEEP", 10),

		NumericScale: int32(p.int("NUMERIC_SCALE", int(numeric.DefaultScale))),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if c.SnapshotInterval <= 0 {
		return nil, fmt.Errorf("config: SNAPSHOT_INTERVAL_SEC must be positive")
	}
	if c.NumericScale < 0 || c.NumericScale > numeric.MaxScale {
		return nil, fmt.Errorf("config: NUMERIC_SCALE %d outside [0, %d]", c.NumericScale, numeric.MaxScale)
	}

	specs, err := ParseIndicatorSpecs(getEnv("INDICATOR_CONFIGS", DefaultIndicators))
	if err != nil {
		return nil, fmt.Errorf("config: INDICATOR_CONFIGS: %w", err)
	}
	c.Indicators = specs
	return c, nil
}

// ParseIndicatorSpecs parses a comma separated list such as
// "SMA:9,MACD:12:26:9,BB:20:2". Blank entries are ignored; the resulting
// set must be non-empty and free of duplicates.
func ParseIndicatorSpecs(s string) ([]indicator.Spec, error) {
	var specs []indicator.Spec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		spec, err := indicator.ParseSpec(part)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no indicators in %q", indicator.ErrInvalidParameter, s)
	}
	if err := indicator.ValidateSpecs(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// parser keeps the first integer parse error.
type parser struct{ err error }

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	return n
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
