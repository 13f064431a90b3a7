package server

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/japaniel/autotext/pkg/protocol"
	"github.com/japaniel/autotext/pkg/wordbook"
)

// Config holds the tunable settings of the server.
type Config struct {
	// Addr is the TCP address to listen on.
	Addr string
	// MaxSessions optionally caps live sessions; 0 means no cap. While the
	// cap is reached the acceptor stops accepting and further peers wait in
	// the kernel backlog.
	MaxSessions int
	// ReadTimeout bounds a single wait for the next command; on expiry the
	// session checks whether it was asked to stop and waits again.
	ReadTimeout time.Duration
	// DrainWindow is the idle gap that ends a message.
	DrainWindow time.Duration
	// WriteTimeout bounds sending one response.
	WriteTimeout time.Duration
	BufferSize   int
	// SearchLimit is the number of suggestions per get.
	SearchLimit int
	// CommandRate limits commands per second per session; 0 disables it.
	CommandRate  float64
	CommandBurst int
	LogLevel     slog.Level
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:         ":7273",
		ReadTimeout:  time.Second,
		DrainWindow:  protocol.DefaultDrainWindow,
		WriteTimeout: 5 * time.Second,
		BufferSize:   protocol.DefaultBufferSize,
		SearchLimit:  wordbook.DefaultLimit,
		CommandBurst: 1,
		LogLevel:     slog.LevelInfo,
	}
}

// LoadConfig reads an optional .env file and then AUTOTEXT_* variables on
// top of DefaultConfig. Unparsable values fall back to the default.
func LoadConfig() *Config {
	_ = godotenv.Load()

	def := DefaultConfig()
	cfg := &Config{
		Addr:         getEnv("AUTOTEXT_ADDR", def.Addr),
		MaxSessions:  getEnvInt("AUTOTEXT_MAX_SESSIONS", def.MaxSessions),
		ReadTimeout:  getEnvDuration("AUTOTEXT_READ_TIMEOUT", def.ReadTimeout),
		DrainWindow:  getEnvDuration("AUTOTEXT_DRAIN_WINDOW", def.DrainWindow),
		WriteTimeout: getEnvDuration("AUTOTEXT_WRITE_TIMEOUT", def.WriteTimeout),
		BufferSize:   getEnvInt("AUTOTEXT_BUFFER_SIZE", def.BufferSize),
		SearchLimit:  getEnvInt("AUTOTEXT_SEARCH_LIMIT", def.SearchLimit),
		CommandRate:  getEnvFloat("AUTOTEXT_COMMAND_RATE", def.CommandRate),
		CommandBurst: getEnvInt("AUTOTEXT_COMMAND_BURST", def.CommandBurst),
		LogLevel:     getEnvLevel("AUTOTEXT_LOG_LEVEL", def.LogLevel),
	}
	if os.Getenv("DEBUG") != "" {
		cfg.LogLevel = slog.LevelDebug
	}
	return cfg
}

// Validate reports settings the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("config: empty listen address")
	case c.MaxSessions < 0:
		return fmt.Errorf("config: max sessions must not be negative, got %d", c.MaxSessions)
	case c.ReadTimeout <= 0:
		return fmt.Errorf("config: read timeout must be positive, got %v", c.ReadTimeout)
	case c.DrainWindow <= 0:
		return fmt.Errorf("config: drain window must be positive, got %v", c.DrainWindow)
	case c.BufferSize < 1:
		return fmt.Errorf("config: buffer size must be positive, got %d", c.BufferSize)
	case c.SearchLimit < 0:
		return fmt.Errorf("config: search limit must not be negative, got %d", c.SearchLimit)
	case c.CommandRate < 0:
		return fmt.Errorf("config: command rate must not be negative, got %v", c.CommandRate)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "error", err, "default", fallback)
		return fallback
	}
	return d
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("invalid int, using default", "key", key, "error", err, "default", fallback)
		return fallback
	}
	return i
}

func getEnvFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		slog.Warn("invalid number, using default", "key", key, "error", err, "default", fallback)
		return fallback
	}
	return f
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(val)); err != nil {
		slog.Warn("invalid log level, using default", "key", key, "error", err, "default", fallback)
		return fallback
	}
	return level
}
