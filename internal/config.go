package internal

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the server settings.
type Config struct {
	Host string
	Port string
	// WSAddr enables the websocket gateway when non-empty.
	WSAddr string
	// HistoryLimit bounds the broadcast history, 0 keeps everything.
	HistoryLimit int
	// HistoryReplay is how many history lines a new session receives on join.
	HistoryReplay int
	LogLevel      string
	LogFile       string
	UI            bool
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		Host:     "localhost",
		Port:     "12345",
		LogLevel: "info",
		LogFile:  "chat.log",
	}
}

// LoadConfig applies .env files and CHAT_* environment variables over the defaults.
// Missing env files are ignored.
func LoadConfig(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := DefaultConfig()
	cfg.Host = getEnv("CHAT_HOST", cfg.Host)
	cfg.Port = getEnv("CHAT_PORT", cfg.Port)
	cfg.WSAddr = getEnv("CHAT_WS_ADDR", cfg.WSAddr)
	cfg.LogLevel = getEnv("CHAT_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("CHAT_LOG_FILE", cfg.LogFile)

	var err error
	if cfg.HistoryLimit, err = getEnvInt("CHAT_HISTORY_LIMIT", cfg.HistoryLimit); err != nil {
		return Config{}, err
	}
	if cfg.HistoryReplay, err = getEnvInt("CHAT_HISTORY_REPLAY", cfg.HistoryReplay); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if portNum, err := strconv.Atoi(c.Port); err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid port number: %s", c.Port)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history limit must not be negative: %d", c.HistoryLimit)
	}
	if c.HistoryReplay < 0 {
		return fmt.Errorf("history replay must not be negative: %d", c.HistoryReplay)
	}
	return nil
}

// Addr is the TCP bind address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// getEnv returns the value of the environment variable named by the key.
// If the variable is not set, it returns the fallback value.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
