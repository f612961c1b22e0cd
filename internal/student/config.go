package student

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"classlock/internal/config"
	"classlock/internal/keyblock"
	"classlock/internal/lockdown"
	"classlock/pkg/types"
)

// Config is the student agent configuration
type Config struct {
	RelayURL          string
	ClassCode         string
	StudentName       string
	HelperAddr        string
	HelperTimeout     time.Duration
	HelperPath        string
	AllowedNavigation []string // url substrings a locked window may still load
	LogLevel          string
	LogFormat         string
}

// DefaultConfig returns a config pointing at a local relay and the fixed helper port
func DefaultConfig() *Config {
	return &Config{
		RelayURL:          "ws://localhost:3000/ws",
		HelperAddr:        keyblock.DefaultAddr,
		HelperTimeout:     keyblock.DefaultTimeout,
		AllowedNavigation: append([]string(nil), lockdown.DefaultAllowedNavigation...),
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// LoadConfig reads the dotenv file (if present; .env when empty) and CLASSLOCK_STUDENT_* variables over the defaults
func LoadConfig(dotenvPath string) (*Config, error) {
	if err := config.LoadDotEnv(dotenvPath); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if v := os.Getenv("CLASSLOCK_STUDENT_RELAY_URL"); v != "" {
		cfg.RelayURL = v
	}
	if v := os.Getenv("CLASSLOCK_STUDENT_CLASS_CODE"); v != "" {
		cfg.ClassCode = v
	}
	if v := os.Getenv("CLASSLOCK_STUDENT_NAME"); v != "" {
		cfg.StudentName = v
	}
	if v := os.Getenv("CLASSLOCK_STUDENT_HELPER_ADDR"); v != "" {
		cfg.HelperAddr = v
	}
	if v := os.Getenv("CLASSLOCK_STUDENT_HELPER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("CLASSLOCK_STUDENT_HELPER_TIMEOUT: %w", err)
		}
		cfg.HelperTimeout = d
	}
	if v := os.Getenv("CLASSLOCK_STUDENT_HELPER_PATH"); v != "" {
		cfg.HelperPath = v
	}
	if v, ok := os.LookupEnv("CLASSLOCK_STUDENT_ALLOWED_NAVIGATION"); ok {
		cfg.AllowedNavigation = splitList(v)
	}
	if v := os.Getenv("CLASSLOCK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CLASSLOCK_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	return cfg, nil
}

// Validate checks the fields needed to join
func (c *Config) Validate() error {
	if c.RelayURL == "" {
		return errors.New("relay URL is required")
	}
	if !types.IsValidClassCode(c.ClassCode) {
		return types.ErrInvalidClassCode
	}
	if _, err := types.NormalizeName(c.StudentName); err != nil {
		return err
	}
	if c.HelperTimeout <= 0 {
		return errors.New("helper timeout must be positive")
	}
	return nil
}

// splitList parses a comma-separated list, dropping blank entries
func splitList(v string) []string {
	out := []string{}
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
