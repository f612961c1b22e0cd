package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Journal drivers
const (
	JournalDriverNone   = "none"
	JournalDriverSQLite = "sqlite"
	JournalDriverRedis  = "redis"
)

// Config is the relay's complete runtime configuration
// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and relay logic
type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Relay     *RelayConfig     `json:"relay"`
	Journal   *JournalConfig   `json:"journal"`
	API       *APIConfig       `json:"api"`
	Log       *LogConfig       `json:"log"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

// WebSocketConfig controls heartbeat and frame limits for relay connections
type WebSocketConfig struct {
	PingInterval    time.Duration `json:"ping_interval"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	BufferSize      int           `json:"buffer_size"`
	MaxMessageBytes int64         `json:"max_message_bytes"`
}

// RelayConfig tunes the single-threaded event loop
type RelayConfig struct {
	EventBuffer       int `json:"event_buffer"`
	MessagesPerMinute int `json:"messages_per_minute"` // 0 disables rate limiting
}

// JournalConfig selects the audit trail backend
type JournalConfig struct {
	Driver   string `json:"driver"`
	Path     string `json:"path"`
	RedisURL string `json:"redis_url"`
	Buffer   int    `json:"buffer"`
}

// APIConfig guards the read-only admin endpoints; an empty token disables them
type APIConfig struct {
	Token string `json:"token"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultConfig returns production-ready defaults for a single classroom relay
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Port:         3000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval:    25 * time.Second,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    5 * time.Second,
			BufferSize:      100,
			MaxMessageBytes: 64 * 1024,
		},
		Relay: &RelayConfig{
			EventBuffer:       1000,
			MessagesPerMinute: 600,
		},
		Journal: &JournalConfig{
			Driver: JournalDriverSQLite,
			Path:   "./classlock-journal.db",
			Buffer: 256,
		},
		API: &APIConfig{},
		Log: &LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate rejects configurations that would fail at runtime
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	// Port 0 binds an ephemeral port (tests, side-by-side relays)
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxMessageBytes <= 0 {
		return fmt.Errorf("WebSocket max message size must be positive")
	}

	if c.Relay == nil {
		return fmt.Errorf("relay configuration is required")
	}
	if c.Relay.EventBuffer <= 0 {
		return fmt.Errorf("relay event buffer must be positive")
	}
	if c.Relay.MessagesPerMinute < 0 {
		return fmt.Errorf("relay messages per minute cannot be negative")
	}

	if c.Journal == nil {
		return fmt.Errorf("journal configuration is required")
	}
	switch c.Journal.Driver {
	case JournalDriverNone:
	case JournalDriverSQLite:
		if c.Journal.Path == "" {
			return fmt.Errorf("sqlite journal requires a path")
		}
	case JournalDriverRedis:
		if c.Journal.RedisURL == "" {
			return fmt.Errorf("redis journal requires a redis URL")
		}
	default:
		return fmt.Errorf("unknown journal driver %q", c.Journal.Driver)
	}
	if c.Journal.Buffer <= 0 {
		return fmt.Errorf("journal buffer must be positive")
	}

	if c.API == nil {
		return fmt.Errorf("API configuration is required")
	}
	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log format must be json or text")
	}

	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv applies environment overrides on top of the defaults
// FUNCTIONAL DISCOVERY: PORT is honoured for platform deployments; CLASSLOCK_HTTP_PORT wins when both are set
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	envInt("PORT", &config.HTTP.Port)
	envInt("CLASSLOCK_HTTP_PORT", &config.HTTP.Port)
	envString("CLASSLOCK_HTTP_HOST", &config.HTTP.Host)
	envDuration("CLASSLOCK_HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("CLASSLOCK_HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)

	envDuration("CLASSLOCK_WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration("CLASSLOCK_WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	envDuration("CLASSLOCK_WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	envInt("CLASSLOCK_WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)
	if v := os.Getenv("CLASSLOCK_WEBSOCKET_MAX_MESSAGE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.WebSocket.MaxMessageBytes = n
		}
	}

	envInt("CLASSLOCK_RELAY_EVENT_BUFFER", &config.Relay.EventBuffer)
	envInt("CLASSLOCK_RELAY_MESSAGES_PER_MINUTE", &config.Relay.MessagesPerMinute)

	envString("CLASSLOCK_JOURNAL_DRIVER", &config.Journal.Driver)
	envString("CLASSLOCK_JOURNAL_PATH", &config.Journal.Path)
	envString("REDIS_URL", &config.Journal.RedisURL)
	envString("CLASSLOCK_JOURNAL_REDIS_URL", &config.Journal.RedisURL)
	envInt("CLASSLOCK_JOURNAL_BUFFER", &config.Journal.Buffer)

	envString("CLASSLOCK_API_TOKEN", &config.API.Token)

	envString("CLASSLOCK_LOG_LEVEL", &config.Log.Level)
	envString("CLASSLOCK_LOG_FORMAT", &config.Log.Format)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// ConfigFile represents the on-disk structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for parsing to handle duration strings;
// the same tags serve JSON and YAML files
type ConfigFile struct {
	HTTP *struct {
		Port         int    `json:"port" yaml:"port"`
		ReadTimeout  string `json:"read_timeout" yaml:"read_timeout"`
		WriteTimeout string `json:"write_timeout" yaml:"write_timeout"`
		Host         string `json:"host" yaml:"host"`
	} `json:"http" yaml:"http"`
	WebSocket *struct {
		PingInterval    string `json:"ping_interval" yaml:"ping_interval"`
		ReadTimeout     string `json:"read_timeout" yaml:"read_timeout"`
		WriteTimeout    string `json:"write_timeout" yaml:"write_timeout"`
		BufferSize      int    `json:"buffer_size" yaml:"buffer_size"`
		MaxMessageBytes int64  `json:"max_message_bytes" yaml:"max_message_bytes"`
	} `json:"websocket" yaml:"websocket"`
	Relay *struct {
		EventBuffer       int  `json:"event_buffer" yaml:"event_buffer"`
		MessagesPerMinute *int `json:"messages_per_minute" yaml:"messages_per_minute"`
	} `json:"relay" yaml:"relay"`
	Journal *struct {
		Driver   string `json:"driver" yaml:"driver"`
		Path     string `json:"path" yaml:"path"`
		RedisURL string `json:"redis_url" yaml:"redis_url"`
		Buffer   int    `json:"buffer" yaml:"buffer"`
	} `json:"journal" yaml:"journal"`
	API *struct {
		Token string `json:"token" yaml:"token"`
	} `json:"api" yaml:"api"`
	Log *struct {
		Level  string `json:"level" yaml:"level"`
		Format string `json:"format" yaml:"format"`
	} `json:"log" yaml:"log"`
}

// LoadFromFile reads a JSON or YAML (by extension) config file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if f := file.HTTP; f != nil {
		if f.Port > 0 {
			config.HTTP.Port = f.Port
		}
		if f.Host != "" {
			config.HTTP.Host = f.Host
		}
		if err := parseDuration(f.ReadTimeout, &config.HTTP.ReadTimeout); err != nil {
			return fmt.Errorf("http.read_timeout: %w", err)
		}
		if err := parseDuration(f.WriteTimeout, &config.HTTP.WriteTimeout); err != nil {
			return fmt.Errorf("http.write_timeout: %w", err)
		}
	}

	if f := file.WebSocket; f != nil {
		if f.BufferSize > 0 {
			config.WebSocket.BufferSize = f.BufferSize
		}
		if f.MaxMessageBytes > 0 {
			config.WebSocket.MaxMessageBytes = f.MaxMessageBytes
		}
		if err := parseDuration(f.PingInterval, &config.WebSocket.PingInterval); err != nil {
			return fmt.Errorf("websocket.ping_interval: %w", err)
		}
		if err := parseDuration(f.ReadTimeout, &config.WebSocket.ReadTimeout); err != nil {
			return fmt.Errorf("websocket.read_timeout: %w", err)
		}
		if err := parseDuration(f.WriteTimeout, &config.WebSocket.WriteTimeout); err != nil {
			return fmt.Errorf("websocket.write_timeout: %w", err)
		}
	}

	if f := file.Relay; f != nil {
		if f.EventBuffer > 0 {
			config.Relay.EventBuffer = f.EventBuffer
		}
		if f.MessagesPerMinute != nil {
			config.Relay.MessagesPerMinute = *f.MessagesPerMinute
		}
	}

	if f := file.Journal; f != nil {
		if f.Driver != "" {
			config.Journal.Driver = f.Driver
		}
		if f.Path != "" {
			config.Journal.Path = f.Path
		}
		if f.RedisURL != "" {
			config.Journal.RedisURL = f.RedisURL
		}
		if f.Buffer > 0 {
			config.Journal.Buffer = f.Buffer
		}
	}

	if f := file.API; f != nil && f.Token != "" {
		config.API.Token = f.Token
	}

	if f := file.Log; f != nil {
		if f.Level != "" {
			config.Log.Level = f.Level
		}
		if f.Format != "" {
			config.Log.Format = f.Format
		}
	}

	return nil
}

func parseDuration(s string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// Load resolves configuration with precedence file > environment (.env included) > defaults
func Load(dotenvPath, filePath string) (*Config, error) {
	if err := LoadDotEnv(dotenvPath); err != nil {
		return nil, err
	}

	config := LoadFromEnv()

	if filePath != "" {
		if err := applyFile(config, filePath); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
