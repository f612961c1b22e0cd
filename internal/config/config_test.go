package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// FUNCTIONAL VALIDATION TEST: Default configuration provides production-ready settings
func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if config.HTTP.Port != 3000 {
		t.Errorf("expected default port 3000, got %d", config.HTTP.Port)
	}
	if config.WebSocket.ReadTimeout <= config.WebSocket.PingInterval {
		t.Error("read timeout must exceed ping interval")
	}
	if config.Journal.Driver != JournalDriverSQLite {
		t.Errorf("expected sqlite journal by default, got %s", config.Journal.Driver)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative port", func(c *Config) { c.HTTP.Port = -1 }},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"read timeout below ping", func(c *Config) { c.WebSocket.ReadTimeout = time.Second }},
		{"zero buffer", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"negative rate", func(c *Config) { c.Relay.MessagesPerMinute = -5 }},
		{"unknown journal", func(c *Config) { c.Journal.Driver = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Journal.Path = "" }},
		{"redis without url", func(c *Config) { c.Journal.Driver = JournalDriverRedis }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"missing relay", func(c *Config) { c.Relay = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

// FUNCTIONAL VALIDATION TEST: Environment variable configuration loading
func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("CLASSLOCK_WEBSOCKET_PING_INTERVAL", "10s")
	t.Setenv("CLASSLOCK_RELAY_MESSAGES_PER_MINUTE", "0")
	t.Setenv("CLASSLOCK_JOURNAL_DRIVER", "none")
	t.Setenv("CLASSLOCK_API_TOKEN", "secret")

	config := LoadFromEnv()

	if config.HTTP.Port != 4000 {
		t.Errorf("expected PORT override 4000, got %d", config.HTTP.Port)
	}
	if config.WebSocket.PingInterval != 10*time.Second {
		t.Errorf("expected ping interval 10s, got %v", config.WebSocket.PingInterval)
	}
	if config.Relay.MessagesPerMinute != 0 {
		t.Errorf("expected rate limiting disabled, got %d", config.Relay.MessagesPerMinute)
	}
	if config.Journal.Driver != JournalDriverNone {
		t.Errorf("expected journal driver none, got %s", config.Journal.Driver)
	}
	if config.API.Token != "secret" {
		t.Errorf("expected API token from env, got %q", config.API.Token)
	}
}

func TestConfig_PrefixedPortWinsOverPORT(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("CLASSLOCK_HTTP_PORT", "5000")

	if port := LoadFromEnv().HTTP.Port; port != 5000 {
		t.Errorf("expected CLASSLOCK_HTTP_PORT to win, got %d", port)
	}
}

func TestConfig_InvalidEnvIgnored(t *testing.T) {
	t.Setenv("CLASSLOCK_HTTP_PORT", "not-a-number")
	t.Setenv("CLASSLOCK_HTTP_READ_TIMEOUT", "soon")

	config := LoadFromEnv()
	if config.HTTP.Port != 3000 {
		t.Errorf("invalid port should fall back to default, got %d", config.HTTP.Port)
	}
	if config.HTTP.ReadTimeout != 30*time.Second {
		t.Errorf("invalid timeout should fall back to default, got %v", config.HTTP.ReadTimeout)
	}
}

func TestConfig_LoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classlock.json")
	content := `{
		"http": {"port": 9090, "read_timeout": "15s"},
		"relay": {"messages_per_minute": 0},
		"journal": {"driver": "none"},
		"log": {"format": "text"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if config.HTTP.Port != 9090 || config.HTTP.ReadTimeout != 15*time.Second {
		t.Errorf("http section not applied: %+v", config.HTTP)
	}
	if config.Relay.MessagesPerMinute != 0 {
		t.Errorf("explicit zero rate should be honoured, got %d", config.Relay.MessagesPerMinute)
	}
	if config.Log.Format != "text" {
		t.Errorf("expected text log format, got %s", config.Log.Format)
	}
}

func TestConfig_LoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classlock.yaml")
	content := "http:\n  port: 7070\nwebsocket:\n  ping_interval: 5s\n  read_timeout: 20s\njournal:\n  driver: redis\n  redis_url: redis://localhost:6379/0\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if config.HTTP.Port != 7070 {
		t.Errorf("expected port 7070, got %d", config.HTTP.Port)
	}
	if config.WebSocket.PingInterval != 5*time.Second || config.WebSocket.ReadTimeout != 20*time.Second {
		t.Errorf("websocket section not applied: %+v", config.WebSocket)
	}
	if config.Journal.Driver != JournalDriverRedis || config.Journal.RedisURL == "" {
		t.Errorf("journal section not applied: %+v", config.Journal)
	}
}

func TestConfig_LoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadFromFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"http": {"read_timeout": "later"}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("expected error for unparseable duration")
	}
}

func TestConfig_LoadPrecedence(t *testing.T) {
	dir := t.TempDir()

	dotenv := filepath.Join(dir, ".env")
	if err := os.WriteFile(dotenv, []byte("CLASSLOCK_LOG_LEVEL=debug\nCLASSLOCK_HTTP_PORT=4100\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	file := filepath.Join(dir, "classlock.json")
	if err := os.WriteFile(file, []byte(`{"http": {"port": 4200}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("CLASSLOCK_LOG_LEVEL")
		os.Unsetenv("CLASSLOCK_HTTP_PORT")
	})

	config, err := Load(dotenv, file)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.HTTP.Port != 4200 {
		t.Errorf("file should win over env, got port %d", config.HTTP.Port)
	}
	if config.Log.Level != "debug" {
		t.Errorf(".env value should apply, got level %s", config.Log.Level)
	}
}

func TestConfig_MissingDotEnvIsFine(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing .env should not fail: %v", err)
	}
}
