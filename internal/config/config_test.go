package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func validConfig() *Config {
	config := DefaultConfig()
	config.Auth.SessionSecret = testSecret
	return config
}

// Functional Validation Tests - defaults

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Database.Path == "" {
		t.Error("Default database path should not be empty")
	}
	if config.HTTP.Port != 8080 {
		t.Errorf("Default HTTP port = %d", config.HTTP.Port)
	}
	if config.Discussion.RoomHistoryLimit != 20 || config.Discussion.MaterialHistoryLimit != 50 {
		t.Errorf("Default history limits = %+v", config.Discussion)
	}
	if config.RateLimit.Messages != 30 || config.RateLimit.Window != 10*time.Second {
		t.Errorf("Default rate limit = %+v", config.RateLimit)
	}
	if config.WebSocket.BufferSize != 256 {
		t.Errorf("Default buffer size = %d", config.WebSocket.BufferSize)
	}
}

func TestConfig_DefaultsRequireSecret(t *testing.T) {
	if err := DefaultConfig().Validate(); err == nil {
		t.Fatal("defaults without a session secret must not validate")
	}
	if err := validConfig().Validate(); err != nil {
		t.Errorf("defaults with a secret should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid port", func(c *Config) { c.HTTP.Port = -1 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"short secret", func(c *Config) { c.Auth.SessionSecret = "short" }},
		{"zero pong timeout", func(c *Config) { c.WebSocket.PongTimeout = 0 }},
		{"zero history limit", func(c *Config) { c.Discussion.RoomHistoryLimit = 0 }},
		{"negative rate limit", func(c *Config) { c.RateLimit.Messages = -1 }},
		{"missing section", func(c *Config) { c.Log = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfig_RateLimitCanBeDisabled(t *testing.T) {
	config := validConfig()
	config.RateLimit.Messages = 0
	config.RateLimit.Window = 0
	if err := config.Validate(); err != nil {
		t.Errorf("disabled rate limit should validate: %v", err)
	}
}

// Functional Validation Tests - environment

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("RUANGKELAS_HTTP_PORT", "9090")
	t.Setenv("RUANGKELAS_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("RUANGKELAS_SESSION_SECRET", testSecret)
	t.Setenv("RUANGKELAS_WEBSOCKET_PONG_TIMEOUT", "45s")
	t.Setenv("RUANGKELAS_RATE_LIMIT_MESSAGES", "5")
	t.Setenv("RUANGKELAS_DEBUG", "true")

	config := LoadFromEnv()

	if config.HTTP.Port != 9090 {
		t.Errorf("Expected HTTP port 9090, got %d", config.HTTP.Port)
	}
	if config.Database.Path != "/tmp/test.db" {
		t.Errorf("Expected database path /tmp/test.db, got %s", config.Database.Path)
	}
	if config.Auth.SessionSecret != testSecret {
		t.Error("session secret not read from environment")
	}
	if config.WebSocket.PongTimeout != 45*time.Second {
		t.Errorf("pong timeout = %v", config.WebSocket.PongTimeout)
	}
	if config.RateLimit.Messages != 5 || !config.Log.Debug {
		t.Errorf("rate limit / debug not applied: %+v %+v", config.RateLimit, config.Log)
	}
}

func TestConfig_LoadFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("RUANGKELAS_HTTP_PORT", "not-a-port")
	t.Setenv("RUANGKELAS_TOKEN_TTL", "forever")

	config := LoadFromEnv()
	if config.HTTP.Port != 8080 || config.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("garbage overrides should be ignored: port=%d ttl=%v", config.HTTP.Port, config.Auth.TokenTTL)
	}
}

// Technical Validation Tests - files

func TestConfig_LoadFromTOMLFile(t *testing.T) {
	path := writeConfigFile(t, "ruangkelas.toml", `
[database]
path = "/tmp/kelas.db"

[http]
port = 8081
read_timeout = "10s"

[auth]
session_secret = "`+testSecret+`"
token_ttl = "2h"

[discussion]
material_history_limit = 80

[rate_limit]
messages = 0
`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile should succeed: %v", err)
	}
	if config.Database.Path != "/tmp/kelas.db" || config.HTTP.Port != 8081 {
		t.Errorf("file values not applied: %+v %+v", config.Database, config.HTTP)
	}
	if config.HTTP.ReadTimeout != 10*time.Second || config.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("durations not parsed: read=%v ttl=%v", config.HTTP.ReadTimeout, config.Auth.TokenTTL)
	}
	if config.Discussion.MaterialHistoryLimit != 80 || config.Discussion.RoomHistoryLimit != 20 {
		t.Errorf("discussion limits = %+v", config.Discussion)
	}
	if config.RateLimit.Messages != 0 {
		t.Errorf("explicit zero should disable rate limiting, got %d", config.RateLimit.Messages)
	}
}

func TestConfig_LoadFromJSONFile(t *testing.T) {
	path := writeConfigFile(t, "config.json", `{
		"database": {"path": "/tmp/testfile.db", "timeout": "15s"},
		"auth": {"session_secret": "`+testSecret+`"},
		"websocket": {"ping_interval": "20s"}
	}`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile should succeed: %v", err)
	}
	if config.Database.Timeout != 15*time.Second || config.WebSocket.PingInterval != 20*time.Second {
		t.Errorf("JSON durations not parsed: %+v %+v", config.Database, config.WebSocket)
	}
}

func TestConfig_LoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file should fail")
	}

	broken := writeConfigFile(t, "broken.json", `{"database": {"path": "/tmp/x.db"`)
	if _, err := LoadFromFile(broken); err == nil {
		t.Error("invalid JSON should fail")
	}

	badDuration := writeConfigFile(t, "bad.toml", "[http]\nread_timeout = \"soon\"\n")
	if _, err := LoadFromFile(badDuration); err == nil {
		t.Error("invalid duration should fail")
	}

	noSecret := writeConfigFile(t, "nosecret.toml", "[http]\nport = 9000\n")
	_, err := LoadFromFile(noSecret)
	if err == nil || !strings.Contains(err.Error(), "session secret") {
		t.Errorf("file without secret should fail validation, got %v", err)
	}
}

// Functional Validation Tests - precedence

func TestConfig_ConfigurationPrecedence(t *testing.T) {
	t.Setenv("RUANGKELAS_HTTP_PORT", "7777")
	t.Setenv("RUANGKELAS_HTTP_HOST", "127.0.0.1")
	t.Setenv("RUANGKELAS_SESSION_SECRET", testSecret)

	path := writeConfigFile(t, "ruangkelas.toml", "[http]\nport = 9999\n")

	config, err := LoadConfigWithPrecedence(path)
	if err != nil {
		t.Fatalf("LoadConfigWithPrecedence failed: %v", err)
	}
	if config.HTTP.Port != 9999 {
		t.Errorf("file should override environment, got port %d", config.HTTP.Port)
	}
	if config.HTTP.Host != "127.0.0.1" {
		t.Errorf("environment should survive where the file is silent, got host %q", config.HTTP.Host)
	}
	if config.Address() != "127.0.0.1:9999" {
		t.Errorf("Address() = %q", config.Address())
	}
}

func TestConfig_PrecedenceWithoutFile(t *testing.T) {
	t.Setenv("RUANGKELAS_SESSION_SECRET", testSecret)

	config, err := LoadConfigWithPrecedence("")
	if err != nil {
		t.Fatalf("env-only config failed: %v", err)
	}
	if config.HTTP.Port != 8080 {
		t.Errorf("port = %d", config.HTTP.Port)
	}

	if _, err := LoadConfigWithPrecedence(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("an explicitly named missing file should be reported")
	}
}
