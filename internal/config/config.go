package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix namespaces every environment override
const EnvPrefix = "RUANGKELAS_"

// MinSecretLength is the shortest session secret Validate accepts
const MinSecretLength = 16

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database   *DatabaseConfig   `json:"database"`
	HTTP       *HTTPConfig       `json:"http"`
	WebSocket  *WebSocketConfig  `json:"websocket"`
	Auth       *AuthConfig       `json:"auth"`
	Discussion *DiscussionConfig `json:"discussion"`
	RateLimit  *RateLimitConfig  `json:"rate_limit"`
	Log        *LogConfig        `json:"log"`
}

// DatabaseConfig holds the SQLite location of the user directory and catalog
type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port        int           `json:"port"`
	ReadTimeout time.Duration `json:"read_timeout"`
	Host        string        `json:"host"`
}

// FUNCTIONAL DISCOVERY: WebSocket configuration optimized for classroom scenarios
// PongTimeout bounds how long a silent peer survives after a ping
type WebSocketConfig struct {
	PingInterval   time.Duration `json:"ping_interval"`
	PongTimeout    time.Duration `json:"pong_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	BufferSize     int           `json:"buffer_size"`
	MaxMessageSize int64         `json:"max_message_size"`
}

type AuthConfig struct {
	SessionSecret string        `json:"-"`
	TokenTTL      time.Duration `json:"token_ttl"`
}

// DiscussionConfig sets how many entries are replayed when a topic is joined
type DiscussionConfig struct {
	RoomHistoryLimit     int `json:"room_history_limit"`
	MaterialHistoryLimit int `json:"material_history_limit"`
}

type RateLimitConfig struct {
	Messages int           `json:"messages"`
	Window   time.Duration `json:"window"`
}

type LogConfig struct {
	Debug bool `json:"debug"`
}

// FUNCTIONAL DISCOVERY: Production-ready defaults based on classroom requirements
// Database on local filesystem, HTTP on standard port, WebSocket with 30s heartbeat
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./data/ruangkelas.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:        8080,
			ReadTimeout: 30 * time.Second,
			Host:        "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval:   30 * time.Second,
			PongTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			BufferSize:     256,
			MaxMessageSize: 16 * 1024,
		},
		Auth: &AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Discussion: &DiscussionConfig{
			RoomHistoryLimit:     20,
			MaterialHistoryLimit: 50,
		},
		RateLimit: &RateLimitConfig{
			Messages: 30,
			Window:   10 * time.Second,
		},
		Log: &LogConfig{},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
// Critical for preventing runtime failures in production deployment
func (c *Config) Validate() error {
	if c.Database == nil || c.HTTP == nil || c.WebSocket == nil ||
		c.Auth == nil || c.Discussion == nil || c.RateLimit == nil || c.Log == nil {
		return fmt.Errorf("all configuration sections are required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	// port 0 binds an ephemeral port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.PongTimeout <= 0 {
		return fmt.Errorf("WebSocket pong timeout must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("WebSocket max message size must be positive")
	}

	// TECHNICAL DISCOVERY: an empty secret would let anyone mint valid tokens
	if len(c.Auth.SessionSecret) < MinSecretLength {
		return fmt.Errorf("session secret must be at least %d bytes (set %sSESSION_SECRET)", MinSecretLength, EnvPrefix)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}

	if c.Discussion.RoomHistoryLimit <= 0 || c.Discussion.MaterialHistoryLimit <= 0 {
		return fmt.Errorf("discussion history limits must be positive")
	}

	if c.RateLimit.Messages < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.RateLimit.Messages > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}

	return nil
}

// Address joins host and port for net/http
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment flexibility
// Unparseable values are ignored and the previous value kept
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	setString(&config.Database.Path, "DATABASE_PATH")
	setDuration(&config.Database.Timeout, "DATABASE_TIMEOUT")

	setString(&config.HTTP.Host, "HTTP_HOST")
	setInt(&config.HTTP.Port, "HTTP_PORT")
	setDuration(&config.HTTP.ReadTimeout, "HTTP_READ_TIMEOUT")

	setDuration(&config.WebSocket.PingInterval, "WEBSOCKET_PING_INTERVAL")
	setDuration(&config.WebSocket.PongTimeout, "WEBSOCKET_PONG_TIMEOUT")
	setDuration(&config.WebSocket.WriteTimeout, "WEBSOCKET_WRITE_TIMEOUT")
	setInt(&config.WebSocket.BufferSize, "WEBSOCKET_BUFFER_SIZE")

	setString(&config.Auth.SessionSecret, "SESSION_SECRET")
	setDuration(&config.Auth.TokenTTL, "TOKEN_TTL")

	setInt(&config.Discussion.RoomHistoryLimit, "ROOM_HISTORY_LIMIT")
	setInt(&config.Discussion.MaterialHistoryLimit, "MATERIAL_HISTORY_LIMIT")

	setInt(&config.RateLimit.Messages, "RATE_LIMIT_MESSAGES")
	setDuration(&config.RateLimit.Window, "RATE_LIMIT_WINDOW")

	if debug := os.Getenv(EnvPrefix + "DEBUG"); debug != "" {
		if v, err := strconv.ParseBool(debug); err == nil {
			config.Log.Debug = v
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Duration reads "30s"-style strings from TOML and JSON files
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// ConfigFile is the on-disk shape; zero values leave the underlying setting untouched
// FUNCTIONAL DISCOVERY: Separate struct for file parsing to handle duration strings
type ConfigFile struct {
	Database   *DatabaseConfigFile   `json:"database" toml:"database"`
	HTTP       *HTTPConfigFile       `json:"http" toml:"http"`
	WebSocket  *WebSocketConfigFile  `json:"websocket" toml:"websocket"`
	Auth       *AuthConfigFile       `json:"auth" toml:"auth"`
	Discussion *DiscussionConfigFile `json:"discussion" toml:"discussion"`
	RateLimit  *RateLimitConfigFile  `json:"rate_limit" toml:"rate_limit"`
	Log        *LogConfigFile        `json:"log" toml:"log"`
}

type DatabaseConfigFile struct {
	Path    string   `json:"path" toml:"path"`
	Timeout Duration `json:"timeout" toml:"timeout"`
}

type HTTPConfigFile struct {
	Port        int      `json:"port" toml:"port"`
	ReadTimeout Duration `json:"read_timeout" toml:"read_timeout"`
	Host        string   `json:"host" toml:"host"`
}

type WebSocketConfigFile struct {
	PingInterval   Duration `json:"ping_interval" toml:"ping_interval"`
	PongTimeout    Duration `json:"pong_timeout" toml:"pong_timeout"`
	WriteTimeout   Duration `json:"write_timeout" toml:"write_timeout"`
	BufferSize     int      `json:"buffer_size" toml:"buffer_size"`
	MaxMessageSize int64    `json:"max_message_size" toml:"max_message_size"`
}

type AuthConfigFile struct {
	SessionSecret string   `json:"session_secret" toml:"session_secret"`
	TokenTTL      Duration `json:"token_ttl" toml:"token_ttl"`
}

type DiscussionConfigFile struct {
	RoomHistoryLimit     int `json:"room_history_limit" toml:"room_history_limit"`
	MaterialHistoryLimit int `json:"material_history_limit" toml:"material_history_limit"`
}

type RateLimitConfigFile struct {
	Messages *int     `json:"messages" toml:"messages"`
	Window   Duration `json:"window" toml:"window"`
}

type LogConfigFile struct {
	Debug *bool `json:"debug" toml:"debug"`
}

// LoadFromFile reads a .toml file with go-toml, anything else as JSON,
// layers it over the defaults and validates the result
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := mergeFile(config, path); err != nil {
		return nil, err
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func mergeFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &file)
	} else {
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	file.apply(config)
	return nil
}

func (f *ConfigFile) apply(config *Config) {
	if db := f.Database; db != nil {
		overrideString(&config.Database.Path, db.Path)
		overrideDuration(&config.Database.Timeout, db.Timeout)
	}

	if h := f.HTTP; h != nil {
		overrideInt(&config.HTTP.Port, h.Port)
		overrideString(&config.HTTP.Host, h.Host)
		overrideDuration(&config.HTTP.ReadTimeout, h.ReadTimeout)
	}

	if ws := f.WebSocket; ws != nil {
		overrideDuration(&config.WebSocket.PingInterval, ws.PingInterval)
		overrideDuration(&config.WebSocket.PongTimeout, ws.PongTimeout)
		overrideDuration(&config.WebSocket.WriteTimeout, ws.WriteTimeout)
		overrideInt(&config.WebSocket.BufferSize, ws.BufferSize)
		if ws.MaxMessageSize > 0 {
			config.WebSocket.MaxMessageSize = ws.MaxMessageSize
		}
	}

	if a := f.Auth; a != nil {
		overrideString(&config.Auth.SessionSecret, a.SessionSecret)
		overrideDuration(&config.Auth.TokenTTL, a.TokenTTL)
	}

	if d := f.Discussion; d != nil {
		overrideInt(&config.Discussion.RoomHistoryLimit, d.RoomHistoryLimit)
		overrideInt(&config.Discussion.MaterialHistoryLimit, d.MaterialHistoryLimit)
	}

	if r := f.RateLimit; r != nil {
		// explicit 0 disables rate limiting
		if r.Messages != nil {
			config.RateLimit.Messages = *r.Messages
		}
		overrideDuration(&config.RateLimit.Window, r.Window)
	}

	if l := f.Log; l != nil && l.Debug != nil {
		config.Log.Debug = *l.Debug
	}
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func overrideDuration(dst *time.Duration, v Duration) {
	if v.Duration > 0 {
		*dst = v.Duration
	}
}

// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults
// A missing or unreadable file is reported; the caller decides whether that is fatal
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config := LoadFromEnv()

	if path != "" {
		if err := mergeFile(config, path); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
