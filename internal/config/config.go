package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the system-wide settings object, built once at startup and
// passed into the application wiring.
type Config struct {
	Env        string            `json:"env"`
	HTTP       *HTTPConfig       `json:"http"`
	WebSocket  *WebSocketConfig  `json:"websocket"`
	Rooms      *RoomConfig       `json:"rooms"`
	Moderation *ModerationConfig `json:"moderation"`
	Graph      *GraphConfig      `json:"graph"`
	RedisURL   string            `json:"redis_url"`
}

// HTTPConfig covers the shared HTTP server carrying the API, health,
// metrics and WebSocket endpoints.
type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// WebSocketConfig covers per-connection transport behaviour.
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
	// AllowReplace selects the duplicate-connect policy: true means
	// last-connect wins and the previous transport is closed, false
	// rejects the new connection with AlreadyConnected.
	AllowReplace bool `json:"allow_replace"`
}

// RoomConfig covers directory defaults and the capacity policy.
type RoomConfig struct {
	DefaultMaxMembers int `json:"default_max_members"`
	// EnforceCapacity decides whether MaxMembers rejects joins past the
	// limit or stays advisory. The original system never enforced it, so
	// advisory is the default.
	EnforceCapacity bool `json:"enforce_capacity"`
}

// ModerationConfig covers the external moderation collaborator.
type ModerationConfig struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
}

// GraphConfig covers the best-effort interaction mirror.
type GraphConfig struct {
	Path      string `json:"path"`
	QueueSize int    `json:"queue_size"`
}

// DefaultConfig returns production-usable defaults; everything runs with no
// external collaborators configured.
func DefaultConfig() *Config {
	return &Config{
		Env: "development",
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 5 * time.Second,
			BufferSize:   100,
			AllowReplace: true,
		},
		Rooms: &RoomConfig{
			DefaultMaxMembers: 10,
			EnforceCapacity:   false,
		},
		Moderation: &ModerationConfig{
			Timeout: 5 * time.Second,
		},
		Graph: &GraphConfig{
			Path:      "./studyroom.db",
			QueueSize: 256,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("http configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http timeouts must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.WebSocket == nil {
		return fmt.Errorf("websocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("websocket buffer size must be positive")
	}
	if c.Rooms == nil {
		return fmt.Errorf("rooms configuration is required")
	}
	if c.Rooms.DefaultMaxMembers <= 0 {
		return fmt.Errorf("rooms default max members must be positive")
	}
	if c.Moderation == nil {
		return fmt.Errorf("moderation configuration is required")
	}
	if c.Moderation.Timeout <= 0 {
		return fmt.Errorf("moderation timeout must be positive")
	}
	if c.Graph == nil {
		return fmt.Errorf("graph configuration is required")
	}
	if c.Graph.QueueSize <= 0 {
		return fmt.Errorf("graph queue size must be positive")
	}
	return nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// LoadFromEnv builds a config from defaults overridden by STUDYROOM_*
// environment variables. A .env file is loaded first when present.
func LoadFromEnv() *Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if env := os.Getenv("STUDYROOM_ENV"); env != "" {
		cfg.Env = env
	}
	if host := os.Getenv("STUDYROOM_HTTP_HOST"); host != "" {
		cfg.HTTP.Host = host
	}
	if port := os.Getenv("STUDYROOM_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.HTTP.Port = p
		}
	}
	setDuration(&cfg.HTTP.ReadTimeout, "STUDYROOM_HTTP_READ_TIMEOUT")
	setDuration(&cfg.HTTP.WriteTimeout, "STUDYROOM_HTTP_WRITE_TIMEOUT")
	setDuration(&cfg.WebSocket.PingInterval, "STUDYROOM_WS_PING_INTERVAL")
	setDuration(&cfg.WebSocket.ReadTimeout, "STUDYROOM_WS_READ_TIMEOUT")
	setDuration(&cfg.WebSocket.WriteTimeout, "STUDYROOM_WS_WRITE_TIMEOUT")
	if size := os.Getenv("STUDYROOM_WS_BUFFER_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			cfg.WebSocket.BufferSize = n
		}
	}
	if v := os.Getenv("STUDYROOM_WS_ALLOW_REPLACE"); v != "" {
		cfg.WebSocket.AllowReplace = v == "true" || v == "1"
	}
	if v := os.Getenv("STUDYROOM_ROOM_MAX_MEMBERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Rooms.DefaultMaxMembers = n
		}
	}
	if v := os.Getenv("STUDYROOM_ROOM_ENFORCE_CAPACITY"); v != "" {
		cfg.Rooms.EnforceCapacity = v == "true" || v == "1"
	}
	if url := os.Getenv("STUDYROOM_MODERATION_URL"); url != "" {
		cfg.Moderation.URL = url
	}
	setDuration(&cfg.Moderation.Timeout, "STUDYROOM_MODERATION_TIMEOUT")
	if path := os.Getenv("STUDYROOM_GRAPH_PATH"); path != "" {
		cfg.Graph.Path = path
	}
	if size := os.Getenv("STUDYROOM_GRAPH_QUEUE_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			cfg.Graph.QueueSize = n
		}
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.RedisURL = url
	}

	return cfg
}

func setDuration(dst *time.Duration, key string) {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			*dst = d
		}
	}
}

// configFile mirrors Config with string durations for JSON parsing.
type configFile struct {
	Env  string `json:"env"`
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval string `json:"ping_interval"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
		BufferSize   int    `json:"buffer_size"`
		AllowReplace *bool  `json:"allow_replace"`
	} `json:"websocket"`
	Rooms *struct {
		DefaultMaxMembers int   `json:"default_max_members"`
		EnforceCapacity   *bool `json:"enforce_capacity"`
	} `json:"rooms"`
	Moderation *struct {
		URL     string `json:"url"`
		Timeout string `json:"timeout"`
	} `json:"moderation"`
	Graph *struct {
		Path      string `json:"path"`
		QueueSize int    `json:"queue_size"`
	} `json:"graph"`
	RedisURL string `json:"redis_url"`
}

// LoadFromFile overlays a JSON config file on top of cfg and validates the
// result. Fields absent from the file keep their current values.
func LoadFromFile(path string, cfg *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if file.Env != "" {
		cfg.Env = file.Env
	}
	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			cfg.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port > 0 {
			cfg.HTTP.Port = file.HTTP.Port
		}
		parseDuration(&cfg.HTTP.ReadTimeout, file.HTTP.ReadTimeout)
		parseDuration(&cfg.HTTP.WriteTimeout, file.HTTP.WriteTimeout)
	}
	if file.WebSocket != nil {
		parseDuration(&cfg.WebSocket.PingInterval, file.WebSocket.PingInterval)
		parseDuration(&cfg.WebSocket.ReadTimeout, file.WebSocket.ReadTimeout)
		parseDuration(&cfg.WebSocket.WriteTimeout, file.WebSocket.WriteTimeout)
		if file.WebSocket.BufferSize > 0 {
			cfg.WebSocket.BufferSize = file.WebSocket.BufferSize
		}
		if file.WebSocket.AllowReplace != nil {
			cfg.WebSocket.AllowReplace = *file.WebSocket.AllowReplace
		}
	}
	if file.Rooms != nil {
		if file.Rooms.DefaultMaxMembers > 0 {
			cfg.Rooms.DefaultMaxMembers = file.Rooms.DefaultMaxMembers
		}
		if file.Rooms.EnforceCapacity != nil {
			cfg.Rooms.EnforceCapacity = *file.Rooms.EnforceCapacity
		}
	}
	if file.Moderation != nil {
		if file.Moderation.URL != "" {
			cfg.Moderation.URL = file.Moderation.URL
		}
		parseDuration(&cfg.Moderation.Timeout, file.Moderation.Timeout)
	}
	if file.Graph != nil {
		if file.Graph.Path != "" {
			cfg.Graph.Path = file.Graph.Path
		}
		if file.Graph.QueueSize > 0 {
			cfg.Graph.QueueSize = file.Graph.QueueSize
		}
	}
	if file.RedisURL != "" {
		cfg.RedisURL = file.RedisURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

func parseDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}

// Load resolves configuration with precedence file > environment > defaults.
// File errors fall back silently to the environment-derived config.
func Load(path string) *Config {
	cfg := LoadFromEnv()
	if path != "" {
		if fileCfg, err := LoadFromFile(path, cfg); err == nil {
			return fileCfg
		}
	}
	return cfg
}
