// Package config is the settings layer: defaults, environment overrides, and
// an optional JSON file, in that precedence order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Room      *RoomConfig      `json:"room"`
	Game      *GameConfig      `json:"game"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Enabled bool          `json:"enabled"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`

	// Chat updates per second allowed per connection, with the given burst.
	ChatRate  float64 `json:"chat_rate"`
	ChatBurst int     `json:"chat_burst"`
}

type RoomConfig struct {
	MaxMembers     int           `json:"max_members"`
	MaxTextLength  int           `json:"max_text_length"` // runes
	EmptyRoomGrace time.Duration `json:"empty_room_grace"`
	SweepInterval  time.Duration `json:"sweep_interval"`
}

type GameConfig struct {
	IdleTimeout   time.Duration `json:"idle_timeout"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

// DefaultConfig returns a runnable single-node configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./talkomatic.db",
			Enabled: true,
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
			ChatRate:     20,
			ChatBurst:    40,
		},
		Room: &RoomConfig{
			MaxMembers:     5,
			MaxTextLength:  5000,
			EmptyRoomGrace: 15 * time.Second,
			SweepInterval:  5 * time.Second,
		},
		Game: &GameConfig{
			IdleTimeout:   30 * time.Minute,
			SweepInterval: time.Minute,
		},
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
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
	if c.WebSocket.ChatRate <= 0 || c.WebSocket.ChatBurst <= 0 {
		return fmt.Errorf("chat rate and burst must be positive")
	}

	if c.Room == nil {
		return fmt.Errorf("room configuration is required")
	}
	if c.Room.MaxMembers <= 0 {
		return fmt.Errorf("room max members must be positive")
	}
	if c.Room.MaxTextLength <= 0 {
		return fmt.Errorf("room max text length must be positive")
	}
	if c.Room.EmptyRoomGrace <= 0 {
		return fmt.Errorf("empty room grace must be positive")
	}
	if c.Room.SweepInterval <= 0 {
		return fmt.Errorf("room sweep interval must be positive")
	}

	if c.Game == nil {
		return fmt.Errorf("game configuration is required")
	}
	if c.Game.IdleTimeout <= 0 {
		return fmt.Errorf("game idle timeout must be positive")
	}
	if c.Game.SweepInterval <= 0 {
		return fmt.Errorf("game sweep interval must be positive")
	}

	return nil
}

// LoadFromEnv builds a config from defaults with TALKOMATIC_* environment
// overrides applied. Unparseable values fall back silently.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("TALKOMATIC_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("TALKOMATIC_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if dbPath := os.Getenv("TALKOMATIC_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if enabled := os.Getenv("TALKOMATIC_DATABASE_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Database.Enabled = b
		}
	}

	envDuration("TALKOMATIC_HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("TALKOMATIC_HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)
	envDuration("TALKOMATIC_DATABASE_TIMEOUT", &config.Database.Timeout)
	envDuration("TALKOMATIC_WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration("TALKOMATIC_WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	envDuration("TALKOMATIC_WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	envDuration("TALKOMATIC_ROOM_EMPTY_GRACE", &config.Room.EmptyRoomGrace)
	envDuration("TALKOMATIC_ROOM_SWEEP_INTERVAL", &config.Room.SweepInterval)
	envDuration("TALKOMATIC_GAME_IDLE_TIMEOUT", &config.Game.IdleTimeout)
	envDuration("TALKOMATIC_GAME_SWEEP_INTERVAL", &config.Game.SweepInterval)
	envInt("TALKOMATIC_WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)
	envInt("TALKOMATIC_ROOM_MAX_MEMBERS", &config.Room.MaxMembers)
	envInt("TALKOMATIC_ROOM_MAX_TEXT_LENGTH", &config.Room.MaxTextLength)

	if rate := os.Getenv("TALKOMATIC_CHAT_RATE"); rate != "" {
		if f, err := strconv.ParseFloat(rate, 64); err == nil {
			config.WebSocket.ChatRate = f
		}
	}
	envInt("TALKOMATIC_CHAT_BURST", &config.WebSocket.ChatBurst)

	return config
}

func envDuration(name string, dst *time.Duration) {
	if raw := os.Getenv(name); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			*dst = d
		}
	}
}

func envInt(name string, dst *int) {
	if raw := os.Getenv(name); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			*dst = n
		}
	}
}

// configFile mirrors Config with string durations for JSON files.
type configFile struct {
	Database *struct {
		Path    string `json:"path"`
		Enabled *bool  `json:"enabled"`
		Timeout string `json:"timeout"`
	} `json:"database"`
	HTTP *struct {
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
		Host         string `json:"host"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval string  `json:"ping_interval"`
		ReadTimeout  string  `json:"read_timeout"`
		WriteTimeout string  `json:"write_timeout"`
		BufferSize   int     `json:"buffer_size"`
		ChatRate     float64 `json:"chat_rate"`
		ChatBurst    int     `json:"chat_burst"`
	} `json:"websocket"`
	Room *struct {
		MaxMembers     int    `json:"max_members"`
		MaxTextLength  int    `json:"max_text_length"`
		EmptyRoomGrace string `json:"empty_room_grace"`
		SweepInterval  string `json:"sweep_interval"`
	} `json:"room"`
	Game *struct {
		IdleTimeout   string `json:"idle_timeout"`
		SweepInterval string `json:"sweep_interval"`
	} `json:"game"`
}

// LoadFromFile reads a JSON config file on top of the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var f configFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if f.Database != nil {
		if f.Database.Path != "" {
			config.Database.Path = f.Database.Path
		}
		if f.Database.Enabled != nil {
			config.Database.Enabled = *f.Database.Enabled
		}
		parseDuration(f.Database.Timeout, &config.Database.Timeout)
	}
	if f.HTTP != nil {
		if f.HTTP.Port > 0 {
			config.HTTP.Port = f.HTTP.Port
		}
		if f.HTTP.Host != "" {
			config.HTTP.Host = f.HTTP.Host
		}
		parseDuration(f.HTTP.ReadTimeout, &config.HTTP.ReadTimeout)
		parseDuration(f.HTTP.WriteTimeout, &config.HTTP.WriteTimeout)
	}
	if f.WebSocket != nil {
		if f.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = f.WebSocket.BufferSize
		}
		if f.WebSocket.ChatRate > 0 {
			config.WebSocket.ChatRate = f.WebSocket.ChatRate
		}
		if f.WebSocket.ChatBurst > 0 {
			config.WebSocket.ChatBurst = f.WebSocket.ChatBurst
		}
		parseDuration(f.WebSocket.PingInterval, &config.WebSocket.PingInterval)
		parseDuration(f.WebSocket.ReadTimeout, &config.WebSocket.ReadTimeout)
		parseDuration(f.WebSocket.WriteTimeout, &config.WebSocket.WriteTimeout)
	}
	if f.Room != nil {
		if f.Room.MaxMembers > 0 {
			config.Room.MaxMembers = f.Room.MaxMembers
		}
		if f.Room.MaxTextLength > 0 {
			config.Room.MaxTextLength = f.Room.MaxTextLength
		}
		parseDuration(f.Room.EmptyRoomGrace, &config.Room.EmptyRoomGrace)
		parseDuration(f.Room.SweepInterval, &config.Room.SweepInterval)
	}
	if f.Game != nil {
		parseDuration(f.Game.IdleTimeout, &config.Game.IdleTimeout)
		parseDuration(f.Game.SweepInterval, &config.Game.SweepInterval)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

func parseDuration(raw string, dst *time.Duration) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}

// LoadWithPrecedence resolves the effective config: defaults, then
// environment, then file when one is given and readable.
func LoadWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}
