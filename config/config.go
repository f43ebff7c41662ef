package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Server modes.
const (
	ModeCombined = "combined"
	ModeSeparate = "separate"
)

// Record store drivers.
const (
	DriverMongo    = "mongo"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		StatusPort   int           `yaml:"status_port"`
		Mode         string        `yaml:"mode"`
		CORSOrigins  []string      `yaml:"cors_origins"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`

	Database struct {
		Driver string `yaml:"driver"`
		URI    string `yaml:"uri"`
	} `yaml:"database"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	JWT struct {
		Secret string `yaml:"secret"`
	} `yaml:"jwt"`

	Gemini struct {
		APIKey  string        `yaml:"api_key"`
		Model   string        `yaml:"model"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"gemini"`

	Matchmaking MatchmakingConfig `yaml:"matchmaking"`
	Debate      DebateConfig      `yaml:"debate"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// MatchmakingConfig tunes the pairing loop and the rating window.
type MatchmakingConfig struct {
	TickInterval      time.Duration `yaml:"tick_interval"`
	BaseWindow        int           `yaml:"base_window"`
	WidenPerSecond    float64       `yaml:"widen_per_second"`
	MaxWindow         int           `yaml:"max_window"`
	FairnessThreshold time.Duration `yaml:"fairness_threshold"`
	MaxNotifyFailures int           `yaml:"max_notify_failures"`
}

// DebateConfig holds per-session timing and limits.
type DebateConfig struct {
	PrepDuration     time.Duration `yaml:"prep_duration"`
	TurnDuration     time.Duration `yaml:"turn_duration"`
	MaxTurns         int           `yaml:"max_turns"`
	DisconnectGrace  time.Duration `yaml:"disconnect_grace"`
	MaxContentLength int           `yaml:"max_content_length"`
	// Tick is the countdown resolution. One second outside of tests.
	Tick time.Duration `yaml:"tick"`
}

type WebSocketConfig struct {
	SendBuffer    int           `yaml:"send_buffer"`
	ReadLimit     int64         `yaml:"read_limit"`
	PingInterval  time.Duration `yaml:"ping_interval"`
	PongWait      time.Duration `yaml:"pong_wait"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
}

// Default returns a configuration that runs locally without any external service.
func Default() *Config {
	cfg := &Config{}

	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8765
	cfg.Server.StatusPort = 9765
	cfg.Server.Mode = ModeCombined
	cfg.Server.CORSOrigins = []string{"http://localhost:5173"}
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second

	cfg.Database.Driver = DriverMemory

	cfg.Gemini.Model = "gemini-2.5-flash"
	cfg.Gemini.Timeout = 30 * time.Second

	cfg.Matchmaking = MatchmakingConfig{
		TickInterval:      time.Second,
		BaseWindow:        100,
		WidenPerSecond:    10,
		MaxWindow:         3000,
		FairnessThreshold: 60 * time.Second,
		MaxNotifyFailures: 3,
	}

	cfg.Debate = DebateConfig{
		PrepDuration:     5 * time.Minute,
		TurnDuration:     2 * time.Minute,
		MaxTurns:         6,
		DisconnectGrace:  30 * time.Second,
		MaxContentLength: 1000,
		Tick:             time.Second,
	}

	cfg.WebSocket = WebSocketConfig{
		SendBuffer:    256,
		ReadLimit:     8192,
		PingInterval:  54 * time.Second,
		PongWait:      60 * time.Second,
		RatePerSecond: 5,
		Burst:         10,
	}

	cfg.Log.Level = "info"
	cfg.Log.Format = "console"

	return cfg
}

// LoadConfig reads the configuration file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	return cfg, nil
}

// Load resolves configuration with precedence defaults < file < environment.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("DEBATE_HOST", &cfg.Server.Host)
	num("DEBATE_PORT", &cfg.Server.Port)
	num("DEBATE_STATUS_PORT", &cfg.Server.StatusPort)
	str("DEBATE_SERVER_MODE", &cfg.Server.Mode)
	if v, ok := os.LookupEnv("DEBATE_CORS_ORIGINS"); ok {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	str("DEBATE_DB_DRIVER", &cfg.Database.Driver)
	str("DEBATE_DB_URI", &cfg.Database.URI)
	str("DEBATE_REDIS_ADDR", &cfg.Redis.Addr)
	str("DEBATE_REDIS_PASSWORD", &cfg.Redis.Password)
	str("DEBATE_JWT_SECRET", &cfg.JWT.Secret)
	str("DEBATE_GEMINI_API_KEY", &cfg.Gemini.APIKey)
	dur("DEBATE_PREP_DURATION", &cfg.Debate.PrepDuration)
	dur("DEBATE_TURN_DURATION", &cfg.Debate.TurnDuration)
	num("DEBATE_MAX_TURNS", &cfg.Debate.MaxTurns)
	dur("DEBATE_MATCH_TICK", &cfg.Matchmaking.TickInterval)
	str("DEBATE_LOG_LEVEL", &cfg.Log.Level)
	str("DEBATE_LOG_FORMAT", &cfg.Log.Format)

	// Render-style PORT wins over everything else.
	num("PORT", &cfg.Server.Port)

	return errors.Join(errs...)
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	switch c.Server.Mode {
	case ModeCombined:
	case ModeSeparate:
		if c.Server.StatusPort <= 0 || c.Server.StatusPort > 65535 {
			return fmt.Errorf("status port must be between 1 and 65535")
		}
		if c.Server.StatusPort == c.Server.Port {
			return fmt.Errorf("status port must differ from port in separate mode")
		}
	default:
		return fmt.Errorf("unknown server mode %q", c.Server.Mode)
	}

	switch c.Database.Driver {
	case DriverMemory:
	case DriverMongo, DriverSQLite, DriverPostgres:
		if c.Database.URI == "" {
			return fmt.Errorf("database uri is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Matchmaking.TickInterval <= 0 {
		return fmt.Errorf("matchmaking tick interval must be positive")
	}
	if c.Matchmaking.BaseWindow < 0 || c.Matchmaking.MaxWindow < c.Matchmaking.BaseWindow {
		return fmt.Errorf("matchmaking window must satisfy 0 <= base_window <= max_window")
	}
	if c.Matchmaking.WidenPerSecond < 0 {
		return fmt.Errorf("matchmaking widen_per_second cannot be negative")
	}

	d := c.Debate
	if d.MaxTurns <= 0 || d.MaxTurns%2 != 0 {
		return fmt.Errorf("debate max_turns must be a positive even number, got %d", d.MaxTurns)
	}
	if d.PrepDuration < 0 || d.TurnDuration <= 0 || d.DisconnectGrace < 0 {
		return fmt.Errorf("debate durations cannot be negative and turn_duration must be positive")
	}
	if d.Tick <= 0 {
		return fmt.Errorf("debate tick must be positive")
	}
	if d.MaxContentLength <= 0 {
		return fmt.Errorf("debate max_content_length must be positive")
	}

	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket send_buffer must be positive")
	}
	if c.WebSocket.RatePerSecond <= 0 || c.WebSocket.Burst <= 0 {
		return fmt.Errorf("websocket rate limit must be positive")
	}
	return nil
}
