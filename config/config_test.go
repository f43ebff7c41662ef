package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	body := `
server:
  port: 9000
  mode: separate
  status_port: 9001
database:
  driver: sqlite
  uri: file:test.db
debate:
  prep_duration: 10s
  turn_duration: 45s
  max_turns: 4
matchmaking:
  tick_interval: 500ms
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Server.Mode != ModeSeparate {
		t.Errorf("server section not applied: %+v", cfg.Server)
	}
	if cfg.Debate.PrepDuration != 10*time.Second || cfg.Debate.TurnDuration != 45*time.Second {
		t.Errorf("durations not decoded: %+v", cfg.Debate)
	}
	if cfg.Matchmaking.TickInterval != 500*time.Millisecond {
		t.Errorf("tick interval = %v", cfg.Matchmaking.TickInterval)
	}
	// untouched values keep their defaults
	if cfg.Debate.Tick != time.Second {
		t.Errorf("tick default lost: %v", cfg.Debate.Tick)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("DEBATE_MAX_TURNS", "8")
	t.Setenv("DEBATE_TURN_DURATION", "30s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Debate.MaxTurns != 8 {
		t.Errorf("max turns = %d, want 8", cfg.Debate.MaxTurns)
	}
	if cfg.Debate.TurnDuration != 30*time.Second {
		t.Errorf("turn duration = %v", cfg.Debate.TurnDuration)
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("DEBATE_PREP_DURATION", "soon")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"odd max turns", func(c *Config) { c.Debate.MaxTurns = 3 }},
		{"zero max turns", func(c *Config) { c.Debate.MaxTurns = 0 }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"unknown mode", func(c *Config) { c.Server.Mode = "split" }},
		{"same ports in separate mode", func(c *Config) {
			c.Server.Mode = ModeSeparate
			c.Server.StatusPort = c.Server.Port
		}},
		{"mongo without uri", func(c *Config) { c.Database.Driver = DriverMongo }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "cassandra" }},
		{"negative prep", func(c *Config) { c.Debate.PrepDuration = -time.Second }},
		{"zero turn duration", func(c *Config) { c.Debate.TurnDuration = 0 }},
		{"zero tick", func(c *Config) { c.Debate.Tick = 0 }},
		{"window inverted", func(c *Config) { c.Matchmaking.MaxWindow = 10 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestZeroPrepDurationIsValid(t *testing.T) {
	cfg := Default()
	cfg.Debate.PrepDuration = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("zero preparation should be allowed: %v", err)
	}
}
