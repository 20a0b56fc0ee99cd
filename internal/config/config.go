// Package config loads game.yaml, overlays HOLOQUEST_* environment
// variables, and resolves secrets.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the server looks for its config.
const DefaultPath = "config/game.yaml"

type Config struct {
	Version int `yaml:"version"`
	Room    struct {
		ID   string `yaml:"id" env:"HOLOQUEST_ROOM_ID"`
		Name string `yaml:"name" env:"HOLOQUEST_ROOM_NAME"`
	} `yaml:"room"`
	Game      GameConfig      `yaml:"game"`
	Skill     SkillConfig     `yaml:"skill"`
	Network   NetworkConfig   `yaml:"network"`
	Storage   StorageConfig   `yaml:"storage"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Resolved by ResolveSecrets; never read from YAML.
	Auth AuthConfig `yaml:"-"`
}

type GameConfig struct {
	InitialLevel  string        `yaml:"initial_level" env:"HOLOQUEST_INITIAL_LEVEL"`
	Difficulty    int           `yaml:"difficulty" env:"HOLOQUEST_DIFFICULTY"`
	LevelsDir     string        `yaml:"levels_dir" env:"HOLOQUEST_LEVELS_DIR"`
	AssetsDir     string        `yaml:"assets_dir" env:"HOLOQUEST_ASSETS_DIR"`
	WatchLevels   bool          `yaml:"watch_levels" env:"HOLOQUEST_WATCH_LEVELS"`
	FrameInterval time.Duration `yaml:"frame_interval" env:"HOLOQUEST_FRAME_INTERVAL"`
	// TimerClock is "wall" (timers run while paused) or "game".
	TimerClock    string        `yaml:"timer_clock" env:"HOLOQUEST_TIMER_CLOCK"`
	CompanionIdle time.Duration `yaml:"companion_idle" env:"HOLOQUEST_COMPANION_IDLE"`
}

type SkillConfig struct {
	Fast         time.Duration `yaml:"fast" env:"HOLOQUEST_SKILL_FAST"`
	Slow         time.Duration `yaml:"slow" env:"HOLOQUEST_SKILL_SLOW"`
	Window       int           `yaml:"window" env:"HOLOQUEST_SKILL_WINDOW"`
	RestoreLimit int           `yaml:"restore_limit" env:"HOLOQUEST_SKILL_RESTORE_LIMIT"`
}

type NetworkConfig struct {
	APIPort int    `yaml:"api_port" env:"HOLOQUEST_API_PORT"`
	TLSCert string `yaml:"tls_cert" env:"HOLOQUEST_TLS_CERT"`
	TLSKey  string `yaml:"tls_key" env:"HOLOQUEST_TLS_KEY"`
}

type StorageConfig struct {
	// Driver is "postgres", "sqlite" or "none".
	Driver     string `yaml:"driver" env:"HOLOQUEST_STORAGE_DRIVER"`
	SQLitePath string `yaml:"sqlite_path" env:"HOLOQUEST_SQLITE_PATH"`
	Postgres   struct {
		Host     string `yaml:"host" env:"HOLOQUEST_PG_HOST"`
		Port     string `yaml:"port" env:"HOLOQUEST_PG_PORT"`
		User     string `yaml:"user" env:"HOLOQUEST_PG_USER"`
		Database string `yaml:"database" env:"HOLOQUEST_PG_DATABASE"`
		SSLMode  string `yaml:"sslmode" env:"HOLOQUEST_PG_SSLMODE"`
		Password string `yaml:"-"`
	} `yaml:"postgres"`
	// Topics journaled; empty means every topic.
	Topics []string `yaml:"topics" env:"HOLOQUEST_JOURNAL_TOPICS" envSeparator:","`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker" env:"HOLOQUEST_MQTT_BROKER"`
	ClientID    string `yaml:"client_id" env:"HOLOQUEST_MQTT_CLIENT_ID"`
	TopicPrefix string `yaml:"topic_prefix" env:"HOLOQUEST_MQTT_PREFIX"`
	Username    string `yaml:"username" env:"HOLOQUEST_MQTT_USERNAME"`
	Password    string `yaml:"-"`
}

type LoggingConfig struct {
	Level string `yaml:"level" env:"HOLOQUEST_LOG_LEVEL"`
}

type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint" env:"HOLOQUEST_OTEL_ENDPOINT"`
	Service  string `yaml:"service" env:"HOLOQUEST_OTEL_SERVICE"`
}

// AuthConfig holds the operator API credentials.
type AuthConfig struct {
	AdminUser    string
	AdminPass    string
	OperatorUser string
	OperatorPass string
}

// Default returns a config that runs the built-in levels with no external
// services.
func Default() *Config {
	cfg := &Config{Version: 1}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Room.ID == "" {
		c.Room.ID = "holoquest"
	}
	if c.Game.FrameInterval <= 0 {
		c.Game.FrameInterval = 16 * time.Millisecond
	}
	if c.Game.TimerClock == "" {
		c.Game.TimerClock = "wall"
	}
	if c.Network.APIPort == 0 {
		c.Network.APIPort = 8080
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "none"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/holoquest.db"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "holoquest-" + c.Room.ID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "holoquest/" + c.Room.ID
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Telemetry.Service == "" {
		c.Telemetry.Service = "holoquest"
	}
}

// Validate checks values the defaults cannot fix.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported game.yaml version: %d", c.Version)
	}
	switch c.Storage.Driver {
	case "postgres", "sqlite", "none":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Game.TimerClock {
	case "wall", "game":
	default:
		return fmt.Errorf("unknown timer_clock %q", c.Game.TimerClock)
	}
	if c.Game.Difficulty < 0 || c.Game.Difficulty > 3 {
		return fmt.Errorf("difficulty must be between 0 and 3, got %d", c.Game.Difficulty)
	}
	if (c.Network.TLSCert == "") != (c.Network.TLSKey == "") {
		return fmt.Errorf("tls_cert and tls_key must be set together")
	}
	if c.Skill.Fast > 0 && c.Skill.Slow > 0 && c.Skill.Fast >= c.Skill.Slow {
		return fmt.Errorf("skill.fast (%s) must be shorter than skill.slow (%s)", c.Skill.Fast, c.Skill.Slow)
	}
	return nil
}

// DifficultyHint returns the configured tier, or nil for "let the game
// decide".
func (c *Config) DifficultyHint() *int {
	if c.Game.Difficulty == 0 {
		return nil
	}
	d := c.Game.Difficulty
	return &d
}

// Load reads path, overlays the environment and resolves secrets. A missing
// file is not an error when allowMissing is set; the defaults are used.
func Load(path string, allowMissing bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && allowMissing:
		cfg.Version = 1
	default:
		return nil, err
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ResolveSecrets(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveSecrets fills credentials through the *_FILE convention.
func (c *Config) ResolveSecrets() error {
	targets := []struct {
		env string
		dst *string
	}{
		{"HOLOQUEST_ADMIN_USER", &c.Auth.AdminUser},
		{"HOLOQUEST_ADMIN_PASS", &c.Auth.AdminPass},
		{"HOLOQUEST_OPERATOR_USER", &c.Auth.OperatorUser},
		{"HOLOQUEST_OPERATOR_PASS", &c.Auth.OperatorPass},
		{"HOLOQUEST_PG_PASSWORD", &c.Storage.Postgres.Password},
		{"HOLOQUEST_MQTT_PASSWORD", &c.MQTT.Password},
	}
	for _, t := range targets {
		v, err := ResolveSecret(t.env)
		if err != nil {
			return err
		}
		if v != "" {
			*t.dst = v
		}
	}
	return nil
}

// JournalTopics returns the trimmed journal topic list.
func (c *Config) JournalTopics() []string {
	var out []string
	for _, t := range c.Storage.Topics {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
