package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "game.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const sample = `
version: 1
room:
  id: lab-2
  name: Lab Two
game:
  initial_level: celestial_forge
  difficulty: 2
  frame_interval: 33ms
  timer_clock: game
  companion_idle: 2m
skill:
  fast: 3m
  slow: 10m
network:
  api_port: 9090
storage:
  driver: sqlite
  sqlite_path: /var/lib/holoquest/journal.db
  topics: [stageStarted, stageCompleted]
mqtt:
  broker: tcp://broker:1883
`

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample), false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Room.ID != "lab-2" || cfg.Game.InitialLevel != "celestial_forge" {
		t.Errorf("unexpected room/game: %+v %+v", cfg.Room, cfg.Game)
	}
	if cfg.Game.FrameInterval != 33*time.Millisecond || cfg.Game.CompanionIdle != 2*time.Minute {
		t.Errorf("durations not parsed: %+v", cfg.Game)
	}
	if cfg.Network.APIPort != 9090 || cfg.Storage.Driver != "sqlite" {
		t.Errorf("unexpected network/storage: %+v %+v", cfg.Network, cfg.Storage)
	}
	if got := cfg.JournalTopics(); len(got) != 2 {
		t.Errorf("expected 2 journal topics, got %v", got)
	}
	if cfg.MQTT.TopicPrefix != "holoquest/lab-2" || cfg.MQTT.ClientID != "holoquest-lab-2" {
		t.Errorf("unexpected mqtt defaults: %+v", cfg.MQTT)
	}
	if hint := cfg.DifficultyHint(); hint == nil || *hint != 2 {
		t.Errorf("expected difficulty hint 2, got %v", hint)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("HOLOQUEST_API_PORT", "7070")
	t.Setenv("HOLOQUEST_INITIAL_LEVEL", "vault")
	t.Setenv("HOLOQUEST_PG_HOST", "db.internal")
	t.Setenv("HOLOQUEST_JOURNAL_TOPICS", "game:win, stageCompleted")

	cfg, err := Load(writeConfig(t, sample), false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.APIPort != 7070 || cfg.Game.InitialLevel != "vault" {
		t.Errorf("env not applied: %+v %+v", cfg.Network, cfg.Game)
	}
	if cfg.Storage.Postgres.Host != "db.internal" {
		t.Errorf("nested env not applied: %+v", cfg.Storage.Postgres)
	}
	if got := cfg.JournalTopics(); len(got) != 2 || got[0] != "game:win" || got[1] != "stageCompleted" {
		t.Errorf("unexpected topics %v", got)
	}
}

func TestSecretsResolved(t *testing.T) {
	t.Setenv("HOLOQUEST_ADMIN_USER", "admin")
	t.Setenv("HOLOQUEST_ADMIN_PASS_FILE", writeSecret(t, "hunter2\n"))
	t.Setenv("HOLOQUEST_MQTT_PASSWORD", "mqtt-secret")

	cfg, err := Load(writeConfig(t, sample), false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.AdminUser != "admin" || cfg.Auth.AdminPass != "hunter2" {
		t.Errorf("unexpected auth %+v", cfg.Auth)
	}
	if cfg.MQTT.Password != "mqtt-secret" {
		t.Error("mqtt password not resolved")
	}
}

func TestLoadMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")
	if _, err := Load(path, false); err == nil {
		t.Error("expected error for missing file")
	}
	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load with allowMissing: %v", err)
	}
	if cfg.Storage.Driver != "none" || cfg.Network.APIPort != 8080 || cfg.Game.TimerClock != "wall" {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if cfg.DifficultyHint() != nil {
		t.Error("expected no difficulty hint by default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"version", func(c *Config) { c.Version = 2 }, "unsupported game.yaml version"},
		{"driver", func(c *Config) { c.Storage.Driver = "mysql" }, "unknown storage driver"},
		{"clock", func(c *Config) { c.Game.TimerClock = "lunar" }, "unknown timer_clock"},
		{"difficulty", func(c *Config) { c.Game.Difficulty = 4 }, "difficulty"},
		{"tls", func(c *Config) { c.Network.TLSCert = "cert.pem" }, "tls_cert and tls_key"},
		{"skill", func(c *Config) { c.Skill.Fast, c.Skill.Slow = time.Hour, time.Minute }, "skill.fast"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}
