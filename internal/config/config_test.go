package config

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TOOLWIRE_DEV_AUTH", "true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Path != "/ws" || cfg.Graph != GraphMemory {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Heartbeat != 30*time.Second || cfg.StaleAfter != 5*time.Minute || !cfg.AnnounceOffline {
		t.Fatalf("unexpected session defaults: %+v", cfg)
	}
	if cfg.Redis.RedisAddr != "localhost:6379" {
		t.Fatalf("expected nested redis defaults, got %q", cfg.Redis.RedisAddr)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TOOLWIRE_JWT_SECRET", "s3cret")
	t.Setenv("TOOLWIRE_GRAPH", "sqlite")
	t.Setenv("TOOLWIRE_HEARTBEAT", "5s")
	t.Setenv("TOOLWIRE_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("TOOLWIRE_JWT_AUDIENCE", "web")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Graph != GraphSQLite || cfg.Heartbeat != 5*time.Second || cfg.Redis.RedisAddr != "redis:6380" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if got := cfg.Origins(); len(got) != 2 || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", got)
	}
	if got := cfg.Audiences(); len(got) != 1 || got[0] != "web" {
		t.Fatalf("unexpected audiences: %v", got)
	}
}

func TestValidate(t *testing.T) {
	base := Config{Graph: GraphMemory, JWTSecret: "x", LogLevel: "info", LogFormat: "text"}
	cases := []struct {
		name string
		mod  func(*Config)
		want string
	}{
		{"ok", func(*Config) {}, ""},
		{"bad graph", func(c *Config) { c.Graph = "neo4j" }, "unknown graph backend"},
		{"no auth", func(c *Config) { c.JWTSecret = "" }, "no authentication configured"},
		{"negative", func(c *Config) { c.Heartbeat = -time.Second }, "must not be negative"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "unknown log format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mod(&cfg)
			err := cfg.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := Config{LogLevel: "warn", LogFormat: "json"}.NewLogger(&buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	l.Info("quiet")
	l.Warn("loud")
	out := buf.String()
	if strings.Contains(out, "quiet") || !strings.Contains(out, `"msg":"loud"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}
