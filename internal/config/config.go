// Package config loads toolwired settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/ggoodman/toolwire/socialgraph/redisgraph"
)

// Graph backends.
const (
	GraphMemory = "memory"
	GraphRedis  = "redis"
	GraphSQLite = "sqlite"
	GraphFile   = "file"
)

// Config is the server configuration. Every field can be set through the
// environment variable named in its tag; the CLI overrides some of them with
// flags.
type Config struct {
	Addr  string `env:"TOOLWIRE_ADDR,default=:8080"`
	Path  string `env:"TOOLWIRE_PATH,default=/ws"`
	Realm string `env:"TOOLWIRE_REALM"`

	LogLevel  string `env:"TOOLWIRE_LOG_LEVEL,default=info"`
	LogFormat string `env:"TOOLWIRE_LOG_FORMAT,default=text"`

	// JWT verification. With JWKSURL set keys come from that document; with
	// only Issuer set they come from OIDC discovery; otherwise JWTSecret is
	// used as an HS256 key.
	JWTSecret   string `env:"TOOLWIRE_JWT_SECRET"`
	JWTIssuer   string `env:"TOOLWIRE_JWT_ISSUER"`
	JWTAudience string `env:"TOOLWIRE_JWT_AUDIENCE"`
	JWKSURL     string `env:"TOOLWIRE_JWKS_URL"`
	// DevAuth accepts any token as the user id. Never enable it in production.
	DevAuth bool `env:"TOOLWIRE_DEV_AUTH,default=false"`

	Graph     string `env:"TOOLWIRE_GRAPH,default=memory"`
	SQLiteDSN string `env:"TOOLWIRE_SQLITE_DSN,default=toolwire.db"`
	GraphFile string `env:"TOOLWIRE_GRAPH_FILE,default=graph.json"`
	Redis     redisgraph.Config

	Heartbeat       time.Duration `env:"TOOLWIRE_HEARTBEAT,default=30s"`
	StaleAfter      time.Duration `env:"TOOLWIRE_STALE_AFTER,default=5m"`
	CleanupInterval time.Duration `env:"TOOLWIRE_CLEANUP_INTERVAL,default=1m"`
	AnnounceOffline bool          `env:"TOOLWIRE_ANNOUNCE_OFFLINE,default=true"`
	ShutdownTimeout time.Duration `env:"TOOLWIRE_SHUTDOWN_TIMEOUT,default=10s"`

	AllowedOrigins string `env:"TOOLWIRE_ALLOWED_ORIGINS"`
	ReadLimit      int64  `env:"TOOLWIRE_READ_LIMIT,default=65536"`
}

// Load decodes the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	var errs []error
	switch c.Graph {
	case GraphMemory, GraphRedis, GraphSQLite, GraphFile:
	default:
		errs = append(errs, fmt.Errorf("unknown graph backend %q", c.Graph))
	}
	if c.JWTSecret == "" && c.JWTIssuer == "" && c.JWKSURL == "" && !c.DevAuth {
		errs = append(errs, errors.New("no authentication configured: set TOOLWIRE_JWT_SECRET, TOOLWIRE_JWT_ISSUER or TOOLWIRE_JWKS_URL"))
	}
	if c.Heartbeat < 0 || c.StaleAfter < 0 || c.CleanupInterval < 0 {
		errs = append(errs, errors.New("intervals must not be negative"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Origins returns the allowed browser origins.
func (c Config) Origins() []string { return splitList(c.AllowedOrigins) }

// Audiences returns the accepted JWT audiences.
func (c Config) Audiences() []string { return splitList(c.JWTAudience) }

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}

// NewLogger builds the process logger writing to w.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	lvl, err := c.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
