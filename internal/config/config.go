package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Identity modes.
const (
	AuthDev       = "dev"
	AuthTailscale = "tailscale"
	AuthJWT       = "jwt"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Progress  ProgressConfig  `yaml:"progress"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	// Mode selects how requests are mapped to users: dev, tailscale or jwt.
	Mode      string `yaml:"mode"`
	APIKey    string `yaml:"api_key"`
	JWTSecret string `yaml:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// ProgressConfig controls the local progress store and rest timers.
type ProgressConfig struct {
	StateDir     string        `yaml:"state_dir"`
	TickInterval time.Duration `yaml:"tick_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// SlogLevel maps log.level to a slog.Level. Unknown values mean info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix RESTSET_ and underscore-separated paths:
//
//	RESTSET_SERVER_HOST, RESTSET_SERVER_PORT,
//	RESTSET_DB_DRIVER, RESTSET_DB_HOST, RESTSET_DB_PORT, RESTSET_DB_NAME,
//	RESTSET_DB_USER, RESTSET_DB_PASSWORD, RESTSET_DB_SSLMODE,
//	RESTSET_AUTH_MODE, RESTSET_AUTH_API_KEY, RESTSET_AUTH_JWT_SECRET, RESTSET_AUTH_JWT_ISSUER,
//	RESTSET_TAILSCALE_ENABLED, RESTSET_TAILSCALE_HOSTNAME, RESTSET_TAILSCALE_STATE_DIR,
//	RESTSET_PROGRESS_STATE_DIR, RESTSET_PROGRESS_TICK_INTERVAL,
//	RESTSET_LOG_LEVEL
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("RESTSET_SERVER_HOST", &cfg.Server.Host)
	num("RESTSET_SERVER_PORT", &cfg.Server.Port)

	str("RESTSET_DB_DRIVER", &cfg.Database.Driver)
	str("RESTSET_DB_HOST", &cfg.Database.Host)
	num("RESTSET_DB_PORT", &cfg.Database.Port)
	str("RESTSET_DB_NAME", &cfg.Database.Name)
	str("RESTSET_DB_USER", &cfg.Database.User)
	str("RESTSET_DB_PASSWORD", &cfg.Database.Password)
	str("RESTSET_DB_SSLMODE", &cfg.Database.SSLMode)

	str("RESTSET_AUTH_MODE", &cfg.Auth.Mode)
	str("RESTSET_AUTH_API_KEY", &cfg.Auth.APIKey)
	str("RESTSET_AUTH_JWT_SECRET", &cfg.Auth.JWTSecret)
	str("RESTSET_AUTH_JWT_ISSUER", &cfg.Auth.JWTIssuer)

	if v := os.Getenv("RESTSET_TAILSCALE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
	str("RESTSET_TAILSCALE_HOSTNAME", &cfg.Tailscale.Hostname)
	str("RESTSET_TAILSCALE_STATE_DIR", &cfg.Tailscale.StateDir)

	str("RESTSET_PROGRESS_STATE_DIR", &cfg.Progress.StateDir)
	if v := os.Getenv("RESTSET_PROGRESS_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Progress.TickInterval = d
		}
	}

	str("RESTSET_LOG_LEVEL", &cfg.Log.Level)
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = AuthDev
		if c.Tailscale.Enabled {
			c.Auth.Mode = AuthTailscale
		}
	}
	if c.Tailscale.Hostname == "" {
		c.Tailscale.Hostname = "restset"
	}
	if c.Tailscale.StateDir == "" {
		c.Tailscale.StateDir = "tsnet-state"
	}
	if c.Progress.StateDir == "" {
		c.Progress.StateDir = "state"
	}
	if c.Progress.TickInterval <= 0 {
		c.Progress.TickInterval = time.Second
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Port == 0 {
			return fmt.Errorf("database.port is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	switch c.Auth.Mode {
	case AuthDev:
	case AuthTailscale:
		if !c.Tailscale.Enabled {
			return fmt.Errorf("auth.mode tailscale requires tailscale.enabled")
		}
	case AuthJWT:
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required in jwt mode")
		}
	default:
		return fmt.Errorf("auth.mode %q is not supported", c.Auth.Mode)
	}
	return nil
}
