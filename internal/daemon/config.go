// Package daemon manages the turnover service lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all daemon configuration.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	API       APIConfig       `toml:"api"`
	Storage   StorageConfig   `toml:"storage"`
	Evidence  EvidenceConfig  `toml:"evidence"`
	Lock      LockConfig      `toml:"lock"`
	Events    EventsConfig    `toml:"events"`
	Auth      AuthConfig      `toml:"auth"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Health    HealthConfig    `toml:"health"`
}

// NodeConfig identifies this instance.
type NodeConfig struct {
	ID          string `toml:"id"`
	Environment string `toml:"environment"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	MaxUpload string `toml:"max_upload"` // per evidence request, e.g. "64MB"
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver      string `toml:"driver"` // sqlite | postgres
	Dir         string `toml:"dir"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// EvidenceConfig selects where photos go.
type EvidenceConfig struct {
	Backend          string `toml:"backend"` // local | s3
	Dir              string `toml:"dir"`
	BaseURL          string `toml:"base_url"`
	S3Bucket         string `toml:"s3_bucket"`
	S3Region         string `toml:"s3_region"`
	S3Prefix         string `toml:"s3_prefix"`
	S3Endpoint       string `toml:"s3_endpoint"`
	S3PublicURL      string `toml:"s3_public_url"`
	BreakerThreshold int    `toml:"breaker_threshold"`
	BreakerTimeout   string `toml:"breaker_timeout"`
}

// LockConfig selects the per-workflow busy lock.
type LockConfig struct {
	Backend       string `toml:"backend"` // memory | redis
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	TTL           string `toml:"ttl"`
}

// EventsConfig controls event delivery.
type EventsConfig struct {
	Websocket     bool   `toml:"websocket"`
	NATSURL       string `toml:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	Enabled   bool   `toml:"enabled"`
	JWTSecret string `toml:"jwt_secret"` // empty = generated under $TURNOVER_HOME/keys
	TokenTTL  string `toml:"token_ttl"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // json | console
	File   string `toml:"file"`
}

// TelemetryConfig controls metrics and tracing.
type TelemetryConfig struct {
	Prometheus   bool    `toml:"prometheus"`
	OTLPEndpoint string  `toml:"otlp_endpoint"`
	SampleRatio  float64 `toml:"sample_ratio"`
}

// HealthConfig controls the background checker.
type HealthConfig struct {
	Interval string `toml:"interval"`
}

// DefaultConfig returns a configuration that runs on a single machine with
// no external services.
func DefaultConfig() Config {
	homeDir := turnoverHome()
	return Config{
		Node: NodeConfig{
			Environment: "development",
		},
		API: APIConfig{
			Host:      "127.0.0.1",
			Port:      8470,
			MaxUpload: "64MB",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Dir:    homeDir,
		},
		Evidence: EvidenceConfig{
			Backend:          "local",
			Dir:              filepath.Join(homeDir, "evidence"),
			BaseURL:          "/evidence",
			BreakerThreshold: 5,
			BreakerTimeout:   "30s",
		},
		Lock: LockConfig{
			Backend: "memory",
			TTL:     "2m",
		},
		Events: EventsConfig{
			Websocket:     true,
			SubjectPrefix: "turnover",
		},
		Auth: AuthConfig{
			TokenTTL: "12h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Prometheus:  true,
			SampleRatio: 1,
		},
		Health: HealthConfig{
			Interval: "30s",
		},
	}
}

// LoadConfig reads config from $TURNOVER_HOME/config.toml, falling back to
// defaults. Secrets may also come from the environment.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := ConfigPath()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TURNOVER_POSTGRES_DSN"); v != "" {
		cfg.Storage.Driver = "postgres"
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("TURNOVER_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("TURNOVER_REDIS_PASSWORD"); v != "" {
		cfg.Lock.RedisPassword = v
	}
}

// Validate rejects unknown backends and missing required settings.
func (c Config) Validate() error {
	var problems []string
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			problems = append(problems, "storage.postgres_dsn is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.driver %q (want sqlite or postgres)", c.Storage.Driver))
	}
	switch c.Evidence.Backend {
	case "local":
	case "s3":
		if c.Evidence.S3Bucket == "" {
			problems = append(problems, "evidence.s3_bucket is required for the s3 backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("evidence.backend %q (want local or s3)", c.Evidence.Backend))
	}
	switch c.Lock.Backend {
	case "memory":
	case "redis":
		if c.Lock.RedisAddr == "" {
			problems = append(problems, "lock.redis_addr is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("lock.backend %q (want memory or redis)", c.Lock.Backend))
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		problems = append(problems, fmt.Sprintf("api.port %d out of range", c.API.Port))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SaveConfig writes the config to $TURNOVER_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// ConfigPath is the config file location.
func ConfigPath() string {
	return filepath.Join(turnoverHome(), "config.toml")
}

// turnoverHome returns the data directory.
func turnoverHome() string {
	if env := os.Getenv("TURNOVER_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".turnover")
}

// Home is exported for use by other packages.
func Home() string {
	return turnoverHome()
}

// parseSize converts "64MB" to bytes. Simple parser for config.
func parseSize(s string, fallback int64) int64 {
	var val int64
	var unit string
	fmt.Sscanf(strings.TrimSpace(s), "%d%s", &val, &unit)
	if val <= 0 {
		return fallback
	}
	switch strings.ToUpper(unit) {
	case "GB":
		return val << 30
	case "MB":
		return val << 20
	case "KB":
		return val << 10
	case "B":
		return val
	default:
		return val << 20 // Assume MB
	}
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
