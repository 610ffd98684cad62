// Package config assembles service configuration from defaults, an optional
// YAML file and MOC_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/moc"
)

// FileEnv names the variable holding the YAML config path.
const FileEnv = "MOC_CONFIG"

// Config holds all MOC Studio service settings.
type Config struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	SeedDemo bool   `yaml:"seed_demo"`

	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	MOC       MOCConfig       `yaml:"moc"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

// PostgresConfig selects the Postgres stores when DSN is set; otherwise the
// service runs on in-memory stores.
type PostgresConfig struct {
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// RedisConfig selects the Redis refresh-token store when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type AuthConfig struct {
	Secret     string        `yaml:"secret"`
	Issuer     string        `yaml:"issuer"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
}

type MOCConfig struct {
	TransitionPolicy string `yaml:"transition_policy"`
}

type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Env:      "development",
		LogLevel: "info",
		SeedDemo: true,
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			CORSOrigins:     []string{"*"},
		},
		GRPC: GRPCConfig{Addr: ":9090"},
		Auth: AuthConfig{
			Issuer:     "moc-studio",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		MOC:       MOCConfig{TransitionPolicy: "permissive"},
		RateLimit: RateLimitConfig{PerSecond: 20, Burst: 40},
	}
}

// Load reads the file named by MOC_CONFIG, if any, then applies the process
// environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv(FileEnv), os.LookupEnv)
}

// LoadFrom is Load with an explicit file path and environment lookup. A
// missing file is an error only when path is non-empty.
func LoadFrom(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("MOC_ENV", &c.Env)
	str("MOC_LOG_LEVEL", &c.LogLevel)
	boolean("MOC_SEED_DEMO", &c.SeedDemo)
	str("MOC_HTTP_ADDR", &c.HTTP.Addr)
	if v, ok := lookup("MOC_CORS_ORIGINS"); ok && v != "" {
		c.HTTP.CORSOrigins = splitList(v)
	}
	str("MOC_GRPC_ADDR", &c.GRPC.Addr)
	str("MOC_PG_DSN", &c.Postgres.DSN)
	boolean("MOC_PG_AUTO_MIGRATE", &c.Postgres.AutoMigrate)
	str("MOC_REDIS_ADDR", &c.Redis.Addr)
	str("MOC_REDIS_PASSWORD", &c.Redis.Password)
	str("MOC_AUTH_SECRET", &c.Auth.Secret)
	str("MOC_AUTH_ISSUER", &c.Auth.Issuer)
	dur("MOC_ACCESS_TTL", &c.Auth.AccessTTL)
	dur("MOC_REFRESH_TTL", &c.Auth.RefreshTTL)
	str("MOC_TRANSITION_POLICY", &c.MOC.TransitionPolicy)
	if v, ok := lookup("MOC_RATE_PER_SEC"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MOC_RATE_PER_SEC: %w", err))
		} else {
			c.RateLimit.PerSecond = f
		}
	}
	if v, ok := lookup("MOC_RATE_BURST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MOC_RATE_BURST: %w", err))
		} else {
			c.RateLimit.Burst = n
		}
	}
	return errors.Join(errs...)
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Auth.Secret) < 16 {
		errs = append(errs, errors.New("auth secret must be at least 16 characters (set MOC_AUTH_SECRET)"))
	}
	if _, err := moc.PolicyByName(c.MOC.TransitionPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.Auth.RefreshTTL < c.Auth.AccessTTL {
		errs = append(errs, errors.New("refresh ttl must not be shorter than access ttl"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate limit values must not be negative"))
	}
	return errors.Join(errs...)
}

// Production reports whether the service runs with production settings.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
