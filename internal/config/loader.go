package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	defaultJWTSecret = "your-secret-key-here-change-in-production-use-openssl-rand-hex-32"
)

type Config struct {
	Port                 int             `mapstructure:"port"`
	Environment          string          `mapstructure:"environment"`
	LogLevel             string          `mapstructure:"log_level"`
	Storage              string          `mapstructure:"storage"`
	ShutdownTimeout      time.Duration   `mapstructure:"shutdown_timeout"`
	MonitoringWebhookURL string          `mapstructure:"monitoring_webhook_url"`
	Database             DatabaseConfig  `mapstructure:"database"`
	JWT                  JWTConfig       `mapstructure:"jwt"`
	CORS                 CORSConfig      `mapstructure:"cors"`
	RateLimit            RateLimitConfig `mapstructure:"rate_limit"`
	Redis                RedisConfig     `mapstructure:"redis"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type JWTConfig struct {
	SecretKey                string `mapstructure:"secret_key"`
	Algorithm                string `mapstructure:"algorithm"`
	AccessTokenExpireMinutes int    `mapstructure:"access_token_expire_minutes"`
}

type CORSConfig struct {
	Origins []string `mapstructure:"origins"`
}

type RateLimitConfig struct {
	PerMinute   int64         `mapstructure:"per_minute"`
	Backend     string        `mapstructure:"backend"`
	MaxBuckets  int           `mapstructure:"max_buckets"`
	IdleTTL     time.Duration `mapstructure:"idle_ttl"`
	ExemptPaths []string      `mapstructure:"exempt_paths"`
}

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	StatsEnabled bool   `mapstructure:"stats_enabled"`
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, EnvDevelopment)
}

// Loader keeps the current config and notifies subscribers when the file changes.
type Loader struct {
	v           *viper.Viper
	mu          sync.RWMutex
	cfg         *Config
	subscribers []func(*Config)
	fromFile    bool
}

func Load(configPath string) (*Config, error) {
	l, err := NewLoader(configPath)
	if err != nil {
		return nil, err
	}
	return l.Config(), nil
}

func NewLoader(configPath string) (*Loader, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	l := &Loader{v: v}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			l.fromFile = true
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	l.cfg = cfg
	return l, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8000)
	v.SetDefault("environment", EnvDevelopment)
	v.SetDefault("log_level", "INFO")
	v.SetDefault("storage", "postgres")
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("monitoring_webhook_url", "")

	v.SetDefault("database.url", "postgresql://tagmaster:tagmaster@db:5432/tagmaster")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("jwt.secret_key", defaultJWTSecret)
	v.SetDefault("jwt.algorithm", "HS256")
	v.SetDefault("jwt.access_token_expire_minutes", 1440)

	v.SetDefault("cors.origins", []string{"http://localhost:3000", "http://localhost:8000"})

	v.SetDefault("rate_limit.per_minute", 50)
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.max_buckets", 100000)
	v.SetDefault("rate_limit.idle_ttl", 10*time.Minute)
	v.SetDefault("rate_limit.exempt_paths", []string{"/health", "/metrics"})

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stats_enabled", false)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalize(cfg *Config) {
	origins := make([]string, 0, len(cfg.CORS.Origins))
	for _, o := range cfg.CORS.Origins {
		for _, part := range strings.Split(o, ",") {
			if part = strings.TrimSpace(part); part != "" {
				origins = append(origins, part)
			}
		}
	}
	cfg.CORS.Origins = origins

	// async driver suffix from SQLAlchemy-style URLs
	cfg.Database.URL = strings.Replace(cfg.Database.URL, "postgresql+asyncpg://", "postgresql://", 1)
	cfg.RateLimit.Backend = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend))
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.Port)
	}
	if c.RateLimit.PerMinute < 1 {
		return fmt.Errorf("invalid rate_limit.per_minute: %d", c.RateLimit.PerMinute)
	}
	if c.RateLimit.MaxBuckets < 1 {
		return fmt.Errorf("invalid rate_limit.max_buckets: %d", c.RateLimit.MaxBuckets)
	}
	if c.RateLimit.IdleTTL != 0 && c.RateLimit.IdleTTL < time.Minute {
		return fmt.Errorf("rate_limit.idle_ttl must be 0 or at least 1m, got %s", c.RateLimit.IdleTTL)
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown rate_limit.backend: %q", c.RateLimit.Backend)
	}
	switch c.Storage {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown storage: %q", c.Storage)
	}
	if c.JWT.Algorithm != "HS256" {
		return fmt.Errorf("unsupported jwt.algorithm: %q", c.JWT.Algorithm)
	}
	if c.JWT.AccessTokenExpireMinutes < 1 {
		return fmt.Errorf("invalid jwt.access_token_expire_minutes: %d", c.JWT.AccessTokenExpireMinutes)
	}
	// дефолтный ключ публичен, годится только для development
	if !c.IsDevelopment() && (c.JWT.SecretKey == "" || c.JWT.SecretKey == defaultJWTSecret) {
		return fmt.Errorf("jwt.secret_key must be set outside development (environment %q)", c.Environment)
	}
	return nil
}

func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Subscribe registers fn to run with the new config after every successful reload.
func (l *Loader) Subscribe(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers = append(l.subscribers, fn)
}

// Watch starts watching the config file. onError receives reload failures;
// the previous config stays active in that case.
func (l *Loader) Watch(onError func(error)) {
	if !l.fromFile {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if err := l.reload(); err != nil && onError != nil {
			onError(fmt.Errorf("reload %s: %w", e.Name, err))
		}
	})
	l.v.WatchConfig()
}

func (l *Loader) reload() error {
	cfg, err := decode(l.v)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.cfg = cfg
	subs := append([]func(*Config){}, l.subscribers...)
	l.mu.Unlock()

	for _, fn := range subs {
		fn(cfg)
	}
	return nil
}

func GetConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return filepath.Join("configs", "config.yaml")
}
