// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// ChatRateLimit is the number of chat sends allowed per user per window (0 disables).
	ChatRateLimit  int           `yaml:"chat_rate_limit"`
	ChatRateWindow time.Duration `yaml:"chat_rate_window"`
	// AdRewardLimit caps rewarded ads credited per user per window.
	AdRewardLimit  int           `yaml:"ad_reward_limit"`
	AdRewardWindow time.Duration `yaml:"ad_reward_window"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	// ServiceKey guards the billing routes; empty disables them.
	ServiceKey string `yaml:"service_key"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // memory | redis | postgres
	// CacheTTL enables a Redis read-through cache in front of postgres when > 0.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AIConfig struct {
	OpenAIKey          string `yaml:"openai_key"`
	OpenAIBaseURL      string `yaml:"openai_base_url"`
	GeminiKey          string `yaml:"gemini_key"`
	GeminiURL          string `yaml:"gemini_url"`
	DefaultProvider    string `yaml:"default_provider"` // openai | gemini
	DefaultModel       string `yaml:"default_model"`
	TranscriptionModel string `yaml:"transcription_model"`
	Language           string `yaml:"language"`
	MaxOutputTokens    int    `yaml:"max_output_tokens"`
	HistoryTokenBudget int    `yaml:"history_token_budget"`
	ConcurrentLimit    int    `yaml:"concurrent_limit"` // max concurrent AI calls
}

type LedgerConfig struct {
	// LockTTL bounds how long a cross-replica credit lock may be held.
	LockTTL        time.Duration `yaml:"lock_ttl"`
	ExpirySweep    time.Duration `yaml:"expiry_sweep"`
	DistributedRMW bool          `yaml:"distributed_rmw"`
	CacheSize      int           `yaml:"cache_size"`
}

type SessionConfig struct {
	Timezone string `yaml:"timezone"`
	Locale   string `yaml:"locale"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Session  SessionConfig  `yaml:"session"`
	Security SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path. A .env file next to the binary is
// loaded first when present; secrets in the environment override the file.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse decodes raw YAML, applies environment overrides and defaults, and validates.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	cfg.Runtime.Dev = dev
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyEnv() {
	override := func(dst *string, env string) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}
	override(&cfg.AI.OpenAIKey, "OPENAI_API_KEY")
	override(&cfg.AI.GeminiKey, "GEMINI_API_KEY")
	override(&cfg.Auth.JWTSecret, "JWT_SECRET")
	override(&cfg.Auth.ServiceKey, "SERVICE_API_KEY")
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.Security.EncryptionKey, "ENCRYPTION_KEY")
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.ChatRateWindow <= 0 {
		cfg.HTTP.ChatRateWindow = time.Minute
	}
	if cfg.HTTP.AdRewardLimit <= 0 {
		cfg.HTTP.AdRewardLimit = 10
	}
	if cfg.HTTP.AdRewardWindow <= 0 {
		cfg.HTTP.AdRewardWindow = time.Hour
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.AI.DefaultProvider == "" {
		cfg.AI.DefaultProvider = "openai"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-3.5-turbo"
	}
	if cfg.AI.TranscriptionModel == "" {
		cfg.AI.TranscriptionModel = "whisper-1"
	}
	if cfg.AI.Language == "" {
		cfg.AI.Language = "pt"
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 500
	}
	if cfg.AI.HistoryTokenBudget <= 0 {
		cfg.AI.HistoryTokenBudget = 2000
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.Ledger.LockTTL <= 0 {
		cfg.Ledger.LockTTL = 5 * time.Second
	}
	if cfg.Ledger.ExpirySweep <= 0 {
		cfg.Ledger.ExpirySweep = time.Hour
	}
	if cfg.Ledger.CacheSize <= 0 {
		cfg.Ledger.CacheSize = 10000
	}
	if cfg.Session.Timezone == "" {
		cfg.Session.Timezone = "Local"
	}
	if cfg.Session.Locale == "" {
		cfg.Session.Locale = "pt"
	}
}

func (cfg *Config) validate() error {
	switch cfg.Store.Driver {
	case "memory":
	case "redis":
		if cfg.Redis.URL == "" {
			return errors.New("redis.url is required for store.driver=redis")
		}
	case "postgres":
		if cfg.Database.URL == "" {
			return errors.New("database.url is required for store.driver=postgres")
		}
		if cfg.Store.CacheTTL > 0 && cfg.Redis.URL == "" {
			return errors.New("redis.url is required when store.cache_ttl is set")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", cfg.Store.Driver)
	}
	if cfg.Ledger.DistributedRMW && cfg.Redis.URL == "" {
		return errors.New("redis.url is required for ledger.distributed_rmw")
	}
	if cfg.Auth.JWTSecret == "" && !cfg.Runtime.Dev {
		return errors.New("auth.jwt_secret is required")
	}
	if _, err := time.LoadLocation(cfg.Session.Timezone); err != nil {
		return fmt.Errorf("session.timezone: %w", err)
	}
	if k := len(cfg.Security.EncryptionKey); k != 0 && k != 16 && k != 24 && k != 32 {
		return fmt.Errorf("security.encryption_key must be 16, 24, or 32 bytes; got %d", k)
	}
	return nil
}

// Location returns the timezone used for calendar-day rollover.
func (cfg *Config) Location() *time.Location {
	loc, err := time.LoadLocation(cfg.Session.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
