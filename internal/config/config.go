package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/settings"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath          = "CONFIG_PATH"
	EnvDBConnection        = "DB_CONNECTION"
	EnvJWTSecret           = "JWT_SECRET"
	EnvJWTExpiry           = "JWT_EXPIRY"
	EnvPort                = "PORT"
	EnvEnvironment         = "APP_ENV"
	EnvLogLevel            = "LOG_LEVEL"
	EnvZPayPID             = "ZPAY_PID"
	EnvZPayKey             = "ZPAY_KEY"
	EnvStripeSecretKey     = "STRIPE_SECRET_KEY"
	EnvStripeWebhookSecret = "STRIPE_WEBHOOK_SECRET"
	EnvAIAPIKey            = "AI_API_KEY"
	EnvManualUpgradeToken  = "MANUAL_UPGRADE_TOKEN"
	EnvSendGridAPIKey      = "SENDGRID_API_KEY"
	EnvRedisAddr           = "REDIS_ADDR"
)

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// ErrMissingJWTSecret indicates no session signing secret is configured.
var ErrMissingJWTSecret = errors.New("missing jwt secret (set `jwt.secret` or JWT_SECRET)")

// ErrVerboseInProduction rejects unredacted logging in production.
var ErrVerboseInProduction = errors.New("log.verbose must be false when environment is production")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	Verbose bool   `yaml:"verbose"`
	File    string `yaml:"file"`
}

// CORSConfig lists the origins echoed back to browsers.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed-origins"`
	DefaultOrigin  string   `yaml:"default-origin"`
}

// PlansConfig overrides canonical plan prices.
type PlansConfig struct {
	Prices   map[string]string `yaml:"prices"`
	Currency string            `yaml:"currency"`
}

// ZPayConfig holds Z-Pay merchant credentials.
type ZPayConfig struct {
	PID       string `yaml:"pid"`
	Key       string `yaml:"key"`
	APIBase   string `yaml:"api-base"`
	NotifyURL string `yaml:"notify-url"`
	ReturnURL string `yaml:"return-url"`
}

// StripeConfig holds Stripe checkout credentials.
type StripeConfig struct {
	SecretKey     string `yaml:"secret-key"`
	WebhookSecret string `yaml:"webhook-secret"`
	SuccessURL    string `yaml:"success-url"`
	CancelURL     string `yaml:"cancel-url"`
}

// AIConfig points at the OpenAI-compatible upstream.
type AIConfig struct {
	BaseURL string        `yaml:"base-url"`
	APIKey  string        `yaml:"api-key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// AdminConfig holds operator credentials.
type AdminConfig struct {
	ManualUpgradeToken string `yaml:"manual-upgrade-token"`
}

// MailConfig controls outbound email.
type MailConfig struct {
	SendGridAPIKey string `yaml:"sendgrid-api-key"`
	FromAddress    string `yaml:"from-address"`
	FromName       string `yaml:"from-name"`
	PublicBaseURL  string `yaml:"public-base-url"`
}

// RateLimitConfig selects the rate-limit storage backend.
type RateLimitConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis-addr"`
	RedisPassword string `yaml:"redis-password"`
	RedisDB       int    `yaml:"redis-db"`
	RedisPrefix   string `yaml:"redis-prefix"`
}

// SweepConfig schedules the maintenance sweeper.
type SweepConfig struct {
	Schedule string `yaml:"schedule"`
}

// Config is the fully resolved application configuration.
type Config struct {
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`
	DatabaseDSN string `yaml:"database-dsn"`
	Database    struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	Timezone  string          `yaml:"timezone"`
	Log       LogConfig       `yaml:"log"`
	JWT       JWTConfig       `yaml:"jwt"`
	CORS      CORSConfig      `yaml:"cors"`
	Plans     PlansConfig     `yaml:"plans"`
	ZPay      ZPayConfig      `yaml:"zpay"`
	Stripe    StripeConfig    `yaml:"stripe"`
	AI        AIConfig        `yaml:"ai"`
	Admin     AdminConfig     `yaml:"admin"`
	Mail      MailConfig      `yaml:"mail"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Sweep     SweepConfig     `yaml:"sweep"`
}

// Load reads the YAML config file (optional), applies environment overrides
// and defaults, and validates the result.
func Load(configPath string) (Config, error) {
	var cfg Config
	data, errRead := os.ReadFile(configPath)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config file: %w", errRead)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if errValidate := cfg.Validate(); errValidate != nil {
		return Config{}, errValidate
	}
	return cfg, nil
}

// DSN returns the configured database DSN.
func (c Config) DSN() string {
	if dsn := strings.TrimSpace(c.DatabaseDSN); dsn != "" {
		return dsn
	}
	return strings.TrimSpace(c.Database.DSN)
}

// IsProduction reports whether the service runs in production mode.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), settings.EnvironmentProduction)
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.DSN() == "" {
		return ErrMissingDatabaseDSN
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return ErrMissingJWTSecret
	}
	if c.IsProduction() && c.Log.Verbose {
		return ErrVerboseInProduction
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.RateLimit.Backend {
	case settings.RateLimitBackendDB:
	case settings.RateLimitBackendRedis:
		if strings.TrimSpace(c.RateLimit.RedisAddr) == "" {
			return errors.New("ratelimit.redis-addr is required when ratelimit.backend is redis")
		}
	default:
		return fmt.Errorf("unknown ratelimit backend %q", c.RateLimit.Backend)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		cfg.DatabaseDSN = dsn
	}
	if portRaw := strings.TrimSpace(os.Getenv(EnvPort)); portRaw != "" {
		if port, errParse := strconv.Atoi(portRaw); errParse == nil {
			cfg.Port = port
		}
	}
	overrideString(&cfg.Environment, EnvEnvironment)
	overrideString(&cfg.Log.Level, EnvLogLevel)
	overrideString(&cfg.JWT.Secret, EnvJWTSecret)
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			cfg.JWT.Expiry = expiry
		}
	}
	overrideString(&cfg.ZPay.PID, EnvZPayPID)
	overrideString(&cfg.ZPay.Key, EnvZPayKey)
	overrideString(&cfg.Stripe.SecretKey, EnvStripeSecretKey)
	overrideString(&cfg.Stripe.WebhookSecret, EnvStripeWebhookSecret)
	overrideString(&cfg.AI.APIKey, EnvAIAPIKey)
	overrideString(&cfg.Admin.ManualUpgradeToken, EnvManualUpgradeToken)
	overrideString(&cfg.Mail.SendGridAPIKey, EnvSendGridAPIKey)
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		cfg.RateLimit.RedisAddr = addr
		if cfg.RateLimit.Backend == "" {
			cfg.RateLimit.Backend = settings.RateLimitBackendRedis
		}
	}
}

func overrideString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = settings.DefaultPort
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if strings.TrimSpace(cfg.Timezone) == "" {
		cfg.Timezone = settings.DefaultTimezone
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = settings.DefaultLogLevel
	}
	if cfg.JWT.Expiry <= 0 {
		cfg.JWT.Expiry = defaultJWTExpiry
	}
	if strings.TrimSpace(cfg.Plans.Currency) == "" {
		cfg.Plans.Currency = settings.DefaultCurrency
	}
	if strings.TrimSpace(cfg.ZPay.APIBase) == "" {
		cfg.ZPay.APIBase = settings.DefaultZPayAPIBase
	}
	cfg.ZPay.APIBase = strings.TrimRight(cfg.ZPay.APIBase, "/")
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = settings.DefaultAITimeout
	}
	if strings.TrimSpace(cfg.AI.Model) == "" {
		cfg.AI.Model = settings.DefaultAIModel
	}
	cfg.AI.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.AI.BaseURL), "/")
	if strings.TrimSpace(cfg.Mail.FromName) == "" {
		cfg.Mail.FromName = settings.DefaultSiteName
	}
	cfg.RateLimit.Backend = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend))
	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = settings.RateLimitBackendDB
	}
	if strings.TrimSpace(cfg.RateLimit.RedisPrefix) == "" {
		cfg.RateLimit.RedisPrefix = settings.DefaultRateLimitRedisPrefix
	}
	if cfg.RateLimit.RedisDB < 0 {
		cfg.RateLimit.RedisDB = 0
	}
	if strings.TrimSpace(cfg.Sweep.Schedule) == "" {
		cfg.Sweep.Schedule = settings.DefaultSweepSchedule
	}
	cleaned := make([]string, 0, len(cfg.CORS.AllowedOrigins))
	for _, origin := range cfg.CORS.AllowedOrigins {
		if trimmed := strings.TrimRight(strings.TrimSpace(origin), "/"); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	cfg.CORS.AllowedOrigins = cleaned
	if strings.TrimSpace(cfg.CORS.DefaultOrigin) == "" && len(cleaned) > 0 {
		cfg.CORS.DefaultOrigin = cleaned[0]
	}
}
