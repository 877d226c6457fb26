package settings

import "time"

// Defaults applied when the config file and environment leave a value unset.
const (
	// DefaultPort is the HTTP listen port.
	DefaultPort = 8318
	// DefaultSiteName names the service in outbound mail and OTP issuers.
	DefaultSiteName = "Gaiya"
	// DefaultTimezone defines the "local day" used by quota counters.
	DefaultTimezone = "Asia/Shanghai"
	// DefaultCurrency is the currency plan prices are quoted in.
	DefaultCurrency = "CNY"
	// DefaultLogLevel is the minimum log level.
	DefaultLogLevel = "info"
	// EnvironmentProduction forbids verbose (unredacted) logging.
	EnvironmentProduction = "production"

	// RateLimitBackendDB stores rate-limit entries in the relational store.
	RateLimitBackendDB = "db"
	// RateLimitBackendRedis stores rate-limit entries in Redis sorted sets.
	RateLimitBackendRedis = "redis"
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "gaiya:rl"

	// DefaultSweepSchedule is the cron schedule for the maintenance sweeper.
	DefaultSweepSchedule = "@every 1h"
	// RateLimitRetention is how long rate-limit entries are kept.
	RateLimitRetention = 24 * time.Hour
	// PaymentCacheRetention is how long payment cache rows are kept.
	PaymentCacheRetention = 7 * 24 * time.Hour
	// QuotaUsageRetention is how long daily quota counters are kept.
	QuotaUsageRetention = 31 * 24 * time.Hour

	// DefaultProviderTimeout caps payment provider API calls.
	DefaultProviderTimeout = 10 * time.Second
	// DefaultAITimeout caps upstream AI calls.
	DefaultAITimeout = 60 * time.Second
	// DefaultAIModel is the upstream chat model.
	DefaultAIModel = "gpt-4o-mini"

	// DefaultZPayAPIBase is the Z-Pay gateway root.
	DefaultZPayAPIBase = "https://zpayz.cn"

	// VerificationTokenTTL bounds the email confirmation link lifetime.
	VerificationTokenTTL = 24 * time.Hour
	// RecoveryTokenTTL bounds the password recovery token lifetime.
	RecoveryTokenTTL = time.Hour
	// OTPPeriod is the validity window of an emailed one-time code.
	OTPPeriod = 5 * time.Minute
)
