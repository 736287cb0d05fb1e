// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// AuthConfig provides JWT validation settings for middleware.
type AuthConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// RateLimitConfig provides settings for public-route rate limiting.
type RateLimitConfig interface {
	GetRateLimitRPS() float64
	GetRateLimitBurst() int
}

// VoiceConfig provides settings for the direct call-execution backend.
type VoiceConfig interface {
	GetVoiceAPIURL() string
	GetVoiceAPIKey() string
	GetVoiceWebhookSecret() string
	IsVoiceSimulation() bool
	IsVoiceEnabled() bool
}

// EngineConfig provides settings for the workflow orchestration engine.
type EngineConfig interface {
	GetEngineURL() string
	GetEngineAPIKey() string
	IsEngineEnabled() bool
}

// DispatchConfig provides settings for the call dispatcher.
type DispatchConfig interface {
	GetMaxConcurrency() int
	IsEnginePreferred() bool
	IsEngineRequired() bool
	GetTestCallNumbers() []string
	IsProduction() bool
}

// EnrichmentConfig provides settings for result enrichment and caching.
type EnrichmentConfig interface {
	GetEnrichMaxAttempts() int
	GetEnrichRetryDelays() []time.Duration
	GetResultCacheTTL() time.Duration
}

// LifecycleConfig provides poll windows for the request lifecycle.
type LifecycleConfig interface {
	GetCallPollInterval() time.Duration
	GetCallPollAttempts() int
	GetBookingPollInterval() time.Duration
	GetBookingPollAttempts() int
	GetStaleRequestAfter() time.Duration
}

// PlacesConfig provides settings for the provider discovery API.
type PlacesConfig interface {
	GetPlacesAPIURL() string
	GetPlacesAPIKey() string
	GetProviderSearchLimit() int
	IsPlacesEnabled() bool
}

// SchedulerConfig provides settings for the background task queue.
type SchedulerConfig interface {
	GetRedisURL() string
}

// AIConfig provides settings for the reasoning model used in ranking.
type AIConfig interface {
	GetMoonshotAPIKey() string
	IsRankingAgentEnabled() bool
}

// SMTPConfig provides settings for notification email delivery.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	IsEmailEnabled() bool
}

// IMAPConfig provides settings for the reply-channel mailbox poller.
type IMAPConfig interface {
	GetIMAPHost() string
	GetIMAPPort() int
	GetIMAPUsername() string
	GetIMAPPassword() string
	GetIMAPFolder() string
	IsRepliesEnabled() bool
}

// ArchiveConfig provides settings for MinIO transcript archival.
type ArchiveConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetArchiveBucket() string
	IsArchiveEnabled() bool
}

// NotificationConfig provides settings for the notification module.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// PhoneConfig provides settings for phone number normalization.
type PhoneConfig interface {
	GetPhoneDefaultRegion() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	RedisURL            string
	JWTAccessSecret     string
	CORSAllowAll        bool
	CORSOrigins         []string
	CORSAllowCreds      bool
	AppBaseURL          string
	RateLimitRPS        float64
	RateLimitBurst      int
	VoiceAPIURL         string
	VoiceAPIKey         string
	VoiceWebhookSecret  string
	VoiceSimulation     bool
	EngineURL           string
	EngineAPIKey        string
	EnginePreferred     bool
	EngineRequired      bool
	TestCallNumbers     []string
	MaxConcurrency      int
	EnrichMaxAttempts   int
	EnrichRetryDelays   []time.Duration
	ResultCacheTTL      time.Duration
	CallPollInterval    time.Duration
	CallPollAttempts    int
	BookingPollInterval time.Duration
	BookingPollAttempts int
	StaleRequestAfter   time.Duration
	PlacesAPIURL        string
	PlacesAPIKey        string
	ProviderSearchLimit int
	MoonshotAPIKey      string
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
	EmailEnabled        bool
	EmailFromName       string
	EmailFromAddress    string
	IMAPHost            string
	IMAPPort            int
	IMAPUsername        string
	IMAPPassword        string
	IMAPFolder          string
	MinIOEndpoint       string
	MinIOAccessKey      string
	MinIOSecretKey      string
	MinIOUseSSL         bool
	ArchiveBucket       string
	PhoneDefaultRegion  string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// AuthConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// RateLimitConfig implementation
func (c *Config) GetRateLimitRPS() float64 { return c.RateLimitRPS }
func (c *Config) GetRateLimitBurst() int   { return c.RateLimitBurst }

// VoiceConfig implementation
func (c *Config) GetVoiceAPIURL() string        { return c.VoiceAPIURL }
func (c *Config) GetVoiceAPIKey() string        { return c.VoiceAPIKey }
func (c *Config) GetVoiceWebhookSecret() string { return c.VoiceWebhookSecret }
func (c *Config) IsVoiceSimulation() bool       { return c.VoiceSimulation }
func (c *Config) IsVoiceEnabled() bool {
	return c.VoiceSimulation || c.VoiceAPIURL != ""
}

// EngineConfig implementation
func (c *Config) GetEngineURL() string    { return c.EngineURL }
func (c *Config) GetEngineAPIKey() string { return c.EngineAPIKey }
func (c *Config) IsEngineEnabled() bool   { return c.EngineURL != "" }

// DispatchConfig implementation
func (c *Config) GetMaxConcurrency() int        { return c.MaxConcurrency }
func (c *Config) IsEnginePreferred() bool       { return c.EnginePreferred }
func (c *Config) IsEngineRequired() bool        { return c.EngineRequired }
func (c *Config) GetTestCallNumbers() []string  { return c.TestCallNumbers }
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// EnrichmentConfig implementation
func (c *Config) GetEnrichMaxAttempts() int              { return c.EnrichMaxAttempts }
func (c *Config) GetEnrichRetryDelays() []time.Duration  { return c.EnrichRetryDelays }
func (c *Config) GetResultCacheTTL() time.Duration       { return c.ResultCacheTTL }

// LifecycleConfig implementation
func (c *Config) GetCallPollInterval() time.Duration    { return c.CallPollInterval }
func (c *Config) GetCallPollAttempts() int              { return c.CallPollAttempts }
func (c *Config) GetBookingPollInterval() time.Duration { return c.BookingPollInterval }
func (c *Config) GetBookingPollAttempts() int           { return c.BookingPollAttempts }
func (c *Config) GetStaleRequestAfter() time.Duration   { return c.StaleRequestAfter }

// PlacesConfig implementation
func (c *Config) GetPlacesAPIURL() string      { return c.PlacesAPIURL }
func (c *Config) GetPlacesAPIKey() string      { return c.PlacesAPIKey }
func (c *Config) GetProviderSearchLimit() int  { return c.ProviderSearchLimit }
func (c *Config) IsPlacesEnabled() bool        { return c.PlacesAPIURL != "" }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string { return c.RedisURL }

// AIConfig implementation
func (c *Config) GetMoonshotAPIKey() string   { return c.MoonshotAPIKey }
func (c *Config) IsRankingAgentEnabled() bool { return c.MoonshotAPIKey != "" }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) IsEmailEnabled() bool        { return c.EmailEnabled }

// IMAPConfig implementation
func (c *Config) GetIMAPHost() string     { return c.IMAPHost }
func (c *Config) GetIMAPPort() int        { return c.IMAPPort }
func (c *Config) GetIMAPUsername() string { return c.IMAPUsername }
func (c *Config) GetIMAPPassword() string { return c.IMAPPassword }
func (c *Config) GetIMAPFolder() string   { return c.IMAPFolder }
func (c *Config) IsRepliesEnabled() bool {
	return c.IMAPHost != "" && c.IMAPUsername != ""
}

// ArchiveConfig implementation
func (c *Config) GetMinIOEndpoint() string  { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool      { return c.MinIOUseSSL }
func (c *Config) GetArchiveBucket() string  { return c.ArchiveBucket }
func (c *Config) IsArchiveEnabled() bool    { return c.MinIOEndpoint != "" }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }

// PhoneConfig implementation
func (c *Config) GetPhoneDefaultRegion() string { return c.PhoneDefaultRegion }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		JWTAccessSecret:     getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:        corsAllowAll,
		CORSOrigins:         corsOrigins,
		CORSAllowCreds:      strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:          getEnv("APP_BASE_URL", "http://localhost:8080"),
		RateLimitRPS:        mustFloat(getEnv("RATE_LIMIT_RPS", "10")),
		RateLimitBurst:      mustInt(getEnv("RATE_LIMIT_BURST", "20")),
		VoiceAPIURL:         getEnv("VOICE_API_URL", ""),
		VoiceAPIKey:         getEnv("VOICE_API_KEY", ""),
		VoiceWebhookSecret:  getEnv("VOICE_WEBHOOK_SECRET", ""),
		VoiceSimulation:     strings.EqualFold(getEnv("VOICE_SIMULATION", "false"), "true"),
		EngineURL:           getEnv("ENGINE_URL", ""),
		EngineAPIKey:        getEnv("ENGINE_API_KEY", ""),
		EnginePreferred:     strings.EqualFold(getEnv("ENGINE_PREFERRED", "true"), "true"),
		EngineRequired:      strings.EqualFold(getEnv("ENGINE_REQUIRED", "false"), "true"),
		TestCallNumbers:     splitCSV(getEnv("TEST_CALL_NUMBERS", "")),
		MaxConcurrency:      clampInt(mustInt(getEnv("CALL_MAX_CONCURRENCY", "5")), 1, 10),
		EnrichMaxAttempts:   mustInt(getEnv("ENRICH_MAX_ATTEMPTS", "3")),
		EnrichRetryDelays:   parseDurationsCSV(getEnv("ENRICH_RETRY_DELAYS", "3s,5s,8s")),
		ResultCacheTTL:      mustDuration(getEnv("RESULT_CACHE_TTL", "30m")),
		CallPollInterval:    mustDuration(getEnv("CALL_POLL_INTERVAL", "2s")),
		CallPollAttempts:    mustInt(getEnv("CALL_POLL_ATTEMPTS", "15")),
		BookingPollInterval: mustDuration(getEnv("BOOKING_POLL_INTERVAL", "5s")),
		BookingPollAttempts: mustInt(getEnv("BOOKING_POLL_ATTEMPTS", "36")),
		StaleRequestAfter:   mustDuration(getEnv("STALE_REQUEST_AFTER", "2h")),
		PlacesAPIURL:        getEnv("PLACES_API_URL", ""),
		PlacesAPIKey:        getEnv("PLACES_API_KEY", ""),
		ProviderSearchLimit: clampInt(mustInt(getEnv("PROVIDER_SEARCH_LIMIT", "3")), 1, 10),
		MoonshotAPIKey:      getEnv("MOONSHOT_API_KEY", ""),
		SMTPHost:            smtpHost,
		SMTPPort:            mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		EmailEnabled:        emailEnabled && smtpHost != "",
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Hireline"),
		EmailFromAddress:    getEnv("EMAIL_FROM_ADDRESS", ""),
		IMAPHost:            getEnv("IMAP_HOST", ""),
		IMAPPort:            mustInt(getEnv("IMAP_PORT", "993")),
		IMAPUsername:        getEnv("IMAP_USERNAME", ""),
		IMAPPassword:        getEnv("IMAP_PASSWORD", ""),
		IMAPFolder:          getEnv("IMAP_FOLDER", "INBOX"),
		MinIOEndpoint:       getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:      getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:      getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:         strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		ArchiveBucket:       getEnv("MINIO_BUCKET_CALL_ARCHIVE", "call-transcripts"),
		PhoneDefaultRegion:  getEnv("PHONE_DEFAULT_REGION", "US"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.EngineRequired && cfg.EngineURL == "" {
		return nil, fmt.Errorf("ENGINE_URL is required when ENGINE_REQUIRED is true")
	}
	if !cfg.IsVoiceEnabled() && !cfg.IsEngineEnabled() {
		return nil, fmt.Errorf("no call execution backend configured: set VOICE_API_URL, ENGINE_URL, or VOICE_SIMULATION")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func parseDurationsCSV(value string) []time.Duration {
	parts := splitCSV(value)
	results := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		d, err := time.ParseDuration(part)
		if err != nil || d <= 0 {
			continue
		}
		results = append(results, d)
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
