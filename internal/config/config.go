package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	ServiceName   string
	PublicBaseURL string
	LogLevel      string

	// Storage
	StoreDriver string // memory, postgres, sqlite
	DatabaseURL string
	SQLitePath  string

	// Redis backs sessions, idempotency and velocity limits.
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Payments
	PaymentProvider      string // stripe, fake
	StripeSecretKey      string
	StripeWebhookSecret  string
	StripeBaseURL        string
	AllowFakePayments    bool
	VerifyCaptureStatus  bool
	SubmitVelocityLimit  int
	SubmitVelocityWindow time.Duration

	// Wizard
	CatalogPath        string
	ReceiptPath        string
	RedirectDelay      time.Duration
	MaxCaptureAttempts int
	SessionTTL         time.Duration
	IdempotencyTTL     time.Duration
	BackendBaseURL     string

	AdminJWTSecret     string
	CORSAllowedOrigins []string
	RateLimitRPS       int
	RateLimitBurst     int
	TracingEnabled     bool
	TracingExporter    string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	OrderEventsQueueURL string
	ArchiveBucket       string

	// Receipts
	EmailProvider      string // sendgrid, ses, stub
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	SESFromEmail       string
	SESConfigSet       string
	EmailReplyTo       string
	OperatorEmails     []string
	BusinessName       string
	OutboxPollInterval time.Duration
	// ProcessedRetention is how long webhook and receipt dedupe ids are kept.
	ProcessedRetention time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		ServiceName:   getEnv("SERVICE_NAME", "mealprep-intake"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		StoreDriver: strings.ToLower(strings.TrimSpace(getEnv("STORE_DRIVER", "memory"))),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "mealprep.db"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		PaymentProvider:      strings.ToLower(strings.TrimSpace(getEnv("PAYMENT_PROVIDER", "fake"))),
		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeBaseURL:        getEnv("STRIPE_BASE_URL", ""),
		AllowFakePayments:    getEnvAsBool("ALLOW_FAKE_PAYMENTS", true),
		VerifyCaptureStatus:  getEnvAsBool("VERIFY_CAPTURE_STATUS", false),
		SubmitVelocityLimit:  getEnvAsInt("SUBMIT_VELOCITY_LIMIT", 5),
		SubmitVelocityWindow: getEnvAsDuration("SUBMIT_VELOCITY_WINDOW", time.Hour),

		CatalogPath:        getEnv("CATALOG_PATH", ""),
		ReceiptPath:        getEnv("RECEIPT_PATH", "/receipt"),
		RedirectDelay:      getEnvAsDuration("REDIRECT_DELAY", 2*time.Second),
		MaxCaptureAttempts: getEnvAsInt("MAX_CAPTURE_ATTEMPTS", 0),
		SessionTTL:         getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		IdempotencyTTL:     getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		BackendBaseURL:     getEnv("BACKEND_BASE_URL", "local"),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsInt("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
		TracingEnabled:     getEnvAsBool("TRACING_ENABLED", false),
		TracingExporter:    getEnv("TRACING_EXPORTER", "stdout"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		OrderEventsQueueURL: getEnv("ORDER_EVENTS_QUEUE_URL", ""),
		ArchiveBucket:       getEnv("ARCHIVE_BUCKET", ""),

		EmailProvider:      strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "Meal Prep Coaching"),
		SESFromEmail:       getEnv("SES_FROM_EMAIL", ""),
		SESConfigSet:       getEnv("SES_CONFIGURATION_SET", ""),
		EmailReplyTo:       getEnv("EMAIL_REPLY_TO", ""),
		OperatorEmails:     getEnvAsList("OPERATOR_EMAILS"),
		BusinessName:       getEnv("BUSINESS_NAME", "Meal Prep Studio"),
		OutboxPollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),
		ProcessedRetention: getEnvAsDuration("PROCESSED_EVENT_RETENTION", 30*24*time.Hour),
	}
}

// IsProduction reports whether fake providers must be refused.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
