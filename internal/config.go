package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DukeRupert/fixiepixie/internal/email"
	"github.com/DukeRupert/fixiepixie/internal/events"
	"github.com/DukeRupert/fixiepixie/internal/geocode"
	"github.com/DukeRupert/fixiepixie/internal/photo"
	"github.com/joho/godotenv"
)

// Server mail providers
const (
	MailProviderSMTP     = "smtp"
	MailProviderSendGrid = "sendgrid"
	MailProviderMock     = "mock"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string
	AppName  string

	// Contact directory file (.json or .yaml)
	ContactsPath string

	// Reverse geocoding
	GeocoderURL       string
	GeocoderUserAgent string
	GeocoderTimeout   time.Duration

	// Server-mediated delivery: "smtp", "sendgrid" or "mock"
	ServerMailProvider string

	// SMTP Configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPTimeout  time.Duration

	// Sender identity shared by SMTP and SendGrid
	SenderEmail string
	SenderName  string
	BccEmail    string

	// SendGrid Configuration
	SendGridAPIKey  string
	SendGridBaseURL string

	// User-mediated delivery
	MailboxSendURL    string
	MailboxTimeout    time.Duration
	DelegationTimeout time.Duration

	// Identity tokens; empty disables identity extraction
	JWTSecret string

	// Comma-separated browser origins, "*" for any
	CORSOrigins string

	// Photo limits
	PhotoMaxBytes     int64
	PhotoMaxDimension int

	// Per-IP limit on POST /api/report
	ReportRateLimit  int
	ReportRateWindow time.Duration

	// Outcome events; empty AMQPURL disables publishing
	AMQPURL      string
	AMQPExchange string

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

// NewConfig reads configuration from the environment, loading .env first
// when present. Delivery credentials are not validated here; each backend
// checks its own settings when it first sends.
func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 3000),
		LogLevel: getEnv("LOG_LEVEL", "debug"),
		AppName:  getEnv("APP_NAME", "FixiePixie"),

		ContactsPath: getEnv("CONTACTS_PATH", "./contacts.json"),

		GeocoderURL:       getEnv("GEOCODER_URL", geocode.DefaultBaseURL),
		GeocoderUserAgent: getEnv("GEOCODER_USER_AGENT", geocode.DefaultUserAgent),
		GeocoderTimeout:   getEnvDuration("GEOCODER_TIMEOUT", geocode.DefaultTimeout),

		ServerMailProvider: strings.ToLower(getEnv("SERVER_MAIL_PROVIDER", MailProviderSMTP)),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASS", ""),
		SMTPTimeout:  getEnvDuration("SMTP_TIMEOUT", email.DefaultTimeout),

		SenderEmail: getEnv("SENDER_EMAIL", ""),
		SenderName:  getEnv("SENDER_NAME", email.DefaultFromName),
		BccEmail:    getEnv("BCC_EMAIL", ""),

		SendGridAPIKey:  getEnv("SENDGRID_API_KEY", ""),
		SendGridBaseURL: getEnv("SENDGRID_BASE_URL", ""),

		MailboxSendURL:    getEnv("MAILBOX_SEND_URL", email.DefaultMailboxSendURL),
		MailboxTimeout:    getEnvDuration("MAILBOX_TIMEOUT", email.DefaultTimeout),
		DelegationTimeout: getEnvDuration("DELEGATION_TIMEOUT", email.DefaultDelegationTimeout),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),

		PhotoMaxBytes:     getEnvInt64("PHOTO_MAX_BYTES", photo.DefaultMaxBytes),
		PhotoMaxDimension: getEnvInt("PHOTO_MAX_DIMENSION", 0),

		ReportRateLimit:  getEnvInt("REPORT_RATE_LIMIT", 20),
		ReportRateWindow: getEnvDuration("REPORT_RATE_WINDOW", time.Minute),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", events.DefaultExchange),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks settings the process cannot start without.
func (c *Config) validate() error {
	switch c.ServerMailProvider {
	case MailProviderSMTP, MailProviderSendGrid:
	case MailProviderMock:
		if c.IsProduction() {
			return fmt.Errorf("SERVER_MAIL_PROVIDER 'mock' is not allowed in production")
		}
	default:
		return fmt.Errorf("SERVER_MAIL_PROVIDER must be 'smtp', 'sendgrid' or 'mock', got: %s", c.ServerMailProvider)
	}

	if strings.TrimSpace(c.ContactsPath) == "" {
		return fmt.Errorf("CONTACTS_PATH is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got: %d", c.Port)
	}
	if c.PhotoMaxBytes <= 0 {
		return fmt.Errorf("PHOTO_MAX_BYTES must be positive, got: %d", c.PhotoMaxBytes)
	}
	if c.ReportRateLimit <= 0 || c.ReportRateWindow <= 0 {
		return fmt.Errorf("REPORT_RATE_LIMIT and REPORT_RATE_WINDOW must be positive")
	}
	return nil
}

// IsProduction reports whether ENV is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// =============================================================================
// Component Settings
// =============================================================================

// SMTP returns the SMTP backend settings.
func (c *Config) SMTP() email.SMTPConfig {
	return email.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.SenderEmail,
		FromName: c.SenderName,
		Bcc:      c.BccEmail,
		Timeout:  c.SMTPTimeout,
	}
}

// SendGrid returns the SendGrid backend settings.
func (c *Config) SendGrid() email.SendGridConfig {
	return email.SendGridConfig{
		APIKey:   c.SendGridAPIKey,
		BaseURL:  c.SendGridBaseURL,
		From:     c.SenderEmail,
		FromName: c.SenderName,
		Bcc:      c.BccEmail,
	}
}

// Mailbox returns the user-mediated backend settings.
func (c *Config) Mailbox() email.MailboxConfig {
	return email.MailboxConfig{
		SendURL:           c.MailboxSendURL,
		Timeout:           c.MailboxTimeout,
		DelegationTimeout: c.DelegationTimeout,
	}
}

// Geocoder returns the reverse geocoder settings.
func (c *Config) Geocoder() geocode.Config {
	return geocode.Config{
		BaseURL:   c.GeocoderURL,
		UserAgent: c.GeocoderUserAgent,
		Timeout:   c.GeocoderTimeout,
	}
}

// Photo returns the photo processing settings.
func (c *Config) Photo() photo.Config {
	return photo.Config{
		MaxBytes:     c.PhotoMaxBytes,
		MaxDimension: c.PhotoMaxDimension,
	}
}

// Events returns the broker settings.
func (c *Config) Events() events.Config {
	return events.Config{
		URL:      c.AMQPURL,
		Exchange: c.AMQPExchange,
	}
}

// =============================================================================
// Environment Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
