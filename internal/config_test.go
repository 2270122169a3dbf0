package internal

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/DukeRupert/fixiepixie/internal/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable NewConfig reads so a developer's shell or
// .env does not leak into the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENV", "PORT", "LOG_LEVEL", "APP_NAME", "CONTACTS_PATH",
		"GEOCODER_URL", "GEOCODER_USER_AGENT", "GEOCODER_TIMEOUT",
		"SERVER_MAIL_PROVIDER", "SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "SMTP_TIMEOUT",
		"SENDER_EMAIL", "SENDER_NAME", "BCC_EMAIL", "SENDGRID_API_KEY", "SENDGRID_BASE_URL",
		"MAILBOX_SEND_URL", "MAILBOX_TIMEOUT", "DELEGATION_TIMEOUT", "JWT_SECRET", "CORS_ORIGINS",
		"PHOTO_MAX_BYTES", "PHOTO_MAX_DIMENSION", "REPORT_RATE_LIMIT", "REPORT_RATE_WINDOW",
		"AMQP_URL", "AMQP_EXCHANGE", "METRICS_USERNAME", "METRICS_PASSWORD",
	} {
		t.Setenv(key, "")
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "FixiePixie", cfg.AppName)
	assert.Equal(t, "./contacts.json", cfg.ContactsPath)
	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.GeocoderURL)
	assert.Equal(t, "FixiePixie/0.1", cfg.GeocoderUserAgent)
	assert.Equal(t, 10*time.Second, cfg.GeocoderTimeout)
	assert.Equal(t, MailProviderSMTP, cfg.ServerMailProvider)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, "FixiePixie", cfg.SenderName)
	assert.Equal(t, "*", cfg.CORSOrigins)
	assert.Equal(t, int64(8<<20), cfg.PhotoMaxBytes)
	assert.Equal(t, 20, cfg.ReportRateLimit)
	assert.Equal(t, time.Minute, cfg.ReportRateWindow)
	assert.Equal(t, "fixiepixie.reports", cfg.AMQPExchange)
	assert.Empty(t, cfg.AMQPURL)
	assert.Equal(t, 60*time.Second, cfg.DelegationTimeout)
}

func TestNewConfig_MissingCredentialsAreNotFatal(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_MAIL_PROVIDER", "SendGrid")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, MailProviderSendGrid, cfg.ServerMailProvider)
	assert.ErrorIs(t, cfg.SendGrid().Validate(), email.ErrMisconfigured)
	assert.ErrorIs(t, cfg.SMTP().Validate(), email.ErrMisconfigured)
}

func TestNewConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown provider", map[string]string{"SERVER_MAIL_PROVIDER": "pigeon"}},
		{"mock in production", map[string]string{"SERVER_MAIL_PROVIDER": "mock", "ENV": "production"}},
		{"port out of range", map[string]string{"PORT": "70000"}},
		{"zero photo limit", map[string]string{"PHOTO_MAX_BYTES": "-1"}},
		{"zero rate limit", map[string]string{"REPORT_RATE_LIMIT": "-5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := NewConfig()
			assert.Error(t, err)
		})
	}
}

func TestConfig_ComponentSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SMTP_USER", "mailer")
	t.Setenv("SMTP_PASS", "pw")
	t.Setenv("SENDER_EMAIL", "reports@fixiepixie.example")
	t.Setenv("BCC_EMAIL", "archive@fixiepixie.example")
	t.Setenv("PHOTO_MAX_DIMENSION", "1600")
	t.Setenv("GEOCODER_TIMEOUT", "3s")

	cfg, err := NewConfig()
	require.NoError(t, err)

	smtp := cfg.SMTP()
	assert.NoError(t, smtp.Validate())
	assert.Equal(t, 465, smtp.Port)
	assert.Equal(t, "archive@fixiepixie.example", smtp.Bcc)
	assert.Equal(t, "FixiePixie", smtp.FromName)

	assert.Equal(t, 1600, cfg.Photo().MaxDimension)
	assert.Equal(t, 3*time.Second, cfg.Geocoder().Timeout)
	assert.Equal(t, email.DefaultMailboxSendURL, cfg.Mailbox().SendURL)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "production", "warn")

	logger.Info("hidden")
	logger.Warn("shown", "password", "hunter2", "city", "Dallas")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "[REDACTED]", entry["password"])
	assert.Equal(t, "Dallas", entry["city"])
	assert.Equal(t, "fixiepixie", entry["app"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}
