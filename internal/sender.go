package internal

import (
	"log/slog"

	"github.com/DukeRupert/fixiepixie/internal/email"
	"github.com/DukeRupert/fixiepixie/internal/email/mock"
)

// NewServerSender builds the server-mediated backend named by
// SERVER_MAIL_PROVIDER. Credentials are checked again when the backend first
// sends, so a missing password surfaces as a misconfiguration on that report
// rather than stopping the process.
func NewServerSender(cfg *Config, logger *slog.Logger) email.Sender {
	switch cfg.ServerMailProvider {
	case MailProviderSendGrid:
		if err := cfg.SendGrid().Validate(); err != nil {
			logger.Warn("SendGrid backend is not fully configured", "error", err)
		}
		return email.NewSendGridSender(cfg.SendGrid(), logger)
	case MailProviderMock:
		logger.Warn("Using mock mail backend; reports are logged, not delivered")
		return mock.New(MailProviderMock, logger)
	default:
		if err := cfg.SMTP().Validate(); err != nil {
			logger.Warn("SMTP backend is not fully configured", "error", err)
		}
		return email.NewSMTPSender(cfg.SMTP(), logger)
	}
}
