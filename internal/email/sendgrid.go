package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/fixiepixie/internal/domain"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// DefaultSendGridBaseURL is the SendGrid API host.
const DefaultSendGridBaseURL = "https://api.sendgrid.com"

// sendGridEndpoint is the v3 mail send path.
const sendGridEndpoint = "/v3/mail/send"

// SendGridSender sends report emails through the SendGrid v3 API. It is the
// server-mediated alternative to SMTPSender for hosts that block outbound
// SMTP.
type SendGridSender struct {
	config SendGridConfig
	logger *slog.Logger
}

// NewSendGridSender creates a new SendGrid sender.
func NewSendGridSender(config SendGridConfig, logger *slog.Logger) *SendGridSender {
	if config.BaseURL == "" {
		config.BaseURL = DefaultSendGridBaseURL
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	if config.FromName == "" {
		config.FromName = DefaultFromName
	}

	return &SendGridSender{
		config: config,
		logger: logger,
	}
}

// Name returns the backend name.
func (s *SendGridSender) Name() string {
	return BackendSendGrid
}

// Send delivers msg as a single personalization addressed to every recipient.
func (s *SendGridSender) Send(ctx context.Context, msg *domain.ComposedMessage, to []string) (*Receipt, error) {
	if err := s.config.Validate(); err != nil {
		s.logger.Error("sendgrid sender not configured", "error", err, "alert", true)
		return nil, err
	}
	if len(to) == 0 {
		return nil, ErrNoRecipients
	}

	message := s.buildMail(msg, to)

	// The client carries the request body, so one is built per send.
	client := sendgrid.NewSendClient(s.config.APIKey)
	client.BaseURL = s.config.BaseURL + sendGridEndpoint

	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("failed to send email",
			"to", to,
			"subject", msg.Subject,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		detail := TruncateDetail(response.Body)
		s.logger.Error("sendgrid rejected email",
			"to", to,
			"status", response.StatusCode,
			"body", detail,
		)
		return nil, fmt.Errorf("%w: sendgrid status %d: %s", ErrSendFailed, response.StatusCode, detail)
	}

	messageID := http.Header(response.Headers).Get("X-Message-Id")
	s.logger.Info("email sent",
		"to", to,
		"subject", msg.Subject,
		"message_id", messageID,
		"status", response.StatusCode,
	)

	return &Receipt{Backend: BackendSendGrid, MessageID: messageID}, nil
}

// buildMail converts a composed message to the SendGrid v3 payload.
func (s *SendGridSender) buildMail(msg *domain.ComposedMessage, to []string) *mail.SGMailV3 {
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(s.config.FromName, s.config.From))
	message.Subject = msg.Subject

	p := mail.NewPersonalization()
	for _, addr := range to {
		p.AddTos(mail.NewEmail("", addr))
	}
	if s.config.Bcc != "" {
		p.AddBCCs(mail.NewEmail("", s.config.Bcc))
	}
	message.AddPersonalizations(p)

	message.AddContent(mail.NewContent("text/plain", msg.PlainBody))
	message.AddContent(mail.NewContent("text/html", msg.HTMLBody))

	if msg.HasAttachment() {
		a := mail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(msg.Attachment.Data))
		a.SetType(msg.Attachment.ContentType)
		a.SetFilename(msg.Attachment.Filename)
		a.SetDisposition("attachment")
		message.AddAttachment(a)
	}

	return message
}

// Compile-time interface check
var _ Sender = (*SendGridSender)(nil)
