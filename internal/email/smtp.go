package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/DukeRupert/fixiepixie/internal/domain"
)

// =============================================================================
// SMTP Sender Implementation
// =============================================================================

// ImplicitTLSPort is the SMTPS port; connections to it are TLS from the
// first byte. Every other port starts in plain text and upgrades with
// STARTTLS when the server offers it.
const ImplicitTLSPort = 465

// SMTPSender sends report emails via the service's SMTP account.
//
// This implementation works with:
// - Mailhog (development)
// - Any submission server on 587 (STARTTLS) or 465 (implicit TLS)
//
// Configuration is checked on every Send rather than at construction, so a
// process without SMTP settings starts normally and fails only when mail
// is actually needed.
type SMTPSender struct {
	config SMTPConfig
	logger *slog.Logger
	now    func() time.Time

	// tlsConfig overrides the TLS client configuration (tests only).
	tlsConfig *tls.Config
	// addr overrides the dial address; Host and Port still pick TLS and auth (tests only).
	addr string
}

// NewSMTPSender creates a new SMTP-based sender.
//
// Example usage:
//
//	sender := email.NewSMTPSender(
//	    email.SMTPConfig{
//	        Host:     "smtp.example.com",
//	        Port:     587,
//	        Username: "apikey",
//	        Password: os.Getenv("SMTP_PASS"),
//	        From:     "reports@fixiepixie.example",
//	        FromName: "FixiePixie",
//	    },
//	    logger,
//	)
func NewSMTPSender(config SMTPConfig, logger *slog.Logger) *SMTPSender {
	// Set defaults
	if config.FromName == "" {
		config.FromName = DefaultFromName
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &SMTPSender{
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Name returns the backend name.
func (s *SMTPSender) Name() string {
	return BackendSMTP
}

// Send delivers msg to every recipient plus the configured blind copy.
func (s *SMTPSender) Send(ctx context.Context, msg *domain.ComposedMessage, to []string) (*Receipt, error) {
	if err := s.config.Validate(); err != nil {
		s.logger.Error("smtp sender not configured", "error", err, "alert", true)
		return nil, err
	}
	if len(to) == 0 {
		return nil, ErrNoRecipients
	}

	messageID := newMessageID(s.config.From)
	raw, err := buildMessage(header{
		From:      formatAddress(s.config.FromName, s.config.From),
		To:        to,
		MessageID: messageID,
		Date:      s.now(),
	}, msg, layoutAlternative)
	if err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}

	envelope := append([]string(nil), to...)
	if s.config.Bcc != "" {
		envelope = append(envelope, s.config.Bcc)
	}

	if err := s.deliver(ctx, envelope, raw); err != nil {
		s.logger.Error("failed to send email",
			"to", to,
			"subject", msg.Subject,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	s.logger.Info("email sent",
		"to", to,
		"subject", msg.Subject,
		"message_id", messageID,
	)

	return &Receipt{Backend: BackendSMTP, MessageID: messageID}, nil
}

// =============================================================================
// Internal Methods
// =============================================================================

// deliver runs one SMTP conversation bounded by the configured timeout.
func (s *SMTPSender) deliver(ctx context.Context, recipients []string, raw []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("greeting: %w", err)
	}
	defer c.Close()

	secure := s.config.Port == ImplicitTLSPort
	if !secure {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(s.clientTLSConfig()); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
			secure = true
		}
	}

	// Mailhog and similar relays do not advertise AUTH.
	if ok, _ := c.Extension("AUTH"); ok {
		var auth smtp.Auth
		if secure {
			auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		} else {
			s.logger.Warn("smtp server offers no STARTTLS; authenticating in plain text",
				"host", s.config.Host,
				"port", s.config.Port,
			)
			auth = plainTextAuth{username: s.config.Username, password: s.config.Password}
		}
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.Mail(s.config.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end data: %w", err)
	}

	return c.Quit()
}

func (s *SMTPSender) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	if s.addr != "" {
		addr = s.addr
	}
	dialer := &net.Dialer{Timeout: s.config.Timeout}

	if s.config.Port == ImplicitTLSPort {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: s.clientTLSConfig()}
		return tlsDialer.DialContext(ctx, "tcp", addr)
	}
	return dialer.DialContext(ctx, "tcp", addr)
}

func (s *SMTPSender) clientTLSConfig() *tls.Config {
	if s.tlsConfig != nil {
		return s.tlsConfig
	}
	return &tls.Config{ServerName: s.config.Host, MinVersion: tls.VersionTLS12}
}

// plainTextAuth is AUTH PLAIN without net/smtp's TLS requirement. It is used
// only when the server on a non-465 port does not offer STARTTLS.
type plainTextAuth struct {
	username string
	password string
}

func (a plainTextAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	return "PLAIN", []byte("\x00" + a.username + "\x00" + a.password), nil
}

func (a plainTextAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		return nil, errors.New("unexpected server challenge")
	}
	return nil, nil
}

// =============================================================================
// Compile-time interface check
// =============================================================================

var _ Sender = (*SMTPSender)(nil)
