// Package email delivers composed report messages.
//
// This package defines a Sender interface with implementations for:
// - SMTP (server-mediated, the service's own transactional account)
// - SendGrid (server-mediated, HTTP API alternative to SMTP)
// - Mailbox (user-mediated, sends as the reporter with a delegated credential)
package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DukeRupert/fixiepixie/internal/domain"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Sender delivers one composed message to a list of recipients.
//
// Implementations:
// - SMTPSender: SMTP submission with implicit TLS on port 465
// - SendGridSender: SendGrid v3 mail/send API
// - mailboxSender: mailbox provider send endpoint, obtained via MailboxClient.For
//
// Send must not modify msg; the same message may be handed to a second
// Sender when the first one fails.
type Sender interface {
	// Name identifies the backend in logs, metrics and outcomes.
	Name() string

	// Send performs exactly one delivery attempt.
	Send(ctx context.Context, msg *domain.ComposedMessage, to []string) (*Receipt, error)
}

// Receipt describes an accepted message.
type Receipt struct {
	Backend   string // Name of the Sender that accepted the message
	MessageID string // Provider message identifier, may be empty
}

// =============================================================================
// Backend Names
// =============================================================================

const (
	BackendSMTP     = "smtp"
	BackendSendGrid = "sendgrid"
	BackendMailbox  = "mailbox"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrMisconfigured indicates required process configuration is absent.
	ErrMisconfigured = errors.New("email delivery misconfigured")

	// ErrDelegationDenied indicates no usable delegated credential was granted.
	ErrDelegationDenied = errors.New("mailbox delegation denied")

	// ErrMailboxRejected indicates the mailbox provider refused the message.
	ErrMailboxRejected = errors.New("mailbox send rejected")

	// ErrSendFailed indicates the transport or provider failed the send.
	ErrSendFailed = errors.New("email send failed")

	// ErrNoRecipients indicates Send was called with an empty recipient list.
	ErrNoRecipients = errors.New("no recipients")
)

// MaxErrorDetail bounds provider payloads carried in error messages.
const MaxErrorDetail = 200

// TruncateDetail shortens s to at most MaxErrorDetail bytes without
// splitting a UTF-8 sequence.
func TruncateDetail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= MaxErrorDetail {
		return s
	}
	cut := MaxErrorDetail
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// =============================================================================
// Configuration Types
// =============================================================================

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string        // SMTP server hostname
	Port     int           // 465 selects implicit TLS; anything else uses STARTTLS when offered
	Username string        // SMTP authentication username
	Password string        // SMTP authentication password
	From     string        // Sender email address
	FromName string        // Sender display name
	Bcc      string        // Blind copy applied to every send, optional
	Timeout  time.Duration // Bounds the whole SMTP conversation
}

// Validate reports the settings that must be present before a send.
func (c SMTPConfig) Validate() error {
	var missing []string
	if c.Host == "" {
		missing = append(missing, "SMTP_HOST")
	}
	if c.Port <= 0 {
		missing = append(missing, "SMTP_PORT")
	}
	if c.Username == "" {
		missing = append(missing, "SMTP_USER")
	}
	if c.Password == "" {
		missing = append(missing, "SMTP_PASS")
	}
	if c.From == "" {
		missing = append(missing, "SENDER_EMAIL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: set %s", ErrMisconfigured, strings.Join(missing, ", "))
	}
	return nil
}

// SendGridConfig holds SendGrid API configuration.
type SendGridConfig struct {
	APIKey   string // SendGrid API key
	BaseURL  string // API host, defaults to https://api.sendgrid.com
	From     string // Sender email address
	FromName string // Sender display name
	Bcc      string // Blind copy applied to every send, optional
}

// Validate reports the settings that must be present before a send.
func (c SendGridConfig) Validate() error {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "SENDGRID_API_KEY")
	}
	if c.From == "" {
		missing = append(missing, "SENDER_EMAIL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: set %s", ErrMisconfigured, strings.Join(missing, ", "))
	}
	return nil
}

// =============================================================================
// Common Constants
// =============================================================================

const (
	// DefaultFromName is the default sender display name.
	DefaultFromName = "FixiePixie"

	// DefaultTimeout bounds a single send when no timeout is configured.
	DefaultTimeout = 30 * time.Second
)

// formatAddress renders "Name" <addr>, RFC 2047 encoding non-ASCII names.
func formatAddress(name, addr string) string {
	return (&mail.Address{Name: name, Address: addr}).String()
}
