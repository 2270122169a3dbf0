package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/fixiepixie/internal/domain"
	"golang.org/x/oauth2"
)

const (
	// DefaultMailboxSendURL is the Gmail API send endpoint for the
	// authorized user.
	DefaultMailboxSendURL = "https://gmail.googleapis.com/gmail/v1/users/me/messages/send"

	// DefaultDelegationTimeout bounds how long a credential grant may take.
	DefaultDelegationTimeout = 60 * time.Second

	// maxMailboxResponse limits how much of a provider response is read.
	maxMailboxResponse = 64 << 10
)

// MailboxConfig configures the user-mediated backend.
type MailboxConfig struct {
	SendURL           string
	Timeout           time.Duration
	DelegationTimeout time.Duration
}

// MailboxClient sends reports from the reporter's own mailbox. It holds only
// process-wide settings; per-request state lives in the Sender returned by
// For.
type MailboxClient struct {
	config    MailboxConfig
	transport http.RoundTripper
	logger    *slog.Logger
	now       func() time.Time
}

// NewMailboxClient creates a new mailbox client.
func NewMailboxClient(config MailboxConfig, logger *slog.Logger) *MailboxClient {
	if config.SendURL == "" {
		config.SendURL = DefaultMailboxSendURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.DelegationTimeout == 0 {
		config.DelegationTimeout = DefaultDelegationTimeout
	}

	return &MailboxClient{
		config:    config,
		transport: http.DefaultTransport,
		logger:    logger,
		now:       time.Now,
	}
}

// Available reports whether a mailbox send can be attempted for identity.
func (m *MailboxClient) Available(identity *domain.Identity, d Delegator) bool {
	return identity.CanSendMail() && d != nil
}

// For returns a Sender that sends as identity using credentials from d.
// Either argument may be nil; the returned Sender then fails with
// ErrDelegationDenied without any network call.
func (m *MailboxClient) For(identity *domain.Identity, d Delegator) Sender {
	return &mailboxSender{client: m, identity: identity, delegator: d}
}

// mailboxSender is one request's view of the mailbox backend.
type mailboxSender struct {
	client    *MailboxClient
	identity  *domain.Identity
	delegator Delegator
}

// sendRequest is the provider's raw-message payload.
type sendRequest struct {
	Raw string `json:"raw"`
}

type sendResponse struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

func (s *mailboxSender) Name() string {
	return BackendMailbox
}

// Send obtains a delegated credential and submits msg as a base64url
// encoded MIME message.
func (s *mailboxSender) Send(ctx context.Context, msg *domain.ComposedMessage, to []string) (*Receipt, error) {
	m := s.client

	if !s.identity.CanSendMail() {
		return nil, fmt.Errorf("%w: no authenticated reporter mailbox", ErrDelegationDenied)
	}
	if s.delegator == nil {
		return nil, fmt.Errorf("%w: no credential grant for %s", ErrDelegationDenied, s.identity.Email)
	}
	if len(to) == 0 {
		return nil, ErrNoRecipients
	}

	token, err := delegate(ctx, s.delegator, *s.identity, m.config.DelegationTimeout)
	if err != nil {
		m.logger.Warn("mailbox delegation denied", "reporter", s.identity.Email, "error", err)
		return nil, err
	}

	raw, err := buildMessage(header{
		From: s.identity.Address(),
		To:   to,
		Date: m.now(),
	}, msg, layoutHTML)
	if err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}

	payload, err := json.Marshal(sendRequest{Raw: base64.RawURLEncoding.EncodeToString(raw)})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.SendURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(token),
			Base:   m.transport,
		},
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		m.logger.Error("mailbox send request failed", "reporter", s.identity.Email, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMailboxResponse))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrSendFailed, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail := TruncateDetail(string(body))
		m.logger.Warn("mailbox provider rejected email",
			"reporter", s.identity.Email,
			"status", resp.StatusCode,
			"body", detail,
		)
		return nil, fmt.Errorf("%w: status %d: %s", ErrMailboxRejected, resp.StatusCode, detail)
	}

	var sent sendResponse
	if err := json.Unmarshal(body, &sent); err != nil {
		// Accepted but unparseable: the message went out, the id is unknown.
		m.logger.Warn("mailbox send response not understood", "error", err)
	}

	m.logger.Info("email sent",
		"backend", BackendMailbox,
		"reporter", s.identity.Email,
		"to", to,
		"subject", msg.Subject,
		"message_id", sent.ID,
	)

	return &Receipt{Backend: BackendMailbox, MessageID: sent.ID}, nil
}

// Compile-time interface check
var _ Sender = (*mailboxSender)(nil)
