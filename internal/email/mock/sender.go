// Package mock provides an in-memory email.Sender for development and tests.
package mock

import (
	"context"
	"log/slog"
	"sync"

	"github.com/DukeRupert/fixiepixie/internal/domain"
	"github.com/DukeRupert/fixiepixie/internal/email"
	"github.com/google/uuid"
)

// Delivery is one message the mock accepted.
type Delivery struct {
	Message    *domain.ComposedMessage
	Recipients []string
}

// Sender is a mock email sender. It accepts every message unless SendError
// is set, and never opens a network connection.
type Sender struct {
	logger *slog.Logger
	name   string

	// Configurable responses for testing
	SendError error
	MessageID string

	mu         sync.Mutex
	attempts   []Delivery
	deliveries []Delivery
}

// New creates a new mock sender reporting itself as name.
func New(name string, logger *slog.Logger) *Sender {
	if name == "" {
		name = "mock"
	}
	return &Sender{
		logger: logger,
		name:   name,
	}
}

// Name returns the configured backend name.
func (s *Sender) Name() string {
	return s.name
}

// Send records the message and returns a canned receipt.
func (s *Sender) Send(ctx context.Context, msg *domain.ComposedMessage, to []string) (*email.Receipt, error) {
	attempt := Delivery{Message: msg, Recipients: append([]string(nil), to...)}

	s.mu.Lock()
	s.attempts = append(s.attempts, attempt)
	s.mu.Unlock()

	// If a custom error is set, use it
	if s.SendError != nil {
		return nil, s.SendError
	}

	messageID := s.MessageID
	if messageID == "" {
		messageID = "<" + uuid.NewString() + "@mock.fixiepixie.local>"
	}

	s.mu.Lock()
	s.deliveries = append(s.deliveries, attempt)
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("mock email accepted",
			"backend", s.name,
			"to", to,
			"subject", msg.Subject,
			"message_id", messageID,
		)
	}

	return &email.Receipt{Backend: s.name, MessageID: messageID}, nil
}

// Calls returns how many times Send was invoked.
func (s *Sender) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

// Attempts returns every message handed to Send, accepted or not.
func (s *Sender) Attempts() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.attempts...)
}

// Deliveries returns the accepted messages in order.
func (s *Sender) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.deliveries...)
}

// Compile-time interface check
var _ email.Sender = (*Sender)(nil)
