// Package events publishes report delivery outcomes to a message broker.
//
// Publishing is best effort: a failed publish is logged and counted but
// never changes the outcome returned to the reporter.
package events

import (
	"context"
	"time"

	"github.com/DukeRupert/fixiepixie/internal/domain"
)

// Routing keys
const (
	RoutingKeySent   = "report.sent"
	RoutingKeyFailed = "report.failed"
)

// Event is the JSON body of an outcome message.
type Event struct {
	ReportID   string    `json:"report_id"`
	Status     string    `json:"status"`
	Backend    string    `json:"backend,omitempty"`
	Recipients []string  `json:"recipients"`
	City       string    `json:"city"`
	Category   string    `json:"category"`
	MessageID  string    `json:"message_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewEvent describes a terminal outcome.
func NewEvent(reportID string, sub *domain.ReportSubmission, geo domain.GeoDescriptor, outcome *domain.DeliveryOutcome, at time.Time) Event {
	return Event{
		ReportID:   reportID,
		Status:     outcome.Status.String(),
		Backend:    outcome.Backend,
		Recipients: outcome.Recipients,
		City:       geo.City,
		Category:   sub.Category,
		MessageID:  outcome.MessageID,
		Timestamp:  at.UTC(),
	}
}

// RoutingKey returns the topic routing key for the event's status.
func (e Event) RoutingKey() string {
	if e.Status == domain.DeliveryStatusSent.String() {
		return RoutingKeySent
	}
	return RoutingKeyFailed
}

// Publisher sends outcome events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher discards events. It is used when no broker is configured.
type NoopPublisher struct{}

// Publish does nothing.
func (NoopPublisher) Publish(ctx context.Context, event Event) error { return nil }

// Close does nothing.
func (NoopPublisher) Close() error { return nil }

var _ Publisher = NoopPublisher{}
