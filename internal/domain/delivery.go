// Package domain contains core business types and interfaces.
//
// This file defines the routing and delivery types: the contact record a
// report is routed to, the composed message, and the delivery outcome.
package domain

import "strings"

// =============================================================================
// Contact Record
// =============================================================================

// ContactRecord lists the recipient addresses of one jurisdiction.
type ContactRecord struct {
	Emails []string `json:"emails" yaml:"emails"`
}

// UsableEmails returns the non-blank addresses in order.
func (c ContactRecord) UsableEmails() []string {
	out := make([]string, 0, len(c.Emails))
	for _, e := range c.Emails {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// Composed Message
// =============================================================================

// Attachment is a binary file attached to a composed message.
type Attachment struct {
	Data        []byte
	ContentType string
	Filename    string
}

// ComposedMessage is the backend-agnostic rendering of a report.
// It is built once per submission and must not be modified after composition;
// every delivery attempt for that submission receives the same value.
type ComposedMessage struct {
	Subject    string
	PlainBody  string
	HTMLBody   string
	Attachment *Attachment // nil when the report has no photo
}

// HasAttachment returns true if the message carries a non-empty attachment.
func (m *ComposedMessage) HasAttachment() bool {
	return m.Attachment != nil && len(m.Attachment.Data) > 0
}

// =============================================================================
// Delivery Status
// =============================================================================

// DeliveryStatus is the terminal state of a report delivery.
type DeliveryStatus string

const (
	// DeliveryStatusSent indicates one of the backends accepted the message.
	DeliveryStatusSent DeliveryStatus = "sent"

	// DeliveryStatusFailed indicates every attempted backend failed.
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// String returns the string representation of the status.
func (s DeliveryStatus) String() string {
	return string(s)
}

// =============================================================================
// Delivery Outcome
// =============================================================================

// DeliveryAttempt records one try against a single backend.
type DeliveryAttempt struct {
	Backend string `json:"backend"`
	Error   string `json:"error,omitempty"`
}

// DeliveryOutcome is the result of routing one report.
type DeliveryOutcome struct {
	Status      DeliveryStatus    `json:"status"`
	MessageID   string            `json:"messageId,omitempty"`
	Recipients  []string          `json:"recipients"`
	Backend     string            `json:"backend,omitempty"`
	Attempts    []DeliveryAttempt `json:"attempts,omitempty"`
	ErrorDetail string            `json:"error,omitempty"`
}

// IsSent returns true if the report was delivered.
func (o *DeliveryOutcome) IsSent() bool {
	return o != nil && o.Status == DeliveryStatusSent
}

// BackendsTried returns the backend names in attempt order.
func (o *DeliveryOutcome) BackendsTried() []string {
	names := make([]string, 0, len(o.Attempts))
	for _, a := range o.Attempts {
		names = append(names, a.Backend)
	}
	return names
}
