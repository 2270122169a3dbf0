// Package domain contains core business types and interfaces.
//
// This file defines the reporter Identity. Authentication itself happens
// elsewhere; by the time a report reaches the pipeline the caller has either
// attached a verified identity or none at all.
package domain

import (
	"net/mail"
	"strings"
)

// Identity is an authenticated reporter.
type Identity struct {
	Subject string // Stable user identifier ("sub" claim)
	Email   string // Mailbox the reporter can send from
	Name    string // Display name, may be empty
}

// CanSendMail returns true if the identity has a mailbox address.
func (i *Identity) CanSendMail() bool {
	return i != nil && strings.TrimSpace(i.Email) != ""
}

// DisplayName returns the name, falling back to the email address.
func (i *Identity) DisplayName() string {
	if i == nil {
		return AnonymousReporter
	}
	if name := strings.TrimSpace(i.Name); name != "" {
		return name
	}
	if i.Email != "" {
		return i.Email
	}
	return AnonymousReporter
}

// Address formats the identity as an RFC 5322 mailbox ("Name" <email>),
// or the bare address when there is no name.
func (i *Identity) Address() string {
	if i == nil || i.Email == "" {
		return ""
	}
	if name := strings.TrimSpace(i.Name); name != "" {
		return (&mail.Address{Name: name, Address: i.Email}).String()
	}
	return i.Email
}
