// Package service contains the business logic layer.
//
// This file implements the delivery router: one report submission is
// geocoded, routed to a contact, composed once, and handed to a primary
// and at most one fallback email backend.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DukeRupert/fixiepixie/internal/compose"
	"github.com/DukeRupert/fixiepixie/internal/contact"
	"github.com/DukeRupert/fixiepixie/internal/domain"
	"github.com/DukeRupert/fixiepixie/internal/email"
	"github.com/DukeRupert/fixiepixie/internal/events"
	"github.com/DukeRupert/fixiepixie/internal/geocode"
	"github.com/DukeRupert/fixiepixie/internal/metrics"
	"github.com/DukeRupert/fixiepixie/internal/photo"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ReportService routes citizen reports to the responsible jurisdiction.
type ReportService interface {
	// Submit runs the whole pipeline for one report.
	//
	// A non-nil outcome is returned whenever delivery was attempted, including
	// when every backend failed; the error then carries code delivery_failed
	// or misconfigured. Validation and routing failures return a nil outcome.
	Submit(ctx context.Context, params SubmitParams) (*domain.DeliveryOutcome, error)
}

// SubmitParams contains the parameters for submitting a report.
type SubmitParams struct {
	Submission *domain.ReportSubmission
	Identity   *domain.Identity // nil for anonymous reporters
	Delegator  email.Delegator  // nil when the reporter granted no mailbox access
}

// MailboxSenders builds user-mediated senders for one request.
// *email.MailboxClient implements it.
type MailboxSenders interface {
	Available(identity *domain.Identity, d email.Delegator) bool
	For(identity *domain.Identity, d email.Delegator) email.Sender
}

// =============================================================================
// Implementation
// =============================================================================

// ReportServiceDeps are the collaborators of the report service. Geocoder,
// Contacts, Composer and Server are required; the rest may be nil.
type ReportServiceDeps struct {
	Geocoder  geocode.Geocoder
	Contacts  contact.Resolver
	Composer  *compose.Composer
	Server    email.Sender     // Server-mediated backend (SMTP or SendGrid)
	Mailbox   MailboxSenders   // User-mediated backend; nil disables it
	Photos    *photo.Processor // nil attaches photos unchecked
	Publisher events.Publisher // nil disables outcome events
}

type reportService struct {
	geocoder  geocode.Geocoder
	contacts  contact.Resolver
	composer  *compose.Composer
	server    email.Sender
	mailbox   MailboxSenders
	photos    *photo.Processor
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewReportService creates a new ReportService.
func NewReportService(deps ReportServiceDeps, logger *slog.Logger) ReportService {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &reportService{
		geocoder:  deps.Geocoder,
		contacts:  deps.Contacts,
		composer:  deps.Composer,
		server:    deps.Server,
		mailbox:   deps.Mailbox,
		photos:    deps.Photos,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// =============================================================================
// Submit
// =============================================================================

// Submit validates, routes, composes and delivers one report.
func (s *reportService) Submit(ctx context.Context, params SubmitParams) (*domain.DeliveryOutcome, error) {
	const op = "ReportService.Submit"
	start := s.now()

	if params.Submission == nil {
		metrics.ReportFinished("invalid", time.Since(start))
		return nil, domain.Invalid(op, "Report is required")
	}
	sub := withReporter(params.Submission, params.Identity)

	// 1. Preconditions. Nothing external has been touched yet.
	if err := sub.Validate(); err != nil {
		metrics.ReportFinished("invalid", time.Since(start))
		return nil, err
	}
	if err := s.preparePhoto(op, sub); err != nil {
		metrics.ReportFinished("invalid", time.Since(start))
		return nil, err
	}

	reportID := uuid.NewString()
	logger := s.logger.With("report_id", reportID, "category", sub.Category)

	// 2. Geocoding failures are recovered with an empty descriptor.
	geo, err := s.geocoder.ReverseGeocode(context.WithoutCancel(ctx), *sub.Coordinate)
	if err != nil {
		logger.Warn("reverse geocode failed, routing to default contact",
			"coordinate", sub.Coordinate.String(),
			"error", err,
		)
		geo = domain.GeoDescriptor{}
	}
	if err := s.checkCancelled(ctx, logger, "geocode", start); err != nil {
		return nil, err
	}

	// 3-4. Route by exact city name.
	recipients := s.contacts.Resolve(geo.City).UsableEmails()
	if len(recipients) == 0 {
		logger.Error("no recipient configured", "city", geo.City)
		metrics.ReportFinished("no_recipient", time.Since(start))
		return nil, domain.NoRecipient(op, geo.City)
	}
	logger = logger.With("city", geo.City, "recipients", recipients)

	// 5. Compose once; both attempts receive this exact message.
	msg, err := s.composer.Compose(sub, geo)
	if err != nil {
		metrics.ReportFinished("failed", time.Since(start))
		return nil, domain.Internal(err, op, "failed to compose report")
	}

	// 6-7. Primary, then exactly one fallback.
	primary, fallback := s.backends(params)
	outcome := &domain.DeliveryOutcome{Recipients: recipients}

	receipt, primaryErr := s.attempt(ctx, logger, primary, msg, recipients, outcome)
	if primaryErr == nil {
		if err := s.checkCancelled(ctx, logger, "primary send", start); err != nil {
			return nil, err
		}
		return s.finish(ctx, logger, reportID, sub, geo, outcome, receipt, start), nil
	}

	if err := s.checkCancelled(ctx, logger, "primary send", start); err != nil {
		return nil, err
	}

	var fallbackErr error
	if fallback != nil {
		logger.Info("primary backend failed, trying fallback",
			"primary", primary.Name(),
			"fallback", fallback.Name(),
			"error", primaryErr,
		)
		receipt, fallbackErr = s.attempt(ctx, logger, fallback, msg, recipients, outcome)
		if err := s.checkCancelled(ctx, logger, "fallback send", start); err != nil {
			return nil, err
		}
		if fallbackErr == nil {
			return s.finish(ctx, logger, reportID, sub, geo, outcome, receipt, start), nil
		}
	}

	outcome.Status = domain.DeliveryStatusFailed
	outcome.ErrorDetail = aggregateDetail(outcome.Attempts)
	s.publish(ctx, logger, reportID, sub, geo, outcome)
	metrics.ReportFinished("failed", time.Since(start))

	serverErr := primaryErr
	if primary != s.server {
		serverErr = fallbackErr
	}
	if errors.Is(serverErr, email.ErrMisconfigured) {
		logger.Error("report delivery failed: server backend misconfigured",
			"backends", outcome.BackendsTried(),
			"error", outcome.ErrorDetail,
			"alert", true,
		)
		return outcome, domain.Misconfigured(serverErr, op, "Email delivery is not configured")
	}

	logger.Error("report delivery failed",
		"backends", outcome.BackendsTried(),
		"error", outcome.ErrorDetail,
	)
	return outcome, domain.DeliveryFailed(errors.Join(primaryErr, fallbackErr), op,
		fmt.Sprintf("Report could not be delivered (tried %s)", strings.Join(outcome.BackendsTried(), ", ")))
}

// =============================================================================
// Internal Methods
// =============================================================================

// backends picks the primary and fallback senders. The reporter's mailbox
// goes first when they are signed in and granted delegation.
func (s *reportService) backends(params SubmitParams) (primary, fallback email.Sender) {
	if s.mailbox == nil {
		return s.server, nil
	}
	user := s.mailbox.For(params.Identity, params.Delegator)
	if s.mailbox.Available(params.Identity, params.Delegator) {
		return user, s.server
	}
	return s.server, user
}

// attempt performs one send and records it on outcome.
func (s *reportService) attempt(
	ctx context.Context,
	logger *slog.Logger,
	sender email.Sender,
	msg *domain.ComposedMessage,
	recipients []string,
	outcome *domain.DeliveryOutcome,
) (*email.Receipt, error) {
	receipt, err := sender.Send(context.WithoutCancel(ctx), msg, recipients)
	metrics.DeliveryAttempted(sender.Name(), err)

	a := domain.DeliveryAttempt{Backend: sender.Name()}
	if err != nil {
		a.Error = email.TruncateDetail(err.Error())
		logger.Warn("delivery attempt failed", "backend", sender.Name(), "error", err)
	}
	outcome.Attempts = append(outcome.Attempts, a)
	outcome.Backend = sender.Name()
	return receipt, err
}

// finish marks outcome as sent and publishes it.
func (s *reportService) finish(
	ctx context.Context,
	logger *slog.Logger,
	reportID string,
	sub *domain.ReportSubmission,
	geo domain.GeoDescriptor,
	outcome *domain.DeliveryOutcome,
	receipt *email.Receipt,
	start time.Time,
) *domain.DeliveryOutcome {
	outcome.Status = domain.DeliveryStatusSent
	if receipt != nil {
		outcome.MessageID = receipt.MessageID
		if receipt.Backend != "" {
			outcome.Backend = receipt.Backend
		}
	}

	logger.Info("report delivered",
		"backend", outcome.Backend,
		"message_id", outcome.MessageID,
		"attempts", len(outcome.Attempts),
	)
	s.publish(ctx, logger, reportID, sub, geo, outcome)
	metrics.ReportFinished("sent", time.Since(start))
	return outcome
}

func (s *reportService) publish(
	ctx context.Context,
	logger *slog.Logger,
	reportID string,
	sub *domain.ReportSubmission,
	geo domain.GeoDescriptor,
	outcome *domain.DeliveryOutcome,
) {
	event := events.NewEvent(reportID, sub, geo, outcome, s.now())
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn("failed to publish outcome event", "error", err)
	}
}

// checkCancelled stops the pipeline once the caller has gone away. The
// external call that just finished is not rolled back.
func (s *reportService) checkCancelled(ctx context.Context, logger *slog.Logger, stage string, start time.Time) error {
	if err := ctx.Err(); err != nil {
		logger.Info("submission cancelled by caller, discarding result", "stage", stage)
		metrics.ReportFinished("cancelled", time.Since(start))
		return fmt.Errorf("report submission cancelled after %s: %w", stage, err)
	}
	return nil
}

// preparePhoto validates and resizes the photo in place on sub.
func (s *reportService) preparePhoto(op string, sub *domain.ReportSubmission) error {
	if s.photos == nil || sub.Photo.IsEmpty() {
		return nil
	}
	prepared, err := s.photos.Prepare(sub.Photo)
	switch {
	case errors.Is(err, photo.ErrTooLarge):
		return domain.TooLarge(op, fmt.Sprintf("Photo must be %d MB or smaller", s.photos.MaxBytes()>>20))
	case errors.Is(err, photo.ErrNotImage):
		return domain.Invalid(op, "Photo must be an image")
	case err != nil:
		return domain.Internal(err, op, "failed to process photo")
	}
	sub.Photo = prepared
	return nil
}

// withReporter returns a copy of sub with reporter fields defaulted from
// the authenticated identity.
func withReporter(sub *domain.ReportSubmission, identity *domain.Identity) *domain.ReportSubmission {
	cp := *sub
	if identity != nil {
		if strings.TrimSpace(cp.ReporterName) == "" && strings.TrimSpace(identity.Name) != "" {
			cp.ReporterName = identity.Name
		}
		if strings.TrimSpace(cp.ReporterEmail) == "" {
			cp.ReporterEmail = identity.Email
		}
	}
	return &cp
}

// aggregateDetail joins per-backend errors as "backend: detail; ...".
func aggregateDetail(attempts []domain.DeliveryAttempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		if a.Error != "" {
			parts = append(parts, a.Backend+": "+a.Error)
		}
	}
	return strings.Join(parts, "; ")
}
