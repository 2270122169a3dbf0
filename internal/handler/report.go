// Package handler contains HTTP handlers for the FixiePixie service.
//
// This file implements the report submission and reverse-geocode endpoints.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DukeRupert/fixiepixie/internal/auth"
	"github.com/DukeRupert/fixiepixie/internal/domain"
	"github.com/DukeRupert/fixiepixie/internal/email"
	"github.com/DukeRupert/fixiepixie/internal/geocode"
	"github.com/DukeRupert/fixiepixie/internal/service"
)

const (
	// MailboxTokenHeader carries the reporter's delegated mailbox credential.
	MailboxTokenHeader = "X-Mailbox-Token"

	// MailboxTokenExpiryHeader optionally carries the credential expiry (RFC3339).
	MailboxTokenExpiryHeader = "X-Mailbox-Token-Expiry"

	// formOverhead is allowed on top of the photo limit for the other fields
	// and multipart framing.
	formOverhead = 1 << 20

	// maxMemory is how much of a multipart form is held in memory.
	maxMemory = 10 << 20
)

// ReportHandler handles report submissions and geocode lookups.
type ReportHandler struct {
	reports       service.ReportService
	geocoder      geocode.Geocoder
	maxPhotoBytes int64
	logger        *slog.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(
	reports service.ReportService,
	geocoder geocode.Geocoder,
	maxPhotoBytes int64,
	logger *slog.Logger,
) *ReportHandler {
	return &ReportHandler{
		reports:       reports,
		geocoder:      geocoder,
		maxPhotoBytes: maxPhotoBytes,
		logger:        logger,
	}
}

// reportResponse is the body of POST /api/report.
type reportResponse struct {
	*domain.DeliveryOutcome
	Code string `json:"code,omitempty"`
}

// =============================================================================
// POST /api/report
// =============================================================================

// Submit handles a report submission.
// POST /api/report (multipart/form-data or application/x-www-form-urlencoded)
//
// Fields: lat, lon, category, note, name, email, photo (file).
func (h *ReportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	const op = "ReportHandler.Submit"

	r.Body = http.MaxBytesReader(w, r.Body, h.maxPhotoBytes+formOverhead)
	if err := parseForm(r); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			ErrorResponse(w, r, h.logger, h.tooLarge(op))
			return
		}
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Could not read the submitted form"))
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	coord, err := formCoordinate(r.FormValue("lat"), r.FormValue("lon"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, err.Error()))
		return
	}

	photo, err := h.readPhoto(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	delegator, err := mailboxDelegator(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, err.Error()))
		return
	}

	sub := &domain.ReportSubmission{
		Coordinate:    coord,
		Category:      r.FormValue("category"),
		Note:          r.FormValue("note"),
		ReporterName:  strings.TrimSpace(r.FormValue("name")),
		ReporterEmail: strings.TrimSpace(r.FormValue("email")),
		Photo:         photo,
	}

	outcome, err := h.reports.Submit(r.Context(), service.SubmitParams{
		Submission: sub,
		Identity:   auth.GetIdentityFromRequest(r),
		Delegator:  delegator,
	})
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, reportResponse{DeliveryOutcome: outcome})
	case errors.Is(err, context.Canceled):
		h.logger.Info("client went away before the report finished", "path", r.URL.Path)
	case outcome != nil:
		// Every backend failed; the outcome names them and carries the detail.
		WriteJSON(w, ErrorCodeToHTTPStatus(domain.ErrorCode(err)), reportResponse{
			DeliveryOutcome: outcome,
			Code:            domain.ErrorCode(err),
		})
	default:
		ErrorResponse(w, r, h.logger, err)
	}
}

func (h *ReportHandler) tooLarge(op string) error {
	return domain.TooLarge(op, fmt.Sprintf("Photo must be %d MB or smaller", h.maxPhotoBytes>>20))
}

// readPhoto returns the uploaded photo, or nil when none was sent.
func (h *ReportHandler) readPhoto(r *http.Request) (*domain.Photo, error) {
	const op = "ReportHandler.readPhoto"

	file, header, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Invalid(op, "Could not read the photo")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxPhotoBytes+1))
	if err != nil {
		return nil, domain.Invalid(op, "Could not read the photo")
	}
	if int64(len(data)) > h.maxPhotoBytes {
		return nil, h.tooLarge(op)
	}
	if len(data) == 0 {
		return nil, nil
	}

	return &domain.Photo{
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
		Filename:    header.Filename,
	}, nil
}

// =============================================================================
// GET /reverse
// =============================================================================

// Reverse resolves a coordinate to an address descriptor.
// GET /reverse?lat=..&lon=..
func (h *ReportHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	const op = "ReportHandler.Reverse"

	q := r.URL.Query()
	coord, err := formCoordinate(q.Get("lat"), q.Get("lon"))
	if err != nil || coord == nil || !coord.IsFinite() {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "lat/lon required"))
		return
	}

	geo, err := h.geocoder.ReverseGeocode(r.Context(), *coord)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Wrap(err, domain.EUNAVAILABLE, op, "reverse geocode failed"))
		return
	}

	WriteJSON(w, http.StatusOK, geo)
}

// =============================================================================
// Helpers
// =============================================================================

// parseForm parses multipart and urlencoded bodies alike.
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

// formCoordinate parses lat/lon. Both missing yields nil so validation can
// report the missing location; one missing or either unparseable is an error.
func formCoordinate(lat, lon string) (*domain.Coordinate, error) {
	lat, lon = strings.TrimSpace(lat), strings.TrimSpace(lon)
	if lat == "" && lon == "" {
		return nil, nil
	}
	if lat == "" || lon == "" {
		return nil, errors.New("lat/lon required")
	}

	la, err := strconv.ParseFloat(lat, 64)
	if err != nil && !isRangeError(err) {
		return nil, errors.New("lat/lon must be numbers")
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil && !isRangeError(err) {
		return nil, errors.New("lat/lon must be numbers")
	}
	return &domain.Coordinate{Latitude: la, Longitude: lo}, nil
}

// isRangeError reports an overflowing number; ParseFloat then returns ±Inf,
// which is carried as-is.
func isRangeError(err error) bool {
	return errors.Is(err, strconv.ErrRange)
}

// mailboxDelegator builds a delegation from the mailbox token headers.
func mailboxDelegator(r *http.Request) (email.Delegator, error) {
	token := strings.TrimSpace(r.Header.Get(MailboxTokenHeader))
	if token == "" {
		return nil, nil
	}

	var expiry time.Time
	if raw := strings.TrimSpace(r.Header.Get(MailboxTokenExpiryHeader)); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("%s must be an RFC3339 timestamp", MailboxTokenExpiryHeader)
		}
		expiry = t
	}
	return email.NewTokenDelegation(token, expiry), nil
}
