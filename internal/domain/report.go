// Package domain contains core business types and interfaces.
//
// This file defines the report submission types: the coordinate a citizen
// reported from, the address descriptor it resolves to, and the optional
// photo that travels with the report.
package domain

import (
	"fmt"
	"math"
	"strings"
)

// =============================================================================
// Report Constants
// =============================================================================

const (
	// AnonymousReporter is the display name used when the reporter gave none.
	AnonymousReporter = "Anonymous"

	// DefaultPhotoFilename is used when an uploaded photo carries no filename.
	DefaultPhotoFilename = "report.jpg"

	// DefaultPhotoContentType is used when an uploaded photo carries no MIME type.
	DefaultPhotoContentType = "image/jpeg"

	// MaxCategoryLength bounds the category string accepted from clients.
	MaxCategoryLength = 100

	// MaxNoteLength bounds the free-text note accepted from clients.
	MaxNoteLength = 5000
)

// =============================================================================
// Coordinate
// =============================================================================

// Coordinate is a WGS84 position reported by the citizen's device.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsFinite reports whether both components are finite numbers.
func (c Coordinate) IsFinite() bool {
	return !math.IsNaN(c.Latitude) && !math.IsInf(c.Latitude, 0) &&
		!math.IsNaN(c.Longitude) && !math.IsInf(c.Longitude, 0)
}

// String renders the coordinate as "lat, lon" with six decimals.
// Non-finite values render literally (NaN, +Inf).
func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f, %.6f", c.Latitude, c.Longitude)
}

// =============================================================================
// Geo Descriptor
// =============================================================================

// GeoDescriptor is the normalized address a coordinate resolves to.
// Every field is an empty string when the geocoder did not provide it.
type GeoDescriptor struct {
	PostalCode     string `json:"zip"`
	City           string `json:"city"`
	State          string `json:"state"`
	DisplayAddress string `json:"display"`
}

// IsEmpty returns true if no field of the descriptor is set.
func (g GeoDescriptor) IsEmpty() bool {
	return g == GeoDescriptor{}
}

// =============================================================================
// Photo
// =============================================================================

// Photo is an optional image attached to a report.
type Photo struct {
	Data        []byte
	ContentType string
	Filename    string
}

// IsEmpty returns true if there are no photo bytes.
func (p *Photo) IsEmpty() bool {
	return p == nil || len(p.Data) == 0
}

// =============================================================================
// Report Submission
// =============================================================================

// ReportSubmission is a single citizen report as received from a client.
type ReportSubmission struct {
	Coordinate    *Coordinate // Required
	Category      string      // Required, non-empty
	Note          string      // Optional free text
	ReporterName  string      // Optional; defaults to AnonymousReporter
	ReporterEmail string      // Optional
	Photo         *Photo      // Optional
}

// Validate checks the submission preconditions.
// A missing coordinate or an empty category yields a ValidationError.
func (s *ReportSubmission) Validate() error {
	const op = "ReportSubmission.Validate"

	var ve *ValidationError
	if s.Coordinate == nil {
		ve = NewValidationError(op, "coordinate", "Location is required")
	}
	category := strings.TrimSpace(s.Category)
	if category == "" {
		ve = addField(ve, op, "category", "Category is required")
	} else if len(category) > MaxCategoryLength {
		ve = addField(ve, op, "category", fmt.Sprintf("Category must be %d characters or fewer", MaxCategoryLength))
	}
	if len(s.Note) > MaxNoteLength {
		ve = addField(ve, op, "note", fmt.Sprintf("Note must be %d characters or fewer", MaxNoteLength))
	}

	if ve != nil {
		return ve
	}
	return nil
}

// ReporterDisplayName returns the reporter's name or AnonymousReporter.
func (s *ReportSubmission) ReporterDisplayName() string {
	if name := strings.TrimSpace(s.ReporterName); name != "" {
		return name
	}
	return AnonymousReporter
}

func addField(ve *ValidationError, op, field, message string) *ValidationError {
	if ve == nil {
		return NewValidationError(op, field, message)
	}
	ve.Fields[field] = message
	return ve
}
