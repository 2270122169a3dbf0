// Package geocode resolves report coordinates to address descriptors.
//
// The Geocoder interface has one production implementation, NominatimClient,
// which talks to an OpenStreetMap Nominatim reverse-geocoding endpoint.
// Callers treat every failure as non-fatal and continue with an empty
// descriptor; the adapter itself never retries.
package geocode

import (
	"context"
	"errors"
	"fmt"

	"github.com/DukeRupert/fixiepixie/internal/domain"
)

// Geocoder resolves a coordinate to a normalized address descriptor.
type Geocoder interface {
	// ReverseGeocode performs exactly one upstream lookup.
	// Returns ErrUnavailable or ErrMalformed (wrapped) on failure.
	ReverseGeocode(ctx context.Context, coord domain.Coordinate) (domain.GeoDescriptor, error)
}

// Error codes for geocoding operations
var (
	// ErrUnavailable indicates the upstream service could not be reached or
	// answered with a non-success status.
	ErrUnavailable = errors.New("geocoder unavailable")

	// ErrMalformed indicates the upstream response did not contain an
	// address object.
	ErrMalformed = errors.New("geocoder response malformed")
)

// IsGeocodeFailure returns true for either geocoding failure kind.
func IsGeocodeFailure(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrMalformed)
}

func wrapError(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
