package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DukeRupert/fixiepixie/internal/domain"
	"github.com/DukeRupert/fixiepixie/internal/metrics"
)

const (
	// DefaultBaseURL is the public Nominatim API endpoint.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	// DefaultUserAgent identifies this client; Nominatim's usage policy
	// rejects requests without one.
	DefaultUserAgent = "FixiePixie/0.1"

	// DefaultTimeout bounds a single lookup.
	DefaultTimeout = 10 * time.Second

	// maxErrorBody limits how much of an error response is kept for logging.
	maxErrorBody = 512
)

// Config contains configuration for the Nominatim client.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// NominatimClient implements Geocoder against the Nominatim /reverse API.
type NominatimClient struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// NewNominatimClient creates a new Nominatim reverse geocoder.
func NewNominatimClient(config Config, logger *slog.Logger) *NominatimClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	return &NominatimClient{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

// nominatimResponse is the subset of the jsonv2 reverse response we read.
type nominatimResponse struct {
	DisplayName string            `json:"display_name"`
	Address     *nominatimAddress `json:"address"`
	Error       string            `json:"error"`
}

type nominatimAddress struct {
	PostCode string `json:"postcode"`
	City     string `json:"city"`
	Town     string `json:"town"`
	Village  string `json:"village"`
	County   string `json:"county"`
	State    string `json:"state"`
}

// ReverseGeocode resolves a coordinate with a single GET to /reverse.
func (c *NominatimClient) ReverseGeocode(ctx context.Context, coord domain.Coordinate) (domain.GeoDescriptor, error) {
	desc, err := c.reverse(ctx, coord)
	switch {
	case err == nil:
		metrics.GeocodeFinished("ok")
	case errors.Is(err, ErrMalformed):
		metrics.GeocodeFinished("malformed")
	default:
		metrics.GeocodeFinished("unavailable")
	}
	return desc, err
}

func (c *NominatimClient) reverse(ctx context.Context, coord domain.Coordinate) (domain.GeoDescriptor, error) {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("lat", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	params.Set("addressdetails", "1")

	reqURL := fmt.Sprintf("%s/reverse?%s", c.config.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.GeoDescriptor{}, wrapError(ErrUnavailable, "create request: %v", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("reverse geocode request failed", "error", err)
		return domain.GeoDescriptor{}, wrapError(ErrUnavailable, "execute request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("reverse geocode returned error status",
			"status", resp.StatusCode,
			"body", string(body),
		)
		return domain.GeoDescriptor{}, wrapError(ErrUnavailable, "status %d", resp.StatusCode)
	}

	var nomResp nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&nomResp); err != nil {
		return domain.GeoDescriptor{}, wrapError(ErrMalformed, "decode response: %v", err)
	}

	// Nominatim answers 200 {"error": "Unable to geocode"} for open water and
	// out-of-range coordinates.
	if nomResp.Address == nil {
		detail := nomResp.Error
		if detail == "" {
			detail = "no address object"
		}
		return domain.GeoDescriptor{}, wrapError(ErrMalformed, "%s", detail)
	}

	a := nomResp.Address
	return domain.GeoDescriptor{
		PostalCode:     a.PostCode,
		City:           firstNonEmpty(a.City, a.Town, a.Village, a.County),
		State:          a.State,
		DisplayAddress: nomResp.DisplayName,
	}, nil
}

// firstNonEmpty returns the first non-empty string from the arguments
func firstNonEmpty(strs ...string) string {
	for _, s := range strs {
		if s != "" {
			return s
		}
	}
	return ""
}

// Compile-time interface check
var _ Geocoder = (*NominatimClient)(nil)
