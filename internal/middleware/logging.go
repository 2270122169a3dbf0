package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DukeRupert/fixiepixie/internal/auth"
	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns the correlation ID assigned by RequestLoggingMiddleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestLoggingMiddleware logs HTTP requests with timing and status information.
type RequestLoggingMiddleware struct {
	logger *slog.Logger
}

// NewRequestLoggingMiddleware creates a new request logging middleware.
func NewRequestLoggingMiddleware(logger *slog.Logger) *RequestLoggingMiddleware {
	return &RequestLoggingMiddleware{
		logger: logger,
	}
}

// Handler returns middleware that assigns a request ID and logs every request.
func (m *RequestLoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))

		// Skip logging for noisy endpoints
		if m.shouldSkip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		// The identity is set further down the chain, so read it back
		// through a holder on the way out.
		holder := &reporterHolder{}
		next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), reporterHolderKey{}, holder)))

		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", sanitizePath(r.URL.Path, r.URL.RawQuery),
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", getClientIP(r),
			"user_agent", r.UserAgent(),
			"reporter", holder.kind(),
		}

		if wrapped.statusCode >= 500 {
			m.logger.Warn("request", attrs...)
		} else {
			m.logger.Info("request", attrs...)
		}
	})
}

// shouldSkip returns true for paths that should not be logged (too noisy).
func (m *RequestLoggingMiddleware) shouldSkip(path string) bool {
	return path == "/health" || path == "/metrics"
}

// =============================================================================
// Reporter Tracking
// =============================================================================

type reporterHolderKey struct{}

type reporterHolder struct {
	signedIn bool
}

func (h *reporterHolder) kind() string {
	if h.signedIn {
		return "signed_in"
	}
	return "anonymous"
}

// markReporter records on the logging holder, if any, that the request
// carried a verified identity.
func markReporter(r *http.Request) {
	if h, ok := r.Context().Value(reporterHolderKey{}).(*reporterHolder); ok {
		h.signedIn = auth.GetIdentityFromRequest(r) != nil
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// =============================================================================
// Query Sanitizing
// =============================================================================

// sensitiveParams are redacted entirely from logged query strings.
var sensitiveParams = map[string]bool{
	"token":         true,
	"key":           true,
	"secret":        true,
	"api_key":       true,
	"apikey":        true,
	"access_token":  true,
	"mailbox_token": true,
}

// coordinateParams are coarsened to two decimals (about 1 km).
var coordinateParams = map[string]bool{
	"lat": true,
	"lon": true,
}

// sanitizePath removes sensitive query parameters from the path for logging
// and coarsens reporter coordinates.
func sanitizePath(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}

	parts := strings.Split(rawQuery, "&")
	safeParts := make([]string, 0, len(parts))

	for _, part := range parts {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}

		key := strings.ToLower(k)
		switch {
		case sensitiveParams[key]:
			safeParts = append(safeParts, k+"=[REDACTED]")
		case coordinateParams[key]:
			safeParts = append(safeParts, k+"="+coarsen(v))
		default:
			safeParts = append(safeParts, part)
		}
	}

	if len(safeParts) == 0 {
		return path
	}

	return path + "?" + strings.Join(safeParts, "&")
}

func coarsen(v string) string {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return "[REDACTED]"
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}
