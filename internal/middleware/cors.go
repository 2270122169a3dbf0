package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// corsMaxAge is how long, in seconds, browsers may cache a preflight answer.
const corsMaxAge = 600

// corsAllowedHeaders are the request headers the browser client sends.
var corsAllowedHeaders = []string{
	"Accept",
	"Authorization",
	"Content-Type",
	"X-Mailbox-Token",
	"X-Mailbox-Token-Expiry",
	RequestIDHeader,
}

// CORSMiddleware answers preflight requests and sets CORS headers for the
// browser client.
type CORSMiddleware struct {
	cors *cors.Cors
}

// NewCORSMiddleware creates a CORS middleware. origins is a comma-separated
// allow list; "*" or an empty string allows any origin.
func NewCORSMiddleware(origins string) *CORSMiddleware {
	return &CORSMiddleware{
		cors: cors.New(cors.Options{
			AllowedOrigins: parseOrigins(origins),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: corsAllowedHeaders,
			ExposedHeaders: []string{RequestIDHeader},
			MaxAge:         corsMaxAge,
		}),
	}
}

// Handler returns the CORS middleware.
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return m.cors.Handler(next)
}

// parseOrigins splits CORS_ORIGINS. Trailing slashes are dropped because
// browsers never send them in the Origin header.
func parseOrigins(origins string) []string {
	var out []string
	for _, o := range strings.Split(origins, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			return []string{"*"}
		default:
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
