// Package cors builds the control-plane API's cross-origin policy from
// environment variables (spec.md §4.9, §6) and wraps it as chi-compatible
// middleware, delegating the actual header logic to go-chi/cors.
package cors

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	gocors "github.com/go-chi/cors"
)

// Options configures the CORS policy. The zero value is not meaningful on
// its own — build one with FromEnvironment or populate it directly for
// tests.
type Options struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int // seconds
}

const (
	defaultMaxAgeSeconds = 300
)

var defaultMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}

var defaultHeaders = []string{"Content-Type", "Authorization"}

// FromEnvironment builds Options from CORS_* environment variables,
// falling back to permissive development defaults (wildcard origin,
// common methods, no credentials) when unset. Operators restrict
// CORS_ALLOWED_ORIGINS to a comma-separated whitelist in production.
func FromEnvironment() *Options {
	opts := &Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   defaultMethods,
		AllowedHeaders:   defaultHeaders,
		AllowCredentials: false,
		MaxAge:           defaultMaxAgeSeconds,
	}

	if v, ok := os.LookupEnv("CORS_ALLOWED_ORIGINS"); ok && v != "" {
		opts.AllowedOrigins = splitAndTrim(v)
	}
	if v, ok := os.LookupEnv("CORS_ALLOWED_METHODS"); ok && v != "" {
		opts.AllowedMethods = splitAndTrim(v)
	}
	if v, ok := os.LookupEnv("CORS_ALLOWED_HEADERS"); ok && v != "" {
		opts.AllowedHeaders = splitAndTrim(v)
	}
	if v, ok := os.LookupEnv("CORS_EXPOSED_HEADERS"); ok && v != "" {
		opts.ExposedHeaders = splitAndTrim(v)
	}
	if v, ok := os.LookupEnv("CORS_ALLOW_CREDENTIALS"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.AllowCredentials = b
		}
	}
	if v, ok := os.LookupEnv("CORS_MAX_AGE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			opts.MaxAge = n
		}
	}

	return opts
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsProduction reports whether this Options is a safely restricted
// (non-wildcard, non-empty) origin whitelist. A wildcard anywhere in the
// list — or an empty list — is treated as insecure, since either
// authorizes every origin or signals a deployment misconfiguration.
func (o *Options) IsProduction() bool {
	if len(o.AllowedOrigins) == 0 {
		return false
	}
	for _, origin := range o.AllowedOrigins {
		if origin == "*" {
			return false
		}
	}
	return true
}

// Handler returns chi-compatible middleware enforcing opts (spec.md §4.9:
// the control-plane API fronts every route with the configured CORS
// policy, including error responses).
func Handler(opts *Options) func(next http.Handler) http.Handler {
	return gocors.Handler(gocors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   opts.AllowedMethods,
		AllowedHeaders:   opts.AllowedHeaders,
		ExposedHeaders:   opts.ExposedHeaders,
		AllowCredentials: opts.AllowCredentials,
		MaxAge:           opts.MaxAge,
	})
}
