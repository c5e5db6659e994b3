// Package shield provides the HTTP security middleware for the capture
// API: security headers, JSON body limits, and per-IP rate limiting.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack(shield.DefaultRules()) {
//	    r.Use(mw)
//	}
package shield

import "net/http"

// APIStack returns the standard middleware stack for the capture API,
// ordered: SecurityHeaders, MaxJSONBody, rate limiting. A nil rules map
// disables rate limiting.
func APIStack(rules map[string]RateLimitConfig) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(256 * 1024),
	}
	if rules != nil {
		stack = append(stack, NewRateLimiter(rules, "/health").Middleware)
	}
	return stack
}
