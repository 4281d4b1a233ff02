// Package middleware provides the gin middleware shared by the REST API:
// CORS and token bucket rate limiting.
package middleware
