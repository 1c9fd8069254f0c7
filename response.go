package main

import (
	"encoding/json"
	"net/http"

	"lyrics-sync-go/middleware"
	"lyrics-sync-go/services/resolver"
)

// APIResponse handles consistent header setting and JSON responses.
// It centralizes X-Cache-Status, X-Provider, X-Auth-Mode and X-RateLimit-Type.
type APIResponse struct {
	w           http.ResponseWriter
	r           *http.Request
	cacheStatus string
	provider    string
}

// Respond creates a response helper from request context
func Respond(w http.ResponseWriter, r *http.Request) *APIResponse {
	return &APIResponse{w: w, r: r}
}

// SetCacheStatus sets the X-Cache-Status header value
func (a *APIResponse) SetCacheStatus(status string) *APIResponse {
	a.cacheStatus = status
	return a
}

// SetProvider sets the X-Provider header value
func (a *APIResponse) SetProvider(provider string) *APIResponse {
	a.provider = provider
	return a
}

// FromResult takes the cache status and provider from a lookup result
func (a *APIResponse) FromResult(res resolver.Result) *APIResponse {
	a.cacheStatus = string(res.CacheStatus)
	a.provider = res.Provider
	return a
}

func (a *APIResponse) writeHeaders() {
	a.w.Header().Set("Content-Type", "application/json")

	if a.cacheStatus != "" {
		a.w.Header().Set("X-Cache-Status", a.cacheStatus)
	}
	if a.provider != "" {
		a.w.Header().Set("X-Provider", a.provider)
	}
	if middleware.Authenticated(a.r.Context()) {
		a.w.Header().Set("X-Auth-Mode", "authenticated")
	}
	if tier := middleware.Tier(a.r.Context()); tier != "" {
		a.w.Header().Set("X-RateLimit-Type", tier)
	}
}

// JSON writes headers and encodes data as JSON (200 OK)
func (a *APIResponse) JSON(data interface{}) error {
	a.writeHeaders()
	return json.NewEncoder(a.w).Encode(data)
}

// Status writes headers, sets status code, and encodes data as JSON
func (a *APIResponse) Status(statusCode int, data interface{}) error {
	a.writeHeaders()
	a.w.WriteHeader(statusCode)
	return json.NewEncoder(a.w).Encode(data)
}

// Error writes a {"error": msg} body with the given status code
func (a *APIResponse) Error(statusCode int, msg string) error {
	return a.Status(statusCode, map[string]string{"error": msg})
}
