package middleware

import (
	"context"
	"net/http"
	"strings"

	"lyrics-sync-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// APIKeyHeader is the request header holding the API key
const APIKeyHeader = "X-API-Key"

type authenticatedKey struct{}

// Authenticated reports whether the request carried the configured API key
func Authenticated(ctx context.Context) bool {
	ok, _ := ctx.Value(authenticatedKey{}).(bool)
	return ok
}

// APIKeyMiddleware checks the X-API-Key header.
//
// A matching key marks the request as authenticated, which lets it bypass rate
// limiting. When required is true, requests to non-public paths without a valid
// key are rejected with 401. A public path ending in "*" matches by prefix.
// Required with no key configured is a misconfiguration: it is logged and every
// request is allowed.
func APIKeyMiddleware(apiKey string, required bool, publicPaths []string) func(http.Handler) http.Handler {
	exact := make(map[string]bool)
	var prefixes []string
	for _, p := range publicPaths {
		if strings.HasSuffix(p, "*") {
			prefixes = append(prefixes, strings.TrimSuffix(p, "*"))
			continue
		}
		exact[p] = true
	}

	isPublic := func(path string) bool {
		if exact[path] {
			return true
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
		return false
	}

	if required && apiKey == "" {
		log.Warnf("%s API key required but not configured, allowing all requests", logcolors.LogAPIKey)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(APIKeyHeader)

			if apiKey != "" && provided == apiKey {
				ctx := context.WithValue(r.Context(), authenticatedKey{}, true)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if !required || apiKey == "" || isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			if provided == "" {
				log.Warnf("%s Missing API key from %s for %s", logcolors.LogAPIKey, r.RemoteAddr, r.URL.Path)
				w.Write([]byte(`{"error":"API key required","message":"Provide a valid API key via X-API-Key header"}`))
				return
			}
			log.Warnf("%s Invalid API key from %s for %s", logcolors.LogAPIKey, r.RemoteAddr, r.URL.Path)
			w.Write([]byte(`{"error":"Invalid API key","message":"The provided API key is not valid"}`))
		})
	}
}
