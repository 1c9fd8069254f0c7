package main

import (
	"net/http"

	"github.com/gorilla/mux"
)

// setupRoutes configures all HTTP routes for the API
func setupRoutes(router *mux.Router, metrics http.Handler) {
	// Lyrics
	router.HandleFunc("/lyrics", getLyrics).Methods(http.MethodGet)
	router.HandleFunc("/lyrics/line", getLyricsLine).Methods(http.MethodGet)

	// Now-playing session
	router.HandleFunc("/now-playing", putNowPlaying).Methods(http.MethodPut, http.MethodPost)
	router.HandleFunc("/now-playing", getNowPlaying).Methods(http.MethodGet)
	router.HandleFunc("/now-playing", deleteNowPlaying).Methods(http.MethodDelete)

	router.HandleFunc("/providers", getProviders).Methods(http.MethodGet)

	// Cache management (Authorization required)
	router.HandleFunc("/cache", getCacheDump).Methods(http.MethodGet)
	router.HandleFunc("/cache/clear", clearCache).Methods(http.MethodPost)

	router.HandleFunc("/circuit-breaker/reset", resetCircuitBreaker).Methods(http.MethodPost)

	// Health, stats and metrics
	router.HandleFunc("/stats", getStats).Methods(http.MethodGet)
	router.HandleFunc("/health", getHealthStatus).Methods(http.MethodGet)
	if metrics != nil {
		router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	router.HandleFunc("/", helpHandler)
}
