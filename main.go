package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/middleware"
	"lyrics-sync-go/services/notifier"
	"lyrics-sync-go/services/nowplaying"
	"lyrics-sync-go/services/resolver"
	"lyrics-sync-go/stats"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var conf = config.Get()

var (
	lyricsResolver *resolver.Resolver
	nowPlaying     *nowplaying.Session
)

// publicPaths never require an API key
var publicPaths = []string{"/", "/health", "/metrics"}

const (
	shutdownTimeout     = 10 * time.Second
	limiterPruneEvery   = 5 * time.Minute
	limiterIdleDuration = 30 * time.Minute
)

func main() {
	setupLogging(conf)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := buildProviders(conf)
	bus := notifier.GetEventBus()
	startAlerts(conf, bus)

	r, err := setupResolver(conf, registry, bus)
	if err != nil {
		log.Fatalf("%s %v", logcolors.LogServer, err)
	}
	lyricsResolver = r
	nowPlaying = setupSession(conf, lyricsResolver)

	statsStore := setupStatsStore(conf)
	watcher := startLocalWatcher(ctx, conf, lyricsResolver)

	collector := stats.NewCollector(stats.Get(), lyricsResolver.Cache().Len, lyricsResolver.Breakers().Statuses)
	router := mux.NewRouter()
	setupRoutes(router, stats.MetricsHandler(stats.NewRegistry(collector)))

	limiter := middleware.NewIPRateLimiter(
		rate.Limit(conf.Configuration.RateLimitPerSecond), conf.Configuration.RateLimitBurstLimit,
		rate.Limit(conf.Configuration.CachedRateLimitPerSecond), conf.Configuration.CachedRateLimitBurstLimit,
	)
	limiter.StartPruning(ctx, limiterPruneEvery, limiterIdleDuration)

	server := &http.Server{
		Addr:              ":" + conf.Configuration.Port,
		Handler:           newHandler(router, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("%s Listening on port %s", logcolors.LogServer, conf.Configuration.Port)
		bus.PublishServerStarted(conf.Configuration.Port, registry.List())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("%s %v", logcolors.LogServer, err)
		}
	}()

	<-ctx.Done()
	log.Infof("%s Shutting down", logcolors.LogServer)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("%s Shutdown: %v", logcolors.LogServer, err)
	}

	if watcher != nil {
		watcher.Stop()
	}
	if statsStore != nil {
		if err := statsStore.Close(); err != nil {
			log.Warnf("%s Failed to close stats store: %v", logcolors.LogStats, err)
		}
	}
}

// newHandler wraps router in the middleware chain:
// logging, CORS, API key, then the two-tier rate limiter.
func newHandler(router http.Handler, limiter *middleware.IPRateLimiter) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   conf.Origins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.APIKeyHeader},
		ExposedHeaders:   []string{"X-Cache-Status", "X-Provider", "X-RateLimit-Type", "X-RateLimit-Remaining", middleware.RequestIDHeader},
		AllowCredentials: true,
	})

	handler := middleware.RateLimitMiddleware(limiter, stats.Get())(router)
	handler = middleware.APIKeyMiddleware(conf.Configuration.APIKey, conf.Configuration.APIKeyRequired, publicPaths)(handler)
	handler = c.Handler(handler)
	return middleware.LoggingMiddleware(handler)
}
