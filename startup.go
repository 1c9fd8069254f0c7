package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"lyrics-sync-go/cache"
	"lyrics-sync-go/circuitbreaker"
	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/notifier"
	"lyrics-sync-go/services/nowplaying"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/services/providers/local"
	"lyrics-sync-go/services/providers/lrclib"
	"lyrics-sync-go/services/providers/netease"
	"lyrics-sync-go/services/resolver"
	"lyrics-sync-go/stats"

	log "github.com/sirupsen/logrus"
)

const statsAutoSaveInterval = 5 * time.Minute

func setupLogging(cfg config.Config) {
	log.SetOutput(os.Stdout)

	if strings.EqualFold(cfg.Configuration.LogFormat, "text") {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}

	level, err := log.ParseLevel(cfg.Configuration.LogLevel)
	if err != nil {
		log.Warnf("%s Unknown LOG_LEVEL %q, using info", logcolors.LogConfig, cfg.Configuration.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// buildProviders registers every enabled provider. Local files always take
// part; an empty directory just never matches.
func buildProviders(cfg config.Config) *providers.Registry {
	c := cfg.Configuration
	timeout := time.Duration(c.ProviderTimeoutSecs) * time.Second
	registry := providers.NewRegistry()

	registry.Register(local.NewDirProvider(c.LocalLyricsDir, c.LocalLyricsExtension, local.DefaultPriority))
	if c.LocalLyricsDir != "" {
		log.Infof("%s Local lyrics from %s", logcolors.LogConfig, c.LocalLyricsDir)
	}

	if c.LrclibEnabled {
		client := lrclib.NewClient(c.LrclibBaseURL, clientID(cfg), timeout)
		registry.Register(lrclib.NewProvider(client, c.LrclibPriority))
	}

	if c.NeteaseEnabled {
		client := netease.NewClient(c.NeteaseBaseURL, timeout, c.NeteaseRateLimitPerSecond)
		registry.Register(netease.NewProvider(client, c.NeteasePriority))
	}

	log.Infof("%s Providers in order: %s", logcolors.LogConfig, strings.Join(registry.List(), ", "))
	return registry
}

// clientID identifies this server to remote catalogs, e.g. "lyrics-sync-go v0.1.0"
func clientID(cfg config.Config) string {
	return fmt.Sprintf("%s v%s", cfg.Configuration.ClientName, cfg.Configuration.ClientVersion)
}

// newBreakerGroup logs every transition and publishes outage alerts to bus
func newBreakerGroup(cfg config.Config, registry *providers.Registry, bus *notifier.EventBus) *circuitbreaker.Group {
	var group *circuitbreaker.Group
	cooldown := time.Duration(cfg.Configuration.CircuitBreakerCooldownSecs) * time.Second

	group = circuitbreaker.NewGroup(circuitbreaker.Config{
		Threshold: cfg.Configuration.CircuitBreakerThreshold,
		Cooldown:  cooldown,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			switch {
			case to == circuitbreaker.StateOpen:
				log.Warnf("%s %s -> %s", logcolors.CircuitBreakerPrefix(name), from, to)
				if from == circuitbreaker.StateClosed {
					bus.PublishCircuitBreakerOpen(name, group.Get(name).Failures(), cooldown)
				}
				if open, all := remoteProvidersOpen(registry, group); all {
					bus.PublishAllProvidersOpen(open)
				}
			case to == circuitbreaker.StateClosed && from != circuitbreaker.StateClosed:
				log.Infof("%s %s -> %s", logcolors.CircuitBreakerPrefix(name), from, to)
				bus.PublishCircuitBreakerRecovered(name)
			default:
				log.Infof("%s %s -> %s", logcolors.CircuitBreakerPrefix(name), from, to)
			}
		},
	})
	return group
}

// remoteProvidersOpen reports whether every remote provider is being skipped.
// Local files never take part: they are read from disk and never time out.
func remoteProvidersOpen(registry *providers.Registry, group *circuitbreaker.Group) ([]string, bool) {
	var open []string
	remote := 0
	for _, name := range registry.List() {
		if name == local.ProviderName {
			continue
		}
		remote++
		if cb, ok := group.Lookup(name); ok && cb.IsOpen() {
			open = append(open, name)
		}
	}
	return open, remote > 0 && len(open) == remote
}

// setupResolver builds the result cache and resolver over registry
func setupResolver(cfg config.Config, registry *providers.Registry, bus *notifier.EventBus) (*resolver.Resolver, error) {
	lyricsCache, err := cache.New(cfg.Configuration.CacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create lyrics cache: %w", err)
	}
	log.Infof("%s LRU cache with capacity %d", logcolors.LogCacheInit, lyricsCache.Capacity())

	return resolver.New(registry, lyricsCache, resolver.Options{
		Breakers:       newBreakerGroup(cfg, registry, bus),
		Stats:          stats.Get(),
		DisableDedup:   !cfg.FeatureFlags.InFlightDedup,
		ResolveTimeout: time.Duration(cfg.Configuration.ResolveTimeoutSecs) * time.Second,
	}), nil
}

func setupSession(cfg config.Config, r *resolver.Resolver) *nowplaying.Session {
	return nowplaying.New(
		r,
		time.Duration(cfg.Configuration.ResolveTimeoutSecs)*time.Second,
		time.Duration(cfg.Configuration.RetryIntervalSecs)*time.Second,
	)
}

// startLocalWatcher drops cached results for lyric files as they change on disk
func startLocalWatcher(ctx context.Context, cfg config.Config, r *resolver.Resolver) *local.Watcher {
	c := cfg.Configuration
	if c.LocalLyricsDir == "" || !c.LocalLyricsWatch {
		return nil
	}

	w, err := local.NewWatcher(c.LocalLyricsDir, c.LocalLyricsExtension, func(first, second string) {
		if n := r.Invalidate(first, second); n > 0 {
			log.Infof("%s Invalidated %d cached entries for %s - %s", logcolors.LogWatcher, n, first, second)
		}
	})
	if err != nil {
		log.Warnf("%s Failed to create watcher: %v", logcolors.LogWatcher, err)
		return nil
	}
	if err := w.Start(ctx); err != nil {
		log.Warnf("%s Failed to watch %s: %v", logcolors.LogWatcher, c.LocalLyricsDir, err)
		return nil
	}
	return w
}

// setupStatsStore restores persisted counters and starts saving them periodically
func setupStatsStore(cfg config.Config) *stats.Store {
	if !cfg.FeatureFlags.PersistStats {
		return nil
	}

	store, err := stats.NewStore(cfg.Configuration.StatsDBPath, stats.Get())
	if err != nil {
		log.Warnf("%s Stats persistence disabled: %v", logcolors.LogStats, err)
		return nil
	}
	if err := store.Load(); err != nil {
		log.Warnf("%s Failed to load persisted stats: %v", logcolors.LogStats, err)
	}
	store.StartAutoSave(statsAutoSaveInterval)
	return store
}

// setupNotifiers returns a notifier for every channel with enough configuration
func setupNotifiers(cfg config.Config) []notifier.Notifier {
	n := cfg.Notifiers
	var out []notifier.Notifier

	if n.SMTPHost != "" && n.EmailTo != "" {
		out = append(out, &notifier.EmailNotifier{
			SMTPHost:     n.SMTPHost,
			SMTPPort:     n.SMTPPort,
			SMTPUsername: n.SMTPUsername,
			SMTPPassword: n.SMTPPassword,
			FromEmail:    n.EmailFrom,
			ToEmail:      n.EmailTo,
		})
	}
	if n.TelegramBotToken != "" && n.TelegramChatID != "" {
		out = append(out, &notifier.TelegramNotifier{BotToken: n.TelegramBotToken, ChatID: n.TelegramChatID})
	}
	if n.NtfyTopic != "" {
		out = append(out, &notifier.NtfyNotifier{Topic: n.NtfyTopic, Server: n.NtfyServer})
	}

	names := make([]string, 0, len(out))
	for _, nt := range out {
		names = append(names, nt.Name())
	}
	if len(names) > 0 {
		log.Infof("%s Alerts via %s", logcolors.LogNotifier, strings.Join(names, ", "))
	}
	return out
}

// startAlerts subscribes an alert handler to bus when any notifier is configured
func startAlerts(cfg config.Config, bus *notifier.EventBus) {
	notifiers := setupNotifiers(cfg)
	if len(notifiers) == 0 {
		log.Debugf("%s No notifiers configured, alerts disabled", logcolors.LogNotifier)
		return
	}
	notifier.NewAlertHandler(notifier.AlertConfig{
		Notifiers:        notifiers,
		CooldownDuration: time.Duration(cfg.Configuration.NotifierCooldownMins) * time.Minute,
	}).Start(bus)
}
