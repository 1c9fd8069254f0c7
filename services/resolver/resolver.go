package resolver

import (
	"context"
	"sync"
	"time"

	"lyrics-sync-go/cache"
	"lyrics-sync-go/circuitbreaker"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/stats"

	log "github.com/sirupsen/logrus"
)

// CacheStatus describes how a lookup was answered
type CacheStatus string

const (
	CacheHit         CacheStatus = "HIT"
	CacheNegativeHit CacheStatus = "NEGATIVE_HIT"
	CacheMiss        CacheStatus = "MISS"
	CacheShared      CacheStatus = "SHARED" // joined a resolution already in flight
)

// DefaultResolveTimeout bounds a shared resolution once it no longer follows
// the context of the caller that started it
const DefaultResolveTimeout = 30 * time.Second

// Result is the answer to a lookup. Lyrics is nil when no lyrics are available.
type Result struct {
	Lyrics      *lyrics.Lyrics
	CacheStatus CacheStatus
	Provider    string
}

// Found reports whether lyrics were resolved
func (r Result) Found() bool {
	return !r.Lyrics.Empty()
}

// Options configures a Resolver
type Options struct {
	// Breakers skips providers that keep failing transiently. Nil disables them.
	Breakers *circuitbreaker.Group
	// Stats receives lookup and provider counters. Nil uses a private instance.
	Stats *stats.Stats
	// DisableDedup resolves concurrent lookups for the same track independently
	DisableDedup bool
	// ResolveTimeout bounds a shared resolution. Zero uses DefaultResolveTimeout.
	ResolveTimeout time.Duration
}

// inFlightRequest is shared by every lookup of a key while it resolves
type inFlightRequest struct {
	done   chan struct{}
	result *lyrics.Lyrics
}

// Resolver finds lyrics for a track: result cache first, then each provider in
// ascending priority until one has them.
//
// Cache policy: a found result is cached; absence is cached only when at least
// one provider confirmed it has nothing. Transient failures are never cached so a
// later lookup tries again.
type Resolver struct {
	registry *providers.Registry
	cache    *cache.LyricsCache
	breakers *circuitbreaker.Group
	stats    *stats.Stats
	dedup    bool
	timeout  time.Duration

	mu       sync.Mutex
	inFlight map[string]*inFlightRequest
}

// New creates a resolver over the given providers and cache
func New(registry *providers.Registry, c *cache.LyricsCache, opts Options) *Resolver {
	s := opts.Stats
	if s == nil {
		s = stats.New()
	}
	timeout := opts.ResolveTimeout
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	return &Resolver{
		registry: registry,
		cache:    c,
		breakers: opts.Breakers,
		stats:    s,
		dedup:    !opts.DisableDedup,
		timeout:  timeout,
		inFlight: make(map[string]*inFlightRequest),
	}
}

// GetLyrics returns the lyrics for track, or nil when none are available
func (r *Resolver) GetLyrics(ctx context.Context, track lyrics.Track) *lyrics.Lyrics {
	return r.Lookup(ctx, track).Lyrics
}

// Lookup resolves track and reports how the answer was obtained
func (r *Resolver) Lookup(ctx context.Context, track lyrics.Track) Result {
	key := cache.Key(track.Artist, track.Name)

	if result, ok := r.fromCache(key); ok {
		return result
	}
	r.stats.RecordCacheMiss()

	if !r.dedup {
		return resultOf(r.resolve(ctx, key, track), CacheMiss)
	}

	if ctx.Err() != nil {
		return Result{CacheStatus: CacheMiss}
	}

	r.mu.Lock()
	req, shared := r.inFlight[key]
	if !shared {
		// A resolution may have finished between the cache check and taking the lock
		if result, ok := r.fromCache(key); ok {
			r.mu.Unlock()
			return result
		}
		req = &inFlightRequest{done: make(chan struct{})}
		r.inFlight[key] = req
		go r.lead(ctx, key, track, req)
	}
	r.mu.Unlock()

	status := CacheMiss
	if shared {
		log.Infof("%s Waiting for in-flight resolution of %s - %s", logcolors.LogInFlight, track.Artist, track.Name)
		r.stats.RecordSharedLookup()
		status = CacheShared
	}

	select {
	case <-req.done:
		return resultOf(req.result, status)
	case <-ctx.Done():
		return Result{CacheStatus: CacheMiss}
	}
}

// lead runs a shared resolution. It keeps the starting caller's values but not
// its cancellation, so other waiters still get an answer if that caller leaves.
func (r *Resolver) lead(ctx context.Context, key string, track lyrics.Track, req *inFlightRequest) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	defer func() {
		r.mu.Lock()
		delete(r.inFlight, key)
		r.mu.Unlock()
		close(req.done)
	}()

	req.result = r.resolve(ctx, key, track)
}

// Peek answers from the cache only, without contacting any provider
func (r *Resolver) Peek(track lyrics.Track) (Result, bool) {
	return r.fromCache(cache.Key(track.Artist, track.Name))
}

// Invalidate drops cached entries (positive or negative) for an identity. Both
// artist/title orders are removed since file names do not say which is which.
func (r *Resolver) Invalidate(artist, name string) int {
	removed := 0
	for _, key := range []string{cache.Key(artist, name), cache.Key(name, artist)} {
		if r.cache.Remove(key) {
			removed++
			r.stats.RecordInvalidation()
			log.Infof("%s Invalidated %s", logcolors.LogCacheClear, key)
		}
	}
	return removed
}

// Clear empties the result cache
func (r *Resolver) Clear() int {
	n := r.cache.Purge()
	log.Infof("%s Cleared %d cached entries", logcolors.LogCacheClear, n)
	return n
}

// Cache returns the underlying result cache
func (r *Resolver) Cache() *cache.LyricsCache {
	return r.cache
}

// Registry returns the providers in use
func (r *Resolver) Registry() *providers.Registry {
	return r.registry
}

// Breakers returns the circuit breaker group, which may be nil
func (r *Resolver) Breakers() *circuitbreaker.Group {
	return r.breakers
}

func (r *Resolver) fromCache(key string) (Result, bool) {
	value, found := r.cache.Get(key)
	if !found {
		return Result{}, false
	}
	if value == nil {
		r.stats.RecordNegativeCacheHit()
		log.Debugf("%s %s", logcolors.LogCacheNegative, key)
		return Result{CacheStatus: CacheNegativeHit}, true
	}
	r.stats.RecordCacheHit()
	log.Debugf("%s %s", logcolors.LogCacheLyrics, key)
	return resultOf(value, CacheHit), true
}

// resolve walks the providers in priority order and applies the cache policy.
// A resolution cut short by its context writes nothing: the providers it never
// reached might have had the lyrics.
func (r *Resolver) resolve(ctx context.Context, key string, track lyrics.Track) *lyrics.Lyrics {
	confirmedAbsent := false
	abandoned := false

	for _, p := range r.registry.Ordered() {
		name := p.Name()

		if err := ctx.Err(); err != nil {
			abandoned = true
			break
		}

		var cb *circuitbreaker.CircuitBreaker
		if r.breakers != nil {
			cb = r.breakers.Get(name)
			if !cb.Allow() {
				log.Warnf("%s Skipping %s, circuit open (retry in %v)",
					logcolors.CircuitBreakerPrefix(name), name, cb.TimeUntilRetry())
				r.stats.RecordProviderOutcome(name, stats.OutcomeSkipped)
				continue
			}
		}

		result, err := p.FetchLyrics(ctx, track)
		outcome := providers.Classify(result, err)
		r.stats.RecordProviderOutcome(name, outcome.String())

		// The caller gave up; the failure says nothing about the provider
		if outcome != providers.OutcomeFound && ctx.Err() != nil {
			abandoned = true
			break
		}

		switch outcome {
		case providers.OutcomeFound:
			if cb != nil {
				cb.RecordSuccess()
			}
			if result.Provider == "" {
				result = result.WithProvider(name)
			}
			r.cache.Put(key, result)
			r.stats.RecordCacheWrite(false)
			r.stats.RecordResolution(true)
			log.Infof("%s %s - %s from %s (%d lines)", logcolors.LogSuccess, track.Artist, track.Name, name, result.Len())
			return result

		case providers.OutcomeNotFound:
			if cb != nil {
				cb.RecordSuccess()
			}
			confirmedAbsent = true
			log.Debugf("%s %s has no lyrics for %s - %s", logcolors.LogNotFound, name, track.Artist, track.Name)

		default:
			if cb != nil {
				cb.RecordFailure()
			}
			log.Warnf("%s %s failed for %s - %s: %v", logcolors.LogFallback, name, track.Artist, track.Name, err)
		}
	}

	r.stats.RecordResolution(false)
	switch {
	case abandoned:
		log.Warnf("%s Resolution of %s - %s abandoned: %v, not caching", logcolors.LogFallback, track.Artist, track.Name, ctx.Err())
	case confirmedAbsent:
		r.cache.Put(key, nil)
		r.stats.RecordCacheWrite(true)
		log.Infof("%s No lyrics for %s - %s", logcolors.LogCacheNegative, track.Artist, track.Name)
	default:
		log.Warnf("%s No provider could answer for %s - %s, not caching", logcolors.LogNotFound, track.Artist, track.Name)
	}
	return nil
}

func resultOf(l *lyrics.Lyrics, status CacheStatus) Result {
	if l == nil {
		return Result{CacheStatus: status}
	}
	return Result{Lyrics: l, CacheStatus: status, Provider: l.Provider}
}
