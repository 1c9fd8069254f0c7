package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Endpoint names used by RecordRequest and RecordResponseTime
const (
	EndpointLyrics     = "/lyrics"
	EndpointLine       = "/lyrics/line"
	EndpointNowPlaying = "/now-playing"
	EndpointCache      = "/cache"
	EndpointStats      = "/stats"
	EndpointHealth     = "/health"
)

// Outcome labels for provider attempts, matching providers.Outcome.String
const (
	OutcomeFound     = "found"
	OutcomeNotFound  = "not_found"
	OutcomeTransient = "transient"
	OutcomeSkipped   = "skipped" // circuit breaker open
)

// ProviderCounters tracks attempts against a single provider
type ProviderCounters struct {
	Found     atomic.Int64
	NotFound  atomic.Int64
	Transient atomic.Int64
	Skipped   atomic.Int64
}

// Stats holds all server statistics with atomic counters
type Stats struct {
	StartTime time.Time

	// Request counters
	TotalRequests      atomic.Int64
	LyricsRequests     atomic.Int64
	LineRequests       atomic.Int64
	NowPlayingRequests atomic.Int64
	CacheRequests      atomic.Int64
	StatsRequests      atomic.Int64
	HealthRequests     atomic.Int64
	OtherRequests      atomic.Int64

	// Result cache
	CacheHits         atomic.Int64
	NegativeCacheHits atomic.Int64
	CacheMisses       atomic.Int64
	SharedLookups     atomic.Int64 // joined an in-flight resolution
	PositiveWrites    atomic.Int64
	NegativeWrites    atomic.Int64
	Invalidations     atomic.Int64

	// Resolutions that went to the providers
	Resolved   atomic.Int64
	Unresolved atomic.Int64

	// Rate limiting
	RateLimitNormal   atomic.Int64
	RateLimitCached   atomic.Int64
	RateLimitExceeded atomic.Int64

	// Response status codes
	Status2xx atomic.Int64
	Status4xx atomic.Int64
	Status5xx atomic.Int64

	// Response times in microseconds
	totalResponseTime   atomic.Int64
	responseCount       atomic.Int64
	minResponseTime     atomic.Int64
	maxResponseTime     atomic.Int64
	lyricsResponseTime  atomic.Int64
	lyricsResponseCount atomic.Int64

	providers sync.Map // name -> *ProviderCounters
}

const noMin = int64(^uint64(0) >> 1)

// New creates an empty Stats
func New() *Stats {
	s := &Stats{StartTime: time.Now()}
	s.minResponseTime.Store(noMin)
	return s
}

var global = New()

// Get returns the process-wide stats instance
func Get() *Stats {
	return global
}

// RecordRequest records a request to a specific endpoint
func (s *Stats) RecordRequest(endpoint string) {
	s.TotalRequests.Add(1)
	switch endpoint {
	case EndpointLyrics:
		s.LyricsRequests.Add(1)
	case EndpointLine:
		s.LineRequests.Add(1)
	case EndpointNowPlaying:
		s.NowPlayingRequests.Add(1)
	case EndpointCache:
		s.CacheRequests.Add(1)
	case EndpointStats:
		s.StatsRequests.Add(1)
	case EndpointHealth:
		s.HealthRequests.Add(1)
	default:
		s.OtherRequests.Add(1)
	}
}

// RecordCacheHit records a positive cache hit
func (s *Stats) RecordCacheHit() {
	s.CacheHits.Add(1)
}

// RecordNegativeCacheHit records a negative cache hit
func (s *Stats) RecordNegativeCacheHit() {
	s.NegativeCacheHits.Add(1)
}

// RecordCacheMiss records a cache miss
func (s *Stats) RecordCacheMiss() {
	s.CacheMisses.Add(1)
}

// RecordSharedLookup records a lookup that joined an in-flight resolution
func (s *Stats) RecordSharedLookup() {
	s.SharedLookups.Add(1)
}

// RecordInvalidation records a cache invalidation
func (s *Stats) RecordInvalidation() {
	s.Invalidations.Add(1)
}

// RecordCacheWrite records a positive (found) or negative cache write
func (s *Stats) RecordCacheWrite(negative bool) {
	if negative {
		s.NegativeWrites.Add(1)
	} else {
		s.PositiveWrites.Add(1)
	}
}

// RecordResolution records the end of a provider walk
func (s *Stats) RecordResolution(found bool) {
	if found {
		s.Resolved.Add(1)
	} else {
		s.Unresolved.Add(1)
	}
}

// RecordProviderOutcome records one provider attempt
func (s *Stats) RecordProviderOutcome(provider, outcome string) {
	c := s.provider(provider)
	switch outcome {
	case OutcomeFound:
		c.Found.Add(1)
	case OutcomeNotFound:
		c.NotFound.Add(1)
	case OutcomeTransient:
		c.Transient.Add(1)
	case OutcomeSkipped:
		c.Skipped.Add(1)
	}
}

func (s *Stats) provider(name string) *ProviderCounters {
	if c, ok := s.providers.Load(name); ok {
		return c.(*ProviderCounters)
	}
	c, _ := s.providers.LoadOrStore(name, &ProviderCounters{})
	return c.(*ProviderCounters)
}

// ProviderNames returns the providers with recorded attempts, sorted
func (s *Stats) ProviderNames() []string {
	var names []string
	s.providers.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// ProviderSnapshot returns the per-provider outcome counts
func (s *Stats) ProviderSnapshot() map[string]map[string]int64 {
	out := make(map[string]map[string]int64)
	s.providers.Range(func(key, value any) bool {
		c := value.(*ProviderCounters)
		out[key.(string)] = map[string]int64{
			OutcomeFound:     c.Found.Load(),
			OutcomeNotFound:  c.NotFound.Load(),
			OutcomeTransient: c.Transient.Load(),
			OutcomeSkipped:   c.Skipped.Load(),
		}
		return true
	})
	return out
}

// RecordRateLimit records rate limit tier usage
func (s *Stats) RecordRateLimit(tier string) {
	switch tier {
	case "normal":
		s.RateLimitNormal.Add(1)
	case "cached":
		s.RateLimitCached.Add(1)
	case "exceeded":
		s.RateLimitExceeded.Add(1)
	}
}

// RecordStatusCode records a response status code
func (s *Stats) RecordStatusCode(code int) {
	switch {
	case code >= 200 && code < 300:
		s.Status2xx.Add(1)
	case code >= 400 && code < 500:
		s.Status4xx.Add(1)
	case code >= 500:
		s.Status5xx.Add(1)
	}
}

// RecordResponseTime records a response time
func (s *Stats) RecordResponseTime(duration time.Duration, endpoint string) {
	us := duration.Microseconds()

	s.totalResponseTime.Add(us)
	s.responseCount.Add(1)

	for {
		current := s.minResponseTime.Load()
		if us >= current || s.minResponseTime.CompareAndSwap(current, us) {
			break
		}
	}
	for {
		current := s.maxResponseTime.Load()
		if us <= current || s.maxResponseTime.CompareAndSwap(current, us) {
			break
		}
	}

	if endpoint == EndpointLyrics || endpoint == EndpointLine {
		s.lyricsResponseTime.Add(us)
		s.lyricsResponseCount.Add(1)
	}
}

// Uptime returns the server uptime
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// CacheHitRate returns positive and negative hits as a percentage of lookups
func (s *Stats) CacheHitRate() float64 {
	hits := s.CacheHits.Load() + s.NegativeCacheHits.Load()
	total := hits + s.CacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// AvgResponseTime returns the average response time
func (s *Stats) AvgResponseTime() time.Duration {
	count := s.responseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.totalResponseTime.Load()/count) * time.Microsecond
}

// MinResponseTime returns the minimum response time
func (s *Stats) MinResponseTime() time.Duration {
	min := s.minResponseTime.Load()
	if min == noMin {
		return 0
	}
	return time.Duration(min) * time.Microsecond
}

// MaxResponseTime returns the maximum response time
func (s *Stats) MaxResponseTime() time.Duration {
	return time.Duration(s.maxResponseTime.Load()) * time.Microsecond
}

// AvgLyricsResponseTime returns the average response time of lyric lookups
func (s *Stats) AvgLyricsResponseTime() time.Duration {
	count := s.lyricsResponseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.lyricsResponseTime.Load()/count) * time.Microsecond
}

// Snapshot returns a point-in-time snapshot of all stats
func (s *Stats) Snapshot() map[string]interface{} {
	uptime := s.Uptime()

	return map[string]interface{}{
		"server": map[string]interface{}{
			"start_time":     s.StartTime.Format(time.RFC3339),
			"uptime":         uptime.String(),
			"uptime_seconds": int64(uptime.Seconds()),
		},
		"requests": map[string]interface{}{
			"total":       s.TotalRequests.Load(),
			"lyrics":      s.LyricsRequests.Load(),
			"line":        s.LineRequests.Load(),
			"now_playing": s.NowPlayingRequests.Load(),
			"cache":       s.CacheRequests.Load(),
			"stats":       s.StatsRequests.Load(),
			"health":      s.HealthRequests.Load(),
			"other":       s.OtherRequests.Load(),
		},
		"cache": map[string]interface{}{
			"hits":            s.CacheHits.Load(),
			"negative_hits":   s.NegativeCacheHits.Load(),
			"misses":          s.CacheMisses.Load(),
			"shared_lookups":  s.SharedLookups.Load(),
			"positive_writes": s.PositiveWrites.Load(),
			"negative_writes": s.NegativeWrites.Load(),
			"invalidations":   s.Invalidations.Load(),
			"hit_rate":        s.CacheHitRate(),
		},
		"resolutions": map[string]interface{}{
			"resolved":   s.Resolved.Load(),
			"unresolved": s.Unresolved.Load(),
		},
		"providers": s.ProviderSnapshot(),
		"rate_limiting": map[string]interface{}{
			"normal_tier": s.RateLimitNormal.Load(),
			"cached_tier": s.RateLimitCached.Load(),
			"exceeded":    s.RateLimitExceeded.Load(),
		},
		"responses": map[string]interface{}{
			"2xx": s.Status2xx.Load(),
			"4xx": s.Status4xx.Load(),
			"5xx": s.Status5xx.Load(),
		},
		"response_times": map[string]interface{}{
			"avg":        s.AvgResponseTime().String(),
			"min":        s.MinResponseTime().String(),
			"max":        s.MaxResponseTime().String(),
			"avg_lyrics": s.AvgLyricsResponseTime().String(),
		},
	}
}
