package stats

import (
	"net/http"

	"lyrics-sync-go/circuitbreaker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lyrics_sync"

// Collector exposes Stats to Prometheus. Values are read from the atomic
// counters at scrape time so there is a single source of truth.
type Collector struct {
	stats    *Stats
	cacheLen func() int
	breakers func() []circuitbreaker.Status

	requests      *prometheus.Desc
	cacheLookups  *prometheus.Desc
	cacheWrites   *prometheus.Desc
	cacheEntries  *prometheus.Desc
	resolutions   *prometheus.Desc
	providerTotal *prometheus.Desc
	rateLimit     *prometheus.Desc
	responses     *prometheus.Desc
	breakerState  *prometheus.Desc
	uptimeSeconds *prometheus.Desc
}

// NewCollector creates a collector over s. cacheLen and breakers may be nil.
func NewCollector(s *Stats, cacheLen func() int, breakers func() []circuitbreaker.Status) *Collector {
	return &Collector{
		stats:    s,
		cacheLen: cacheLen,
		breakers: breakers,

		requests: prometheus.NewDesc(namespace+"_requests_total",
			"HTTP requests by endpoint.", []string{"endpoint"}, nil),
		cacheLookups: prometheus.NewDesc(namespace+"_cache_lookups_total",
			"Result cache lookups by result.", []string{"result"}, nil),
		cacheWrites: prometheus.NewDesc(namespace+"_cache_writes_total",
			"Result cache writes by kind.", []string{"kind"}, nil),
		cacheEntries: prometheus.NewDesc(namespace+"_cache_entries",
			"Entries currently held by the result cache.", nil, nil),
		resolutions: prometheus.NewDesc(namespace+"_resolutions_total",
			"Provider walks by result.", []string{"result"}, nil),
		providerTotal: prometheus.NewDesc(namespace+"_provider_attempts_total",
			"Provider attempts by outcome.", []string{"provider", "outcome"}, nil),
		rateLimit: prometheus.NewDesc(namespace+"_rate_limit_total",
			"Requests by rate limit tier.", []string{"tier"}, nil),
		responses: prometheus.NewDesc(namespace+"_responses_total",
			"Responses by status class.", []string{"class"}, nil),
		breakerState: prometheus.NewDesc(namespace+"_circuit_breaker_state",
			"Circuit breaker state per provider (0 closed, 1 open, 2 half-open).", []string{"provider"}, nil),
		uptimeSeconds: prometheus.NewDesc(namespace+"_uptime_seconds",
			"Seconds since the stats were first started.", nil, nil),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.cacheLookups
	ch <- c.cacheWrites
	ch <- c.cacheEntries
	ch <- c.resolutions
	ch <- c.providerTotal
	ch <- c.rateLimit
	ch <- c.responses
	ch <- c.breakerState
	ch <- c.uptimeSeconds
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats
	counter := func(desc *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}

	counter(c.requests, s.LyricsRequests.Load(), EndpointLyrics)
	counter(c.requests, s.LineRequests.Load(), EndpointLine)
	counter(c.requests, s.NowPlayingRequests.Load(), EndpointNowPlaying)
	counter(c.requests, s.CacheRequests.Load(), EndpointCache)
	counter(c.requests, s.StatsRequests.Load(), EndpointStats)
	counter(c.requests, s.HealthRequests.Load(), EndpointHealth)
	counter(c.requests, s.OtherRequests.Load(), "other")

	counter(c.cacheLookups, s.CacheHits.Load(), "hit")
	counter(c.cacheLookups, s.NegativeCacheHits.Load(), "negative_hit")
	counter(c.cacheLookups, s.CacheMisses.Load(), "miss")
	counter(c.cacheLookups, s.SharedLookups.Load(), "shared")

	counter(c.cacheWrites, s.PositiveWrites.Load(), "positive")
	counter(c.cacheWrites, s.NegativeWrites.Load(), "negative")
	counter(c.cacheWrites, s.Invalidations.Load(), "invalidation")

	counter(c.resolutions, s.Resolved.Load(), "found")
	counter(c.resolutions, s.Unresolved.Load(), "absent")

	for provider, outcomes := range s.ProviderSnapshot() {
		for outcome, v := range outcomes {
			counter(c.providerTotal, v, provider, outcome)
		}
	}

	counter(c.rateLimit, s.RateLimitNormal.Load(), "normal")
	counter(c.rateLimit, s.RateLimitCached.Load(), "cached")
	counter(c.rateLimit, s.RateLimitExceeded.Load(), "exceeded")

	counter(c.responses, s.Status2xx.Load(), "2xx")
	counter(c.responses, s.Status4xx.Load(), "4xx")
	counter(c.responses, s.Status5xx.Load(), "5xx")

	if c.cacheLen != nil {
		ch <- prometheus.MustNewConstMetric(c.cacheEntries, prometheus.GaugeValue, float64(c.cacheLen()))
	}
	if c.breakers != nil {
		for _, b := range c.breakers() {
			ch <- prometheus.MustNewConstMetric(c.breakerState, prometheus.GaugeValue, float64(b.State), b.Name)
		}
	}
	ch <- prometheus.MustNewConstMetric(c.uptimeSeconds, prometheus.GaugeValue, s.Uptime().Seconds())
}

// NewRegistry returns a registry with the stats collector plus the Go runtime
// and process collectors
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
