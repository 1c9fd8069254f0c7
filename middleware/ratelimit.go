package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/stats"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Rate limit tiers, also reported in the X-RateLimit-Type header
const (
	TierNormal   = "normal"
	TierCached   = "cached"
	TierExceeded = "exceeded"
	TierBypass   = "bypass"
)

type tierKey struct{}

// Tier returns the rate limit tier the request was admitted under
func Tier(ctx context.Context) string {
	tier, _ := ctx.Value(tierKey{}).(string)
	return tier
}

// CacheOnly reports whether the request may only be answered from cache
func CacheOnly(ctx context.Context) bool {
	return Tier(ctx) == TierCached
}

// LimiterPair holds both normal and cached tier limiters for an IP
type LimiterPair struct {
	Normal *rate.Limiter
	Cached *rate.Limiter

	lastSeen time.Time
}

// GetNormalTokens returns the number of tokens available in the normal tier
func (lp *LimiterPair) GetNormalTokens() int {
	return int(math.Floor(lp.Normal.Tokens()))
}

// GetCachedTokens returns the number of tokens available in the cached tier
func (lp *LimiterPair) GetCachedTokens() int {
	return int(math.Floor(lp.Cached.Tokens()))
}

// IPRateLimiter manages two-tier rate limiting per IP. The normal tier admits
// full resolutions; once it is spent the cached tier admits cache-only lookups.
type IPRateLimiter struct {
	ips         map[string]*LimiterPair
	mu          sync.Mutex
	normalRate  rate.Limit
	normalBurst int
	cachedRate  rate.Limit
	cachedBurst int
}

// NewIPRateLimiter creates a new two-tier rate limiter
func NewIPRateLimiter(normalRate rate.Limit, normalBurst int, cachedRate rate.Limit, cachedBurst int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:         make(map[string]*LimiterPair),
		normalRate:  normalRate,
		normalBurst: normalBurst,
		cachedRate:  cachedRate,
		cachedBurst: cachedBurst,
	}
}

// GetNormalLimit returns the normal tier burst limit
func (i *IPRateLimiter) GetNormalLimit() int {
	return i.normalBurst
}

// GetCachedLimit returns the cached tier burst limit
func (i *IPRateLimiter) GetCachedLimit() int {
	return i.cachedBurst
}

// AddIP creates fresh limiters for ip, replacing any existing pair
func (i *IPRateLimiter) AddIP(ip string) *LimiterPair {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.add(ip)
}

func (i *IPRateLimiter) add(ip string) *LimiterPair {
	pair := &LimiterPair{
		Normal:   rate.NewLimiter(i.normalRate, i.normalBurst),
		Cached:   rate.NewLimiter(i.cachedRate, i.cachedBurst),
		lastSeen: time.Now(),
	}
	i.ips[ip] = pair
	return pair
}

// GetLimiter returns the limiters for ip, creating them on first use
func (i *IPRateLimiter) GetLimiter(ip string) *LimiterPair {
	i.mu.Lock()
	defer i.mu.Unlock()

	pair, exists := i.ips[ip]
	if !exists {
		return i.add(ip)
	}
	pair.lastSeen = time.Now()
	return pair
}

// Len returns the number of tracked IPs
func (i *IPRateLimiter) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.ips)
}

// Prune forgets IPs not seen for longer than idle and returns how many were removed
func (i *IPRateLimiter) Prune(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	i.mu.Lock()
	defer i.mu.Unlock()

	removed := 0
	for ip, pair := range i.ips {
		if pair.lastSeen.Before(cutoff) {
			delete(i.ips, ip)
			removed++
		}
	}
	return removed
}

// StartPruning prunes idle IPs every interval until ctx is done
func (i *IPRateLimiter) StartPruning(ctx context.Context, interval, idle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := i.Prune(idle); n > 0 {
					log.Debugf("%s Pruned %d idle IPs", logcolors.LogRateLimit, n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimitMiddleware applies the two tiers. Authenticated requests bypass both.
// A request admitted by the cached tier carries CacheOnly in its context.
func RateLimitMiddleware(limiter *IPRateLimiter, s *stats.Stats) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Authenticated(r.Context()) {
				w.Header().Set("X-RateLimit-Bypass", "true")
				next.ServeHTTP(w, withTier(r, TierBypass))
				return
			}

			ip := ClientIP(r)
			limiters := limiter.GetLimiter(ip)

			if limiters.Normal.Allow() {
				s.RecordRateLimit(TierNormal)
				setRateLimitHeaders(w, limiter.GetNormalLimit(), limiters.GetNormalTokens(), TierNormal)
				next.ServeHTTP(w, withTier(r, TierNormal))
				return
			}

			if limiters.Cached.Allow() {
				s.RecordRateLimit(TierCached)
				setRateLimitHeaders(w, limiter.GetCachedLimit(), limiters.GetCachedTokens(), TierCached)
				log.Debugf("%s IP %s exceeded normal tier, using cached tier", logcolors.LogRateLimit, ip)
				next.ServeHTTP(w, withTier(r, TierCached))
				return
			}

			s.RecordRateLimit(TierExceeded)
			log.Warnf("%s IP %s exceeded both rate limit tiers", logcolors.LogRateLimit, ip)
			setRateLimitHeaders(w, limiter.GetCachedLimit(), 0, TierExceeded)
			w.Header().Set("Retry-After", "1")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		})
	}
}

func withTier(r *http.Request, tier string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), tierKey{}, tier))
}

func setRateLimitHeaders(w http.ResponseWriter, limit, remaining int, tier string) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Type", tier)
}

// ClientIP returns the remote address without its port
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
