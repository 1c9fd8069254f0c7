package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"lyrics-sync-go/cache"
	"lyrics-sync-go/circuitbreaker"
	"lyrics-sync-go/middleware"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/nowplaying"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/services/resolver"
	"lyrics-sync-go/stats"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

const testToken = "test-token"

// stubProvider returns a fixed answer and counts calls
type stubProvider struct {
	name     string
	priority int
	result   *lyrics.Lyrics
	err      error
	calls    atomic.Int32
}

func (p *stubProvider) Name() string  { return p.name }
func (p *stubProvider) Priority() int { return p.priority }

func (p *stubProvider) FetchLyrics(ctx context.Context, track lyrics.Track) (*lyrics.Lyrics, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return p.result.WithProvider(p.name), nil
}

func foundProvider(name string, priority int, content string) *stubProvider {
	return &stubProvider{name: name, priority: priority, result: lyrics.ParseLRC(content)}
}

func notFoundProvider(name string, priority int) *stubProvider {
	return &stubProvider{name: name, priority: priority, err: providers.NewNotFound(name, "no match")}
}

func transientProvider(name string, priority int) *stubProvider {
	return &stubProvider{name: name, priority: priority, err: providers.NewProviderError(name, "request failed", errors.New("connection refused"))}
}

const testLRC = "[ti:Song]\n[00:01.00]first\n[00:02.50]second\n[00:04.00]third\n"

// setupTestEnvironment wires a resolver and session over ps and returns the router
func setupTestEnvironment(t *testing.T, ps ...providers.Provider) *mux.Router {
	t.Helper()

	c, err := cache.New(cache.DefaultCapacity)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	breakers := circuitbreaker.NewGroup(circuitbreaker.Config{Threshold: 2, Cooldown: time.Minute})
	lyricsResolver = resolver.New(providers.NewRegistry(ps...), c, resolver.Options{
		Breakers: breakers,
		Stats:    stats.New(),
	})
	nowPlaying = nowplaying.New(lyricsResolver, time.Second, time.Minute)
	t.Cleanup(nowPlaying.Wait)

	oldToken := conf.Configuration.CacheAccessToken
	conf.Configuration.CacheAccessToken = testToken
	t.Cleanup(func() { conf.Configuration.CacheAccessToken = oldToken })

	collector := stats.NewCollector(stats.New(), c.Len, breakers.Statuses)
	router := mux.NewRouter()
	setupRoutes(router, stats.MetricsHandler(stats.NewRegistry(collector)))
	return router
}

func do(t *testing.T, h http.Handler, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func authorized() map[string]string {
	return map[string]string{"Authorization": testToken}
}

func TestGetLyrics_Found(t *testing.T) {
	p := foundProvider("lrclib", 5, testLRC)
	router := setupTestEnvironment(t, p)

	rec := do(t, router, "GET", "/lyrics?artist=Artist&song=Song", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Cache-Status"); got != "MISS" {
		t.Errorf("X-Cache-Status = %q, want MISS", got)
	}
	if got := rec.Header().Get("X-Provider"); got != "lrclib" {
		t.Errorf("X-Provider = %q, want lrclib", got)
	}

	var resp LyricsResponse
	decode(t, rec, &resp)
	if len(resp.Lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d", len(resp.Lines))
	}
	if resp.Lines[1].StartTimeMs != 2500 || resp.Lines[1].Text != "second" {
		t.Errorf("Unexpected second line: %+v", resp.Lines[1])
	}
	if resp.Provider != "lrclib" {
		t.Errorf("Expected provider lrclib, got %q", resp.Provider)
	}

	rec = do(t, router, "GET", "/lyrics?a=ARTIST&s=song", "", nil)
	if got := rec.Header().Get("X-Cache-Status"); got != "HIT" {
		t.Errorf("Second lookup X-Cache-Status = %q, want HIT", got)
	}
	if p.calls.Load() != 1 {
		t.Errorf("Expected 1 provider call, got %d", p.calls.Load())
	}
}

func TestGetLyrics_NotFoundIsCached(t *testing.T) {
	p := notFoundProvider("lrclib", 5)
	router := setupTestEnvironment(t, p)

	for i, status := range []string{"MISS", "NEGATIVE_HIT"} {
		rec := do(t, router, "GET", "/lyrics?artist=A&song=B", "", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("Request %d: expected 404, got %d", i, rec.Code)
		}
		if got := rec.Header().Get("X-Cache-Status"); got != status {
			t.Errorf("Request %d: X-Cache-Status = %q, want %q", i, got, status)
		}
		var resp map[string]string
		decode(t, rec, &resp)
		if resp["error"] != "No lyrics available" {
			t.Errorf("Request %d: error = %q", i, resp["error"])
		}
	}

	if p.calls.Load() != 1 {
		t.Errorf("Expected the negative entry to spare the provider, got %d calls", p.calls.Load())
	}
}

func TestGetLyrics_TransientIsNotCached(t *testing.T) {
	p := transientProvider("netease", 10)
	router := setupTestEnvironment(t, p)

	for i := 0; i < 2; i++ {
		rec := do(t, router, "GET", "/lyrics?artist=A&song=B", "", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("Request %d: expected 404, got %d", i, rec.Code)
		}
		if got := rec.Header().Get("X-Cache-Status"); got != "MISS" {
			t.Errorf("Request %d: X-Cache-Status = %q, want MISS", i, got)
		}
	}

	if p.calls.Load() != 2 {
		t.Errorf("Expected a retry on the second request, got %d calls", p.calls.Load())
	}
}

func TestGetLyrics_InvalidQuery(t *testing.T) {
	router := setupTestEnvironment(t, foundProvider("lrclib", 5, testLRC))

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"No artist or song", "/lyrics", http.StatusUnprocessableEntity},
		{"Blank values", "/lyrics?artist=%20&song=", http.StatusUnprocessableEntity},
		{"Bad duration", "/lyrics?artist=A&song=B&duration=abc", http.StatusUnprocessableEntity},
		{"Wrong method", "/lyrics?artist=A&song=B", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := "GET"
			if tt.status == http.StatusMethodNotAllowed {
				method = "POST"
			}
			rec := do(t, router, method, tt.target, "", nil)
			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestGetLyricsLine(t *testing.T) {
	router := setupTestEnvironment(t, foundProvider("local", 0, testLRC))

	tests := []struct {
		name     string
		position string
		status   int
		index    int
		line     string
		next     string
	}{
		{"Before the first line", "500", http.StatusOK, -1, "", "first"},
		{"Exactly on a timestamp", "1000", http.StatusOK, 0, "first", "second"},
		{"Between lines", "3000", http.StatusOK, 1, "second", "third"},
		{"After the last line", "99000", http.StatusOK, 2, "third", ""},
		{"Missing position", "", http.StatusBadRequest, 0, "", ""},
		{"Invalid position", "abc", http.StatusBadRequest, 0, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/lyrics/line?artist=A&song=B"
			if tt.position != "" {
				target += "&position=" + tt.position
			}
			rec := do(t, router, "GET", target, "", nil)
			if rec.Code != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}

			var resp LineResponse
			decode(t, rec, &resp)
			if resp.Index != tt.index {
				t.Errorf("Expected index %d, got %d", tt.index, resp.Index)
			}
			if (resp.Line == nil) != (tt.line == "") || (resp.Line != nil && resp.Line.Text != tt.line) {
				t.Errorf("Expected line %q, got %+v", tt.line, resp.Line)
			}
			if (resp.Next == nil) != (tt.next == "") || (resp.Next != nil && resp.Next.Text != tt.next) {
				t.Errorf("Expected next %q, got %+v", tt.next, resp.Next)
			}
		})
	}
}

func TestCacheOnlyTier(t *testing.T) {
	p := foundProvider("lrclib", 5, testLRC)
	router := setupTestEnvironment(t, p)

	// normal tier is empty from the start, so every request lands on the cached tier
	limiter := middleware.NewIPRateLimiter(rate.Limit(0.001), 0, rate.Limit(100), 100)
	handler := newHandler(router, limiter)

	rec := do(t, handler, "GET", "/lyrics?artist=A&song=B", "", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 for an uncached track, got %d", rec.Code)
	}
	if p.calls.Load() != 0 {
		t.Fatalf("Cache-only requests must not reach providers, got %d calls", p.calls.Load())
	}

	lyricsResolver.Lookup(context.Background(), lyrics.Track{Artist: "A", Name: "B"})

	rec = do(t, handler, "GET", "/lyrics?artist=A&song=B", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from cache, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Type"); got != middleware.TierCached {
		t.Errorf("X-RateLimit-Type = %q, want %q", got, middleware.TierCached)
	}
	if got := rec.Header().Get("X-Cache-Status"); got != "HIT" {
		t.Errorf("X-Cache-Status = %q, want HIT", got)
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("Expected a request ID from the logging middleware")
	}
	if p.calls.Load() != 1 {
		t.Errorf("Expected only the warm-up call, got %d", p.calls.Load())
	}
}

func TestNowPlaying(t *testing.T) {
	router := setupTestEnvironment(t, foundProvider("local", 0, testLRC))

	rec := do(t, router, "GET", "/now-playing", "", nil)
	var idle NowPlayingResponse
	decode(t, rec, &idle)
	if idle.State != nowplaying.StateIdle || idle.Track != nil {
		t.Fatalf("Expected idle session without track, got %+v", idle)
	}

	rec = do(t, router, "PUT", "/now-playing", `{"artist":"A","song":"B","positionMs":1500}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var put NowPlayingResponse
	decode(t, rec, &put)
	if !put.Started {
		t.Error("Expected a resolution to be started")
	}

	nowPlaying.Wait()

	rec = do(t, router, "GET", "/now-playing?position=2600", "", nil)
	var view NowPlayingResponse
	decode(t, rec, &view)
	if view.State != nowplaying.StateReady {
		t.Fatalf("Expected ready, got %s", view.State)
	}
	if view.Index != 1 || view.Line == nil || view.Line.Text != "second" {
		t.Errorf("Expected line 1 'second', got index %d line %+v", view.Index, view.Line)
	}
	if view.Provider != "local" || view.PositionMs != 2600 {
		t.Errorf("Unexpected view: %+v", view)
	}

	rec = do(t, router, "PUT", "/now-playing", `{"artist":"A","song":"B"}`, nil)
	var again NowPlayingResponse
	decode(t, rec, &again)
	if again.Started {
		t.Error("Expected the same track not to start another resolution")
	}

	rec = do(t, router, "DELETE", "/now-playing", "", nil)
	var cleared NowPlayingResponse
	decode(t, rec, &cleared)
	if cleared.State != nowplaying.StateIdle {
		t.Errorf("Expected idle after DELETE, got %s", cleared.State)
	}
}

func TestNowPlaying_InvalidRequests(t *testing.T) {
	router := setupTestEnvironment(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"Malformed JSON", "PUT", "/now-playing", `{"artist":`, http.StatusBadRequest},
		{"Missing identity", "PUT", "/now-playing", `{"album":"X"}`, http.StatusUnprocessableEntity},
		{"Invalid position", "GET", "/now-playing?position=soon", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.target, tt.body, nil)
			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestGetProviders(t *testing.T) {
	router := setupTestEnvironment(t,
		notFoundProvider("netease", 10),
		notFoundProvider("local", 0),
		notFoundProvider("lrclib", 5),
	)
	lyricsResolver.Breakers().Get("netease").RecordFailure()
	lyricsResolver.Breakers().Get("netease").RecordFailure()

	rec := do(t, router, "GET", "/providers", "", nil)
	var resp struct {
		Providers []struct {
			Name           string `json:"name"`
			Priority       int    `json:"priority"`
			CircuitBreaker struct {
				State string `json:"state"`
			} `json:"circuit_breaker"`
		} `json:"providers"`
	}
	decode(t, rec, &resp)

	expected := []struct {
		name  string
		state string
	}{
		{"local", "CLOSED"},
		{"lrclib", "CLOSED"},
		{"netease", "OPEN"},
	}
	if len(resp.Providers) != len(expected) {
		t.Fatalf("Expected %d providers, got %d", len(expected), len(resp.Providers))
	}
	for i, want := range expected {
		got := resp.Providers[i]
		if got.Name != want.name || got.CircuitBreaker.State != want.state {
			t.Errorf("Position %d: expected %s/%s, got %s/%s", i, want.name, want.state, got.Name, got.CircuitBreaker.State)
		}
	}
}

func TestCacheEndpoints(t *testing.T) {
	router := setupTestEnvironment(t, foundProvider("lrclib", 5, testLRC))
	do(t, router, "GET", "/lyrics?artist=A&song=B", "", nil)

	t.Run("Dump requires authorization", func(t *testing.T) {
		rec := do(t, router, "GET", "/cache", "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rec.Code)
		}
	})

	t.Run("Dump lists entries", func(t *testing.T) {
		rec := do(t, router, "GET", "/cache", "", authorized())
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var resp CacheDumpResponse
		decode(t, rec, &resp)
		if resp.NumberOfKeys != 1 || resp.Capacity != cache.DefaultCapacity {
			t.Errorf("Unexpected dump: %+v", resp)
		}
		if len(resp.Entries) != 1 || resp.Entries[0].Key != cache.Key("A", "B") || resp.Entries[0].Lines != 3 {
			t.Errorf("Unexpected entries: %+v", resp.Entries)
		}
	})

	t.Run("Clear requires POST", func(t *testing.T) {
		rec := do(t, router, "GET", "/cache/clear", "", authorized())
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", rec.Code)
		}
	})

	t.Run("Clear empties the cache", func(t *testing.T) {
		rec := do(t, router, "POST", "/cache/clear", "", authorized())
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if lyricsResolver.Cache().Len() != 0 {
			t.Errorf("Expected empty cache, got %d entries", lyricsResolver.Cache().Len())
		}
	})
}

func TestResetCircuitBreaker(t *testing.T) {
	router := setupTestEnvironment(t, transientProvider("lrclib", 5), transientProvider("netease", 10))
	breakers := lyricsResolver.Breakers()
	for _, name := range []string{"lrclib", "netease"} {
		breakers.Get(name).RecordFailure()
		breakers.Get(name).RecordFailure()
	}

	tests := []struct {
		name    string
		target  string
		headers map[string]string
		status  int
		closed  []string
	}{
		{"Unauthorized", "/circuit-breaker/reset?provider=lrclib", nil, http.StatusUnauthorized, nil},
		{"Unknown provider", "/circuit-breaker/reset?provider=kugou", authorized(), http.StatusNotFound, nil},
		{"Single provider", "/circuit-breaker/reset?provider=lrclib", authorized(), http.StatusOK, []string{"lrclib"}},
		{"All providers", "/circuit-breaker/reset", authorized(), http.StatusOK, []string{"lrclib", "netease"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, "POST", tt.target, "", tt.headers)
			if rec.Code != tt.status {
				t.Fatalf("Expected %d, got %d", tt.status, rec.Code)
			}
			for _, name := range tt.closed {
				if breakers.Get(name).IsOpen() {
					t.Errorf("Expected %s to be closed", name)
				}
			}
		})
	}
}

func TestGetHealthStatus(t *testing.T) {
	tests := []struct {
		name     string
		ps       []providers.Provider
		tripped  string
		expected string
	}{
		{"Healthy", []providers.Provider{notFoundProvider("lrclib", 5)}, "", "ok"},
		{"Open breaker degrades", []providers.Provider{notFoundProvider("lrclib", 5)}, "lrclib", "degraded"},
		{"No providers", nil, "", "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestEnvironment(t, tt.ps...)
			if tt.tripped != "" {
				lyricsResolver.Breakers().Get(tt.tripped).RecordFailure()
				lyricsResolver.Breakers().Get(tt.tripped).RecordFailure()
			}

			rec := do(t, router, "GET", "/health", "", nil)
			var resp map[string]interface{}
			decode(t, rec, &resp)
			if resp["status"] != tt.expected {
				t.Errorf("Expected status %q, got %v", tt.expected, resp["status"])
			}
		})
	}
}

func TestStatsAndMetrics(t *testing.T) {
	router := setupTestEnvironment(t, foundProvider("lrclib", 5, testLRC))
	do(t, router, "GET", "/lyrics?artist=A&song=B", "", nil)

	rec := do(t, router, "GET", "/stats", "", nil)
	var snapshot map[string]interface{}
	decode(t, rec, &snapshot)
	for _, key := range []string{"cache", "providers", "cache_storage", "circuit_breakers"} {
		if _, ok := snapshot[key]; !ok {
			t.Errorf("Expected %q in stats snapshot", key)
		}
	}

	rec = do(t, router, "GET", "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "lyrics_sync_cache_entries 1") {
		t.Errorf("Expected cache entry gauge in metrics output")
	}
}

func TestTrackFromQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		artist   string
		song     string
		duration time.Duration
		wantErr  bool
	}{
		{"Long names", "artist=A&song=B&album=C", "A", "B", 0, false},
		{"Short names", "a=A&s=B", "A", "B", 0, false},
		{"Long name wins", "artist=A&a=X&song=B", "A", "B", 0, false},
		{"Duration in seconds", "artist=A&song=B&duration=215.5", "A", "B", 215500 * time.Millisecond, false},
		{"Artist only", "artist=A", "A", "", 0, false},
		{"Nothing", "", "", "", 0, true},
		{"Negative duration", "artist=A&d=-1", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/lyrics?"+tt.query, nil)
			track, err := trackFromQuery(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr {
				return
			}
			if track.Artist != tt.artist || track.Name != tt.song || track.Duration != tt.duration {
				t.Errorf("Unexpected track: %+v", track)
			}
		})
	}
}
