package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/middleware"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/notifier"
	"lyrics-sync-go/services/resolver"
	"lyrics-sync-go/stats"
	"lyrics-sync-go/utils"

	log "github.com/sirupsen/logrus"
)

// noLyricsMessage is the placeholder shown when no provider has lyrics
const noLyricsMessage = "No lyrics available"

const (
	maxNowPlayingBody = 1 << 16
	maxLoggedField    = 80
)

// queryParam returns the first non-empty value among names
func queryParam(r *http.Request, names ...string) string {
	q := r.URL.Query()
	for _, name := range names {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// trackFromQuery reads artist, song, album and duration (seconds) from the query
func trackFromQuery(r *http.Request) (lyrics.Track, error) {
	track := lyrics.Track{
		Artist: queryParam(r, "artist", "a"),
		Name:   queryParam(r, "song", "s", "name"),
		Album:  queryParam(r, "album", "al"),
	}
	if track.Artist == "" && track.Name == "" {
		return track, errors.New("song name or artist name not provided")
	}

	if d := queryParam(r, "duration", "d"); d != "" {
		secs, err := strconv.ParseFloat(d, 64)
		if err != nil || secs < 0 {
			return track, fmt.Errorf("invalid duration: %q", d)
		}
		track.Duration = time.Duration(secs * float64(time.Second))
	}
	return track, nil
}

// positionFromQuery parses the position parameter in milliseconds
func positionFromQuery(r *http.Request, required bool) (time.Duration, error) {
	raw := queryParam(r, "position", "p")
	if raw == "" {
		if required {
			return 0, errors.New("position (milliseconds) not provided")
		}
		return 0, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid position: %q", raw)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// lookupTrack resolves track, or answers from the cache alone when the request
// was admitted by the cached rate limit tier. It writes the response itself and
// returns false when there is nothing more to do.
func lookupTrack(w http.ResponseWriter, r *http.Request, track lyrics.Track) (resolver.Result, bool) {
	if middleware.CacheOnly(r.Context()) {
		res, ok := lyricsResolver.Peek(track)
		if !ok {
			stats.Get().RecordCacheMiss()
			log.Warnf("%s Cache-only mode but no cache found for: %s - %s", logcolors.LogRateLimit, track.Artist, track.Name)
			w.Header().Set("Retry-After", "60")
			Respond(w, r).SetCacheStatus(string(resolver.CacheMiss)).Status(http.StatusTooManyRequests, map[string]string{
				"error":   "Rate limit exceeded. This request requires cached data, but no cache is available for this query.",
				"message": "Please try again later or reduce your request rate.",
			})
			return res, false
		}
		return res, true
	}

	log.Infof("%s %s - %s", logcolors.LogRequest, utils.TruncateString(track.Artist, maxLoggedField), utils.TruncateString(track.Name, maxLoggedField))
	return lyricsResolver.Lookup(r.Context(), track), true
}

func getLyrics(w http.ResponseWriter, r *http.Request) {
	track, err := trackFromQuery(r)
	if err != nil {
		Respond(w, r).Error(http.StatusUnprocessableEntity, err.Error())
		return
	}

	res, ok := lookupTrack(w, r, track)
	if !ok {
		return
	}
	if !res.Found() {
		Respond(w, r).FromResult(res).Error(http.StatusNotFound, noLyricsMessage)
		return
	}

	Respond(w, r).FromResult(res).JSON(newLyricsResponse(res.Lyrics))
}

func getLyricsLine(w http.ResponseWriter, r *http.Request) {
	track, err := trackFromQuery(r)
	if err != nil {
		Respond(w, r).Error(http.StatusUnprocessableEntity, err.Error())
		return
	}
	position, err := positionFromQuery(r, true)
	if err != nil {
		Respond(w, r).Error(http.StatusBadRequest, err.Error())
		return
	}

	res, ok := lookupTrack(w, r, track)
	if !ok {
		return
	}
	if !res.Found() {
		Respond(w, r).FromResult(res).Error(http.StatusNotFound, noLyricsMessage)
		return
	}

	index := lyrics.Locate(res.Lyrics.Lines, position)
	Respond(w, r).FromResult(res).JSON(newLineResponse(res.Lyrics, index, position))
}

func putNowPlaying(w http.ResponseWriter, r *http.Request) {
	var req NowPlayingRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNowPlayingBody))
	if err := dec.Decode(&req); err != nil {
		Respond(w, r).Error(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Artist) == "" && strings.TrimSpace(req.Song) == "" {
		Respond(w, r).Error(http.StatusUnprocessableEntity, "song name or artist name not provided")
		return
	}

	track := req.track()
	started := nowPlaying.Update(track)
	if started {
		log.Infof("%s Now playing: %s - %s", logcolors.LogNowPlaying, track.Artist, track.Name)
	}

	resp := newNowPlayingResponse(nowPlaying.View(track.Position))
	resp.Started = started
	Respond(w, r).Status(http.StatusAccepted, resp)
}

func getNowPlaying(w http.ResponseWriter, r *http.Request) {
	position, err := positionFromQuery(r, false)
	if err != nil {
		Respond(w, r).Error(http.StatusBadRequest, err.Error())
		return
	}
	Respond(w, r).JSON(newNowPlayingResponse(nowPlaying.View(position)))
}

func deleteNowPlaying(w http.ResponseWriter, r *http.Request) {
	nowPlaying.Clear()
	Respond(w, r).JSON(newNowPlayingResponse(nowPlaying.View(0)))
}

func getProviders(w http.ResponseWriter, r *http.Request) {
	breakers := lyricsResolver.Breakers()
	var infos []ProviderInfo

	for _, p := range lyricsResolver.Registry().Ordered() {
		info := ProviderInfo{Name: p.Name(), Priority: p.Priority()}
		if breakers != nil {
			status := breakers.Get(p.Name()).Status()
			info.CircuitBreaker = &status
		}
		infos = append(infos, info)
	}

	Respond(w, r).JSON(map[string]interface{}{
		"providers": infos,
	})
}

// isAuthorized checks the Authorization header against the cache access token.
// An unset token authorizes nobody.
func isAuthorized(r *http.Request) bool {
	token := conf.Configuration.CacheAccessToken
	return token != "" && r.Header.Get("Authorization") == token
}

func getCacheDump(w http.ResponseWriter, r *http.Request) {
	if !isAuthorized(r) {
		Respond(w, r).Error(http.StatusUnauthorized, "Unauthorized")
		return
	}

	c := lyricsResolver.Cache()
	s := stats.Get()
	Respond(w, r).JSON(CacheDumpResponse{
		NumberOfKeys: c.Len(),
		Capacity:     c.Capacity(),
		Performance: CachePerformance{
			Hits:          s.CacheHits.Load(),
			Misses:        s.CacheMisses.Load(),
			NegativeHits:  s.NegativeCacheHits.Load(),
			SharedLookups: s.SharedLookups.Load(),
			HitRate:       s.CacheHitRate(),
		},
		Entries: c.Entries(),
	})
}

func clearCache(w http.ResponseWriter, r *http.Request) {
	if !isAuthorized(r) {
		Respond(w, r).Error(http.StatusUnauthorized, "Unauthorized")
		return
	}

	n := lyricsResolver.Clear()
	log.Infof("%s Removed %d entries", logcolors.LogCacheClear, n)
	notifier.GetEventBus().PublishCacheCleared(n)
	Respond(w, r).JSON(map[string]interface{}{
		"message": "Cache cleared successfully",
		"removed": n,
	})
}

func resetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	if !isAuthorized(r) {
		Respond(w, r).Error(http.StatusUnauthorized, "Unauthorized")
		return
	}

	breakers := lyricsResolver.Breakers()
	if breakers == nil {
		Respond(w, r).Error(http.StatusNotFound, "circuit breakers are disabled")
		return
	}

	provider := queryParam(r, "provider")
	if provider == "" {
		breakers.ResetAll()
		log.Infof("%s All circuit breakers reset", logcolors.LogServer)
		Respond(w, r).JSON(map[string]interface{}{
			"message": "All circuit breakers reset to CLOSED state",
		})
		return
	}

	if err := breakers.Reset(provider); err != nil {
		Respond(w, r).Error(http.StatusNotFound, err.Error())
		return
	}
	Respond(w, r).JSON(map[string]interface{}{
		"message": fmt.Sprintf("Circuit breaker for %s reset to CLOSED state", provider),
	})
}

func getStats(w http.ResponseWriter, r *http.Request) {
	snapshot := stats.Get().Snapshot()

	c := lyricsResolver.Cache()
	snapshot["cache_storage"] = map[string]interface{}{
		"entries":  c.Len(),
		"capacity": c.Capacity(),
	}
	if breakers := lyricsResolver.Breakers(); breakers != nil {
		snapshot["circuit_breakers"] = breakers.Statuses()
	}

	Respond(w, r).JSON(snapshot)
}

func getHealthStatus(w http.ResponseWriter, r *http.Request) {
	registry := lyricsResolver.Registry()

	health := map[string]interface{}{
		"status":    "ok",
		"providers": registry.Len(),
		"cache": map[string]int{
			"entries":  lyricsResolver.Cache().Len(),
			"capacity": lyricsResolver.Cache().Capacity(),
		},
	}

	if breakers := lyricsResolver.Breakers(); breakers != nil {
		var open []string
		for _, name := range registry.List() {
			if cb, ok := breakers.Lookup(name); ok && cb.IsOpen() {
				open = append(open, name)
			}
		}
		if len(open) > 0 {
			health["status"] = "degraded"
			health["open_circuit_breakers"] = open
		}
	}

	if registry.Len() == 0 {
		health["status"] = "unhealthy"
		health["error"] = "no lyrics providers configured"
	}

	Respond(w, r).JSON(health)
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).JSON(map[string]interface{}{
		"help": "Use /lyrics?artist=<artist>&song=<song> to get synced lyrics, or /lyrics/line?artist=<artist>&song=<song>&position=<ms> for the line at a playback position.",
		"endpoints": []string{
			"GET /lyrics",
			"GET /lyrics/line",
			"PUT /now-playing",
			"GET /now-playing",
			"DELETE /now-playing",
			"GET /providers",
			"GET /cache",
			"POST /cache/clear",
			"POST /circuit-breaker/reset",
			"GET /stats",
			"GET /health",
			"GET /metrics",
		},
	})
}
