package main

import (
	"time"

	"lyrics-sync-go/cache"
	"lyrics-sync-go/circuitbreaker"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/nowplaying"
)

// LineJSON is a timed line on the wire, times in milliseconds
type LineJSON struct {
	StartTimeMs int64  `json:"startTimeMs"`
	Text        string `json:"text"`
}

func toLineJSON(l lyrics.Line) LineJSON {
	return LineJSON{StartTimeMs: l.Timestamp.Milliseconds(), Text: l.Text}
}

func toLinesJSON(lines []lyrics.Line) []LineJSON {
	out := make([]LineJSON, len(lines))
	for i, l := range lines {
		out[i] = toLineJSON(l)
	}
	return out
}

// LyricsResponse is the response format for /lyrics
type LyricsResponse struct {
	Title    string     `json:"title,omitempty"`
	Artist   string     `json:"artist,omitempty"`
	Provider string     `json:"provider"`
	OffsetMs int        `json:"offsetMs,omitempty"`
	Lines    []LineJSON `json:"lines"`
}

func newLyricsResponse(l *lyrics.Lyrics) LyricsResponse {
	return LyricsResponse{
		Title:    l.Title,
		Artist:   l.Artist,
		Provider: l.Provider,
		OffsetMs: l.Offset,
		Lines:    toLinesJSON(l.Lines),
	}
}

// LineResponse is the response format for /lyrics/line. Index is -1 before the
// first line, in which case Line is omitted and Next is the first line.
type LineResponse struct {
	PositionMs int64     `json:"positionMs"`
	Index      int       `json:"index"`
	Line       *LineJSON `json:"line,omitempty"`
	Next       *LineJSON `json:"next,omitempty"`
	Provider   string    `json:"provider"`
}

func newLineResponse(l *lyrics.Lyrics, index int, position time.Duration) LineResponse {
	resp := LineResponse{
		PositionMs: position.Milliseconds(),
		Index:      index,
		Provider:   l.Provider,
	}
	if index != lyrics.NotStarted {
		line := toLineJSON(l.Lines[index])
		resp.Line = &line
	}
	if index+1 < len(l.Lines) {
		next := toLineJSON(l.Lines[index+1])
		resp.Next = &next
	}
	return resp
}

// NowPlayingRequest is the body of PUT /now-playing
type NowPlayingRequest struct {
	Artist     string `json:"artist"`
	Song       string `json:"song"`
	Album      string `json:"album,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	PositionMs int64  `json:"positionMs,omitempty"`
}

func (req NowPlayingRequest) track() lyrics.Track {
	return lyrics.Track{
		Artist:   req.Artist,
		Name:     req.Song,
		Album:    req.Album,
		Duration: time.Duration(req.DurationMs) * time.Millisecond,
		Position: time.Duration(req.PositionMs) * time.Millisecond,
	}
}

// NowPlayingResponse is the response format for /now-playing
type NowPlayingResponse struct {
	State      nowplaying.State `json:"state"`
	Track      *lyrics.Track    `json:"track,omitempty"`
	Provider   string           `json:"provider,omitempty"`
	PositionMs int64            `json:"positionMs"`
	Index      int              `json:"index"`
	Line       *LineJSON        `json:"line,omitempty"`
	Generation uint64           `json:"generation"`
	Started    bool             `json:"started,omitempty"`
}

func newNowPlayingResponse(v nowplaying.View) NowPlayingResponse {
	resp := NowPlayingResponse{
		State:      v.State,
		Provider:   v.Provider,
		PositionMs: v.Track.Position.Milliseconds(),
		Index:      v.Index,
		Generation: v.Generation,
	}
	if v.State != nowplaying.StateIdle {
		track := v.Track
		resp.Track = &track
	}
	if v.Line != nil {
		line := toLineJSON(*v.Line)
		resp.Line = &line
	}
	return resp
}

// ProviderInfo describes a registered provider for /providers
type ProviderInfo struct {
	Name           string                 `json:"name"`
	Priority       int                    `json:"priority"`
	CircuitBreaker *circuitbreaker.Status `json:"circuit_breaker,omitempty"`
}

// CachePerformance contains cache hit/miss statistics
type CachePerformance struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	NegativeHits  int64   `json:"negative_hits"`
	SharedLookups int64   `json:"shared_lookups"`
	HitRate       float64 `json:"hit_rate_percent"`
}

// CacheDumpResponse is the response format for /cache
type CacheDumpResponse struct {
	NumberOfKeys int              `json:"number_of_keys"`
	Capacity     int              `json:"capacity"`
	Performance  CachePerformance `json:"performance"`
	Entries      []cache.Entry    `json:"entries"`
}
