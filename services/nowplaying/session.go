package nowplaying

import (
	"context"
	"sync"
	"time"

	"lyrics-sync-go/cache"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/resolver"

	log "github.com/sirupsen/logrus"
)

// State of the lyrics for the current track
type State string

const (
	StateIdle        State = "idle"        // nothing playing
	StateLoading     State = "loading"     // resolution in progress
	StateReady       State = "ready"       // lyrics available
	StateUnavailable State = "unavailable" // no provider had lyrics
)

// Lookuper resolves a track; *resolver.Resolver implements it
type Lookuper interface {
	Lookup(ctx context.Context, track lyrics.Track) resolver.Result
}

// View is what a renderer needs for one frame
type View struct {
	Track      lyrics.Track   `json:"track"`
	State      State          `json:"state"`
	Lyrics     *lyrics.Lyrics `json:"-"`
	Provider   string         `json:"provider,omitempty"`
	Index      int            `json:"index"`
	Line       *lyrics.Line   `json:"-"`
	Generation uint64         `json:"generation"`
}

// Session follows the currently playing track and resolves its lyrics in the
// background. View never waits on resolution. When the track changes while a
// lookup is running, that lookup's result is discarded on arrival (the resolver
// has still cached it).
type Session struct {
	lookup        Lookuper
	timeout       time.Duration
	retryInterval time.Duration
	now           func() time.Time

	mu         sync.Mutex
	track      lyrics.Track
	key        string
	generation uint64
	state      State
	lyrics     *lyrics.Lyrics
	provider   string
	resolvedAt time.Time
	cursor     lyrics.Cursor

	wg sync.WaitGroup
}

// New creates an idle session. timeout bounds each background resolution;
// retryInterval is how long an unavailable track waits before being re-resolved.
func New(lookup Lookuper, timeout, retryInterval time.Duration) *Session {
	return &Session{
		lookup:        lookup,
		timeout:       timeout,
		retryInterval: retryInterval,
		now:           time.Now,
		state:         StateIdle,
	}
}

// Update reports the current track. It returns true when a background
// resolution was started.
func (s *Session) Update(track lyrics.Track) bool {
	key := cache.Key(track.Artist, track.Name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if key == s.key && s.state != StateIdle {
		s.track = track
		if s.state != StateUnavailable || s.now().Sub(s.resolvedAt) < s.retryInterval {
			return false
		}
		log.Infof("%s Retrying %s - %s", logcolors.LogNowPlaying, track.Artist, track.Name)
	} else {
		log.Infof("%s Track changed: %s - %s", logcolors.LogNowPlaying, track.Artist, track.Name)
	}

	s.generation++
	s.track = track
	s.key = key
	s.state = StateLoading
	s.lyrics = nil
	s.provider = ""
	s.cursor.Reset()

	s.wg.Add(1)
	go s.resolve(s.generation, track)
	return true
}

// Clear returns the session to idle, discarding any pending result
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.track = lyrics.Track{}
	s.key = ""
	s.state = StateIdle
	s.lyrics = nil
	s.provider = ""
	s.cursor.Reset()
}

// View returns the current state and the line active at position
func (s *Session) View(position time.Duration) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Track:      s.track,
		State:      s.state,
		Lyrics:     s.lyrics,
		Provider:   s.provider,
		Index:      lyrics.NotStarted,
		Generation: s.generation,
	}
	v.Track.Position = position

	if s.state == StateReady {
		v.Index = s.cursor.Locate(s.lyrics.Lines, position)
		if v.Index != lyrics.NotStarted {
			line := s.lyrics.Lines[v.Index]
			v.Line = &line
		}
	}
	return v
}

// Wait blocks until background resolutions have finished
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) resolve(generation uint64, track lyrics.Track) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result := s.lookup.Lookup(ctx, track)
	s.apply(generation, track, result)
}

func (s *Session) apply(generation uint64, track lyrics.Track, result resolver.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		log.Debugf("%s Discarding late result for %s - %s", logcolors.LogNowPlaying, track.Artist, track.Name)
		return
	}

	s.resolvedAt = s.now()
	s.cursor.Reset()
	if result.Found() {
		s.state = StateReady
		s.lyrics = result.Lyrics
		s.provider = result.Provider
		log.Infof("%s Lyrics ready for %s - %s (%s, %s)", logcolors.LogNowPlaying,
			track.Artist, track.Name, result.Provider, result.CacheStatus)
		return
	}

	s.state = StateUnavailable
	s.lyrics = nil
	s.provider = ""
	log.Infof("%s No lyrics for %s - %s", logcolors.LogNowPlaying, track.Artist, track.Name)
}
