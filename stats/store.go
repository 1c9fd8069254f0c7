package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"lyrics-sync-go/logcolors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	statsBucketName = "stats"
	statsKey        = "server_stats"
)

// Store persists cumulative counters in BoltDB so they survive restarts.
// Only statistics are stored here, never lyrics.
type Store struct {
	db       *bolt.DB
	dbPath   string
	stats    *Stats
	mu       sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// PersistedStats is the on-disk form of Stats
type PersistedStats struct {
	TotalRequests      int64 `json:"total_requests"`
	LyricsRequests     int64 `json:"lyrics_requests"`
	LineRequests       int64 `json:"line_requests"`
	NowPlayingRequests int64 `json:"now_playing_requests"`
	CacheRequests      int64 `json:"cache_requests"`
	StatsRequests      int64 `json:"stats_requests"`
	HealthRequests     int64 `json:"health_requests"`
	OtherRequests      int64 `json:"other_requests"`

	CacheHits         int64 `json:"cache_hits"`
	NegativeCacheHits int64 `json:"negative_cache_hits"`
	CacheMisses       int64 `json:"cache_misses"`
	SharedLookups     int64 `json:"shared_lookups"`
	PositiveWrites    int64 `json:"positive_writes"`
	NegativeWrites    int64 `json:"negative_writes"`
	Invalidations     int64 `json:"invalidations"`
	Resolved          int64 `json:"resolved"`
	Unresolved        int64 `json:"unresolved"`

	RateLimitNormal   int64 `json:"rate_limit_normal"`
	RateLimitCached   int64 `json:"rate_limit_cached"`
	RateLimitExceeded int64 `json:"rate_limit_exceeded"`
	Status2xx         int64 `json:"status_2xx"`
	Status4xx         int64 `json:"status_4xx"`
	Status5xx         int64 `json:"status_5xx"`

	TotalResponseTime   int64 `json:"total_response_time"`
	ResponseCount       int64 `json:"response_count"`
	MinResponseTime     int64 `json:"min_response_time"`
	MaxResponseTime     int64 `json:"max_response_time"`
	LyricsResponseTime  int64 `json:"lyrics_response_time"`
	LyricsResponseCount int64 `json:"lyrics_response_count"`

	Providers map[string]map[string]int64 `json:"providers"`

	LastSaved    time.Time `json:"last_saved"`
	FirstStarted time.Time `json:"first_started"`
}

// NewStore opens (or creates) the BoltDB file at dbPath for s
func NewStore(dbPath string, s *Stats) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create stats directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(statsBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create stats bucket: %w", err)
	}

	log.Infof("%s Stats store initialized at %s", logcolors.LogStats, dbPath)
	return &Store{
		db:       db,
		dbPath:   dbPath,
		stats:    s,
		stopChan: make(chan struct{}),
	}, nil
}

// Load reads persisted counters and applies them to the store's Stats
func (st *Store) Load() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	var p PersistedStats
	found := false
	err := st.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(statsBucketName))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(statsKey))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	if !found {
		log.Infof("%s No persisted stats yet", logcolors.LogStats)
		return nil
	}

	s := st.stats
	s.TotalRequests.Store(p.TotalRequests)
	s.LyricsRequests.Store(p.LyricsRequests)
	s.LineRequests.Store(p.LineRequests)
	s.NowPlayingRequests.Store(p.NowPlayingRequests)
	s.CacheRequests.Store(p.CacheRequests)
	s.StatsRequests.Store(p.StatsRequests)
	s.HealthRequests.Store(p.HealthRequests)
	s.OtherRequests.Store(p.OtherRequests)
	s.CacheHits.Store(p.CacheHits)
	s.NegativeCacheHits.Store(p.NegativeCacheHits)
	s.CacheMisses.Store(p.CacheMisses)
	s.SharedLookups.Store(p.SharedLookups)
	s.PositiveWrites.Store(p.PositiveWrites)
	s.NegativeWrites.Store(p.NegativeWrites)
	s.Invalidations.Store(p.Invalidations)
	s.Resolved.Store(p.Resolved)
	s.Unresolved.Store(p.Unresolved)
	s.RateLimitNormal.Store(p.RateLimitNormal)
	s.RateLimitCached.Store(p.RateLimitCached)
	s.RateLimitExceeded.Store(p.RateLimitExceeded)
	s.Status2xx.Store(p.Status2xx)
	s.Status4xx.Store(p.Status4xx)
	s.Status5xx.Store(p.Status5xx)
	s.totalResponseTime.Store(p.TotalResponseTime)
	s.responseCount.Store(p.ResponseCount)
	s.lyricsResponseTime.Store(p.LyricsResponseTime)
	s.lyricsResponseCount.Store(p.LyricsResponseCount)

	if p.MinResponseTime > 0 && p.MinResponseTime < noMin {
		s.minResponseTime.Store(p.MinResponseTime)
	}
	if p.MaxResponseTime > 0 {
		s.maxResponseTime.Store(p.MaxResponseTime)
	}

	for name, outcomes := range p.Providers {
		c := s.provider(name)
		c.Found.Store(outcomes[OutcomeFound])
		c.NotFound.Store(outcomes[OutcomeNotFound])
		c.Transient.Store(outcomes[OutcomeTransient])
		c.Skipped.Store(outcomes[OutcomeSkipped])
	}

	if !p.FirstStarted.IsZero() {
		s.StartTime = p.FirstStarted
	}

	log.Infof("%s Loaded persisted stats (total requests: %d, first started: %s)",
		logcolors.LogStats, p.TotalRequests, p.FirstStarted.Format(time.RFC3339))
	return nil
}

// Save persists the current counters
func (st *Store) Save() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.stats
	p := PersistedStats{
		TotalRequests:       s.TotalRequests.Load(),
		LyricsRequests:      s.LyricsRequests.Load(),
		LineRequests:        s.LineRequests.Load(),
		NowPlayingRequests:  s.NowPlayingRequests.Load(),
		CacheRequests:       s.CacheRequests.Load(),
		StatsRequests:       s.StatsRequests.Load(),
		HealthRequests:      s.HealthRequests.Load(),
		OtherRequests:       s.OtherRequests.Load(),
		CacheHits:           s.CacheHits.Load(),
		NegativeCacheHits:   s.NegativeCacheHits.Load(),
		CacheMisses:         s.CacheMisses.Load(),
		SharedLookups:       s.SharedLookups.Load(),
		PositiveWrites:      s.PositiveWrites.Load(),
		NegativeWrites:      s.NegativeWrites.Load(),
		Invalidations:       s.Invalidations.Load(),
		Resolved:            s.Resolved.Load(),
		Unresolved:          s.Unresolved.Load(),
		RateLimitNormal:     s.RateLimitNormal.Load(),
		RateLimitCached:     s.RateLimitCached.Load(),
		RateLimitExceeded:   s.RateLimitExceeded.Load(),
		Status2xx:           s.Status2xx.Load(),
		Status4xx:           s.Status4xx.Load(),
		Status5xx:           s.Status5xx.Load(),
		TotalResponseTime:   s.totalResponseTime.Load(),
		ResponseCount:       s.responseCount.Load(),
		MinResponseTime:     s.minResponseTime.Load(),
		MaxResponseTime:     s.maxResponseTime.Load(),
		LyricsResponseTime:  s.lyricsResponseTime.Load(),
		LyricsResponseCount: s.lyricsResponseCount.Load(),
		Providers:           s.ProviderSnapshot(),
		LastSaved:           time.Now(),
		FirstStarted:        s.StartTime,
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	err = st.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(statsBucketName))
		if b == nil {
			return fmt.Errorf("stats bucket not found")
		}
		return b.Put([]byte(statsKey), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// StartAutoSave begins periodic saving of stats
func (st *Store) StartAutoSave(interval time.Duration) {
	st.wg.Add(1)
	go func() {
		defer st.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := st.Save(); err != nil {
					log.Warnf("%s Failed to auto-save stats: %v", logcolors.LogStats, err)
				}
			case <-st.stopChan:
				return
			}
		}
	}()
	log.Infof("%s Started auto-save with interval %v", logcolors.LogStats, interval)
}

// Close stops auto-save, writes a final snapshot and closes the database
func (st *Store) Close() error {
	st.stopOnce.Do(func() { close(st.stopChan) })
	st.wg.Wait()

	if err := st.Save(); err != nil {
		log.Warnf("%s Failed to save stats on close: %v", logcolors.LogStats, err)
	} else {
		log.Infof("%s Stats saved on shutdown", logcolors.LogStats)
	}

	return st.db.Close()
}
