package lrclib

import (
	"context"
	"errors"
	"strings"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/providers"

	log "github.com/sirupsen/logrus"
)

const (
	// ProviderName is the identifier for the LRCLIB provider
	ProviderName = "lrclib"

	// DefaultPriority ranks the global catalog after local files
	DefaultPriority = 5
)

// LrclibProvider implements providers.Provider on top of the LRCLIB catalog
type LrclibProvider struct {
	client   *Client
	priority int
}

// NewProvider creates a new LRCLIB provider instance
func NewProvider(client *Client, priority int) *LrclibProvider {
	return &LrclibProvider{client: client, priority: priority}
}

// Name returns the provider identifier
func (p *LrclibProvider) Name() string {
	return ProviderName
}

// Priority returns the provider's rank
func (p *LrclibProvider) Priority() int {
	return p.priority
}

// FetchLyrics fetches synced lyrics for the track. Plain-only records count as
// not found since they cannot be synchronized.
func (p *LrclibProvider) FetchLyrics(ctx context.Context, track lyrics.Track) (*lyrics.Lyrics, error) {
	if strings.TrimSpace(track.Name) == "" {
		return nil, providers.NewNotFound(ProviderName, "track name is empty")
	}

	log.Infof("%s [LRCLIB] Searching: %s - %s", logcolors.LogSearch, track.Artist, track.Name)

	record, err := p.client.Get(ctx, track.Artist, track.Name)
	if err != nil {
		if errors.Is(err, errNoRecord) {
			return nil, providers.NewNotFound(ProviderName, "no record for "+track.Artist+" - "+track.Name)
		}
		return nil, providers.NewProviderError(ProviderName, "lookup failed", err)
	}

	if record.Instrumental {
		return nil, providers.NewNotFound(ProviderName, "track is instrumental")
	}
	if strings.TrimSpace(record.SyncedLyrics) == "" {
		return nil, providers.NewNotFound(ProviderName, "no synced lyrics")
	}

	parsed := lyrics.ParseLRC(record.SyncedLyrics)
	if parsed.Empty() {
		return nil, providers.NewNotFound(ProviderName, "synced lyrics contain no timed lines")
	}
	if parsed.Title == "" {
		parsed.Title = record.TrackName
	}
	if parsed.Artist == "" {
		parsed.Artist = record.ArtistName
	}

	log.Infof("%s [LRCLIB] Found %d lines (id: %d)", logcolors.LogSuccess, parsed.Len(), record.ID)
	return parsed.WithProvider(ProviderName), nil
}
