package netease

import (
	"context"
	"regexp"
	"strings"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/providers"

	log "github.com/sirupsen/logrus"
)

const (
	// ProviderName is the identifier for the NetEase provider
	ProviderName = "netease"

	// DefaultPriority ranks the regional catalog last
	DefaultPriority = 10

	// pureMusicPlaceholder is the single line NetEase serves for instrumentals
	pureMusicPlaceholder = "纯音乐，请欣赏"
)

// creditRegex matches the contributor lines NetEase prepends as timed lyrics,
// e.g. "作词 : 周杰伦" or "Composer：Someone"
var creditRegex = regexp.MustCompile(`(?i)^(作词|作曲|编曲|制作人|制作|演唱|原唱|混音|和声|监制|词|曲|lyricist|lyrics by|composer|arranger|producer)\s*[:：]`)

// NeteaseProvider implements providers.Provider for NetEase Cloud Music
type NeteaseProvider struct {
	client   *Client
	priority int
}

// NewProvider creates a new NetEase provider instance
func NewProvider(client *Client, priority int) *NeteaseProvider {
	return &NeteaseProvider{client: client, priority: priority}
}

// Name returns the provider identifier
func (p *NeteaseProvider) Name() string {
	return ProviderName
}

// Priority returns the provider's rank
func (p *NeteaseProvider) Priority() int {
	return p.priority
}

// FetchLyrics searches for the track and downloads its LRC lyric
func (p *NeteaseProvider) FetchLyrics(ctx context.Context, track lyrics.Track) (*lyrics.Lyrics, error) {
	keyword := strings.TrimSpace(track.Name + " " + track.Artist)
	if keyword == "" {
		return nil, providers.NewNotFound(ProviderName, "song name and artist name are both empty")
	}

	log.Infof("%s [NetEase] Searching: %s - %s", logcolors.LogSearch, track.Artist, track.Name)

	song, err := p.client.SearchSong(ctx, keyword)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "song search failed", err)
	}
	if song == nil {
		return nil, providers.NewNotFound(ProviderName, "no songs found for: "+keyword)
	}

	log.Debugf("%s [NetEase] Using song %d: %s - %s", logcolors.LogMatch,
		song.ID, strings.Join(song.ArtistNames(), ", "), song.Name)

	resp, err := p.client.GetLyric(ctx, song.ID)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "lyrics download failed", err)
	}
	if resp.NoLyric || resp.Uncollected || resp.Lrc == nil || strings.TrimSpace(resp.Lrc.Lyric) == "" {
		return nil, providers.NewNotFound(ProviderName, "no lyrics for song")
	}

	parsed := lyrics.ParseLRC(resp.Lrc.Lyric)
	parsed.Lines = stripCredits(parsed.Lines)
	if parsed.Empty() {
		return nil, providers.NewNotFound(ProviderName, "lyrics contain no timed lines")
	}
	if isPureMusic(parsed.Lines) {
		return nil, providers.NewNotFound(ProviderName, "track is instrumental")
	}
	if parsed.Title == "" {
		parsed.Title = song.Name
	}
	if parsed.Artist == "" {
		parsed.Artist = strings.Join(song.ArtistNames(), ", ")
	}

	log.Infof("%s [NetEase] Found %d lines (id: %d)", logcolors.LogSuccess, parsed.Len(), song.ID)
	return parsed.WithProvider(ProviderName), nil
}

// stripCredits drops the leading run of contributor lines
func stripCredits(lines []lyrics.Line) []lyrics.Line {
	i := 0
	for i < len(lines) && creditRegex.MatchString(strings.TrimSpace(lines[i].Text)) {
		i++
	}
	if i == 0 {
		return lines
	}
	return lines[i:]
}

func isPureMusic(lines []lyrics.Line) bool {
	return len(lines) == 1 && strings.Contains(lines[0].Text, pureMusicPlaceholder)
}
