package local

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"strings"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/utils"

	log "github.com/sirupsen/logrus"
)

const (
	// ProviderName is the identifier for the local file provider
	ProviderName = "local"

	// DefaultPriority puts local files ahead of every remote catalog
	DefaultPriority = 0

	// DefaultExtension is the lyric file extension searched for
	DefaultExtension = ".lrc"
)

// LocalProvider reads LRC files named "<Artist> - <Title><ext>" or
// "<Title> - <Artist><ext>" from a directory.
type LocalProvider struct {
	fsys     fs.FS
	ext      string
	priority int
}

// NewProvider creates a provider over fsys. A nil fsys means no directory is
// configured and every lookup reports not found.
func NewProvider(fsys fs.FS, ext string, priority int) *LocalProvider {
	if ext == "" {
		ext = DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &LocalProvider{fsys: fsys, ext: strings.ToLower(ext), priority: priority}
}

// NewDirProvider creates a provider reading from dir on the OS filesystem.
func NewDirProvider(dir, ext string, priority int) *LocalProvider {
	if dir == "" {
		return NewProvider(nil, ext, priority)
	}
	return NewProvider(os.DirFS(dir), ext, priority)
}

// Name returns the provider identifier
func (p *LocalProvider) Name() string {
	return ProviderName
}

// Priority returns the provider's rank
func (p *LocalProvider) Priority() int {
	return p.priority
}

// Extension returns the lyric file extension, lower-cased with its leading dot
func (p *LocalProvider) Extension() string {
	return p.ext
}

// FetchLyrics looks up a matching file and parses it
func (p *LocalProvider) FetchLyrics(ctx context.Context, track lyrics.Track) (*lyrics.Lyrics, error) {
	if p.fsys == nil {
		return nil, providers.NewNotFound(ProviderName, "no lyrics directory configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, providers.NewProviderError(ProviderName, "lookup cancelled", err)
	}

	entries, err := fs.ReadDir(p.fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, providers.NewNotFound(ProviderName, "lyrics directory does not exist")
		}
		return nil, providers.NewProviderError(ProviderName, "failed to read lyrics directory", err)
	}

	name := p.match(entries, track.Artist, track.Name)
	if name == "" {
		log.Debugf("%s No local file for: %s - %s", logcolors.ProviderPrefix(ProviderName), track.Artist, track.Name)
		return nil, providers.NewNotFound(ProviderName, "no matching lyrics file")
	}

	data, err := fs.ReadFile(p.fsys, name)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "failed to read "+name, err)
	}

	parsed := lyrics.ParseLRC(string(data))
	if parsed.Empty() {
		log.Warnf("%s %s contains no timed lines", logcolors.ProviderPrefix(ProviderName), name)
		return nil, providers.NewNotFound(ProviderName, name+" contains no timed lines")
	}
	if parsed.Title == "" {
		parsed.Title = track.Name
	}
	if parsed.Artist == "" {
		parsed.Artist = track.Artist
	}

	log.Infof("%s Matched %s (%d lines)", logcolors.ProviderPrefix(ProviderName), name, parsed.Len())
	return parsed.WithProvider(ProviderName), nil
}

// match returns the directory entry for the track. Exact case-insensitive names
// win over transliterated matches, which only apply to Latin-script names.
func (p *LocalProvider) match(entries []fs.DirEntry, artist, title string) string {
	wanted := map[string]bool{
		utils.NormalizeText(artist + " - " + title): true,
		utils.NormalizeText(title + " - " + artist): true,
	}
	var folded map[string]bool
	if utils.IsLatin(artist + title) {
		folded = map[string]bool{
			utils.FoldText(artist + " - " + title): true,
			utils.FoldText(title + " - " + artist): true,
		}
	}

	fallback := ""
	for _, entry := range entries {
		stem, ok := p.stem(entry)
		if !ok {
			continue
		}
		if wanted[utils.NormalizeText(stem)] {
			return entry.Name()
		}
		if fallback == "" && folded != nil && utils.IsLatin(stem) && folded[utils.FoldText(stem)] {
			fallback = entry.Name()
		}
	}
	return fallback
}

// stem returns the file name without the lyric extension
func (p *LocalProvider) stem(entry fs.DirEntry) (string, bool) {
	if entry.IsDir() {
		return "", false
	}
	name := entry.Name()
	ext := path.Ext(name)
	if strings.ToLower(ext) != p.ext {
		return "", false
	}
	return strings.TrimSuffix(name, ext), true
}

// SplitStem splits "<A> - <B>" into its two halves
func SplitStem(stem string) (string, string, bool) {
	a, b, ok := strings.Cut(stem, " - ")
	if !ok {
		return "", "", false
	}
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}
