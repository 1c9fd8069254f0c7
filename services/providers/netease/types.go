package netease

// SearchResponse is the body of /api/search/get
type SearchResponse struct {
	Code   int `json:"code"`
	Result struct {
		Songs     []Song `json:"songs"`
		SongCount int    `json:"songCount"`
	} `json:"result"`
}

// Song is a single search hit
type Song struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Artists  []Artist `json:"artists"`
	Duration int      `json:"duration"` // milliseconds
}

// Artist is an artist entry on a search hit
type Artist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// LyricResponse is the body of /api/song/lyric
type LyricResponse struct {
	Code        int        `json:"code"`
	NoLyric     bool       `json:"nolyric"`
	Uncollected bool       `json:"uncollected"`
	Lrc         *LyricBody `json:"lrc"`
	TLyric      *LyricBody `json:"tlyric"`
}

// LyricBody holds one lyric variant
type LyricBody struct {
	Version int    `json:"version"`
	Lyric   string `json:"lyric"`
}

// ArtistNames joins the artist names of a song
func (s Song) ArtistNames() []string {
	names := make([]string, 0, len(s.Artists))
	for _, a := range s.Artists {
		names = append(names, a.Name)
	}
	return names
}
