package lyrics

import "time"

// Track identifies what is playing. It is supplied by the media-control side and
// never modified here.
type Track struct {
	Artist   string        `json:"artist"`
	Name     string        `json:"name"`
	Album    string        `json:"album,omitempty"`
	Duration time.Duration `json:"-"`
	Position time.Duration `json:"-"`
}

// Line is a single timed lyric line. Lines sharing a timestamp (a repeated chorus)
// are kept as separate entries.
type Line struct {
	Timestamp time.Duration
	Text      string
}

// Lyrics is a parsed, offset-corrected lyrics document.
//
// Lines is sorted ascending by Timestamp, ties in original parse order. A Lyrics value
// is shared between goroutines once constructed; callers must not modify Lines.
type Lyrics struct {
	Title  string
	Artist string
	Lines  []Line
	// Offset in milliseconds as declared by the [offset:] tag. Already applied to Lines.
	Offset int
	// Provider is the name of the source that produced these lyrics
	Provider string
}

// Empty reports whether there is nothing to display.
func (l *Lyrics) Empty() bool {
	return l == nil || len(l.Lines) == 0
}

// Len returns the number of lines.
func (l *Lyrics) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Lines)
}

// WithProvider returns a shallow copy tagged with the given provider name. Lines are
// shared, not copied.
func (l *Lyrics) WithProvider(name string) *Lyrics {
	if l == nil {
		return nil
	}
	c := *l
	c.Provider = name
	return &c
}
