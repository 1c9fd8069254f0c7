package lyrics

import (
	"sort"
	"time"
)

// NotStarted is returned by Locate when the position precedes the first line.
// It is distinct from 0, which means the first line is active.
const NotStarted = -1

// Locate returns the index of the last line whose timestamp is <= position, or
// NotStarted. When several lines share a timestamp the last of them is returned.
// It holds no state, so seeking backwards needs no special handling.
func Locate(lines []Line, position time.Duration) int {
	// First index whose timestamp is strictly after position
	next := sort.Search(len(lines), func(i int) bool {
		return lines[i].Timestamp > position
	})
	return next - 1
}

// Active returns the active line for a position, and false before the first line.
func Active(lines []Line, position time.Duration) (Line, bool) {
	idx := Locate(lines, position)
	if idx == NotStarted {
		return Line{}, false
	}
	return lines[idx], true
}

// Cursor is a forward-biased Locate for a render loop that polls a steadily advancing
// position. It checks the previously returned line and its successor before falling
// back to a full binary search, so results always equal Locate. A Cursor is not safe
// for concurrent use.
type Cursor struct {
	last  int
	valid bool
}

// Locate behaves exactly like the package-level Locate.
func (c *Cursor) Locate(lines []Line, position time.Duration) int {
	if c.valid {
		for idx := c.last; idx <= c.last+1 && idx < len(lines); idx++ {
			if idx >= 0 && isActive(lines, idx, position) {
				c.last = idx
				return idx
			}
		}
	}

	idx := Locate(lines, position)
	c.last = idx
	c.valid = true
	return idx
}

// Reset forgets the previous index, e.g. after switching to different lyrics.
func (c *Cursor) Reset() {
	c.last = 0
	c.valid = false
}

// isActive reports whether lines[idx] is the last line with timestamp <= position
func isActive(lines []Line, idx int, position time.Duration) bool {
	if lines[idx].Timestamp > position {
		return false
	}
	return idx+1 == len(lines) || lines[idx+1].Timestamp > position
}
