package lyrics

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// LRC timestamp marker: [mm:ss.xx] or [mm:ss.xxx]; some sources write [mm:ss:xx]
	lrcTimeRegex = regexp.MustCompile(`\[(\d{2}):(\d{2})[.:](\d{2,3})\]`)

	// Metadata tags: [key:value] with a lowercase key
	metadataRegex = regexp.MustCompile(`^\[([a-z]+):(.*)\]$`)
)

// ParseLRC parses LRC text into Lyrics. It never fails: lines without a timestamp
// marker and lines with unparseable numbers are dropped, and input with nothing usable
// yields Lyrics with no lines.
func ParseLRC(content string) *Lyrics {
	result := &Lyrics{}
	var collected []Line

	content = strings.TrimPrefix(content, "\ufeff")

	for _, rawLine := range strings.Split(content, "\n") {
		rawLine = strings.TrimSpace(rawLine)
		if rawLine == "" {
			continue
		}

		if matches := metadataRegex.FindStringSubmatch(rawLine); len(matches) == 3 && !lrcTimeRegex.MatchString(rawLine) {
			value := strings.TrimSpace(matches[2])
			switch matches[1] {
			case "offset":
				if offset, err := strconv.Atoi(value); err == nil {
					result.Offset = offset
				}
			case "ti":
				result.Title = value
			case "ar":
				result.Artist = value
			}
			continue
		}

		timestamps, text, ok := parseTimedLine(rawLine)
		if !ok {
			continue
		}

		for _, ts := range timestamps {
			collected = append(collected, Line{Timestamp: ts, Text: text})
		}
	}

	// Stable: a repeated chorus keeps its original order within a timestamp
	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].Timestamp < collected[j].Timestamp
	})
	result.Lines = ApplyOffset(collected, result.Offset)

	return result
}

// parseTimedLine extracts every timestamp marker of a line and the text left after
// removing them. ok is false when the line has no marker, no text, or a numeric
// field that does not parse.
func parseTimedLine(rawLine string) ([]time.Duration, string, bool) {
	matches := lrcTimeRegex.FindAllStringSubmatch(rawLine, -1)
	if len(matches) == 0 {
		return nil, "", false
	}

	text := strings.TrimSpace(lrcTimeRegex.ReplaceAllString(rawLine, ""))
	if text == "" {
		return nil, "", false
	}

	timestamps := make([]time.Duration, 0, len(matches))
	for _, match := range matches {
		minutes, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return nil, "", false
		}
		seconds, err := strconv.ParseInt(match[2], 10, 64)
		if err != nil {
			return nil, "", false
		}
		millisPart := match[3]
		millis, err := strconv.ParseInt(millisPart, 10, 64)
		if err != nil {
			return nil, "", false
		}
		// Two digits are centiseconds
		if len(millisPart) == 2 {
			millis *= 10
		}

		totalMs := (minutes*60+seconds)*1000 + millis
		timestamps = append(timestamps, time.Duration(totalMs)*time.Millisecond)
	}

	return timestamps, text, true
}

// ApplyOffset returns a new slice with offsetMs added to every timestamp. Negative
// results are clamped to zero. The input slice is not modified.
func ApplyOffset(lines []Line, offsetMs int) []Line {
	shifted := make([]Line, len(lines))
	delta := time.Duration(offsetMs) * time.Millisecond
	for i, line := range lines {
		ts := line.Timestamp + delta
		if ts < 0 {
			ts = 0
		}
		shifted[i] = Line{Timestamp: ts, Text: line.Text}
	}
	return shifted
}
