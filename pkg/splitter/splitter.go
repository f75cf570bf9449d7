// Package splitter breaks long bot responses into segments that fit
// under Discord's per-message size ceiling, preferring to cut on line
// boundaries.
package splitter

import (
	"strings"
	"unicode/utf8"
)

// DefaultLimit leaves headroom under Discord's 2000-character message
// cap.
const DefaultLimit = 1900

// Split returns the ordered segments of text, each at most limit
// bytes. Text already within the limit is returned unchanged as a
// single segment. Lines longer than the limit are hard-sliced into
// limit-sized pieces on rune boundaries, with the final piece carried
// into the next segment's buffer. Non-empty input never yields an
// empty result.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(text) <= limit {
		return []string{text}
	}

	var segments []string
	current := ""

	flush := func() {
		if trimmed := strings.TrimSpace(current); trimmed != "" {
			segments = append(segments, trimmed)
		}
		current = ""
	}

	for _, line := range strings.Split(text, "\n") {
		if len(line) > limit {
			flush()
			for len(line) > limit {
				cut := sliceAt(line, limit)
				segments = append(segments, line[:cut])
				line = line[cut:]
			}
			current = line
			continue
		}

		if current == "" {
			current = line
			continue
		}
		if len(current)+1+len(line) > limit {
			flush()
			current = line
			continue
		}
		current += "\n" + line
	}
	flush()

	if len(segments) == 0 {
		// All-whitespace input trims away to nothing; fall back to a
		// hard-truncated segment rather than returning no segments.
		return []string{text[:sliceAt(text, limit)]}
	}
	return segments
}

// sliceAt backs limit off to the nearest rune boundary so a hard slice
// never cuts multibyte text mid-rune. The caller guarantees
// len(s) > limit.
func sliceAt(s string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		// No boundary within the limit; emit the bytes as-is rather
		// than loop forever.
		return limit
	}
	return cut
}
