package term

import "strings"

// Diff computes the new content to emit given the previously rendered screen
// and the current one. Both inputs are expected to already have trailing blank
// lines trimmed.
//
// When the previous text is a line-boundary prefix of the current text the
// terminal scrolled and only the appended suffix is new. Anything else means
// the screen was cleared or redrawn, so the whole current text is new. An
// empty return means nothing changed.
func Diff(prev, curr string) string {
	if curr == prev {
		return ""
	}
	if prev == "" {
		return curr
	}

	if strings.HasPrefix(curr, prev) {
		suffix := curr[len(prev):]
		// Only treat it as a scroll when the prefix ends at a line boundary,
		// otherwise "ab" -> "abc" would emit a partial line as a new one.
		if strings.HasPrefix(suffix, "\n") {
			return suffix[1:]
		}
	}

	return curr
}
