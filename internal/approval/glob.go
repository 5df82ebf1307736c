package approval

import (
	"path/filepath"
	"strings"
)

// matchGlob reports whether pattern matches text, where `*` matches any
// run of characters (including none) and `?` matches exactly one
// character. The match is anchored at both ends of text.
func matchGlob(pattern, text string) bool {
	return matchGlobRunes([]rune(pattern), []rune(text))
}

func matchGlobRunes(pattern, text []rune) bool {
	// Standard greedy-backtracking glob match, iterative with a star
	// checkpoint so pathological patterns stay linear-ish in practice.
	var pi, ti int
	var starIdx = -1
	var starMatch int

	for ti < len(text) {
		if pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == text[ti]) {
			pi++
			ti++
			continue
		}
		if pi < len(pattern) && pattern[pi] == '*' {
			starIdx = pi
			starMatch = ti
			pi++
			continue
		}
		if starIdx != -1 {
			pi = starIdx + 1
			starMatch++
			ti = starMatch
			continue
		}
		return false
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

// matchesEntry reports whether an allowlist pattern matches a parsed
// command segment. The pattern is matched against the segment's
// reconstructed "binary arg1 arg2..." form as well as its raw text, so
// both `/bin/ls *` and `ls -la *` style patterns work. A pattern whose
// first word is a path also matches a segment that names the same binary
// without a path (`/bin/ls *` matches `ls -la /tmp`).
func matchesEntry(pattern string, seg CommandSegment) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	joined := seg.Binary
	if len(seg.Args) > 0 {
		joined += " " + strings.Join(seg.Args, " ")
	}
	if matchGlob(pattern, joined) || matchGlob(pattern, strings.TrimSpace(seg.Raw)) {
		return true
	}
	if strings.Contains(seg.Binary, "/") {
		return false
	}
	head, rest, hasRest := strings.Cut(pattern, " ")
	if !strings.Contains(head, "/") || filepath.Base(head) != seg.Binary {
		return false
	}
	bare := seg.Binary
	if hasRest {
		bare += " " + rest
	}
	return matchGlob(bare, joined)
}
