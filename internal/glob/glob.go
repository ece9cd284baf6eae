// Package glob implements anchored glob matching over slash-separated paths.
//
// Supported syntax: `*` (any run within one path segment), `?` (one
// character), POSIX-style bracket character classes, and `**` (any run of
// segments). Patterns are anchored on the full path.
package glob

import "path"

// Match reports whether name matches pattern. Name must use forward slashes.
// A malformed pattern never matches.
func Match(pattern, name string) bool {
	return match(splitSegments(pattern), splitSegments(name))
}

// MatchAny reports whether name matches any of the patterns
func MatchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if Match(p, name) {
			return true
		}
	}
	return false
}

func splitSegments(p string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			segs = append(segs, p[start:i])
			start = i + 1
		}
	}
	return append(segs, p[start:])
}

// match walks pattern segments against name segments. `**` may consume zero
// or more name segments.
func match(pat, name []string) bool {
	if len(pat) == 0 {
		return len(name) == 0
	}

	if pat[0] == "**" {
		for skip := 0; skip <= len(name); skip++ {
			if match(pat[1:], name[skip:]) {
				return true
			}
		}
		return false
	}

	if len(name) == 0 {
		return false
	}

	ok, err := path.Match(pat[0], name[0])
	if err != nil || !ok {
		return false
	}
	return match(pat[1:], name[1:])
}
