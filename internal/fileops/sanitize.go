// Package fileops implements filename sanitization, path assembly, conflict
// resolution, and routed atomic materialization (§4.4). Grounded on
// the prior engine's internal/sync/executor_transfer.go write-to-temp-then-rename
// protocol, generalized to the four-way kind dispatch and the unpredictable
// temp-name requirement.
package fileops

import "unicode/utf8"

const maxNameBytes = 255

// Sanitize replaces path separators and NUL bytes with underscores and
// truncates to at most 255 UTF-8 bytes without splitting a multi-byte
// codepoint (§4.4.1, §9 "multi-byte truncation"). Idempotent:
// Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(name string) string {
	replaced := make([]rune, 0, len(name))

	for _, r := range name {
		switch r {
		case '/', '\\', 0:
			replaced = append(replaced, '_')
		default:
			replaced = append(replaced, r)
		}
	}

	return truncateToCodepointBoundary(string(replaced), maxNameBytes)
}

// truncateToCodepointBoundary trims s to at most maxBytes bytes, walking
// backward from any would-be split point to the nearest preceding rune
// boundary so the result is always valid UTF-8.
func truncateToCodepointBoundary(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}

	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}
