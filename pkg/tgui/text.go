package tgui

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageRunes keeps each chunk safely under Telegram's 4096 character limit.
const MaxMessageRunes = 4000

// TruncRunes returns s truncated to at most n runes.
// It appends an ellipsis "…" when truncated.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	cut := 0
	for i, r := range s {
		count++
		if count == n {
			cut = i + utf8.RuneLen(r)
			continue
		}
		if count > n {
			if cut <= 0 {
				cut = i
			}
			return s[:cut] + "…"
		}
	}
	return s
}

// SplitRunes splits s into chunks of at most n runes, preferring to cut after
// a newline in the last third of a window. Empty input yields no chunks.
func SplitRunes(s string, n int) []string {
	if s == "" {
		return nil
	}
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return []string{s}
	}
	var out []string
	start := 0
	for start < len(s) {
		runes := 0
		end := start
		lastNL, lastNLRunes := -1, 0
		for end < len(s) && runes < n {
			r, size := utf8.DecodeRuneInString(s[end:])
			if r == '\n' {
				lastNL = end + size
				lastNLRunes = runes + 1
			}
			runes++
			end += size
		}
		if end < len(s) && lastNL != -1 && lastNLRunes >= n/3 {
			end = lastNL
		}
		if chunk := strings.TrimRight(s[start:end], "\n"); chunk != "" {
			out = append(out, chunk)
		}
		start = end
	}
	return out
}
