package router

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

func newReqID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}

// parseCommand splits "/cmd@bot rest of text" into the lowercased command word
// and the untouched remainder. The remainder keeps its inner whitespace and
// newlines because broadcast text is taken from it verbatim.
func parseCommand(text string) (word string, argText string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", false
	}
	end := strings.IndexFunc(text, unicode.IsSpace)
	head := text
	if end >= 0 {
		head = text[:end]
		argText = strings.TrimSpace(text[end:])
	}
	word = strings.TrimPrefix(head, "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	if word == "" {
		return "", "", false
	}
	return word, argText, true
}
