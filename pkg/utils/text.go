package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	htmlTags        = regexp.MustCompile(`<[^>]*>`)
	multiWhitespace = regexp.MustCompile(`\s+`)
)

// CleanText strips markup and collapses whitespace to single spaces.
func CleanText(text string) string {
	text = htmlTags.ReplaceAllString(text, "")
	text = multiWhitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Truncate cuts s to at most max runes, appending "..." when it had to cut.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}

// ConversationTitle derives a conversation title from its first message.
func ConversationTitle(firstMessage string) string {
	title := Truncate(CleanText(firstMessage), 60)
	if title == "" {
		return "Nouvelle conversation"
	}
	return title
}

// EscapeLike escapes the wildcard characters of a LIKE/ILIKE pattern.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
