// Package sanitize strips markup and injection-prone constructs from free-text
// fields before they are persisted or echoed back to clients.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleBlockRe  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	htmlTagRe     = regexp.MustCompile(`(?s)<[^>]*>`)
	eventAttrRe   = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
	jsURLRe       = regexp.MustCompile(`(?i)javascript:`)
	whitespaceRe  = regexp.MustCompile(`[ \t]{2,}`)
)

// Text removes script/style blocks, HTML tags, inline event handlers and
// javascript: URLs from s, drops non-printable runes and collapses runs of
// horizontal whitespace. Newlines are preserved.
func Text(s string) string {
	out := scriptBlockRe.ReplaceAllString(s, "")
	out = styleBlockRe.ReplaceAllString(out, "")
	out = htmlTagRe.ReplaceAllString(out, "")
	out = eventAttrRe.ReplaceAllString(out, "")
	out = jsURLRe.ReplaceAllString(out, "")
	out = stripNonPrintable(out)
	out = whitespaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// Line sanitizes s like Text and additionally folds it onto a single line,
// truncated to maxLen runes. Used for titles and tag names.
func Line(s string, maxLen int) string {
	out := Text(s)
	out = strings.Join(strings.Fields(out), " ")
	return Truncate(out, maxLen)
}

// Truncate cuts s to at most maxLen runes.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}

// List sanitizes every element with Line, dropping entries that become empty,
// and caps the result at maxItems.
func List(items []string, maxLen, maxItems int) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		cleaned := Line(item, maxLen)
		if cleaned == "" {
			continue
		}
		out = append(out, cleaned)
		if maxItems > 0 && len(out) >= maxItems {
			break
		}
	}
	return out
}

// IsPrintable reports whether s consists entirely of printable runes and
// ordinary whitespace.
func IsPrintable(s string) bool {
	for _, r := range s {
		if r == '\n' || r == '\t' || r == '\r' || r == ' ' {
			continue
		}
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func stripNonPrintable(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == ' ' {
			return r
		}
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, s)
}
