package script

import "strings"

// Tag limits. Oversized names are truncated rather than rejected; tags are
// advisory metadata and should never fail a write.
const (
	maxTagLength = 50
	maxTagCount  = 20
)

// normalizeTags folds raw tag input into the stored form: printable-only,
// trimmed, truncated, lowercased, de-duplicated, capped. Entries that
// normalize to nothing are dropped.
func normalizeTags(raw []string) []string {
	var tags []string
	seen := make(map[string]bool)

	for _, entry := range raw {
		tag := strings.TrimSpace(stripUnprintable(entry))
		if tag == "" {
			continue
		}
		if runes := []rune(tag); len(runes) > maxTagLength {
			tag = strings.TrimSpace(string(runes[:maxTagLength]))
		}
		tag = strings.ToLower(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
		if len(tags) == maxTagCount {
			break
		}
	}

	return tags
}

// stripUnprintable removes control and other non-printable runes
func stripUnprintable(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
