package kernel

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slug turns free text (an email, an organization name) into an identifier
// made of A-Z, 0-9 and single underscores. Accents are folded first, so
// "Café Noir" becomes "CAFE_NOIR". maxLen <= 0 means unlimited.
func Slug(s string, maxLen int) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		s,
	)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToUpper(folded) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	out := b.String()
	if maxLen > 0 && len(out) > maxLen {
		out = strings.TrimRight(out[:maxLen], "_")
	}
	return out
}

// UniqueID returns base, or base followed by the smallest numeric suffix for
// which taken reports false. An empty base becomes "ID".
func UniqueID(base string, taken func(string) bool) string {
	if base == "" {
		base = "ID"
	}
	if !taken(base) {
		return base
	}
	for i := 1; ; i++ {
		candidate := base + strconv.Itoa(i)
		if !taken(candidate) {
			return candidate
		}
	}
}
