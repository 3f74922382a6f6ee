package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// bodyHashPrefix bounds how much body text feeds the content hash. Wire
// services re-append boilerplate past the lede, so the opening of the body is
// the stable part.
const bodyHashPrefix = 2048

// NormalizeText case-folds s and collapses every run of whitespace to a
// single space, trimming the ends. Used for dedup hashing and alias matching
// so typographic differences between syndicated copies do not matter.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// ContentHash computes the dedup digest for an article: SHA-256 of the
// normalized title joined to the first 2KB of the normalized body. Articles
// republished under different URLs with the same text collapse to one hash.
func ContentHash(title, body string) string {
	t := NormalizeText(title)
	b := NormalizeText(body)
	if len(b) > bodyHashPrefix {
		b = b[:bodyHashPrefix]
	}
	sum := sha256.Sum256([]byte(t + "\n" + b))
	return hex.EncodeToString(sum[:])
}

// Truncate returns s cut to at most n bytes on a rune boundary.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := n
	for i > 0 && s[i]&0xC0 == 0x80 {
		i--
	}
	return s[:i]
}
