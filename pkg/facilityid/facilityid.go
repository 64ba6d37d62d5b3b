// Package facilityid generates and validates the stable public facility
// identifiers: two-letter country code, four-digit year, seven random
// characters and a two-character checksum, all in Crockford base32
// (e.g. "BD2026K7P3QWMAZ").
package facilityid

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// alphabet is Crockford base32: I, L, O and U are excluded to avoid
// transcription mistakes
const alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const randomLen = 7
const checksumLen = 2
const idLen = 2 + 4 + randomLen + checksumLen

// Generator mints facility identifiers
type Generator struct{}

// NewGenerator creates a new Generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate mints a new identifier for the given country and time
func (g *Generator) Generate(countryCode string, now time.Time) (string, error) {
	cc := strings.ToUpper(strings.TrimSpace(countryCode))
	if len(cc) != 2 || !isAlpha(cc) {
		return "", fmt.Errorf("invalid country code %q", countryCode)
	}

	buf := make([]byte, randomLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	var random strings.Builder
	for _, b := range buf {
		random.WriteByte(alphabet[int(b)%len(alphabet)])
	}

	body := fmt.Sprintf("%s%04d%s", cc, now.UTC().Year(), random.String())
	return body + checksum(body), nil
}

// Validate reports whether an identifier is well formed with a correct
// checksum
func Validate(id string) bool {
	if len(id) != idLen {
		return false
	}
	id = strings.ToUpper(id)

	cc := id[:2]
	if !isAlpha(cc) {
		return false
	}
	for _, r := range id[2:6] {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	for _, r := range id[6:] {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}

	body := id[:idLen-checksumLen]
	return checksum(body) == id[idLen-checksumLen:]
}

// checksum computes two check characters as a position-weighted sum over the
// body, deterministic for a given body
func checksum(body string) string {
	var sum int
	for i, r := range body {
		sum += (i + 1) * charValue(r)
	}
	mod := len(alphabet) * len(alphabet)
	sum = sum % mod
	return string(alphabet[sum/len(alphabet)]) + string(alphabet[sum%len(alphabet)])
}

// charValue maps a character to a numeric value; letters outside the base32
// alphabet (country codes may use them) fall back to their alphabet offset
func charValue(r rune) int {
	if idx := strings.IndexRune(alphabet, r); idx >= 0 {
		return idx
	}
	if r >= 'A' && r <= 'Z' {
		return int(r-'A') + 10
	}
	return 0
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
