package core

import "strings"

// sentinelTokens are cleaned labels that mark scheduled non-production
// (holidays, shutdown blocks, empty slots) rather than a product grade.
var sentinelTokens = map[string]struct{}{
	"":         {},
	"HOLIDAY":  {},
	"SHUT":     {},
	"SHUTDOWN": {},
	"NONE":     {},
	"NOGRADE":  {},
}

// Normalizer canonicalizes free-text grade labels through an alias table and
// filters sentinel tokens. It is immutable after construction; the same
// instance may be shared across concurrent passes.
type Normalizer struct {
	aliases map[string]Grade
}

// NewNormalizer builds a normalizer from a raw-label to canonical-grade
// table. Keys are cleaned the same way lookups are, so alias tables may be
// written with the labels exactly as they appear upstream.
func NewNormalizer(aliases map[string]Grade) *Normalizer {
	n := &Normalizer{aliases: make(map[string]Grade, len(aliases))}
	for raw, grade := range aliases {
		n.aliases[clean(raw)] = grade
	}
	return n
}

// Normalize canonicalizes a raw grade label. The second return value is
// false when the label is a sentinel or date-like token that does not name a
// grade; such labels are excluded from all aggregation. Unmapped labels pass
// through in cleaned form, so canonical codes normalize to themselves.
func (n *Normalizer) Normalize(raw string) (Grade, bool) {
	token := clean(raw)
	if _, ok := sentinelTokens[token]; ok {
		return "", false
	}
	if dateLike(token) {
		return "", false
	}
	if grade, ok := n.aliases[token]; ok {
		return grade, true
	}
	return Grade(token), true
}

// clean uppercases a label and strips spaces and hyphens.
func clean(raw string) string {
	token := strings.ToUpper(strings.TrimSpace(raw))
	token = strings.ReplaceAll(token, " ", "")
	token = strings.ReplaceAll(token, "-", "")
	return token
}

// dateLike reports whether a cleaned token looks like a calendar date
// (digits with optional dot or slash separators). Scheduling exports pad
// empty slots with dates, which must not register as grades.
func dateLike(token string) bool {
	digits := 0
	for _, r := range token {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' || r == '/':
		default:
			return false
		}
	}
	return digits > 0
}
