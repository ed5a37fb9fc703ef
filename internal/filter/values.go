package filter

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// FoldName returns the matching key for an attribute name.
func FoldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// FoldValue returns the matching key for a value: lower case, trimmed, with
// runs of whitespace collapsed to one space.
func FoldValue(value string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(value), unicode.IsSpace), " ")
}

// FoldFragment folds a substring fragment like FoldValue but keeps a single
// leading or trailing space, so "john " does not match "johnny".
func FoldFragment(fragment string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(fragment) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	if space {
		b.WriteByte(' ')
	}
	return b.String()
}

// NumericValue parses value as a finite number.
func NumericValue(value string) (float64, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// escapeLike escapes LIKE metacharacters using backslash.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
