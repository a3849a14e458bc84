// Package keys builds the Redis key layout of the document store.
package keys

import (
	"fmt"
	"strings"
	"unicode"
)

// Doc is the key holding one document's JSON.
func Doc(collection, id string) string {
	return "doc:" + sanitize(collection) + ":" + strings.TrimSpace(id)
}

// DocSet is the set of every document id in a collection.
func DocSet(collection string) string {
	return "docs:" + sanitize(collection)
}

// Cell is the set of document ids indexed under an H3 cell.
func Cell(collection string, res int, cell string) string {
	return fmt.Sprintf("cell:%s:%d:%s", sanitize(collection), res, strings.ToLower(strings.TrimSpace(cell)))
}

// sanitize keeps collection names from introducing extra key segments.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case isASCIIWhitespace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isASCIIWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
