package indexer

import (
	"strings"
	"unicode"
)

// Preprocess trims text and collapses whitespace runs into single spaces.
func Preprocess(text string) string {
	return strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
}
