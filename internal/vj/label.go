package vj

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// NormalizeLabel returns the comparison key for tag labels and folder names.
// It applies NFC normalization and Unicode case folding, trims surrounding
// whitespace and collapses inner whitespace runs to a single space, so
// "  Dream ", "dream" and "DREAM" compare equal.
func NormalizeLabel(s string) string {
	s = norm.NFC.String(s)
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return folder.String(strings.Join(fields, " "))
}
