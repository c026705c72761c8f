// Package slug derives the canonical restaurant key shared by orders, owner
// assignments and catalog entries.
package slug

import (
	"regexp"
	"strings"
)

// Default is the slug of an empty identifier.
const Default = "default"

var (
	parenthetical = regexp.MustCompile(`\(.*?\)`)
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]+`)
)

// Canonicalize lowercases s, drops parenthetical qualifiers, collapses runs
// of non-alphanumerics into a single hyphen and trims hyphens at both ends.
//
//	Canonicalize("Maddur Tiffins (Near Mysore)") == "maddur-tiffins"
func Canonicalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Default
	}
	s = strings.ToLower(s)
	s = parenthetical.ReplaceAllString(s, "")
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Equal reports whether a and b name the same restaurant.
func Equal(a, b string) bool {
	return Canonicalize(a) == Canonicalize(b)
}
