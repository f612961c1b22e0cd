package types

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
var classCodeRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const (
	MaxClassCodeLength = 32
	MaxNameLength      = 64
)

// IsValidClassCode checks the opaque class code is printable and bounded.
// The generator owns the alphabet; the relay only rejects obviously malformed codes.
func IsValidClassCode(code string) bool {
	if len(code) < 1 || len(code) > MaxClassCodeLength {
		return false
	}
	return classCodeRegex.MatchString(code)
}

// NormalizeName trims a display name and validates its length.
// An empty result is allowed; callers substitute their own default.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}
