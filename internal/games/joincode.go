package games

import (
	"strings"
	"unicode/utf8"
)

const joinCodeLength = 6

// ValidJoinCode reports whether code is exactly six letters A-Z,
// ignoring case.
func ValidJoinCode(code string) bool {
	if utf8.RuneCountInString(code) != joinCodeLength {
		return false
	}
	for _, r := range strings.ToUpper(code) {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// NormalizeJoinCode validates code and returns its stored (upper-case) form.
func NormalizeJoinCode(code string) (string, error) {
	if !ValidJoinCode(code) {
		return "", ErrInvalidJoinCode
	}
	return strings.ToUpper(code), nil
}
