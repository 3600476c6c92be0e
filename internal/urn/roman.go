package urn

import (
	"regexp"
	"strings"
)

// Strict grammar shared by the profiler and the miner. Rejects malformed
// sequences like "iiii" before any conversion is attempted.
var romanPattern = regexp.MustCompile(`^m{0,4}(cm|cd|d?c{0,3})(xc|xl|l?x{0,3})(ix|iv|v?i{0,3})$`)

var romanValues = map[byte]int{
	'i': 1, 'v': 5, 'x': 10, 'l': 50, 'c': 100, 'd': 500, 'm': 1000,
}

// IsValidRoman reports whether s is a well-formed roman numeral.
func IsValidRoman(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s != "" && romanPattern.MatchString(s)
}

// RomanToInt converts a validated roman numeral via right-to-left subtractive
// accumulation. Callers must check IsValidRoman first; unknown characters
// contribute zero.
func RomanToInt(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	total, prev := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		val := romanValues[s[i]]
		if val < prev {
			total -= val
		} else {
			total += val
		}
		prev = val
	}
	return total
}
