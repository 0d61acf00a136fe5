package tools

import (
	"strconv"
	"unicode/utf8"
)

// suffixReserve is runes reserved for the truncation marker.
const suffixReserve = 40

// TruncateToolOutput caps s at roughly maxRunes runes, keeping the start and
// appending a marker with the original rune count. maxRunes <= 0 disables it.
func TruncateToolOutput(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	r := []rune(s)
	keep := maxRunes - suffixReserve
	if keep <= 0 {
		keep = 1
	}
	return string(r[:keep]) + "...[truncated, total " + strconv.Itoa(len(r)) + " runes]"
}
