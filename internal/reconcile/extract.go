package reconcile

import (
	"regexp"
	"strings"
)

// Candidate catalog ids are 4-7 digit numbers with an optional short
// variant suffix ("7894", "10030-2"). The listing text also contains
// prices, years and postal codes in the same shape, so the rules below
// reject matches whose surroundings mark them as something else.
var idPattern = regexp.MustCompile(`(\d{4,7})(?:-(\d{1,2}))?`)

var yearPattern = regexp.MustCompile(`^(19|20)\d{2}$`)

// ExtractIDs scans combined listing text and returns candidate catalog ids
// in order of first appearance, deduplicated. The set semantics live only
// inside this call; callers get an ordered list.
func ExtractIDs(text string) []string {
	var (
		out  []string
		seen = map[string]bool{}
	)

	for _, m := range idPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if !boundaryBefore(text, start) || !boundaryAfter(text, end) {
			continue
		}

		full := text[start:end]
		base := text[m[2]:m[3]]

		if looksLikePrice(text, start, end) {
			continue
		}
		if m[4] < 0 && yearPattern.MatchString(base) {
			continue
		}
		if m[4] < 0 && looksLikePostalCode(text, base, end) {
			continue
		}

		if !seen[full] {
			seen[full] = true
			out = append(out, full)
		}
	}
	return out
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	c := text[i-1]
	return !isDigit(c) && c != '-' && !isLetter(c)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	c := text[i]
	return !isDigit(c) && c != '-' && !isLetter(c)
}

// looksLikePrice rejects numbers glued to a currency marker: "€1234",
// "$ 1234", "1234,-", "1234 eur".
func looksLikePrice(text string, start, end int) bool {
	prefix := strings.TrimRight(text[maxInt(0, start-4):start], " ")
	if strings.HasSuffix(prefix, "€") || strings.HasSuffix(prefix, "$") {
		return true
	}
	rest := text[end:minInt(len(text), end+6)]
	trimmed := strings.TrimLeft(rest, " ")
	if strings.HasPrefix(trimmed, ",-") {
		return true
	}
	lower := strings.ToLower(trimmed)
	return strings.HasPrefix(lower, "eur") || strings.HasPrefix(lower, "euro")
}

// looksLikePostalCode rejects the 4-digit + double-letter shape ("1234 AB").
func looksLikePostalCode(text, base string, end int) bool {
	if len(base) != 4 {
		return false
	}
	rest := strings.TrimLeft(text[end:minInt(len(text), end+4)], " ")
	if len(rest) < 2 {
		return false
	}
	return isUpper(rest[0]) && isUpper(rest[1])
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isUpper(c byte) bool  { return c >= 'A' && c <= 'Z' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
