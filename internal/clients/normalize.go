package clients

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Legal-entity markers stripped before comparing Korean business names.
var entityMarkers = []string{
	"주식회사",
	"유한회사",
	"(주)",
	"（주）",
	"(유)",
	"（유）",
	"㈜",
}

// Normalize strips legal-entity markers, collapses whitespace, and
// lowercases, so "(주)나산", "주식회사 나산" and "나산" all compare equal.
func Normalize(name string) string {
	s := strings.TrimSpace(name)
	for _, marker := range entityMarkers {
		s = strings.ReplaceAll(s, marker, " ")
	}
	s = strings.TrimSpace(s)
	// A leading bare "주" directly followed by two or more Hangul characters
	// is an abbreviated 주식회사 prefix.
	runes := []rune(s)
	if len(runes) >= 3 && runes[0] == '주' && isHangul(runes[1]) && isHangul(runes[2]) {
		s = string(runes[1:])
	}
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}

func isHangul(r rune) bool {
	return r >= 0xAC00 && r <= 0xD7A3
}

// Similarity scores two names in [0, 1] after normalization:
// 1 - editDistance/max(len). Exact normalized equality is 1.0; containment
// in either direction forces a floor of 0.9.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0
	}
	la, lb := len([]rune(na)), len([]rune(nb))
	max := la
	if lb > max {
		max = lb
	}
	score := 1.0 - float64(levenshtein.ComputeDistance(na, nb))/float64(max)
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		if score < 0.9 {
			score = 0.9
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}
