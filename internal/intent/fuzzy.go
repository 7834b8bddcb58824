package intent

import "strings"

// DefaultThreshold is the similarity floor shared by every category.
const DefaultThreshold = 85

// Matches reports whether text contains phrase with a partial-ratio score of
// at least threshold. Both inputs are lowercased.
func Matches(phrase, text string, threshold int) bool {
	return matchLower(strings.ToLower(phrase), strings.ToLower(text), threshold)
}

func matchLower(phrase, text string, threshold int) bool {
	return PartialRatio(phrase, text) >= float64(threshold)
}

// PartialRatio scores 0..100 how well the shorter string aligns with the
// best-matching substring of the longer one. Every window of the longer
// string with the shorter string's length is scored, as are the truncated
// windows hanging over either edge; the best score wins. Comparison is on
// runes and is case sensitive.
func PartialRatio(a, b string) float64 {
	s1, s2 := []rune(a), []rune(b)
	if len(s1) > len(s2) {
		s1, s2 = s2, s1
	}

	if len(s1) == 0 {
		if len(s2) == 0 {
			return 100
		}
		return 0
	}

	best := alignedRatio(s1, s2)
	if len(s1) == len(s2) {
		if r := alignedRatio(s2, s1); r > best {
			best = r
		}
	}
	return best
}

func alignedRatio(needle, hay []rune) float64 {
	n, m := len(needle), len(hay)
	var best float64

	// Windows cut off by the left edge.
	for i := 1; i < n; i++ {
		if r := ratio(needle, hay[:i]); r > best {
			best = r
		}
	}

	for i := 0; i+n <= m; i++ {
		r := ratio(needle, hay[i:i+n])
		if r == 100 {
			return r
		}
		if r > best {
			best = r
		}
	}

	// Windows cut off by the right edge.
	for i := m - n + 1; i < m; i++ {
		if r := ratio(needle, hay[i:]); r > best {
			best = r
		}
	}

	return best
}

// ratio is the normalized Indel similarity: 100 * (1 - dist/(len(a)+len(b)))
// where dist counts insertions and deletions only.
func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	return 200 * float64(lcs(a, b)) / float64(total)
}

func lcs(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
