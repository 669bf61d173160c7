package resolver

import "strings"

// Base scores per match class. Within a class shorter names rank higher.
const (
	scoreExact       = 1000
	scorePrefix      = 800
	scoreSubstring   = 600
	scoreSubsequence = 400

	bonusCurrentFile = 150
	bonusSameDir     = 50

	maxLengthPenalty = 100
)

// Score rates how well name matches query, ignoring case. It reports false
// when query is not a subsequence of name. An empty query matches every
// name with score zero.
func Score(query, name string) (int, bool) {
	if query == "" {
		return 0, true
	}
	q := strings.ToLower(query)
	n := strings.ToLower(name)

	var base int
	switch {
	case n == q:
		return scoreExact, true
	case strings.HasPrefix(n, q):
		base = scorePrefix
	case strings.Contains(n, q):
		base = scoreSubstring - min(strings.Index(n, q), maxLengthPenalty)
	default:
		gaps, ok := subsequenceGaps(q, n)
		if !ok {
			return 0, false
		}
		base = scoreSubsequence - min(gaps, maxLengthPenalty)
	}
	return base - min(len(n)-len(q), maxLengthPenalty), true
}

// subsequenceGaps reports whether every byte of q appears in n in order,
// and how many bytes of n were skipped between the first and last match.
func subsequenceGaps(q, n string) (int, bool) {
	gaps, qi, started := 0, 0, false
	for i := 0; i < len(n) && qi < len(q); i++ {
		if n[i] == q[qi] {
			qi++
			started = true
			continue
		}
		if started {
			gaps++
		}
	}
	return gaps, qi == len(q)
}
