package ui

import (
	"slices"
	"strings"
)

// maxDistance bounds how different a suggestion may be from the input
const maxDistance = 3

// Suggest returns up to limit candidates within a small edit distance of
// target, closest first. Matching ignores case.
func Suggest(target string, candidates []string, limit int) []string {
	type scored struct {
		value    string
		distance int
	}

	t := strings.ToLower(target)
	var matches []scored
	for _, c := range candidates {
		if d := Distance(t, strings.ToLower(c)); d <= maxDistance {
			matches = append(matches, scored{c, d})
		}
	}
	slices.SortStableFunc(matches, func(a, b scored) int { return a.distance - b.distance })

	out := make([]string, 0, min(limit, len(matches)))
	for _, m := range matches[:min(limit, len(matches))] {
		out = append(out, m.value)
	}
	return out
}

// Distance is the Levenshtein distance between a and b, counted in runes
func Distance(a, b string) int {
	s, t := []rune(a), []rune(b)
	if len(s) == 0 {
		return len(t)
	}

	prev := make([]int, len(t)+1)
	curr := make([]int, len(t)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(s); i++ {
		curr[0] = i
		for j := 1; j <= len(t); j++ {
			cost := 1
			if s[i-1] == t[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(t)]
}
