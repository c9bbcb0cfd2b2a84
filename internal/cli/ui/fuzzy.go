package ui

import (
	"sort"
	"strings"
)

const (
	defaultMaxDistance    = 3
	defaultMaxSuggestions = 3
)

// FindSimilar returns up to maxSuggestions candidates within maxDistance
// edits of target, closest first. Comparison ignores case and, for dotted
// names, also tries the simple name. Zero limits select the defaults.
func FindSimilar(target string, candidates []string, maxDistance, maxSuggestions int) []string {
	if maxDistance <= 0 {
		maxDistance = defaultMaxDistance
	}
	if maxSuggestions <= 0 {
		maxSuggestions = defaultMaxSuggestions
	}

	type match struct {
		value    string
		distance int
	}
	var matches []match
	target = strings.ToLower(target)
	for _, candidate := range candidates {
		c := strings.ToLower(candidate)
		d := Distance(target, c)
		if simple := simpleName(c); simple != c {
			d = min(d, Distance(simpleName(target), simple))
		}
		if d <= maxDistance {
			matches = append(matches, match{candidate, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	result := make([]string, 0, maxSuggestions)
	for i := 0; i < len(matches) && i < maxSuggestions; i++ {
		result = append(result, matches[i].value)
	}
	return result
}

// Distance is the Levenshtein edit distance between a and b
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func simpleName(name string) string {
	if i := strings.LastIndexAny(name, ".#"); i >= 0 {
		return name[i+1:]
	}
	return name
}
