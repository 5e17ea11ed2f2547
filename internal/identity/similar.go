package identity

import (
	"sort"
	"strings"
)

// similarityCutoff is the ratio above which two identifiers are close
// enough to warn about when adding a mapping.
const similarityCutoff = 0.6

// maxSuggestions caps how many close names SuggestSimilar returns.
const maxSuggestions = 3

// SuggestSimilar returns known identifiers (raw and canonical) that look
// like the argument, best match first. Exact matches are excluded; the
// caller uses this to warn about probable typos before a new person is
// created.
func (r *Resolver) SuggestSimilar(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	r.mu.RLock()
	candidates := make([]string, 0, len(r.rawOrder)+len(r.personOrder))
	seen := make(map[string]bool)
	for _, raw := range r.rawOrder {
		if !seen[raw] {
			seen[raw] = true
			candidates = append(candidates, raw)
		}
	}
	for _, folded := range r.personOrder {
		n := r.persons[folded].Name
		if !seen[n] {
			seen[n] = true
			candidates = append(candidates, n)
		}
	}
	r.mu.RUnlock()

	folded := fold(name)
	type scored struct {
		name  string
		score float64
	}
	var matches []scored
	for _, candidate := range candidates {
		if fold(candidate) == folded {
			continue
		}
		if s := similarity(folded, fold(candidate)); s > similarityCutoff {
			matches = append(matches, scored{candidate, s})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if len(matches) > maxSuggestions {
		matches = matches[:maxSuggestions]
	}

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.name
	}
	return out
}

// similarity is the classic sequence-matcher ratio: twice the number of
// matching characters over the total length, with matches found by
// recursively taking the longest common substring.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchCount(ra, rb)) / float64(total)
}

func matchCount(a, b []rune) int {
	i, j, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	return matchCount(a[:i], b[:j]) + size + matchCount(a[i+size:], b[j+size:])
}

// longestMatch finds the longest common substring, preferring the
// earliest position in a, then in b, on ties.
func longestMatch(a, b []rune) (bestI, bestJ, bestSize int) {
	lengths := make(map[int]int)
	for i := range a {
		next := make(map[int]int)
		for j := range b {
			if a[i] == b[j] {
				k := lengths[j-1] + 1
				next[j] = k
				if k > bestSize {
					bestI, bestJ, bestSize = i-k+1, j-k+1, k
				}
			}
		}
		lengths = next
	}
	return bestI, bestJ, bestSize
}
