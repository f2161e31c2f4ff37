package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// N-gram fallback limits.
const (
	maxGrams     = 8
	minQueryLen  = 2
	longestGram  = 4
	shortestGram = 2
)

// ngrams returns up to maxGrams distinct lowercase n-grams, longest first.
// Grams are cut from runs of letters and never cross a space, digit or punctuation.
// Combining marks (Thai tone marks and vowel signs) stay attached to their letter,
// so every gram is a real substring of the query, but a gram never starts with one.
func ngrams(query string) []string {
	if utf8.RuneCountInString(strings.TrimSpace(query)) < minQueryLen {
		return nil
	}

	runs := letterRuns(strings.ToLower(query))
	seen := make(map[string]struct{}, maxGrams)
	out := make([]string, 0, maxGrams)

	for size := longestGram; size >= shortestGram; size-- {
		for _, run := range runs {
			for i := 0; i+size <= len(run); i++ {
				if isMark(run[i]) {
					continue
				}
				g := string(run[i : i+size])
				if _, dup := seen[g]; dup {
					continue
				}
				seen[g] = struct{}{}
				out = append(out, g)
				if len(out) == maxGrams {
					return out
				}
			}
		}
	}
	return out
}

func letterRuns(s string) [][]rune {
	var runs [][]rune
	var cur []rune
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			cur = append(cur, r)
		case isMark(r) && len(cur) > 0:
			cur = append(cur, r)
		default:
			if len(cur) > 0 {
				runs = append(runs, cur)
				cur = nil
			}
		}
	}
	if len(cur) > 0 {
		runs = append(runs, cur)
	}
	return runs
}

func isMark(r rune) bool { return unicode.In(r, unicode.Mn, unicode.Mc) }
