// Package picker implements the file-index child process and the
// fuzzy path scorer behind the editor's picker_open/picker_query
// commands.
package picker

import (
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

// Score rates how well pattern matches text, 0 meaning no match. An
// empty pattern always passes at 1000. Matching is tiered: an exact
// match on the basename (the part after the last slash) scores 10000,
// a case-sensitive basename prefix 5000 plus the basename length, and
// a case-insensitive one 2000 plus that length. Anything else falls to
// a subsequence match over the whole path, whose score grows with the
// pattern length and is not capped below the prefix tiers.
//
// Basename comparisons are grapheme-cluster aware via uniseg so a
// multi-byte character (an accented letter, an emoji) counts as one
// unit of basename length and one step of the subsequence walk, not
// however many bytes or runes it happens to be encoded as.
func Score(text, pattern string) int {
	if pattern == "" {
		return 1000
	}

	base := basename(text)
	baseLen := uniseg.GraphemeClusterCount(base)

	if base == pattern {
		return 10000
	}
	if strings.HasPrefix(base, pattern) {
		return 5000 + min(baseLen, 999)
	}

	lowerBase := strings.ToLower(base)
	lowerPattern := strings.ToLower(pattern)
	if strings.HasPrefix(lowerBase, lowerPattern) {
		return 2000 + min(baseLen, 999)
	}

	return subsequenceScore(text, pattern)
}

func basename(text string) string {
	if idx := strings.LastIndex(text, "/"); idx >= 0 {
		return text[idx+1:]
	}
	return text
}

// subsequenceScore implements tier 4: a case-insensitive subsequence
// walk over text's grapheme clusters, scoring bonuses for
// consecutive matches, separator-adjacency, CamelCase boundaries, and
// the first basename character, with a small penalty for how late in
// text the match falls.
func subsequenceScore(text, pattern string) int {
	textClusters := graphemes(text)
	patternClusters := graphemes(pattern)
	basenameStart := len(textClusters) - uniseg.GraphemeClusterCount(basename(text))

	score := 100
	pi := 0
	lastMatch := -1
	for ti := 0; ti < len(textClusters) && pi < len(patternClusters); ti++ {
		if !strings.EqualFold(textClusters[ti], patternClusters[pi]) {
			continue
		}

		if lastMatch == ti-1 {
			score += 100
		}
		if ti > 0 {
			switch textClusters[ti-1] {
			case "/", "_", "-", ".":
				score += 80
			}
			if isCamelBoundary(textClusters[ti-1], textClusters[ti]) {
				score += 60
			}
		}
		if ti == basenameStart {
			score += 150
		}
		score -= min(ti, 50)

		lastMatch = ti
		pi++
	}

	if pi < len(patternClusters) {
		return 0
	}
	return max(score, 1)
}

func isCamelBoundary(prev, cur string) bool {
	pr := []rune(prev)
	cr := []rune(cur)
	if len(pr) == 0 || len(cr) == 0 {
		return false
	}
	return unicode.IsLower(pr[len(pr)-1]) && unicode.IsUpper(cr[0])
}

func graphemes(s string) []string {
	out := make([]string, 0, len(s))
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		out = append(out, g.Str())
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
