// Package worddiff computes word-level differences between two sentences,
// used to preview how an edit or an AI rewrite changes the original wording.
package worddiff

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vportnov/scriptrate"
)

// Compile-time interface verification.
var _ scriptrate.WordDiffer = (*Differ)(nil)

// similarityThreshold is the minimum token overlap ratio for word-level
// diffing. Below it, the sentences are treated as complete replacements.
const similarityThreshold = 0.4

// Differ tokenizes prose and computes word-level diffs.
type Differ struct{}

// NewDiffer creates a new Differ instance.
func NewDiffer() *Differ {
	return &Differ{}
}

// Tokenize splits prose into tokens: words (letters and digits, with
// embedded apostrophes and hyphens), punctuation runs, and whitespace runs.
// Whitespace is kept so that segments concatenate back to the input.
func (d *Differ) Tokenize(s string) []string {
	if s == "" {
		return nil
	}
	tokens := make([]string, 0, len(s)/4+1)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		start := i
		switch {
		case unicode.IsSpace(r):
			for i < len(s) {
				r, size = utf8.DecodeRuneInString(s[i:])
				if !unicode.IsSpace(r) {
					break
				}
				i += size
			}
		case isWordRune(r):
			for i < len(s) {
				r, size = utf8.DecodeRuneInString(s[i:])
				if isWordRune(r) {
					i += size
					continue
				}
				// Apostrophes and hyphens bind when flanked by word runes.
				if (r == '\'' || r == '-') && i+size < len(s) {
					next, _ := utf8.DecodeRuneInString(s[i+size:])
					if isWordRune(next) {
						i += size
						continue
					}
				}
				break
			}
		default:
			i += size
		}
		if i == start {
			i += size
		}
		tokens = append(tokens, s[start:i])
	}
	return tokens
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Diff returns segments for both the old and new strings,
// marking which portions changed between them.
func (d *Differ) Diff(old, new string) (oldSegs, newSegs []scriptrate.Segment) {
	if old == "" && new == "" {
		return nil, nil
	}
	if old == "" {
		return nil, []scriptrate.Segment{{Text: new, Changed: true}}
	}
	if new == "" {
		return []scriptrate.Segment{{Text: old, Changed: true}}, nil
	}
	if old == new {
		seg := scriptrate.Segment{Text: old, Changed: false}
		return []scriptrate.Segment{seg}, []scriptrate.Segment{seg}
	}

	oldTokens := d.Tokenize(old)
	newTokens := d.Tokenize(new)

	if !similarEnough(oldTokens, newTokens) {
		return []scriptrate.Segment{{Text: old, Changed: true}},
			[]scriptrate.Segment{{Text: new, Changed: true}}
	}

	oldChanged, newChanged := markChanged(oldTokens, newTokens)
	return mergeSegments(oldTokens, oldChanged), mergeSegments(newTokens, newChanged)
}

// similarEnough estimates token overlap: two sentences that share too few
// tokens read better as whole replacements than as a word soup of changes.
func similarEnough(oldTokens, newTokens []string) bool {
	counts := make(map[string]int, len(oldTokens))
	for _, t := range oldTokens {
		counts[t]++
	}
	common := 0
	for _, t := range newTokens {
		if counts[t] > 0 {
			counts[t]--
			common++
		}
	}
	return float64(2*common)/float64(len(oldTokens)+len(newTokens)) >= similarityThreshold
}

// markChanged flags every token outside the longest common subsequence.
func markChanged(oldTokens, newTokens []string) (oldChanged, newChanged []bool) {
	m, n := len(oldTokens), len(newTokens)
	table := make([][]int, m+1)
	for i := range table {
		table[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			switch {
			case oldTokens[i-1] == newTokens[j-1]:
				table[i][j] = table[i-1][j-1] + 1
			case table[i-1][j] >= table[i][j-1]:
				table[i][j] = table[i-1][j]
			default:
				table[i][j] = table[i][j-1]
			}
		}
	}

	oldChanged = make([]bool, m)
	newChanged = make([]bool, n)
	for i := range oldChanged {
		oldChanged[i] = true
	}
	for j := range newChanged {
		newChanged[j] = true
	}
	for i, j := m, n; i > 0 && j > 0; {
		switch {
		case oldTokens[i-1] == newTokens[j-1]:
			oldChanged[i-1] = false
			newChanged[j-1] = false
			i--
			j--
		case table[i-1][j] >= table[i][j-1]:
			i--
		default:
			j--
		}
	}
	return oldChanged, newChanged
}

// mergeSegments coalesces adjacent tokens with the same changed flag.
func mergeSegments(tokens []string, changed []bool) []scriptrate.Segment {
	var segs []scriptrate.Segment
	var b strings.Builder
	for i, tok := range tokens {
		if i > 0 && changed[i] != changed[i-1] {
			segs = append(segs, scriptrate.Segment{Text: b.String(), Changed: changed[i-1]})
			b.Reset()
		}
		b.WriteString(tok)
	}
	if b.Len() > 0 {
		segs = append(segs, scriptrate.Segment{Text: b.String(), Changed: changed[len(changed)-1]})
	}
	return segs
}
