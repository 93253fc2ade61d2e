package correction

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// minWindow is the smallest trailing window, in characters, searched
	// with whitespace-tolerant matching.
	minWindow = 100

	// minAnchor is the shortest prefix, in characters, accepted as a partial
	// anchor.
	minAnchor = 10
)

// Match is the location of a sentence in the current document text.
type Match struct {
	// From and To delimit the matched text as character offsets, [From, To).
	From int
	To   int

	// Partial is set when only a leading part of the sentence was found.
	// Words is then the number of leading words the match covers.
	Partial bool
	Words   int
}

// Len returns the number of characters matched.
func (m Match) Len() int { return m.To - m.From }

// Locate finds where target sits in fullText now, tolerating edits that
// happened since target was extracted. Strategies, first success wins:
//
//  1. last exact occurrence anywhere in fullText;
//  2. last occurrence in the trailing max(100, 2×len(target)) characters,
//     treating any run of whitespace as equal to any other;
//  3. the longest leading run of whole words (at least half of them and at
//     least 10 characters) found anywhere, as a partial anchor.
//
// It returns false when none of them succeeds; the caller must then give up
// rather than guess.
func Locate(fullText, target string) (Match, bool) {
	if target == "" || fullText == "" {
		return Match{}, false
	}

	// 1. Exact.
	if i := strings.LastIndex(fullText, target); i >= 0 {
		from := utf8.RuneCountInString(fullText[:i])
		return Match{From: from, To: from + utf8.RuneCountInString(target)}, true
	}

	words := strings.Fields(target)
	if len(words) == 0 {
		return Match{}, false
	}

	// 2. Whitespace drift inside the trailing window.
	size := max(minWindow, 2*utf8.RuneCountInString(target))
	window, offset := tail(fullText, size)
	if from, to, ok := lastMatch(window, words); ok {
		return Match{From: offset + from, To: offset + to}, true
	}

	// 3. Progressively shorter word prefixes.
	for k := len(words) - 1; k >= max(1, len(words)/2); k-- {
		prefix := words[:k]
		if utf8.RuneCountInString(strings.Join(prefix, " ")) < minAnchor {
			break
		}
		if from, to, ok := lastMatch(fullText, prefix); ok {
			return Match{From: from, To: to, Partial: true, Words: k}, true
		}
	}

	return Match{}, false
}

// tail returns the last n characters of s and the character offset at which
// they start.
func tail(s string, n int) (string, int) {
	total := utf8.RuneCountInString(s)
	if total <= n {
		return s, 0
	}
	skip := total - n
	i := 0
	for range skip {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[i:], skip
}

// lastMatch finds the last occurrence in s of words separated by arbitrary
// whitespace and returns its character range.
func lastMatch(s string, words []string) (from, to int, ok bool) {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	re, err := regexp.Compile(strings.Join(quoted, `\s+`))
	if err != nil {
		return 0, 0, false
	}
	all := re.FindAllStringIndex(s, -1)
	if len(all) == 0 {
		return 0, 0, false
	}
	last := all[len(all)-1]
	from = utf8.RuneCountInString(s[:last[0]])
	to = from + utf8.RuneCountInString(s[last[0]:last[1]])
	return from, to, true
}
