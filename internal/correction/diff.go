package correction

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/proofline/pkg/editor"
)

// ChangeKind classifies a changed word.
type ChangeKind string

const (
	// KindGrammar is a word replaced by a different word (agreement, article,
	// tense).
	KindGrammar ChangeKind = "grammar"

	// KindSpelling is a word replaced by a close variant of itself.
	KindSpelling ChangeKind = "spelling"
)

// spellingThreshold is the Jaro-Winkler similarity above which two words
// count as spellings of each other.
const spellingThreshold = 0.9

// Palette maps change kinds to editor mark tags.
type Palette struct {
	Grammar  editor.Tag
	Spelling editor.Tag
}

// DefaultPalette highlights every change in green.
var DefaultPalette = Palette{Grammar: "green", Spelling: "green"}

// Tag returns the mark tag for k.
func (p Palette) Tag(k ChangeKind) editor.Tag {
	if k == KindSpelling && p.Spelling != "" {
		return p.Spelling
	}
	if p.Grammar != "" {
		return p.Grammar
	}
	return DefaultPalette.Grammar
}

// WordChange is one word that differs between the original and the
// corrected sentence.
type WordChange struct {
	Index int
	Old   string
	New   string
	Kind  ChangeKind
}

// DiffWords compares the whitespace-separated words of original and
// corrected index by index, up to the shorter of the two, and returns the
// positions where they differ.
func DiffWords(original, corrected string) []WordChange {
	ow, cw := strings.Fields(original), strings.Fields(corrected)
	n := min(len(ow), len(cw))
	var out []WordChange
	for i := range n {
		if ow[i] == cw[i] {
			continue
		}
		out = append(out, WordChange{Index: i, Old: ow[i], New: cw[i], Kind: Classify(ow[i], cw[i])})
	}
	return out
}

// Classify decides whether replacing old with new fixes a misspelling or
// changes the word.
func Classify(old, new string) ChangeKind {
	a, b := bare(old), bare(new)
	if a == "" || b == "" {
		return KindGrammar
	}
	if strings.EqualFold(a, b) {
		// Only case or punctuation changed.
		return KindSpelling
	}
	if utf8.RuneCountInString(a) < 4 || utf8.RuneCountInString(b) < 4 {
		return KindGrammar
	}
	if matchr.JaroWinkler(a, b, false) >= spellingThreshold {
		return KindSpelling
	}
	ap, _ := matchr.DoubleMetaphone(a)
	bp, _ := matchr.DoubleMetaphone(b)
	if ap != "" && ap == bp {
		return KindSpelling
	}
	return KindGrammar
}

// bare lowercases w and strips surrounding punctuation.
func bare(w string) string {
	return strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
}

// wordRange is the character range of one word.
type wordRange struct{ from, to int }

// wordRanges returns the character ranges of the whitespace-separated words
// of s, in order.
func wordRanges(s string) []wordRange {
	var (
		out   []wordRange
		start = -1
		pos   int
	)
	for _, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, wordRange{start, pos})
				start = -1
			}
		} else if start < 0 {
			start = pos
		}
		pos++
	}
	if start >= 0 {
		out = append(out, wordRange{start, pos})
	}
	return out
}

// substituteWords replaces the first len(words) words of s with words,
// keeping the whitespace between them exactly as it is in s.
func substituteWords(s string, words []string) string {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	inWord := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if inWord {
				i++
				inWord = false
			}
			b.WriteRune(r)
			continue
		}
		if !inWord {
			inWord = true
			if i < len(words) {
				b.WriteString(words[i])
			}
		}
		if i >= len(words) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
