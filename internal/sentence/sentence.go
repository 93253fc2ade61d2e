// Package sentence extracts the most recently completed sentence from a
// document's plain text.
//
// A sentence is complete when the document ends with a terminator ('.', '!',
// '?' or a line break). Runs of terminators ("?!", "...", ".\n") belong to the
// sentence they close. Everything here is pure and deterministic; callers may
// invoke [Segment] on every keystroke.
package sentence

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinLength is the minimum number of characters (after trimming) a sentence
// must have to be worth correcting.
const MinLength = 5

// boilerplate lists greeting and sign-off openers that are never sent for
// correction. Matched case-insensitively against the first word.
var boilerplate = map[string]struct{}{
	"dear":      {},
	"hello":     {},
	"hi":        {},
	"hey":       {},
	"sincerely": {},
	"best":      {},
	"regards":   {},
	"thank":     {},
	"thanks":    {},
}

// Sentence is a completed sentence found at the end of a text snapshot.
type Sentence struct {
	// Text is the sentence with surrounding whitespace removed, terminator
	// included. It is the value compared, cached and sent to the oracle.
	Text string

	// Raw is the untrimmed segment as it appears in the snapshot.
	Raw string

	// Start is the character offset of Text within the snapshot.
	Start int
}

// End returns the character offset just past Text within the snapshot.
func (s Sentence) End() int { return s.Start + utf8.RuneCountInString(s.Text) }

// IsTerminator reports whether r closes a sentence.
func IsTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}

// EndsWithTerminator reports whether the last character of s is a terminator.
func EndsWithTerminator(s string) bool {
	r, size := utf8.DecodeLastRuneInString(s)
	return size > 0 && IsTerminator(r)
}

// LastTerminator returns the final character of s if it is a terminator.
func LastTerminator(s string) (rune, bool) {
	r, size := utf8.DecodeLastRuneInString(s)
	if size == 0 || !IsTerminator(r) {
		return 0, false
	}
	return r, true
}

// Segment returns the last completed sentence of text, or false when the text
// does not currently end on a sentence worth correcting.
func Segment(text string) (Sentence, bool) {
	if !EndsWithTerminator(text) {
		return Sentence{}, false
	}

	segs := split(text)
	// A trailing segment made only of whitespace and terminators ("\n" after a
	// full stop, a lone "?") stands for the sentence before it.
	i := len(segs) - 1
	for i >= 0 && !hasContent(segs[i].raw) {
		i--
	}
	if i < 0 {
		return Sentence{}, false
	}

	seg := segs[i]
	lead := len(seg.raw) - len(strings.TrimLeftFunc(seg.raw, unicode.IsSpace))
	s := Sentence{
		Text:  strings.TrimSpace(seg.raw),
		Raw:   seg.raw,
		Start: seg.start + utf8.RuneCountInString(seg.raw[:lead]),
	}
	if !Eligible(s.Text) {
		return Sentence{}, false
	}
	return s, true
}

// Eligible reports whether a trimmed sentence passes the length and
// boilerplate filters.
func Eligible(text string) bool {
	if utf8.RuneCountInString(text) < MinLength {
		return false
	}
	_, skip := boilerplate[strings.ToLower(firstWord(text))]
	return !skip
}

type segment struct {
	raw   string
	start int // character offset of raw
}

// split cuts text after every run of terminators.
func split(text string) []segment {
	var (
		segs      []segment
		begin     int // byte offset of current segment
		beginRune int
		runeIdx   int
		inTerm    bool
	)
	for i, r := range text {
		if inTerm && !IsTerminator(r) {
			segs = append(segs, segment{raw: text[begin:i], start: beginRune})
			begin, beginRune = i, runeIdx
		}
		inTerm = IsTerminator(r)
		runeIdx++
	}
	if begin < len(text) {
		segs = append(segs, segment{raw: text[begin:], start: beginRune})
	}
	return segs
}

func hasContent(s string) bool {
	for _, r := range s {
		if !IsTerminator(r) && !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}

func firstWord(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	if end < 0 {
		return s
	}
	return s[:end]
}
