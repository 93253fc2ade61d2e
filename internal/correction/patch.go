package correction

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/proofline/internal/sentence"
	"github.com/MrWong99/proofline/pkg/editor"
)

// Patch is the outcome of applying one correction to the document.
type Patch struct {
	// From and To delimit the range that was replaced in the document before
	// the edit.
	From int
	To   int

	// Text is what was inserted at From.
	Text string

	// Marks are the highlights applied to changed words, in document
	// coordinates after the edit.
	Marks []editor.Span

	// Changes describes each highlighted word.
	Changes []WordChange
}

// Patcher splices corrections into an editor surface and highlights the
// words that changed.
type Patcher struct {
	palette Palette
}

// NewPatcher returns a Patcher tagging highlights with p.
func NewPatcher(p Palette) *Patcher {
	return &Patcher{palette: p}
}

// SetPalette changes the tags used for future highlights. Not safe for
// concurrent use with Apply; the engine calls both from its loop.
func (p *Patcher) SetPalette(pal Palette) { p.palette = pal }

// Apply replaces the sentence original, found at m in fullText, with
// corrected and marks the changed words.
//
// fullText must be the text m was computed from. Immediately before the
// edit the surface is re-read; if its length or the matched range differ,
// Apply returns [ErrStaleDocument] and leaves the document untouched. A
// partial match whose correction cannot be aligned word for word yields
// [ErrPositionNotFound].
//
// When s implements [editor.Batcher], the replacement and its marks are
// applied in a single batch.
func (p *Patcher) Apply(s editor.Surface, fullText, original, corrected string, m Match) (Patch, error) {
	plan, err := p.plan(fullText, original, corrected, m)
	if err != nil {
		return Patch{}, err
	}

	if b, ok := s.(editor.Batcher); ok {
		err = b.Batch(func(tx editor.Surface) error { return plan.apply(tx) })
	} else {
		err = plan.apply(s)
	}
	if err != nil {
		return Patch{}, err
	}
	return plan.Patch, nil
}

// patchPlan is a fully computed edit waiting to be applied.
type patchPlan struct {
	Patch

	docLen  int
	covered string // document text in [From, To) at planning time
}

func (p *Patcher) plan(fullText, original, corrected string, m Match) (*patchPlan, error) {
	runes := []rune(fullText)
	if m.From < 0 || m.To > len(runes) || m.Len() <= 0 {
		return nil, fmt.Errorf("correction: patch: %w: match [%d, %d) outside document of length %d",
			ErrStaleDocument, m.From, m.To, len(runes))
	}
	matched := string(runes[m.From:m.To])

	ow, cw := strings.Fields(original), strings.Fields(corrected)
	var repl string
	switch {
	case m.Partial:
		if len(ow) != len(cw) || m.Words > len(cw) {
			return nil, fmt.Errorf("correction: patch: %w: partial anchor of %d words cannot align %d with %d words",
				ErrPositionNotFound, m.Words, len(ow), len(cw))
		}
		repl = substituteWords(matched, cw[:m.Words])
	case matched == original:
		repl = corrected
	case len(ow) == len(cw):
		// Whitespace drifted; keep the document's spacing.
		repl = substituteWords(matched, cw)
	default:
		repl = corrected
	}

	from, to := m.From, m.To

	// Keep exactly one terminator: the one already in the document.
	if t, ok := sentence.LastTerminator(matched); ok {
		rt, rok := sentence.LastTerminator(repl)
		if !rok || rt == t {
			to--
			repl = strings.TrimSuffix(repl, string(t))
		}
	}

	// Avoid "end.Next" glue when the sentence directly follows another one.
	if from > 0 {
		prev := runes[from-1]
		first, _ := utf8.DecodeRuneInString(repl)
		if prev != '\n' && sentence.IsTerminator(prev) && unicode.IsUpper(first) {
			repl = " " + repl
		}
	}

	// Diff what is actually inserted against what it replaces, so a word
	// whose only difference was the dropped terminator is not marked.
	covered := string(runes[from:to])
	changes := DiffWords(covered, repl)
	ranges := wordRanges(repl)
	marks := make([]editor.Span, 0, len(changes))
	kept := changes[:0]
	for _, c := range changes {
		if c.Index >= len(ranges) {
			continue
		}
		r := ranges[c.Index]
		marks = append(marks, editor.Span{
			From: from + r.from,
			To:   from + r.to,
			Tag:  p.palette.Tag(c.Kind),
		})
		kept = append(kept, c)
	}

	return &patchPlan{
		Patch: Patch{
			From:    from,
			To:      to,
			Text:    repl,
			Marks:   marks,
			Changes: kept,
		},
		docLen:  len(runes),
		covered: covered,
	}, nil
}

// apply re-validates the plan against s and performs the edit.
func (pl *patchPlan) apply(s editor.Surface) error {
	if !s.IsAlive() {
		return editor.ErrClosed
	}
	current := []rune(s.PlainText())
	if len(current) != pl.docLen {
		return fmt.Errorf("correction: patch: %w: length %d, expected %d", ErrStaleDocument, len(current), pl.docLen)
	}
	if string(current[pl.From:pl.To]) != pl.covered {
		return fmt.Errorf("correction: patch: %w: range [%d, %d) changed", ErrStaleDocument, pl.From, pl.To)
	}

	if pl.Text != pl.covered {
		if err := s.ReplaceRange(pl.From, pl.To, pl.Text); err != nil {
			return fmt.Errorf("correction: patch: replace: %w", err)
		}
	}
	for _, mk := range pl.Marks {
		if err := s.AddMark(mk.From, mk.To, mk.Tag); err != nil {
			return fmt.Errorf("correction: patch: mark: %w", err)
		}
	}
	return nil
}
