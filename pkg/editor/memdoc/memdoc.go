// Package memdoc provides an in-memory [editor.Surface] holding plain text and
// transient marks. It backs the demo command and the websocket bridge, and is
// the reference surface used throughout the engine tests.
//
// Marks are kept as spans and shifted when text before or inside them is
// replaced, roughly the way a rich-text editor maps mark positions through a
// transaction.
package memdoc

import (
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/proofline/pkg/editor"
)

// Document is a thread-safe in-memory editor surface.
type Document struct {
	mu       sync.Mutex
	text     []rune
	marks    []editor.Span
	closed   bool
	onChange []editor.ChangeFunc
}

// Compile-time interface assertions.
var (
	_ editor.Surface = (*Document)(nil)
	_ editor.Batcher = (*Document)(nil)
)

// New returns a Document holding initial.
func New(initial string) *Document {
	return &Document{text: []rune(initial)}
}

// OnChange registers fn to be called with the full text after every user
// edit made through [Document.Type], [Document.Backspace] or [Document.SetText].
// Engine-initiated replacements do not notify, mirroring editors that tag
// programmatic transactions.
func (d *Document) OnChange(fn editor.ChangeFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = append(d.onChange, fn)
}

// Type appends s at the end of the document as if the user typed it.
func (d *Document) Type(s string) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return editor.ErrClosed
	}
	d.text = append(d.text, []rune(s)...)
	text, fns := string(d.text), slices.Clone(d.onChange)
	d.mu.Unlock()

	notify(fns, text)
	return nil
}

// Backspace removes the last n characters as if the user deleted them.
func (d *Document) Backspace(n int) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return editor.ErrClosed
	}
	if n > len(d.text) {
		n = len(d.text)
	}
	from := len(d.text) - n
	d.replaceLocked(from, len(d.text), nil)
	text, fns := string(d.text), slices.Clone(d.onChange)
	d.mu.Unlock()

	notify(fns, text)
	return nil
}

// SetText replaces the whole document as a user edit and drops all marks.
func (d *Document) SetText(s string) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return editor.ErrClosed
	}
	d.text = []rune(s)
	d.marks = nil
	text, fns := string(d.text), slices.Clone(d.onChange)
	d.mu.Unlock()

	notify(fns, text)
	return nil
}

// PlainText implements [editor.Surface].
func (d *Document) PlainText() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return string(d.text)
}

// Len returns the document length in characters.
func (d *Document) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.text)
}

// ReplaceRange implements [editor.Surface].
func (d *Document) ReplaceRange(from, to int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return (*txn)(d).ReplaceRange(from, to, text)
}

// AddMark implements [editor.Surface].
func (d *Document) AddMark(from, to int, tag editor.Tag) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return (*txn)(d).AddMark(from, to, tag)
}

// RemoveMark implements [editor.Surface].
func (d *Document) RemoveMark(from, to int, tag editor.Tag) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return (*txn)(d).RemoveMark(from, to, tag)
}

// IsAlive implements [editor.Surface].
func (d *Document) IsAlive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

// Batch implements [editor.Batcher]. The document lock is held for the whole
// of fn, so readers never see a replacement without its marks.
func (d *Document) Batch(fn func(tx editor.Surface) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return editor.ErrClosed
	}
	return fn((*txn)(d))
}

// Marks returns a copy of the active marks ordered by position.
func (d *Document) Marks() []editor.Span {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := slices.Clone(d.marks)
	slices.SortFunc(out, func(a, b editor.Span) int { return a.From - b.From })
	return out
}

// MarkedText returns the text covered by each active mark.
func (d *Document) MarkedText() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.marks))
	for _, m := range d.marks {
		out = append(out, string(d.text[m.From:m.To]))
	}
	return out
}

// Close destroys the surface. Subsequent operations fail with
// [editor.ErrClosed] and IsAlive reports false.
func (d *Document) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.onChange = nil
}

func notify(fns []editor.ChangeFunc, text string) {
	for _, fn := range fns {
		fn(text)
	}
}

// txn is the lock-free view of a Document used inside Batch and by the locked
// public methods. Callers must hold d.mu.
type txn Document

func (t *txn) PlainText() string { return string(t.text) }

func (t *txn) IsAlive() bool { return !t.closed }

func (t *txn) ReplaceRange(from, to int, text string) error {
	if t.closed {
		return editor.ErrClosed
	}
	if err := t.check(from, to); err != nil {
		return err
	}
	(*Document)(t).replaceLocked(from, to, []rune(text))
	return nil
}

func (t *txn) AddMark(from, to int, tag editor.Tag) error {
	if t.closed {
		return editor.ErrClosed
	}
	if err := t.check(from, to); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	t.marks = append(t.marks, editor.Span{From: from, To: to, Tag: tag})
	return nil
}

func (t *txn) RemoveMark(from, to int, tag editor.Tag) error {
	if t.closed {
		return editor.ErrClosed
	}
	if err := t.check(from, to); err != nil {
		return err
	}
	kept := t.marks[:0]
	for _, m := range t.marks {
		if m.Tag == tag && m.From >= from && m.To <= to {
			continue
		}
		kept = append(kept, m)
	}
	t.marks = kept
	return nil
}

func (t *txn) check(from, to int) error {
	if from < 0 || to < from || to > len(t.text) {
		return fmt.Errorf("%w: [%d, %d) in document of length %d", editor.ErrRange, from, to, len(t.text))
	}
	return nil
}

// replaceLocked splices repl into [from, to) and maps marks through the edit.
// Marks entirely inside the replaced range are dropped.
func (d *Document) replaceLocked(from, to int, repl []rune) {
	delta := len(repl) - (to - from)

	next := make([]rune, 0, len(d.text)+delta)
	next = append(next, d.text[:from]...)
	next = append(next, repl...)
	next = append(next, d.text[to:]...)
	d.text = next

	kept := d.marks[:0]
	for _, m := range d.marks {
		switch {
		case m.To <= from:
			// Before the edit.
		case m.From >= to:
			m.From += delta
			m.To += delta
		case m.From >= from && m.To <= to:
			continue
		default:
			// Overlapping: clamp to the unaffected part.
			if m.From < from {
				m.To = from
			} else {
				m.From = from + len(repl)
				m.To += delta
			}
		}
		if m.To > m.From {
			kept = append(kept, m)
		}
	}
	d.marks = kept
}
