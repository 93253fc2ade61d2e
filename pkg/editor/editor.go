// Package editor defines the contract between Proofline's correction engine
// and the rich-text editor surface that owns the document.
//
// The engine never keeps its own copy of the document. Everything it knows
// about the text comes from [Surface.PlainText], and every change it makes goes
// through [Surface.ReplaceRange] and the mark primitives. Offsets are character
// (rune) offsets into the plain text, and ranges are half-open: [from, to).
//
// Implementations must be safe for concurrent use: the engine calls the
// surface from its own goroutine while the user keeps typing.
package editor

import "errors"

// ErrClosed is returned by surface operations after the editor was destroyed.
var ErrClosed = errors.New("editor: surface closed")

// ErrRange is returned when an operation addresses a range outside the
// current document.
var ErrRange = errors.New("editor: range out of bounds")

// Tag identifies a transient mark style. The surface decides how a tag is
// rendered; Proofline only uses tags for correction highlights.
type Tag string

// Span is a marked character range [From, To) carrying a [Tag].
type Span struct {
	From int
	To   int
	Tag  Tag
}

// Len returns the number of characters covered by s.
func (s Span) Len() int { return s.To - s.From }

// Surface is the editor primitive set consumed by the correction engine.
type Surface interface {
	// PlainText returns the current document content as plain text.
	PlainText() string

	// ReplaceRange replaces the characters in [from, to) with text.
	// Returns [ErrRange] when the range does not fit the current document.
	ReplaceRange(from, to int, text string) error

	// AddMark applies tag to [from, to).
	AddMark(from, to int, tag Tag) error

	// RemoveMark removes tag from [from, to). Removing a mark that is not
	// present is not an error.
	RemoveMark(from, to int, tag Tag) error

	// IsAlive reports whether the editor still exists. Once it returns false
	// it never returns true again.
	IsAlive() bool
}

// Batcher is implemented by surfaces that can apply several primitive
// operations as one step, invisible to concurrent readers until fn returns.
// The engine uses it to apply a replacement and its highlights together.
type Batcher interface {
	// Batch runs fn with exclusive access to the document. tx must only be used
	// inside fn. If fn returns an error, operations already applied through tx
	// are kept; Batch does not roll back.
	Batch(fn func(tx Surface) error) error
}

// ChangeFunc receives the full plain text after each edit.
type ChangeFunc func(fullText string)
