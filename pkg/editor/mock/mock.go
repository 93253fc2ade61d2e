// Package mock provides a recording test double for [editor.Surface].
//
// Surface keeps a plain string as its document and records every primitive
// call in order. Text and liveness can be changed from the test at any time,
// which makes it easy to simulate a user who keeps typing while a correction
// is in flight.
//
// Example:
//
//	s := mock.NewSurface("He go to school.")
//	eng := correction.New(s, oracle)
//	...
//	if len(s.ReplaceCalls()) != 1 { ... }
package mock

import (
	"fmt"
	"sync"

	"github.com/MrWong99/proofline/pkg/editor"
)

// ReplaceCall records a single [Surface.ReplaceRange] invocation.
type ReplaceCall struct {
	From int
	To   int
	Text string
}

// MarkCall records a single [Surface.AddMark] or [Surface.RemoveMark] invocation.
type MarkCall struct {
	From int
	To   int
	Tag  editor.Tag
}

// Surface is a mock implementation of [editor.Surface]. It does not implement
// [editor.Batcher], so the engine falls back to sequential primitives.
type Surface struct {
	mu sync.Mutex

	text  []rune
	alive bool

	// ReplaceErr, if non-nil, is returned by ReplaceRange without modifying text.
	ReplaceErr error

	// AddMarkErr, if non-nil, is returned by AddMark.
	AddMarkErr error

	// BeforeReplace, if set, is called (without the lock held) at the start of
	// every ReplaceRange. Tests use it to mutate the document at the last moment.
	BeforeReplace func(s *Surface)

	replaceCalls []ReplaceCall
	addCalls     []MarkCall
	removeCalls  []MarkCall
	plainCalls   int
}

var _ editor.Surface = (*Surface)(nil)

// NewSurface returns a live Surface holding text.
func NewSurface(text string) *Surface {
	return &Surface{text: []rune(text), alive: true}
}

// SetText replaces the document without recording a call.
func (s *Surface) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = []rune(text)
}

// Kill makes IsAlive report false from now on.
func (s *Surface) Kill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alive = false
}

// PlainText returns the current text and counts the call.
func (s *Surface) PlainText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plainCalls++
	return string(s.text)
}

// ReplaceRange records the call and splices text into the document.
func (s *Surface) ReplaceRange(from, to int, text string) error {
	if hook := s.hook(); hook != nil {
		hook(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceCalls = append(s.replaceCalls, ReplaceCall{From: from, To: to, Text: text})
	if s.ReplaceErr != nil {
		return s.ReplaceErr
	}
	if from < 0 || to < from || to > len(s.text) {
		return fmt.Errorf("%w: [%d, %d) in document of length %d", editor.ErrRange, from, to, len(s.text))
	}
	next := make([]rune, 0, len(s.text)+len(text))
	next = append(next, s.text[:from]...)
	next = append(next, []rune(text)...)
	next = append(next, s.text[to:]...)
	s.text = next
	return nil
}

// AddMark records the call.
func (s *Surface) AddMark(from, to int, tag editor.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCalls = append(s.addCalls, MarkCall{From: from, To: to, Tag: tag})
	return s.AddMarkErr
}

// RemoveMark records the call.
func (s *Surface) RemoveMark(from, to int, tag editor.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeCalls = append(s.removeCalls, MarkCall{From: from, To: to, Tag: tag})
	return nil
}

// IsAlive reports whether Kill has not been called yet.
func (s *Surface) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// ReplaceCalls returns a copy of all recorded ReplaceRange calls.
func (s *Surface) ReplaceCalls() []ReplaceCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ReplaceCall(nil), s.replaceCalls...)
}

// AddMarkCalls returns a copy of all recorded AddMark calls.
func (s *Surface) AddMarkCalls() []MarkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MarkCall(nil), s.addCalls...)
}

// RemoveMarkCalls returns a copy of all recorded RemoveMark calls.
func (s *Surface) RemoveMarkCalls() []MarkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MarkCall(nil), s.removeCalls...)
}

// PlainTextCalls returns how many times PlainText was called.
func (s *Surface) PlainTextCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plainCalls
}

func (s *Surface) hook() func(*Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.BeforeReplace
}
