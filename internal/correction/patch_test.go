package correction

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/proofline/pkg/editor/memdoc"
	"github.com/MrWong99/proofline/pkg/editor/mock"
)

func TestPatcher_Apply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		doc        string
		original   string
		corrected  string
		wantText   string
		wantMarked []string
	}{
		{
			name:       "single word",
			doc:        "He go to school.",
			original:   "He go to school.",
			corrected:  "He goes to school.",
			wantText:   "He goes to school.",
			wantMarked: []string{"goes"},
		},
		{
			name:       "only changed words are marked",
			doc:        "I has a apple.",
			original:   "I has a apple.",
			corrected:  "I have an apple.",
			wantText:   "I have an apple.",
			wantMarked: []string{"have", "an"},
		},
		{
			name:       "correction without terminator keeps the document's",
			doc:        "He go to school.",
			original:   "He go to school.",
			corrected:  "He goes to school",
			wantText:   "He goes to school.",
			wantMarked: []string{"goes"},
		},
		{
			name:       "dropped terminator alone marks nothing",
			doc:        "He goes to school.",
			original:   "He goes to school.",
			corrected:  "He goes to school",
			wantText:   "He goes to school.",
			wantMarked: nil,
		},
		{
			name:       "different terminator replaces it",
			doc:        "Is he going.",
			original:   "Is he going.",
			corrected:  "Is he going?",
			wantText:   "Is he going?",
			wantMarked: []string{"going?"},
		},
		{
			name:       "space inserted after glued terminator",
			doc:        "I went home.He go to school.",
			original:   "He go to school.",
			corrected:  "He goes to school.",
			wantText:   "I went home. He goes to school.",
			wantMarked: []string{"goes"},
		},
		{
			name:       "no space after a line break",
			doc:        "Hello,\nHe go to school.",
			original:   "He go to school.",
			corrected:  "He goes to school.",
			wantText:   "Hello,\nHe goes to school.",
			wantMarked: []string{"goes"},
		},
		{
			name:       "text after the sentence is untouched",
			doc:        "He go to school. And then we",
			original:   "He go to school.",
			corrected:  "He goes to school.",
			wantText:   "He goes to school. And then we",
			wantMarked: []string{"goes"},
		},
		{
			name:       "whitespace drift keeps document spacing",
			doc:        "He go  to\nschool.",
			original:   "He go to school.",
			corrected:  "He goes to school.",
			wantText:   "He goes  to\nschool.",
			wantMarked: []string{"goes"},
		},
		{
			name:       "partial anchor patches the prefix",
			doc:        "The quick brown fax leaps.",
			original:   "The quick brown fax jumps.",
			corrected:  "The quick brown fox jumps.",
			wantText:   "The quick brown fox leaps.",
			wantMarked: []string{"fox"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc := memdoc.New(tt.doc)
			full := doc.PlainText()
			m, ok := Locate(full, tt.original)
			if !ok {
				t.Fatalf("Locate(%q) failed", tt.original)
			}

			p := NewPatcher(DefaultPalette)
			if _, err := p.Apply(doc, full, tt.original, tt.corrected, m); err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if got := doc.PlainText(); got != tt.wantText {
				t.Errorf("text = %q, want %q", got, tt.wantText)
			}
			if got := doc.MarkedText(); !slices.Equal(got, tt.wantMarked) {
				t.Errorf("marked = %q, want %q", got, tt.wantMarked)
			}
		})
	}
}

func TestPatcher_NoTextChangeSkipsReplace(t *testing.T) {
	t.Parallel()

	s := mock.NewSurface("He goes to school.")
	full := s.PlainText()
	m, _ := Locate(full, "He goes to school.")

	patch, err := NewPatcher(DefaultPalette).Apply(s, full, "He goes to school.", "He goes to school", m)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if n := len(s.ReplaceCalls()); n != 0 {
		t.Errorf("ReplaceRange called %d times for an unchanged range", n)
	}
	if n := len(s.AddMarkCalls()); n != 0 {
		t.Errorf("AddMark called %d times, want 0", n)
	}
	if len(patch.Changes) != 0 {
		t.Errorf("Changes = %+v, want none", patch.Changes)
	}
}

func TestPatcher_StaleDocument(t *testing.T) {
	t.Parallel()

	s := mock.NewSurface("He go to school.")
	full := s.PlainText()
	m, _ := Locate(full, "He go to school.")

	// The user typed between locate and patch.
	s.SetText("He go to school. X")

	_, err := NewPatcher(DefaultPalette).Apply(s, full, "He go to school.", "He goes to school.", m)
	if !errors.Is(err, ErrStaleDocument) {
		t.Fatalf("Apply error = %v, want ErrStaleDocument", err)
	}
	if n := len(s.ReplaceCalls()); n != 0 {
		t.Errorf("ReplaceRange called %d times on a stale document", n)
	}
	if got := s.PlainText(); got != "He go to school. X" {
		t.Errorf("text = %q, document was modified", got)
	}
}

func TestPatcher_StaleRangeSameLength(t *testing.T) {
	t.Parallel()

	s := mock.NewSurface("He go to school.")
	full := s.PlainText()
	m, _ := Locate(full, "He go to school.")
	s.SetText("We go to school.")

	_, err := NewPatcher(DefaultPalette).Apply(s, full, "He go to school.", "He goes to school.", m)
	if !errors.Is(err, ErrStaleDocument) {
		t.Fatalf("Apply error = %v, want ErrStaleDocument", err)
	}
}

func TestPatcher_PartialMisaligned(t *testing.T) {
	t.Parallel()

	s := mock.NewSurface("The quick brown fax leaps.")
	full := s.PlainText()
	m, ok := Locate(full, "The quick brown fax jumps.")
	if !ok || !m.Partial {
		t.Fatalf("expected partial match, got %+v %v", m, ok)
	}

	_, err := NewPatcher(DefaultPalette).Apply(s, full, "The quick brown fax jumps.", "The quick brown fox is jumping.", m)
	if !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("Apply error = %v, want ErrPositionNotFound", err)
	}
	if n := len(s.ReplaceCalls()); n != 0 {
		t.Errorf("ReplaceRange called %d times for a misaligned partial match", n)
	}
}

func TestPatcher_SequentialPrimitivesWithoutBatcher(t *testing.T) {
	t.Parallel()

	s := mock.NewSurface("I has a apple.")
	full := s.PlainText()
	m, _ := Locate(full, "I has a apple.")

	p := NewPatcher(Palette{Grammar: "green", Spelling: "orange"})
	patch, err := p.Apply(s, full, "I has a apple.", "I have an apple.", m)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	replaces := s.ReplaceCalls()
	if len(replaces) != 1 {
		t.Fatalf("got %d replace calls, want 1", len(replaces))
	}
	if got, want := replaces[0], (mock.ReplaceCall{From: 0, To: 13, Text: "I have an apple"}); got != want {
		t.Errorf("replace = %+v, want %+v", got, want)
	}
	marks := s.AddMarkCalls()
	want := []mock.MarkCall{{From: 2, To: 6, Tag: "green"}, {From: 7, To: 9, Tag: "green"}}
	if !slices.Equal(marks, want) {
		t.Errorf("marks = %+v, want %+v", marks, want)
	}
	if len(patch.Changes) != 2 {
		t.Errorf("patch changes = %d, want 2", len(patch.Changes))
	}
}
