package sentence

import "testing"

func TestSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		wantOK    bool
		wantText  string
		wantStart int
	}{
		{name: "single sentence", text: "He go to school.", wantOK: true, wantText: "He go to school.", wantStart: 0},
		{name: "last of several", text: "I went home. He go to school.", wantOK: true, wantText: "He go to school.", wantStart: 13},
		{name: "not yet terminated", text: "I went home. He go to sch", wantOK: false},
		{name: "question", text: "Where are you going?", wantOK: true, wantText: "Where are you going?"},
		{name: "terminator run stays with sentence", text: "Is that so?!", wantOK: true, wantText: "Is that so?!"},
		{name: "newline terminates", text: "First line here\n", wantOK: true, wantText: "First line here"},
		{name: "empty tail falls back", text: "I went home. \n", wantOK: true, wantText: "I went home.", wantStart: 0},
		{name: "empty tail after several", text: "Abc def. Ghi jkl. \n \n", wantOK: true, wantText: "Ghi jkl.", wantStart: 9},
		{name: "leading whitespace offset", text: "One two.   Three four.", wantOK: true, wantText: "Three four.", wantStart: 11},
		{name: "multibyte offset", text: "Grüße aus Köln. Er geht.", wantOK: true, wantText: "Er geht.", wantStart: 16},
		{name: "too short", text: "Hi.", wantOK: false},
		{name: "short after trim", text: "Done. Ok.", wantOK: false},
		{name: "greeting", text: "Dear Sam,\n", wantOK: false},
		{name: "greeting lowercase", text: "hello there everyone.", wantOK: false},
		{name: "closing", text: "Best regards.", wantOK: false},
		{name: "thanks", text: "Thanks for the update.", wantOK: false},
		{name: "boilerplate needs whole word", text: "His car is red.", wantOK: true, wantText: "His car is red."},
		{name: "thankful is not thanks", text: "Thankful for the help.", wantOK: true, wantText: "Thankful for the help."},
		{name: "bestow is not best", text: "Bestow the award on her.", wantOK: true, wantText: "Bestow the award on her."},
		{name: "boilerplate before comma", text: "Regards, the team.", wantOK: false},
		{name: "only terminators", text: "...", wantOK: false},
		{name: "empty", text: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Segment(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("Segment(%q) ok = %v, want %v (got %+v)", tt.text, ok, tt.wantOK, got)
			}
			if !ok {
				return
			}
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if got.Start != tt.wantStart {
				t.Errorf("Start = %d, want %d", got.Start, tt.wantStart)
			}
		})
	}
}

func TestSegment_Deterministic(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"He go to school", "a", "Dear Sam", "I has a apple"} {
		a, okA := Segment(s + ".")
		b, okB := Segment(s + ".")
		if a != b || okA != okB {
			t.Errorf("Segment(%q) not deterministic: %+v/%v vs %+v/%v", s+".", a, okA, b, okB)
		}
	}
}

func TestSentence_End(t *testing.T) {
	t.Parallel()

	text := "Grüße aus Köln. Er geht."
	s, ok := Segment(text)
	if !ok {
		t.Fatal("Segment returned false")
	}
	if got, want := s.End(), len([]rune(text)); got != want {
		t.Errorf("End = %d, want %d", got, want)
	}
}

func TestLastTerminator(t *testing.T) {
	t.Parallel()

	if r, ok := LastTerminator("Yes!"); !ok || r != '!' {
		t.Errorf("LastTerminator(Yes!) = %q, %v", r, ok)
	}
	if _, ok := LastTerminator("Yes"); ok {
		t.Error("LastTerminator(Yes) reported a terminator")
	}
	if _, ok := LastTerminator(""); ok {
		t.Error("LastTerminator(\"\") reported a terminator")
	}
}
