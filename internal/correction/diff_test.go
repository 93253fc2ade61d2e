package correction

import (
	"slices"
	"testing"
)

func TestDiffWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		original  string
		corrected string
		want      []int
	}{
		{name: "articles and agreement", original: "I has a apple.", corrected: "I have an apple.", want: []int{1, 2}},
		{name: "single verb", original: "He go to school.", corrected: "He goes to school.", want: []int{1}},
		{name: "unchanged", original: "All good here.", corrected: "All good here.", want: nil},
		{name: "longer correction compares common prefix", original: "He go.", corrected: "He goes home.", want: []int{1}},
		{name: "whitespace is not a change", original: "a  b c", corrected: "a b\nc", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got []int
			for _, c := range DiffWords(tt.original, tt.corrected) {
				got = append(got, c.Index)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("changed indices = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		old, new string
		want     ChangeKind
	}{
		{"recieve", "receive", KindSpelling},
		{"Paris,", "paris,", KindSpelling},
		{"go", "goes", KindGrammar},
		{"has", "have", KindGrammar},
		{"a", "an", KindGrammar},
		{"walked", "running", KindGrammar},
	}
	for _, tt := range tests {
		if got := Classify(tt.old, tt.new); got != tt.want {
			t.Errorf("Classify(%q, %q) = %q, want %q", tt.old, tt.new, got, tt.want)
		}
	}
}

func TestPalette_Tag(t *testing.T) {
	t.Parallel()

	p := Palette{Grammar: "green", Spelling: "orange"}
	if got := p.Tag(KindSpelling); got != "orange" {
		t.Errorf("spelling tag = %q, want orange", got)
	}
	if got := p.Tag(KindGrammar); got != "green" {
		t.Errorf("grammar tag = %q, want green", got)
	}
	if got := (Palette{}).Tag(KindSpelling); got != DefaultPalette.Grammar {
		t.Errorf("empty palette tag = %q, want %q", got, DefaultPalette.Grammar)
	}
}

func TestWordRanges(t *testing.T) {
	t.Parallel()

	got := wordRanges(" He goes  to")
	want := []wordRange{{1, 3}, {4, 8}, {10, 12}}
	if !slices.Equal(got, want) {
		t.Errorf("wordRanges = %v, want %v", got, want)
	}
}

func TestSubstituteWords(t *testing.T) {
	t.Parallel()

	got := substituteWords("He go  to\nschool.", []string{"He", "goes", "to", "school."})
	if want := "He goes  to\nschool."; got != want {
		t.Errorf("substituteWords = %q, want %q", got, want)
	}

	got = substituteWords("The quick brown fax", []string{"The", "quick"})
	if want := "The quick brown fax"; got != want {
		t.Errorf("substituteWords (prefix) = %q, want %q", got, want)
	}
}
