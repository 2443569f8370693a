package service

import (
	"strings"
	"testing"
)

func TestCountWholeWord(t *testing.T) {
	tests := []struct {
		text, word string
		want       int
	}{
		{"Ahri gets a buff. AHRI mains rejoice", "ahri", 2},
		{"Ahrimain is not a word match", "ahri", 0},
		{"(Ahri), ahri; ahri!", "ahri", 3},
		{"ahri ahri", "ahri", 2},
		{"c++ changes and c++", "c++", 2},
		{"Kai'Sa and Kai", "kai", 2},
		{"nothing here", "zed", 0},
		{"zed", "", 0},
	}
	for _, tt := range tests {
		if got := CountWholeWord(tt.text, tt.word); got != tt.want {
			t.Errorf("CountWholeWord(%q, %q) = %d, want %d", tt.text, tt.word, got, tt.want)
		}
	}
}

func TestExcerptsPicksMatchingParagraphs(t *testing.T) {
	body := "Patch notes are out.\n\nAhri: Q damage increased.\n\nZed: unchanged.\n\nAhri: E cooldown lowered."

	fields := Excerpts(body, []string{"ahri", "lux"}, 950)
	if len(fields) != 1 {
		t.Fatalf("fields = %d, want only the matching keyword", len(fields))
	}
	f := fields[0]
	if f.Name != "'ahri' was mentioned in this post!" {
		t.Fatalf("field name = %q", f.Name)
	}
	want := "Ahri: Q damage increased.\n\nAhri: E cooldown lowered."
	if f.Value != want {
		t.Fatalf("excerpt = %q, want %q", f.Value, want)
	}
}

func TestExcerptsTruncatesWithMentionCount(t *testing.T) {
	var paragraphs []string
	for i := 0; i < 40; i++ {
		paragraphs = append(paragraphs, "Ahri is mentioned again in this rather long paragraph of patch notes.")
	}
	body := strings.Join(paragraphs, "\n\n")

	fields := Excerpts(body, []string{"ahri"}, 100)
	if len(fields) != 1 {
		t.Fatalf("fields = %d", len(fields))
	}
	v := fields[0].Value
	if !strings.HasSuffix(v, "... `40` mentions in total") {
		t.Fatalf("missing mention suffix: %q", v)
	}
	if !strings.HasPrefix(v, body[:100]) {
		t.Fatalf("excerpt should start with the first 100 characters")
	}
}

func TestExcerptsIgnoresPartialWords(t *testing.T) {
	fields := Excerpts("Zeddicus posted.\n\nNothing else.", []string{"zed"}, 950)
	if len(fields) != 0 {
		t.Fatalf("partial word must not match: %+v", fields)
	}
}
