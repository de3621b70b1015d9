package commands

import "testing"

func TestShorten(t *testing.T) {
	cases := []struct {
		text  string
		width int
		want  string
	}{
		{text: "", width: 50, want: ""},
		{text: "  short   comment ", width: 50, want: "short comment"},
		{text: "hello world foo", width: 12, want: "hello [...]"},
		{text: "supercalifragilistic", width: 10, want: "[...]"},
		{text: "exactly ten", width: 11, want: "exactly ten"},
	}
	for _, tc := range cases {
		if got := Shorten(tc.text, tc.width); got != tc.want {
			t.Fatalf("Shorten(%q, %d) = %q, want %q", tc.text, tc.width, got, tc.want)
		}
	}
}

func TestDisplayComment(t *testing.T) {
	if got := displayComment("   "); got != "No comment given" {
		t.Fatalf("expected placeholder, got %q", got)
	}
	long := "this comment keeps going well past the fifty character display limit"
	got := displayComment(long)
	if len([]rune(got)) > CommentDisplayWidth {
		t.Fatalf("expected at most %d runes, got %d (%q)", CommentDisplayWidth, len([]rune(got)), got)
	}
	if got != "this comment keeps going well past the fifty [...]" {
		t.Fatalf("unexpected shortened comment: %q", got)
	}
}
