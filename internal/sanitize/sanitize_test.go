package sanitize

import (
	"strings"
	"testing"
)

func TestTextStripsScriptBlocks(t *testing.T) {
	in := `Backs up files <script>alert("xss")</script> nightly`
	got := Text(in)
	if strings.Contains(got, "alert") || strings.Contains(got, "<script") {
		t.Errorf("script block survived: %q", got)
	}
	if !strings.Contains(got, "Backs up files") {
		t.Errorf("legitimate text lost: %q", got)
	}
}

func TestTextStripsTagsAndHandlers(t *testing.T) {
	cases := []struct {
		in   string
		deny string
	}{
		{`<img src=x onerror=alert(1)>`, "onerror"},
		{`<b>bold</b> summary`, "<b>"},
		{`click javascript:void(0) here`, "javascript:"},
	}
	for _, tc := range cases {
		got := Text(tc.in)
		if strings.Contains(got, tc.deny) {
			t.Errorf("Text(%q) = %q, still contains %q", tc.in, got, tc.deny)
		}
	}
}

func TestTextPreservesNewlines(t *testing.T) {
	got := Text("line one\nline two")
	if !strings.Contains(got, "\n") {
		t.Errorf("newline dropped: %q", got)
	}
}

func TestTextDropsControlCharacters(t *testing.T) {
	got := Text("safe\x00\x07text")
	if strings.ContainsAny(got, "\x00\x07") {
		t.Errorf("control characters survived: %q", got)
	}
}

func TestLineFoldsAndTruncates(t *testing.T) {
	got := Line("  A   very\nlong\ttitle  ", 10)
	if got != "A very lon" {
		t.Errorf("Line = %q", got)
	}
}

func TestList(t *testing.T) {
	in := []string{"  backup ", "<script>x</script>", "", "monitoring", "extra"}
	got := List(in, 50, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %v", got)
	}
	if got[0] != "backup" {
		t.Errorf("expected trimmed first entry, got %q", got[0])
	}
}

func TestIsPrintable(t *testing.T) {
	if !IsPrintable("normal text\nwith lines") {
		t.Error("expected printable")
	}
	if IsPrintable("bad\x00byte") {
		t.Error("expected non-printable")
	}
}
