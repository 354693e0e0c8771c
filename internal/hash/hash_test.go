package hash

import "testing"

func TestContentDeterministic(t *testing.T) {
	a := Content([]byte("Get-Process | Sort-Object CPU"))
	b := Content([]byte("Get-Process | Sort-Object CPU"))
	if a != b {
		t.Errorf("identical bytes produced different digests: %s vs %s", a, b)
	}
}

func TestContentDistinct(t *testing.T) {
	a := Content([]byte("Get-Process"))
	b := Content([]byte("Get-Service"))
	if a == b {
		t.Error("distinct bytes produced the same digest")
	}
}

func TestContentKnownVector(t *testing.T) {
	// sha256("") per FIPS 180-4
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Content(nil); got != want {
		t.Errorf("empty digest mismatch: got %s", got)
	}
	if got := ContentString(""); got != want {
		t.Errorf("ContentString empty digest mismatch: got %s", got)
	}
}
