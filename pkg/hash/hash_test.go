package hash

import (
	"strings"
	"testing"
)

func TestHasher_SHA256(t *testing.T) {
	h, err := New("SHA256")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := h.Sum([]byte("abc")); got != want {
		t.Fatalf("Sum = %s, want %s", got, want)
	}

	fromReader, err := h.SumReader(strings.NewReader("abc"))
	if err != nil || fromReader != want {
		t.Fatalf("SumReader = %s, %v", fromReader, err)
	}

	if !h.Verify([]byte("abc"), strings.ToUpper(want)) {
		t.Fatalf("Verify should accept upper-case digest")
	}
	if h.Verify([]byte("abd"), want) {
		t.Fatalf("Verify accepted wrong content")
	}
}

func TestNew_Unsupported(t *testing.T) {
	if _, err := New("md4"); err == nil {
		t.Fatalf("expected error for unsupported algorithm")
	}
	h, err := New("")
	if err != nil || h.Algorithm() != SHA256 {
		t.Fatalf("default algorithm = %v, %v", h, err)
	}
}
