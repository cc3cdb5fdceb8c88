package secrets

import (
	"strings"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	box, err := NewBox(key)
	if err != nil {
		t.Fatalf("new box: %v", err)
	}

	sealed, err := box.SealString("sk-test-credential")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if strings.Contains(sealed, "sk-test-credential") {
		t.Fatalf("sealed value leaks plaintext: %s", sealed)
	}

	opened, err := box.OpenString(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "sk-test-credential" {
		t.Fatalf("expected round-trip, got %q", opened)
	}
}

func TestNilBoxPassthrough(t *testing.T) {
	var box *Box

	sealed, err := box.SealString("plain")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed != "plain" {
		t.Fatalf("expected passthrough, got %q", sealed)
	}
	opened, err := box.OpenString(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "plain" {
		t.Fatalf("expected passthrough, got %q", opened)
	}
}

func TestNewBoxRejectsShortKey(t *testing.T) {
	if _, err := NewBox([]byte("short")); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	box, err := NewBox(make([]byte, 32))
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	if _, err := box.OpenString("not json"); err == nil {
		t.Fatal("expected error for malformed envelope")
	}
}
