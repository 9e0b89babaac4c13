package id

import (
	"regexp"
	"strings"
	"testing"
)

var idPattern = regexp.MustCompile(`^[a-z2-7]{26}$`)

func TestNewIDIsLowercaseBase32(t *testing.T) {
	got, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if !idPattern.MatchString(got) {
		t.Fatalf("id = %q, want 26 lowercase base32 characters", got)
	}
	raw, err := encoding.DecodeString(strings.ToUpper(got))
	if err != nil {
		t.Fatalf("decode id: %v", err)
	}
	if len(raw) != 16 {
		t.Fatalf("decoded length = %d, want 16", len(raw))
	}
	if v := raw[6] >> 4; v != 4 {
		t.Fatalf("uuid version = %d, want 4", v)
	}
}

func TestNewIDDoesNotRepeat(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		got, err := NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if _, dup := seen[got]; dup {
			t.Fatalf("id %q generated twice", got)
		}
		seen[got] = struct{}{}
	}
}
