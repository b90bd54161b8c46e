package id

import "testing"

func TestNewIsUnique(t *testing.T) {
	a := New()
	b := New()
	if a == b {
		t.Fatal("expected distinct ids")
	}
}

func TestRoundTripString(t *testing.T) {
	a := New()
	parsed, err := Parse(a.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != a {
		t.Fatalf("round trip mismatch: %v != %v", parsed, a)
	}
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	if _, err := FromBytes([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short byte slice")
	}
}

func TestZeroValue(t *testing.T) {
	var z ID
	if !z.IsZero() {
		t.Fatal("expected zero value to report IsZero")
	}
	if New().IsZero() {
		t.Fatal("fresh id should not be zero")
	}
}
