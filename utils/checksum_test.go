package utils

import "testing"

func TestChecksumDependsOnContentOnly(t *testing.T) {
	a := Checksum([]byte("01/05/2026 STARBUCKS 42.50"))
	b := Checksum([]byte("01/05/2026 STARBUCKS 42.50"))
	if a != b {
		t.Fatalf("identical bytes produced different checksums: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}

	c := Checksum([]byte("01/05/2026 STARBUCKS 42.51"))
	if a == c {
		t.Fatal("different bytes produced the same checksum")
	}
}
