package util

import "testing"

func TestRoundup(t *testing.T) {
	if got := Roundup(uint32(1), 4096); got != 4096 {
		t.Fatalf("Roundup(1, 4096) = %d", got)
	}
	if got := Roundup(uint32(8192), 4096); got != 8192 {
		t.Fatalf("Roundup(8192, 4096) = %d", got)
	}
}

func TestRounddown(t *testing.T) {
	if got := Rounddown(uint32(5000), 4096); got != 4096 {
		t.Fatalf("Rounddown(5000, 4096) = %d", got)
	}
}

func TestMin(t *testing.T) {
	if got := Min(3, 7); got != 3 {
		t.Fatalf("Min(3, 7) = %d", got)
	}
	if got := Min(uintptr(9), 2); got != 2 {
		t.Fatalf("Min(9, 2) = %d", got)
	}
}
