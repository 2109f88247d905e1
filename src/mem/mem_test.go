package mem

import (
	"testing"
	"unsafe"
)

// backing returns a page-aligned region of n pages carved out of a Go
// byte slice, standing in for physical RAM the same way the corpus's
// other allocator tests use a make([]byte, ...) backing array.
func backing(t *testing.T, n int) (start, end uintptr) {
	t.Helper()
	buf := make([]byte, (n+1)*PGSIZE)
	base := uintptr(unsafe.Pointer(&buf[0]))
	start = (base + PGSIZE - 1) &^ (PGSIZE - 1)
	end = start + uintptr(n)*PGSIZE
	t.Cleanup(func() { _ = buf }) // keep buf alive for the duration of t
	return start, end
}

func TestAllocFreeRoundTrip(t *testing.T) {
	a := New()
	start, end := backing(t, 4)
	a.InitRegion(start, end)

	var got []uintptr
	for i := 0; i < 4; i++ {
		p, ok := a.Alloc()
		if !ok {
			t.Fatalf("alloc %d: free list exhausted early", i)
		}
		if p%PGSIZE != 0 {
			t.Fatalf("alloc %d: address %x not page aligned", i, p)
		}
		got = append(got, p)
	}

	if _, ok := a.Alloc(); ok {
		t.Fatal("alloc succeeded after free list should have been empty")
	}

	for _, p := range got {
		a.Free(p)
	}
	for i := 0; i < 4; i++ {
		if _, ok := a.Alloc(); !ok {
			t.Fatalf("alloc %d after free: unexpected exhaustion", i)
		}
	}
}

func TestFreeScrubsContents(t *testing.T) {
	a := New()
	start, end := backing(t, 1)
	a.InitRegion(start, end)

	p, ok := a.Alloc()
	if !ok {
		t.Fatal("alloc failed")
	}
	b := (*[PGSIZE]byte)(unsafe.Pointer(p))
	for i := range b {
		b[i] = 0xAB
	}
	a.Free(p)

	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not scrubbed on free: %x", i, v)
		}
	}
}

func TestInitRegionPanicsOnMisalignedRegion(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on unaligned region")
		}
	}()
	a := New()
	a.InitRegion(1, PGSIZE+1)
}
