// Package mem implements the physical page allocator: a free list of 4 KiB
// pages threaded through the pages themselves, seeded by one or more
// caller-supplied regions. It is grounded in the same shape as a
// reference kernel's per-CPU physical allocator, but trades its
// refcounted free lists for a simpler single free list: there is no
// copy-on-write here, so pages have exactly one owner and no reference
// count.
package mem

import (
	"unsafe"

	"defs"
	"lock"
)

// PGSIZE is the page granularity the allocator hands out.
const PGSIZE = defs.PGSIZE

// page is the free-list node overlaid on a free page's first bytes. It
// exists only while the page is on the free list.
type page struct {
	next *page
}

// Allocator hands out and reclaims 4 KiB physical pages from a free list
// built out of one or more registered regions. Allocator is safe to call
// from trap context and from process context, so it guards its free list
// with its own lock.
type Allocator struct {
	mu       lock.Lock
	freeList *page
}

// New returns an allocator with an empty free list.
func New() *Allocator {
	a := &Allocator{}
	lock.Init(&a.mu, "mem.Allocator")
	return a
}

// InitRegion registers [start, end) as free. start and end must be page
// aligned. Called twice at boot: once with a small bootstrap region, and
// again with the remainder of RAM once the MMU is fully configured.
func (a *Allocator) InitRegion(start, end uintptr) {
	if start%PGSIZE != 0 || end%PGSIZE != 0 {
		panic("mem.InitRegion: unaligned region")
	}
	for p := start; p+PGSIZE <= end; p += PGSIZE {
		a.Free(p)
	}
}

// Alloc removes one page from the free list and returns its kernel
// address. The page's contents are undefined; the caller must
// initialize it. Alloc returns ok=false when the free list is empty.
func (a *Allocator) Alloc() (addr uintptr, ok bool) {
	lock.Acquire(&a.mu)
	p := a.freeList
	if p != nil {
		a.freeList = p.next
	}
	lock.Release(&a.mu)
	if p == nil {
		return 0, false
	}
	return uintptr(unsafe.Pointer(p)), true
}

// Free returns pp to the free list. pp must be page aligned and within a
// region previously passed to InitRegion. Its contents are scrubbed
// first, defensively, against stale pointers still referencing it.
func (a *Allocator) Free(pp uintptr) {
	if pp%PGSIZE != 0 {
		panic("mem.Free: unaligned page")
	}
	scrub(pp)
	node := (*page)(unsafe.Pointer(pp))

	lock.Acquire(&a.mu)
	node.next = a.freeList
	a.freeList = node
	lock.Release(&a.mu)
}

func scrub(pp uintptr) {
	b := (*[PGSIZE]byte)(unsafe.Pointer(pp))
	for i := range b {
		b[i] = 0
	}
}
