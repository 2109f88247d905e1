package vm

import (
	"unsafe"

	"arch"
	"defs"
	"lock"
	"util"
)

// AS is an address space: a page directory plus the size of the user
// region it backs. Every AS shares identical kernel mappings above
// KERNBASE, installed once into KernelPD and merged into the single
// live hardware page directory by SwitchUVM rather than copied into
// each AS's own PD (see DESIGN.md, "page-directory merge on switch").
type AS struct {
	PD *PD
	Sz uint32
}

// uvmPDAttr and uvmPTAttr are the attributes user pages are always
// mapped with: present via a page-table (not section) PD entry, and
// user-read-write, cacheable, bufferable at the PTE.
const (
	uvmPDAttr = PDEPageTableBit
	uvmPTAttr = AttrUserRW | AttrCacheable | AttrBufferable
)

// userChunks is the number of PD chunks that fall below USERBOUND. The
// merge SwitchUVM performs only ever needs to touch these chunks.
const userChunks = (defs.USERBOUND >> 20) / pdChunkEntries

// KernelMapping describes one fixed range replicated into every address
// space: the kernel image / RAM identity-offset mapping, the MMIO
// window, or the trap-vector page.
type KernelMapping struct {
	Virt, PhysStart, PhysEnd uint32
	PDAttr, PTAttr           uint32
}

// KernelPD holds the kernel-only mappings that SwitchUVM merges the
// active user AS's low mappings into. It is built once at boot by
// InitKernelMappings and never mutated by a user-facing VM operation.
var KernelPD *PD

// InitKernelMappings allocates KernelPD and installs the fixed kernel
// mappings: identity-offset physical RAM at KERNBASE, the MMIO window,
// and the trap-vector page at 0xFFFF0000. It must run exactly once,
// before any SetupUserAS call.
func (m *Manager) InitKernelMappings(mappings []KernelMapping) bool {
	pd, ok := m.newPD()
	if !ok {
		return false
	}
	for _, k := range mappings {
		if !m.mapRange(pd, k.Virt, k.PhysEnd-k.PhysStart, k.PhysStart, k.PDAttr, k.PTAttr) {
			return false
		}
	}
	KernelPD = pd
	return true
}

// ExtendKernelMappings installs additional ranges into the KernelPD
// InitKernelMappings already built, flushing the TLB afterward so the
// new mappings take effect immediately. This is MMU stage 2 (spec.md
// §4.7): once the mailbox reports how much physical RAM actually
// exists, the kernel identity mapping grows to cover it before the
// physical allocator is allowed to start handing those pages out.
// InitKernelMappings must have run first.
func (m *Manager) ExtendKernelMappings(mappings []KernelMapping) bool {
	if KernelPD == nil {
		panic("vm.ExtendKernelMappings: InitKernelMappings has not run")
	}
	for _, k := range mappings {
		if !m.mapRange(KernelPD, k.Virt, k.PhysEnd-k.PhysStart, k.PhysStart, k.PDAttr, k.PTAttr) {
			return false
		}
	}
	arch.FlushTLB()
	return true
}

// SetupUserAS allocates a fresh, zeroed page directory for a new address
// space. It does not copy the kernel mappings in: SwitchUVM merges the
// user portion of this PD into the globally shared KernelPD instead.
func (m *Manager) SetupUserAS() (*AS, bool) {
	pd, ok := m.newPD()
	if !ok {
		return nil, false
	}
	return &AS{PD: pd}, true
}

// InitUVM maps one page at virtual address 0 and copies init into it.
// len(init) must fit in a single page; it is used only to load the
// embedded first-process image.
func (m *Manager) InitUVM(as *AS, init []byte) bool {
	if len(init) > defs.PGSIZE {
		panic("vm.InitUVM: image larger than one page")
	}
	a, ok := m.allocZeroedPage()
	if !ok {
		return false
	}
	if !m.mapRange(as.PD, 0, defs.PGSIZE, m.v2p(a), uvmPDAttr, uvmPTAttr) {
		return false
	}
	dst := (*[defs.PGSIZE]byte)(unsafe.Pointer(a))
	copy(dst[:], init)
	return true
}

// Grow extends the user address space from old to new bytes, allocating
// and zeroing a physical page for each 4 KiB step and mapping it
// user-RW. On any allocation failure it unwinds the partial growth via
// Shrink and returns ok=false; growth never leaks a partially built
// range.
func (m *Manager) Grow(as *AS, old, new uint32) (uint32, bool) {
	if new > defs.USERBOUND {
		return 0, false
	}
	if new < old {
		return old, true
	}
	a := util.Roundup(old, uint32(defs.PGSIZE))
	for ; a < new; a += defs.PGSIZE {
		pg, ok := m.allocZeroedPage()
		if !ok {
			m.Shrink(as, new, old)
			return 0, false
		}
		if !m.mapRange(as.PD, a, defs.PGSIZE, m.v2p(pg), uvmPDAttr, uvmPTAttr) {
			m.Phys.Free(pg)
			m.Shrink(as, new, old)
			return 0, false
		}
	}
	as.Sz = new
	return new, true
}

// Shrink releases user pages to bring the address space from old down to
// new bytes. It is a no-op when new >= old. A PT stride with no backing
// page table is skipped in a single step rather than probed 256 times.
func (m *Manager) Shrink(as *AS, old, new uint32) uint32 {
	if new >= old {
		return old
	}
	a := util.Roundup(new, uint32(defs.PGSIZE))
	for a < old {
		pte, ok := m.walk(as.PD, a, false)
		if !ok {
			a += defs.NPTENTRIES * defs.PGSIZE
			continue
		}
		if *pte != 0 {
			pa := uint32(*pte) & addrMask
			m.Phys.Free(m.p2v(pa))
			*pte = 0
		}
		a += defs.PGSIZE
	}
	as.Sz = new
	return new
}

// Clone deep-copies src's user range [0, src.Sz) into a freshly allocated
// address space, preserving the source's per-page attribute flags. On
// any failure it frees whatever was built and returns ok=false, never a
// half-built clone.
func (m *Manager) Clone(src *AS) (*AS, bool) {
	dst, ok := m.SetupUserAS()
	if !ok {
		return nil, false
	}
	for a := uint32(0); a < src.Sz; a += defs.PGSIZE {
		pte, ok := m.walk(src.PD, a, false)
		if !ok || *pte == 0 {
			m.Free(dst)
			return nil, false
		}
		srcPA := uint32(*pte) & addrMask
		flags := uint32(*pte) &^ addrMask

		dstVA, ok := m.Phys.Alloc()
		if !ok {
			m.Free(dst)
			return nil, false
		}
		srcBuf := (*[defs.PGSIZE]byte)(unsafe.Pointer(m.p2v(srcPA)))
		dstBuf := (*[defs.PGSIZE]byte)(unsafe.Pointer(dstVA))
		*dstBuf = *srcBuf

		if !m.mapRange(dst.PD, a, defs.PGSIZE, m.v2p(dstVA), uvmPDAttr, flags) {
			m.Phys.Free(dstVA)
			m.Free(dst)
			return nil, false
		}
	}
	dst.Sz = src.Sz
	return dst, true
}

// Free releases an entire address space: every user page, every page
// table the PD points at, and the PD's own four pages.
func (m *Manager) Free(as *AS) {
	m.Shrink(as, defs.USERBOUND, 0)
	for i := uint32(0); i < defs.NPDENTRIES; i++ {
		e := as.PD.entry(i)
		if *e&PDEPageTableBit != 0 {
			m.Phys.Free(m.p2v(uint32(*e) &^ 0x3))
		}
	}
	m.freePD(as.PD)
}

// Copyout copies len(src) bytes into as's address space at uva,
// translating user addresses to kernel addresses one page window at a
// time and enforcing that every destination page is user-accessible. On
// encountering an unmapped page it returns false; bytes already written
// before the failing window are not rolled back (a documented partial
// write, not a transactional copy).
func (m *Manager) Copyout(as *AS, uva uint32, src []byte) bool {
	for len(src) > 0 {
		va0 := uva &^ (defs.PGSIZE - 1)
		pte, ok := m.walk(as.PD, va0, false)
		if !ok || *pte == 0 || *pte&AttrUserRW == 0 {
			return false
		}
		pa0 := uint32(*pte) & addrMask
		off := uva - va0
		n := util.Min(uint32(defs.PGSIZE)-off, uint32(len(src)))
		dst := (*[defs.PGSIZE]byte)(unsafe.Pointer(m.p2v(pa0)))
		copy(dst[off:], src[:n])
		src = src[n:]
		uva = va0 + defs.PGSIZE
	}
	return true
}

// SwitchUVM makes as the live user address space: with IRQs disabled, it
// copies the user-portion chunks of as.PD over the globally shared
// KernelPD, flushes the data and instruction caches and the TLB, and
// re-enables IRQs. A single globally live PD suffices because this
// uniprocessor kernel has at most one runnable user address space at
// any instant.
func SwitchUVM(as *AS) {
	if as.PD == nil {
		panic("vm.SwitchUVM: nil pgdir")
	}
	lock.Pushcli()
	for i := 0; i < userChunks; i++ {
		*KernelPD.chunks[i] = *as.PD.chunks[i]
	}
	arch.FlushIDCache()
	arch.FlushTLB()
	lock.Popcli()
}
