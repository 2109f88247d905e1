// Package vm implements the two-level ARMv7 short-descriptor address
// space manager: building and mutating page tables, mapping and
// unmapping ranges, and cloning, growing, shrinking, and freeing entire
// address spaces. It is grounded on vm.c in the reference C kernel and
// styled after a typical Go kernel's vm package (typed addresses, small
// exported verbs operating on a manager value).
//
// Unlike an x86 vm package built around copy-on-write, there is none
// here: fork deep-copies every user page, and the attribute bits
// describe the ARMv7 short-descriptor format rather than x86 PTEs.
package vm

import (
	"unsafe"

	"defs"
	"mem"
)

// PDE is one page-directory entry: either 0 (unmapped), a 1 MiB section
// descriptor, or a pointer to a page table.
type PDE uint32

// PTE is one small-page (4 KiB) page-table entry.
type PTE uint32

// pdChunkEntries is the number of PDEs that fit in one physical page.
// The architectural page directory has defs.NPDENTRIES entries (16 KiB),
// so a PD is backed by four physical pages rather than one: the
// physical allocator's grain stays a single 4 KiB page, with no
// special-cased 16 KiB allocation for PDs.
const pdChunkEntries = defs.PGSIZE / 4

const numPDChunks = defs.NPDENTRIES / pdChunkEntries

// PD is a page directory: four page-sized chunks of pdChunkEntries
// entries each, addressed contiguously by pdx(va). Exactly one PD exists
// per address space.
type PD struct {
	chunks [numPDChunks]*[pdChunkEntries]PDE
}

func (pd *PD) entry(idx uint32) *PDE {
	return &pd.chunks[idx/pdChunkEntries][idx%pdChunkEntries]
}

// PT is a page table: defs.NPTENTRIES small-page entries, occupying one
// physical page (of which only the first NPTENTRIES*4 bytes are used).
type PT [defs.NPTENTRIES]PTE

// Page-directory entry type bits.
const (
	PDEUnmapped     = 0
	PDESectionBit   = 1 << 0 // 1 MiB direct physical mapping
	PDEPageTableBit = 1 << 1 // points at a PT
)

// Page/section attribute bits, ARMv7-flavored but deliberately
// simplified: they do not follow the full short-descriptor encoding,
// only enough of it for the core's access-control checks.
const (
	AttrCacheable  = 1 << 2
	AttrBufferable = 1 << 3
	AttrUserRO     = 1 << 4
	AttrUserRW     = 1 << 5 // implies read
	AttrKernelRW   = 1 << 6
	AttrNeverExec  = 1 << 7
)

const addrMask = ^uint32(defs.PGSIZE - 1)

func pdx(va uint32) uint32 { return va >> 20 }
func ptx(va uint32) uint32 { return (va >> 12) & (defs.NPTENTRIES - 1) }

// Manager owns the physical allocator page tables and page directories
// are carved from. KernOffset is the fixed difference between a kernel
// virtual address and the physical address it maps — KERNBASE on the
// ARM build, and the backing buffer's base in a hosted test — so the
// 32-bit physical addresses page-table entries hold can always be
// turned back into something the kernel can dereference.
type Manager struct {
	Phys       *mem.Allocator
	KernOffset uintptr
}

// New returns a vm.Manager backed by phys, with kernOffset as the
// kernel mapping's virtual-to-physical offset.
func New(phys *mem.Allocator, kernOffset uintptr) *Manager {
	return &Manager{Phys: phys, KernOffset: kernOffset}
}

func (m *Manager) p2v(pa uint32) uintptr { return m.KernOffset + uintptr(pa) }
func (m *Manager) v2p(va uintptr) uint32 { return uint32(va - m.KernOffset) }

// allocZeroedPage hands back the kernel virtual address of a scrubbed
// fresh page.
func (m *Manager) allocZeroedPage() (uintptr, bool) {
	a, ok := m.Phys.Alloc()
	if !ok {
		return 0, false
	}
	b := (*[defs.PGSIZE]byte)(unsafe.Pointer(a))
	for i := range b {
		b[i] = 0
	}
	return a, true
}

// newPD allocates and zeroes the four physical pages backing a page
// directory. On partial allocation failure it frees whatever chunks it
// already obtained.
func (m *Manager) newPD() (*PD, bool) {
	pd := &PD{}
	for i := range pd.chunks {
		a, ok := m.allocZeroedPage()
		if !ok {
			for j := 0; j < i; j++ {
				m.Phys.Free(uintptr(unsafe.Pointer(pd.chunks[j])))
			}
			return nil, false
		}
		pd.chunks[i] = (*[pdChunkEntries]PDE)(unsafe.Pointer(a))
	}
	return pd, true
}

func (m *Manager) freePD(pd *PD) {
	for _, c := range pd.chunks {
		m.Phys.Free(uintptr(unsafe.Pointer(c)))
	}
}

// walk returns a pointer to the PTE governing va within pd. When the
// governing PD entry is unmapped and alloc is true, it allocates and
// installs a new page table first. It returns ok=false when no PTE
// exists and alloc was false, when allocation failed, or when a section
// mapping occupies the governing PD entry.
func (m *Manager) walk(pd *PD, va uint32, alloc bool) (*PTE, bool) {
	pde := pd.entry(pdx(va))
	var ptVA uintptr
	if *pde&PDEPageTableBit != 0 {
		ptVA = m.p2v(uint32(*pde) &^ 0x3)
	} else if *pde != PDEUnmapped {
		// A section mapping occupies this slot; no PTE exists.
		return nil, false
	} else {
		if !alloc {
			return nil, false
		}
		a, ok := m.allocZeroedPage()
		if !ok {
			return nil, false
		}
		*pde = PDE(m.v2p(a)) | PDEPageTableBit
		ptVA = a
	}
	pt := (*PT)(unsafe.Pointer(ptVA))
	return &pt[ptx(va)], true
}

// mapRange installs mappings covering [va, va+size) in pd, translating to
// physical addresses starting at pa. When pdAttr carries a section
// mapping it installs 1 MiB PD entries directly; otherwise it walks and
// installs 4 KiB PT entries. It is fatal to overwrite an already-mapped
// entry; that is a kernel-logic bug, not a recoverable condition.
func (m *Manager) mapRange(pd *PD, va, size, pa uint32, pdAttr, ptAttr uint32) bool {
	if pdAttr&PDESectionBit != 0 {
		a := va &^ (defs.SECTIONSIZE - 1)
		last := (va + size - 1) &^ (defs.SECTIONSIZE - 1)
		for {
			e := pd.entry(pdx(a))
			if *e != PDEUnmapped {
				panic("vm.mapRange: remap")
			}
			*e = PDE(pa) | PDE(pdAttr)
			if a == last {
				break
			}
			a += defs.SECTIONSIZE
			pa += defs.SECTIONSIZE
		}
		return true
	}

	a := va &^ (defs.PGSIZE - 1)
	last := (va + size - 1) &^ (defs.PGSIZE - 1)
	for {
		pte, ok := m.walk(pd, a, true)
		if !ok {
			return false
		}
		if *pte != 0 {
			panic("vm.mapRange: remap")
		}
		*pte = PTE(pa) | PTE(ptAttr)
		if a == last {
			break
		}
		a += defs.PGSIZE
		pa += defs.PGSIZE
	}
	return true
}
