package boot

import (
	"testing"
	"unsafe"

	"defs"
	"vm"
)

// fakeConsole is a minimal, buffering console.Device used only so
// Init's log lines have somewhere to go; it never blocks.
type fakeConsole struct {
	inited bool
	out    []byte
}

func (f *fakeConsole) Init()         { f.inited = true }
func (f *fakeConsole) PutC(c byte)   { f.out = append(f.out, c) }
func (f *fakeConsole) GetC() byte    { return 0 }

type fakeCollaborator struct{ inited bool }

func (f *fakeCollaborator) Init() { f.inited = true }

func bootstrapRegion(t *testing.T, pages int) Region {
	t.Helper()
	buf := make([]byte, (pages+1)*defs.PGSIZE)
	t.Cleanup(func() { _ = buf })
	base := uintptr(unsafe.Pointer(&buf[0]))
	start := (base + defs.PGSIZE - 1) &^ (defs.PGSIZE - 1)
	end := start + uintptr(pages)*defs.PGSIZE
	return Region{Start: start, End: end}
}

func TestInitBringsUpFirstProcess(t *testing.T) {
	con := &fakeConsole{}
	gpu := &fakeCollaborator{}
	bc := &fakeCollaborator{}
	timer := &TimerSim{}

	var mboxBuf [mboxBufWords]uint32
	mailbox := NewSimMailbox(&mboxBuf, 0) // 0: no stage-2 region extension

	region := bootstrapRegion(t, 64)
	k := Init(BootConfig{
		Bootstrap:   region,
		KernOffset:  region.Start,
		Console:     con,
		Mailbox:     mailbox,
		Timer:       timer,
		InitCode:    []byte{0xAB},
		GPU:         gpu,
		BufferCache: bc,
	})

	if !con.inited {
		t.Fatal("console was not initialized")
	}
	if !gpu.inited || !bc.inited {
		t.Fatal("a wired collaborator was not initialized")
	}
	if !timer.Inited || timer.PeriodMicros != defs.TimerPeriodMicros {
		t.Fatalf("timer not programmed with expected period: %+v", timer)
	}
	if k.Table == nil || k.VM == nil || k.Phys == nil {
		t.Fatal("Init did not return a fully wired Kernel")
	}
	if len(con.out) == 0 {
		t.Fatal("expected at least one boot log line")
	}
}

// TestInitExtendsKernelMappingsAtStage2 drives Init with a mailbox that
// reports more RAM than the bootstrap region covers, the way a real
// board's GET_ARM_MEMORY response does, and checks that a page from the
// extended region is actually usable: allocated, written through, and
// freed back, rather than merely present in the free list's bookkeeping.
func TestInitExtendsKernelMappingsAtStage2(t *testing.T) {
	const totalPages = 128
	const bootstrapPages = 64

	buf := make([]byte, (totalPages+1)*defs.PGSIZE)
	t.Cleanup(func() { _ = buf })
	base := (uintptr(unsafe.Pointer(&buf[0])) + defs.PGSIZE - 1) &^ (defs.PGSIZE - 1)
	bootstrapEnd := base + bootstrapPages*defs.PGSIZE
	fullEnd := base + totalPages*defs.PGSIZE

	con := &fakeConsole{}
	var mboxBuf [mboxBufWords]uint32
	mailbox := NewSimMailbox(&mboxBuf, uint32(fullEnd-base))

	k := Init(BootConfig{
		Bootstrap:  Region{Start: base, End: bootstrapEnd},
		KernOffset: base,
		RAMMapAttr: RAMAttr{
			PDAttr: vm.PDESectionBit,
			PTAttr: vm.AttrKernelRW | vm.AttrCacheable | vm.AttrBufferable,
		},
		Console:  con,
		Mailbox:  mailbox,
		InitCode: []byte{0xAB},
	})

	var extPage uintptr
	var others []uintptr
	for i := 0; i < totalPages && extPage == 0; i++ {
		a, ok := k.Phys.Alloc()
		if !ok {
			t.Fatalf("physical allocator ran out after %d of %d pages", i, totalPages)
		}
		if a >= bootstrapEnd && a < fullEnd {
			extPage = a
		} else {
			others = append(others, a)
		}
	}
	if extPage == 0 {
		t.Fatal("no page from the stage-2 extended region was ever allocated")
	}

	b := (*[defs.PGSIZE]byte)(unsafe.Pointer(extPage))
	b[0] = 0x42
	if b[0] != 0x42 {
		t.Fatal("extended-region page is not writable")
	}
	k.Phys.Free(extPage)

	for _, a := range others {
		k.Phys.Free(a)
	}
}

func TestInitSkipsNilCollaborators(t *testing.T) {
	con := &fakeConsole{}
	var mboxBuf [mboxBufWords]uint32

	// Calling Init with every optional collaborator nil must not panic;
	// this is the "out of scope, represented as a no-op" contract.
	region := bootstrapRegion(t, 32)
	_ = Init(BootConfig{
		Bootstrap:  region,
		KernOffset: region.Start,
		Console:    con,
		Mailbox:    NewSimMailbox(&mboxBuf, 0),
		InitCode:   []byte{0},
	})
}
