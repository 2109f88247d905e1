//go:build arm

// Command kernel is the bare-metal entry point linked into the ARM
// kernel image. It is deliberately thin: everything it does is compose
// a boot.BootConfig from this board's fixed memory layout and hand it
// to boot.Init, mirroring how cmain in the reference kernel is a short
// sequence of calls into subsystem-specific init functions rather than
// inline logic. The boot loader and early assembly setup that gets the
// CPU into a state where this function can run at all are out of this
// repository's scope; this is the first Go code that runs.
package main

import (
	"boot"
	"console"
	"defs"
	"vm"
)

// kernelImageEnd is a conservative estimate of where the loaded kernel
// image ends in physical memory. A real board computes this from the
// linker script's kernel_bin_end symbol (see the reference kernel's
// extern char kernel_bin_end[]); the boot loader and linker script that
// would supply the real value are out of this repository's scope.
const kernelImageEnd = defs.KERNBASE + 0x00100000 // 1 MiB headroom

// bootstrapBytes is the size of the small region handed to the
// allocator before the mailbox has reported how much RAM actually
// exists, matching kinit1's fixed 8 MiB window in the reference kernel.
const bootstrapBytes = 8 * 1024 * 1024

// mmioPhys is the ARM physical base of the BCM2836 peripheral block,
// and mmioWindowBytes the size of the fixed window mapped over it.
const (
	mmioPhys        = 0x3F000000
	mmioWindowBytes = 0x01000000
)

// initCode is the first user process's program image: it sets r7 to
// the exit syscall number and traps. A full build would embed the
// compiled output of a real init program; the ELF loader that would
// produce one is out of this repository's scope, so this minimal
// stand-in is what UserInit copies in. Its trap lands in the
// placeholder vectors arch.InstallVectors installs, which spin; and
// were it dispatched as a syscall, proc.Exit panics when init exits.
var initCode = []byte{
	0x02, 0x70, 0xA0, 0xE3, // mov r7, #2   (defs.SYS_EXIT)
	0x00, 0x00, 0x00, 0xEF, // swi #0
	0xFE, 0xFF, 0xFF, 0xEA, // b .
}

// ramMapAttr is the PD/PT attribute pair every RAM identity mapping
// uses, at stage 1 and at the stage-2 extension alike.
func ramMapAttr() boot.RAMAttr {
	return boot.RAMAttr{
		PDAttr: vm.PDESectionBit,
		PTAttr: vm.AttrKernelRW | vm.AttrCacheable | vm.AttrBufferable,
	}
}

func kernelMappings() []vm.KernelMapping {
	ram := ramMapAttr()
	return []vm.KernelMapping{
		{ // identity-offset mapping of the RAM the bootstrap region covers
			Virt:      defs.KERNBASE,
			PhysStart: 0,
			PhysEnd:   bootstrapBytes,
			PDAttr:    ram.PDAttr,
			PTAttr:    ram.PTAttr,
		},
		{ // MMIO window: non-cacheable, non-bufferable, kernel-RW only
			Virt:      defs.MMIO_VA,
			PhysStart: mmioPhys,
			PhysEnd:   mmioPhys + mmioWindowBytes,
			PDAttr:    vm.PDESectionBit,
			PTAttr:    vm.AttrKernelRW,
		},
		{ // high-vector page, double-mapped so kernel code and the
			// CPU's exception-vector fetch both reach the same page
			Virt:      defs.HVECTORS,
			PhysStart: 0,
			PhysEnd:   defs.TVSIZE,
			PDAttr:    vm.PDEPageTableBit,
			PTAttr:    vm.AttrKernelRW | vm.AttrCacheable,
		},
	}
}

func main() {
	var mboxBuf [8]uint32

	k := boot.Init(boot.BootConfig{
		Bootstrap:  boot.Region{Start: kernelImageEnd, End: defs.KERNBASE + bootstrapBytes},
		KernelMaps: kernelMappings(),
		KernOffset: defs.KERNBASE,
		RAMMapAttr: ramMapAttr(),
		Console:    console.PL011{},
		Mailbox:    boot.NewHardwareMailbox(&mboxBuf),
		IRQ:        bcm2835IRQ{},
		Timer:      boot.TimerARM{},
		InitCode:   initCode,
	})

	k.Table.Scheduler()
}
