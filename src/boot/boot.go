package boot

import (
	"console"
	"defs"
	"ksyscall"
	"lock"
	"mem"
	"proc"
	"trap"
	"vm"
)

// Region is a page-aligned physical address range, the same shape
// kinit1/kinit2 take in the reference kernel: a start/end pair handed
// straight to the physical allocator.
type Region struct {
	Start, End uintptr
}

// Collaborator is the narrow contract every out-of-scope subsystem
// boot.Init calls at its historical position in the boot order: the
// buffer cache, file table, inode cache, block device, and GPU/display
// init all live behind this interface because they are out of the
// CORE's scope. A nil Collaborator is skipped; wiring one in is how a
// fuller build would plug a real file-system implementation into this
// same boot sequence without touching this package.
type Collaborator interface {
	Init()
}

// RAMAttr is the pair of PD/PT attribute bits a RAM identity mapping
// uses, passed to vm.KernelMapping's PDAttr/PTAttr fields verbatim.
type RAMAttr struct {
	PDAttr, PTAttr uint32
}

// BootConfig supplies every board- and build-specific value Init needs.
// It carries no defaults: the memory layout, the embedded init program,
// and the device drivers differ between the ARM build and the hosted
// simulation build, and Init must not guess at them.
type BootConfig struct {
	// Bootstrap is the small region handed to the physical allocator
	// before the mailbox has told the kernel how much RAM actually
	// exists, mirroring kinit1(kernel_bin_end, P2V(8MB+PHYSTART)).
	Bootstrap Region

	// KernelMaps are the fixed mappings replicated into every address
	// space: kernel image / RAM identity-offset, MMIO window, and the
	// high-vector page. Installed at MMU stage 1.
	KernelMaps []vm.KernelMapping

	// KernOffset is the fixed virtual-to-physical offset of the kernel's
	// RAM identity mapping: KERNBASE on the ARM build, and the backing
	// buffer's base address in a hosted test, so that page-table entries
	// always hold a 32-bit "physical" value the VM layer can translate
	// back to something dereferenceable. Init uses it to compute the
	// stage-2 mapping extension once the mailbox reports the real
	// memory size.
	KernOffset uintptr

	// RAMMapAttr carries the PD/PT attribute bits Init uses when it
	// extends the kernel's RAM identity mapping at stage 2, matching
	// whatever attributes KernelMaps' own RAM entry was installed with.
	RAMMapAttr RAMAttr

	Console console.Device
	Mailbox *Mailbox
	IRQ     trap.IRQController
	Timer   Timer

	// UARTIntr is the receive-interrupt service routine for the
	// console UART, invoked from the IRQ drain loop when the
	// mini-UART pending bit is set. Nil means the console is run
	// polled: the bit is treated as recognized and nothing else is done.
	UARTIntr func()

	// InitCode is the first user process's program image, copied into
	// its single page the way userinit copies in initcode.S's output.
	InitCode []byte

	BufferCache, FileTable, InodeCache, BlockDevice, GPU Collaborator
}

// Kernel is everything Init wires together: the handles a caller needs
// to enter the scheduler, or to inspect state from a test.
type Kernel struct {
	Phys    *mem.Allocator
	VM      *vm.Manager
	Table   *proc.Table
	Trap    *trap.Dispatcher
	Syscall *ksyscall.Table
	Console *console.Line
}

// Init performs every boot step in the reference kernel's cmain order,
// exactly once, and returns the assembled Kernel with its first user
// process RUNNABLE. The caller's only remaining job is to
// call k.Table.Scheduler(), which never returns, exactly as cmain's
// tail call into scheduler() never returns in the reference kernel.
func Init(cfg BootConfig) *Kernel {
	vmm := vm.New(mem.New(), cfg.KernOffset)
	phys := vmm.Phys

	lock.Mycpu.Ncli = 0
	proc.Mycpu.Started = false
	proc.Mycpu.Proc = nil

	cfg.Console.Init()
	con := console.NewLine(cfg.Console)
	logStage := func(stage string) {
		console.WriteString(cfg.Console, "boot: "+stage+" ok\n")
	}

	// The bootstrap region must be free before InitKernelMappings runs:
	// building KernelPD itself carves four pages out of phys, the same
	// way kvmalloc() in the reference kernel runs after kinit1 has
	// already seeded the free list it allocates the page table from.
	phys.InitRegion(cfg.Bootstrap.Start, cfg.Bootstrap.End)
	logStage("physical allocator seeded")

	if !vmm.InitKernelMappings(cfg.KernelMaps) {
		panic("boot.Init: stage-1 kernel mappings failed")
	}
	logStage("stage-1 kernel mappings installed")

	var pmSize uint32
	if cfg.Mailbox != nil {
		pmSize = cfg.Mailbox.ARMMemorySize()
	}
	logStage("mailbox queried")

	// Stage 2 maps the remainder of RAM now, but the allocator learns
	// about those pages only after the block device is up, preserving
	// cmain's kinit2-late ordering. Mapping first means every page the
	// allocator will ever hand out is already reachable when it is
	// scrubbed on free.
	var stage2End uintptr
	if pmSize != 0 {
		fullEnd := cfg.KernOffset + uintptr(pmSize)
		if fullEnd > cfg.Bootstrap.End {
			extPhysStart := uint32(cfg.Bootstrap.End - cfg.KernOffset)
			ext := vm.KernelMapping{
				Virt:      uint32(cfg.Bootstrap.End),
				PhysStart: extPhysStart,
				PhysEnd:   pmSize,
				PDAttr:    cfg.RAMMapAttr.PDAttr,
				PTAttr:    cfg.RAMMapAttr.PTAttr,
			}
			if !vmm.ExtendKernelMappings([]vm.KernelMapping{ext}) {
				panic("boot.Init: stage-2 kernel mappings failed")
			}
			stage2End = fullEnd
		}
	}
	logStage("stage-2 memory mapped")

	initCollaborator(cfg.GPU, "gpu", logStage)

	table := proc.NewTable(phys, vmm)
	logStage("process table init")

	trap.TVInit(phys)
	logStage("trap vectors init")

	initCollaborator(cfg.BufferCache, "buffer cache", logStage)
	initCollaborator(cfg.FileTable, "file table", logStage)
	initCollaborator(cfg.InodeCache, "inode cache", logStage)
	initCollaborator(cfg.BlockDevice, "block device", logStage)

	if stage2End != 0 {
		phys.InitRegion(cfg.Bootstrap.End, stage2End)
		logStage("physical allocator extended")
	}

	syscalls := &ksyscall.Table{Procs: table, VM: vmm}
	dispatcher := &trap.Dispatcher{
		Table:   table,
		IRQ:     cfg.IRQ,
		Hooks:   trap.Hooks{Timer: trap.NewTimerHook(table), MiniUART: cfg.UARTIntr},
		Syscall: syscalls.Dispatch,
		Log:     func(s string) { console.WriteString(cfg.Console, s) },
	}

	table.UserInit(cfg.InitCode)
	logStage("first user process ready")

	if cfg.Timer != nil {
		cfg.Timer.Init(defs.TimerPeriodMicros)
	}
	logStage("timer programmed")

	return &Kernel{
		Phys:    phys,
		VM:      vmm,
		Table:   table,
		Trap:    dispatcher,
		Syscall: syscalls,
		Console: con,
	}
}

func initCollaborator(c Collaborator, name string, logStage func(string)) {
	if c == nil {
		return
	}
	c.Init()
	logStage(name + " init")
}
