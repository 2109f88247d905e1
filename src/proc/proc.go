// Package proc implements the process table and scheduler: the record of
// every process the kernel knows about, the round-robin scheduler that
// picks among them, the sleep/wakeup rendezvous used to block without
// losing wakeups, and the fork/exit/wait tree that ties processes
// together as parents and children.
//
// It is grounded on proc.c in the reference C kernel and carries the
// small-package, typed-field style of a Go kernel's proc package, but
// adapted to a uniprocessor cooperative design rather than a
// goroutine-backed one: a process here is a record and a kernel stack,
// switched to by an explicit arch.Swtch, never a Go goroutine standing
// in for a "thread".
package proc

import (
	"reflect"
	"unsafe"

	"arch"
	"defs"
	"lock"
	"mem"
	"vm"
)

// Chan is an opaque sleep-rendezvous key. Only equality is meaningful;
// by convention callers pass the address of some piece of state they
// already own (the ticks counter, a buffer, a process itself).
type Chan uintptr

// NoChan is the zero value, used for "not sleeping".
const NoChan Chan = 0

// ChanOf derives a Chan from the address of v, matching the "any pointer
// may be a channel" idiom in the reference kernel.
func ChanOf(v unsafe.Pointer) Chan { return Chan(uintptr(v)) }

// Proc is one process table slot.
type Proc struct {
	Sz      uint32     // user-space size in bytes
	As      *vm.AS     // address space (nil while UNUSED)
	kstack  uintptr     // kernel address (from Phys.Alloc) of the dedicated kernel stack page
	State   defs.Procstate
	Pid     int
	Parent  *Proc
	TF      *arch.TrapFrame // trap frame for the current syscall/trap
	Context *arch.Context   // swtch() lands here to run this process
	Channel Chan            // non-zero iff State == SLEEPING
	Killed  bool

	// entry is the kernel-side body this process runs the first time
	// the scheduler switches to it, invoked through procEntry so the
	// saved Context needs only a bare code address.
	entry func()
	Ofile   [defs.NOFILE]uintptr // opaque file handles; file subsystem is out of scope
	Cwd     uintptr               // opaque cwd handle; inode layer is out of scope
	Name    string
}

// CPU is the scheduler-facing half of the per-core record: the context
// the scheduler loop runs on, whether it has started, and the process
// currently RUNNING here. The interrupt-nesting half lives in
// lock.CPU (lock.Mycpu); this package is uniprocessor, so there is
// exactly one instance, wired to lock.Mycpu by construction.
type CPU struct {
	Scheduler *arch.Context
	Started   bool
	Proc      *Proc
}

// Mycpu is the single per-CPU scheduler record.
var Mycpu = &CPU{}

// Table is the fixed-size process table plus the lock covering mutation
// of any record's state, pid, parent, channel, or killed field.
type Table struct {
	mu       lock.Lock
	procs    [defs.NPROC]Proc
	nextPid  int
	initProc *Proc

	// halted parks the scheduler loop. Nothing sets it on a real
	// kernel, where the scheduler runs until power-off; tests set it
	// (under mu) so each table's scheduler goroutine winds down
	// instead of outliving its test.
	halted bool

	Phys *mem.Allocator
	VM   *vm.Manager
}

// NewTable constructs an empty process table bound to the given
// allocator and address-space manager.
func NewTable(phys *mem.Allocator, vmm *vm.Manager) *Table {
	t := &Table{Phys: phys, VM: vmm, nextPid: 1}
	lock.Init(&t.mu, "ptable")
	return t
}

// funcpc returns the entry address of a plain (non-closure, non-method)
// function value, for installing it as a Context's saved PC. This is the
// same trick the Go runtime itself relies on to convert a func value to
// a linker symbol address; see DESIGN.md for why the core needs it at
// all instead of a named assembly label, as the original source has.
func funcpc(f interface{}) uint32 {
	return uint32(reflect.ValueOf(f).Pointer())
}
