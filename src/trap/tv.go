package trap

import (
	"unsafe"

	"arch"
	"defs"
	"lock"
	"mem"
	"proc"
)

// trapModes lists every CPSR mode field value tv_init allocates a
// private stack for: FIQ, IRQ, undefined-instruction, abort, secure
// monitor, and system mode.
var trapModes = [...]uint32{0xD1, 0xD2, 0xDB, 0xD7, 0xD6, 0xDF}

// TVInit installs the exception vector table at the fixed high vector
// address and gives every trap-taking CPU mode its own private one-page
// stack. It must run once, early in boot, before IRQs are unmasked.
func TVInit(phys *mem.Allocator) {
	arch.InstallVectors()
	for _, mode := range trapModes {
		initModeStack(phys, mode)
	}
}

func initModeStack(phys *mem.Allocator, mode uint32) {
	pg, ok := phys.Alloc()
	if !ok {
		panic("trap.TVInit: out of memory allocating a mode stack")
	}
	b := (*[defs.PGSIZE]byte)(unsafe.Pointer(pg))
	for i := range b {
		b[i] = 0
	}
	arch.SetModeSP(pg+defs.PGSIZE, mode)
	arch.DsbBarrier()
}

// Ticks counts timer interrupts since boot. It belongs here rather than
// in proc because incrementing it is purely a trap-dispatch concern; the
// process table only cares about TicksChan, the rendezvous sys_sleep and
// the timer ISR use to meet.
//
// TicksLock is exported because sys_sleep must acquire it itself before
// looping: it is the same lock sys_sleep passes to proc.Table.Sleep so
// that a tick landing between the wait check and going to sleep is never
// missed, exactly as the reference kernel's sys_sleep/ticks_lock pairing
// works.
var (
	Ticks     uint32
	TicksLock lock.Lock
)

func init() {
	lock.Init(&TicksLock, "tickslock")
}

// TicksChan is the sleep channel the uptime/sleep syscalls and the timer
// ISR rendezvous on.
var TicksChan = proc.ChanOf(unsafe.Pointer(&Ticks))

// NewTimerHook returns the function to install as Hooks.Timer: it
// increments Ticks under TicksLock and wakes anyone sleeping on
// TicksChan, exactly mirroring the reference kernel's per-tick
// wakeup(&ticks) call that lets sys_sleep notice time passing.
func NewTimerHook(table *proc.Table) func() {
	return func() {
		lock.Acquire(&TicksLock)
		Ticks++
		lock.Release(&TicksLock)
		table.Wakeup(TicksChan)
	}
}

// ReadTicks returns the current tick count, synchronized the same way
// the ISR updates it.
func ReadTicks() uint32 {
	lock.Acquire(&TicksLock)
	defer lock.Release(&TicksLock)
	return Ticks
}
