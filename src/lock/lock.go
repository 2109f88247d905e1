// Package lock implements the kernel's single serialization primitive: a
// spinlock whose "spin" is vacuous because acquiring it also raises the
// per-CPU IRQ-disable nesting depth. Correctness does not come from an
// atomic test-and-set (there isn't one here); it comes entirely from IRQs
// being the only source of preemption on this uniprocessor build. See
// DESIGN.md for why this is preserved rather than "fixed".
package lock

import "arch"

// CPU is the per-core record tracking the nested interrupt-disable depth
// and the state needed to restore it correctly. The design is uniprocessor
// only: there is exactly one instance, Mycpu, hard-wired to index 0.
type CPU struct {
	ID      int
	Ncli    int  // depth of pushcli-style nesting
	IRQWasEnabled bool // IRQ-enabled state before the outermost acquire
}

// Mycpu is the single per-CPU record. A multiprocessor port would replace
// this package wholesale with true atomics and a Mycpu() lookup keyed off
// a hardware CPU ID; see DESIGN.md.
var Mycpu = &CPU{ID: 0}

// Lock is a mutual-exclusion lock whose holder is recorded for debugging
// and for the fatal re-acquire / wrong-releaser checks below.
type Lock struct {
	locked bool
	holder *CPU
	Name   string
}

// Init clears l and assigns it a debug name.
func Init(l *Lock, name string) {
	l.locked = false
	l.holder = nil
	l.Name = name
}

// Pushcli increments the nested interrupt-disable depth, masking IRQs on
// the first call and remembering whether they were enabled beforehand.
func Pushcli() {
	wasEnabled := arch.Readcpsr()&0x80 == 0
	arch.Cli()
	if Mycpu.Ncli == 0 {
		Mycpu.IRQWasEnabled = wasEnabled
	}
	Mycpu.Ncli++
}

// Popcli decrements the nested interrupt-disable depth, re-enabling IRQs
// only when the depth returns to zero and IRQs were enabled at the
// outermost Pushcli. It is fatal to call Popcli with IRQs already enabled
// or to underflow the counter.
func Popcli() {
	if arch.Readcpsr()&0x80 == 0 {
		panic("popcli - interruptible")
	}
	Mycpu.Ncli--
	if Mycpu.Ncli < 0 {
		panic("popcli")
	}
	if Mycpu.Ncli == 0 && Mycpu.IRQWasEnabled {
		arch.Sti()
	}
}

// Holding reports whether the current CPU holds l.
func Holding(l *Lock) bool {
	return l.locked && l.holder == Mycpu
}

// Acquire disables IRQs (nesting via Pushcli) and then claims l. It is
// fatal to acquire a lock this CPU already holds.
func Acquire(l *Lock) {
	Pushcli()
	if Holding(l) {
		panic("acquire: already holding " + l.Name)
	}
	l.locked = true
	l.holder = Mycpu
}

// Release is fatal if the current CPU does not hold l. It clears the lock
// and then pops the interrupt-disable nesting, possibly re-enabling IRQs.
func Release(l *Lock) {
	if !Holding(l) {
		panic("release: not holding " + l.Name)
	}
	l.holder = nil
	l.locked = false
	Popcli()
}
