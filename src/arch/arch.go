// Package arch declares the narrow set of ARMv7 primitives the core
// kernel treats as collaborators it does not implement itself: interrupt
// masking, cache/TLB maintenance, the page-table base register, and the
// kernel<->kernel context switch. Each function is implemented in
// arch_arm.s; this file only carries the Go-visible signatures, the same
// way the host platform's runtime declares assembly stubs.
//
// A non-ARM build (used for the package's own tests, which run on the
// development host) gets a software model of the same contract in
// arch_sim.go, selected by build tag.

//go:build arm

package arch

// Cli masks IRQ and FIQ on the current core.
func Cli()

// Sti unmasks IRQ and FIQ on the current core.
func Sti()

// Readcpsr returns the current program status register.
func Readcpsr() uint32

// DsbBarrier executes a data synchronization barrier.
func DsbBarrier()

// FlushTLB invalidates the entire TLB.
func FlushTLB()

// FlushDCache cleans and invalidates the data cache.
func FlushDCache()

// FlushIDCache invalidates the instruction and data caches.
func FlushIDCache()

// SetPgtbase loads the physical address of a page directory into the
// hardware translation table base register.
func SetPgtbase(pa uint32)

// InstallVectors fills the fixed high exception-vector page with a
// placeholder vector table and flushes the caches. Every slot of that
// table branches to itself; no slot leads to a trap-entry routine, so an
// exception taken after this call spins in its vector.
func InstallVectors()

// SetModeSP sets the banked stack pointer for the CPU mode identified by
// cpsrMode (a CPSR mode-field bit pattern), disabling IRQ and FIQ for
// that mode in the process. Every mode a trap can be taken to needs its
// own stack set up once, before traps are enabled.
func SetModeSP(sp uintptr, cpsrMode uint32)

// ReturnToUser restores every register tf describes and performs an
// exception return into user mode at tf.PC with tf.SavedCPSR. On real
// hardware it never returns to its caller; a trap into the kernel is
// what brings control back, and that always lands in a fresh trap
// handler invocation rather than back here.
func ReturnToUser(tf *TrapFrame)

// Swtch saves the callee-saved registers of the calling context into
// *old and restores the callee-saved registers from new, transferring
// control to new's saved PC. It returns when some other call to Swtch
// names old as its destination.
//
// Swtch never models the switch as a Go coroutine: the kernel stack that
// is "current" is a first-class piece of kernel state, and the lock and
// scheduling discipline elsewhere in the kernel depends on that being
// explicit rather than hidden behind goroutine scheduling.
func Swtch(old **Context, new *Context)
