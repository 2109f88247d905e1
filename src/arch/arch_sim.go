//go:build !arm

package arch

import (
	"runtime"
	"sync"
)

// This file backs the arch.go declarations with a software model so the
// rest of the kernel's packages can be unit tested on a development
// host. It is never linked into a real ARM image (see arch_arm.s, which
// supplies the same symbols for GOARCH=arm).
//
// The model's one non-obvious piece is the CPU gate below: on real
// hardware, masking IRQs makes the running code the only thread of
// control on the chip, and the whole locking layer leans on that. A
// test binary has no such property — the scheduler loop, process
// fibers, and the test's own goroutine all run concurrently — so the
// gate gives Cli the blocking semantics the hardware gives it for
// free: at most one goroutine is "on the CPU with IRQs masked" at a
// time, and everyone else's Cli waits its turn.

// cpuGate serializes the goroutines standing in for kernel control
// flow. owner is the goroutine id currently holding the IRQ mask, 0
// when unmasked, or ownerInTransit while a Swtch is handing the mask
// from one fiber to another.
var cpuGate struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner int64
}

const ownerInTransit = -1

func init() {
	cpuGate.cond = sync.NewCond(&cpuGate.mu)
}

// goid returns the current goroutine's id, parsed out of the
// "goroutine N [...]" header runtime.Stack prints. The runtime does not
// expose this on purpose; the gate needs an identity only so a nested
// Cli by the mask's own holder does not deadlock against itself, and a
// stack-header parse is the standard way test-support code obtains one.
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	const prefix = len("goroutine ")
	var id int64
	for _, c := range buf[prefix:n] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}

// Cli masks the simulated IRQ flag, blocking until no other goroutine
// holds the mask. Nested calls by the holder return immediately, the
// same way a real CPSR write is idempotent.
func Cli() {
	id := goid()
	cpuGate.mu.Lock()
	for cpuGate.owner != 0 && cpuGate.owner != id {
		cpuGate.cond.Wait()
	}
	cpuGate.owner = id
	cpuGate.mu.Unlock()
}

// Sti unmasks the simulated IRQ flag. Only the holder's Sti releases
// the gate: each goroutine models its own core's CPSR, so an Sti by a
// goroutine that never masked is a no-op rather than a theft of
// someone else's critical section.
func Sti() {
	id := goid()
	cpuGate.mu.Lock()
	if cpuGate.owner == id {
		cpuGate.owner = 0
		cpuGate.cond.Broadcast()
	}
	cpuGate.mu.Unlock()
}

// Readcpsr reports PSRDisableIRQ in bit 7 from the calling goroutine's
// point of view, matching the real CPSR layout closely enough for the
// code in this repository that inspects it.
func Readcpsr() uint32 {
	id := goid()
	cpuGate.mu.Lock()
	defer cpuGate.mu.Unlock()
	if cpuGate.owner == id {
		return 1 << 7
	}
	return 0
}

// relinquish gives up the caller's hold on the IRQ mask ahead of a
// Swtch, leaving it in transit for the destination fiber to adopt. It
// reports whether there was a hold to hand over.
func relinquish() bool {
	id := goid()
	cpuGate.mu.Lock()
	defer cpuGate.mu.Unlock()
	if cpuGate.owner != id {
		return false
	}
	cpuGate.owner = ownerInTransit
	return true
}

// adopt completes a mask handover begun by relinquish on the other
// side of a Swtch.
func adopt() {
	id := goid()
	cpuGate.mu.Lock()
	cpuGate.owner = id
	cpuGate.mu.Unlock()
}

func DsbBarrier()       {}
func FlushTLB()         {}
func FlushDCache()      {}
func FlushIDCache()     {}
func SetPgtbase(uint32) {}

// ReturnToUser has nothing to restore on the host: there is no user
// mode to return to, so the caller's build-tagged return path decides
// what a "user half" of the process does instead (see proc's
// entry_sim.go).
func ReturnToUser(*TrapFrame) {}

// InstallVectors and SetModeSP have no hardware vector table or banked
// registers to touch on the host; trap-vector tests exercise the Go
// dispatch logic directly instead.
func InstallVectors()           {}
func SetModeSP(uintptr, uint32) {}

// fiber models one paused-or-running line of control, identified by the
// *Context that will be used to resume it. Real hardware needs no such
// bookkeeping because the saved registers ARE the resume point; here we
// stand a goroutine in for the "kernel stack" and use a channel
// handshake to model exactly one fiber running at a time, matching the
// uniprocessor cooperative contract the scheduler package depends on.
// The bool carried through the handshake is whether the IRQ mask came
// along with the switch, which on real hardware is implicit in CPSR
// simply staying put across Swtch.
type fiber struct {
	resume chan bool
}

var (
	fibersMu sync.Mutex
	fibers   = map[*Context]*fiber{}
)

func fiberFor(c *Context) *fiber {
	fibersMu.Lock()
	defer fibersMu.Unlock()
	f, ok := fibers[c]
	if !ok {
		f = &fiber{resume: make(chan bool)}
		fibers[c] = f
	}
	return f
}

// Swtch hands control to new and blocks the caller until some later
// Swtch names *old as its destination again. If the caller held the
// IRQ mask, the mask travels with the switch.
func Swtch(old **Context, new *Context) {
	if *old == nil {
		*old = &Context{}
	}
	self := fiberFor(*old)
	dst := fiberFor(new)

	masked := relinquish()
	dst.resume <- masked
	if <-self.resume {
		adopt()
	}
}

// Start launches a goroutine that will run body the first time some
// Swtch call names ctx as its destination. It exists only for tests:
// it is how a unit test stands up a "process" or "scheduler" fiber
// without real assembly. Start always installs a fresh fiber: a kernel
// stack page can be reclaimed and reused for a new process, and the
// recycled Context address must not resurrect the exited process's
// old resume point.
func Start(ctx *Context, body func()) {
	f := &fiber{resume: make(chan bool)}
	fibersMu.Lock()
	fibers[ctx] = f
	fibersMu.Unlock()
	go func() {
		if <-f.resume {
			adopt()
		}
		body()
	}()
}
