// Package trap demultiplexes every exception ARM can take: syscalls,
// IRQs, and faults, identified by the trap number the assembly vector
// stub stamps into the trap frame before calling in to Go. It is
// grounded on trap.c in the reference C kernel, restructured into a
// Dispatcher value so the IRQ controller and syscall table it depends
// on can be faked out in tests rather than read straight from MMIO.
package trap

import (
	"arch"
	"defs"
	"proc"
)

// IRQController abstracts the interrupt controller's pending registers,
// named after the BCM2835/2836 register groups the reference kernel
// reads directly.
type IRQController interface {
	Pending0() uint32
	Pending1() uint32
	PendingBasic() uint32
}

// Hooks are the device service routines invoked when their IRQ source
// is pending. A nil hook is treated as "nothing to do"; the bit is
// still considered recognized.
type Hooks struct {
	Timer    func()
	MiniUART func()
}

// Dispatcher owns everything Dispatch needs to route one trap: the
// process table traps act on, the interrupt controller to drain, the
// device hooks IRQs invoke, and the syscall table to forward
// T_SYSCALL traps to.
type Dispatcher struct {
	Table   *proc.Table
	IRQ     IRQController
	Hooks   Hooks
	Syscall func(p *proc.Proc)

	// Log, if non-nil, receives one line of text for every diagnostic
	// Dispatch wants printed — currently just handleBadTrap's report.
	// A nil Log is a silent no-op, not an error.
	Log func(string)
}

func (d *Dispatcher) logf(s string) {
	if d.Log != nil {
		d.Log(s)
	}
}

// Dispatch routes one trap frame to the appropriate handler, then
// enforces the two points where a process must give up the CPU on the
// way back to user mode: a killed process never resumes user code, and a
// timer tick during a RUNNING process forces a yield.
func (d *Dispatcher) Dispatch(tf *arch.TrapFrame) {
	if tf.Trapno == defs.T_SYSCALL {
		d.handleSyscall(tf)
		return
	}

	isTimer := false
	switch tf.Trapno {
	case defs.T_IRQ:
		isTimer = d.handleIRQ()
	default:
		d.handleBadTrap(tf)
	}

	cur := proc.Mycpu.Proc
	if cur == nil {
		return
	}
	if cur.Killed && inUserMode(tf) {
		d.Table.Exit(cur)
	}
	if cur.State == defs.RUNNING && isTimer {
		d.Table.Yield(cur)
	}
	if cur.Killed && inUserMode(tf) {
		d.Table.Exit(cur)
	}
}

func inUserMode(tf *arch.TrapFrame) bool {
	return tf.SavedCPSR&defs.PSRModeMask == defs.PSRUserMode
}

func (d *Dispatcher) handleSyscall(tf *arch.TrapFrame) {
	cur := proc.Mycpu.Proc
	if cur.Killed {
		d.Table.Exit(cur)
	}
	cur.TF = tf
	d.Syscall(cur)
	if cur.Killed {
		d.Table.Exit(cur)
	}
}

// handleIRQ drains every pending IRQ source recognized on this board,
// servicing timer and mini-UART interrupts as they appear. Unlike the
// reference kernel, an iteration with pending bits set but none of them
// recognized returns instead of looping on them forever. An unrecognized
// source (several of the pending bits are undocumented GPU signals) must
// not be able to wedge the core.
func (d *Dispatcher) handleIRQ() (isTimer bool) {
	for {
		p0, p1, pb := d.IRQ.Pending0(), d.IRQ.Pending1(), d.IRQ.PendingBasic()
		if p0 == 0 && p1 == 0 && pb == 0 {
			return isTimer
		}
		recognized := false
		if p0&(1<<defs.IRQTimerBit) != 0 {
			if d.Hooks.Timer != nil {
				d.Hooks.Timer()
			}
			isTimer = true
			recognized = true
		}
		if p0&(1<<defs.IRQMiniUARTBit) != 0 {
			if d.Hooks.MiniUART != nil {
				d.Hooks.MiniUART()
			}
			recognized = true
		}
		if !recognized {
			return isTimer
		}
	}
}

// handleBadTrap handles any trap number this core doesn't recognize. A
// bad trap from kernel space is a kernel bug; a bad trap from user space
// is a misbehaving process, reported and marked killed rather than
// crashing the kernel (original_source/source/trap.c's handle_bad_trap).
func (d *Dispatcher) handleBadTrap(tf *arch.TrapFrame) {
	if proc.Mycpu.Proc == nil || !inUserMode(tf) {
		panic("trap: unexpected trap from kernel space")
	}
	p := proc.Mycpu.Proc
	d.logf("trap: unexpected trap " + uitoa(tf.Trapno) + " from user space, pid " + uitoa(uint32(p.Pid)) + " (" + p.Name + ")\n")
	p.Killed = true
}

// uitoa renders v in decimal without pulling in strconv/fmt, which the
// ARM build has no use for elsewhere.
func uitoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
