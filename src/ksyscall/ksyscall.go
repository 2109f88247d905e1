// Package ksyscall implements the syscall number table trap.Dispatcher
// forwards T_SYSCALL traps into. It is grounded on sysproc.c in the
// reference C kernel: each entry point is a thin adapter that decodes
// its arguments out of the trap frame and calls straight into proc or vm
// for the real work, never touching hardware itself.
package ksyscall

import (
	"defs"
	"lock"
	"proc"
	"trap"
	"vm"
)

// Syscall arguments are banked in r0-r3 and the syscall number in r7,
// matching the real ARM EABI syscall convention rather than the
// reference kernel's x86 eax-as-syscall-number layout; see DESIGN.md.
func arg(p *proc.Proc, n int) uint32 {
	switch n {
	case 0:
		return p.TF.R0
	case 1:
		return p.TF.R1
	case 2:
		return p.TF.R2
	case 3:
		return p.TF.R3
	default:
		panic("ksyscall.arg: argument index out of range")
	}
}

// Table binds the syscall numbers to the process table and VM manager
// their handlers operate on.
type Table struct {
	Procs *proc.Table
	VM    *vm.Manager
}

// Dispatch is installed as a trap.Dispatcher's Syscall hook. It decodes
// the syscall number from the trap frame, calls the matching handler,
// and writes the result back into r0 for the process to see on return
// to user mode.
func (k *Table) Dispatch(p *proc.Proc) {
	num := p.TF.R7
	var ret int
	switch num {
	case defs.SYS_FORK:
		ret = k.sysFork(p)
	case defs.SYS_EXIT:
		k.sysExit(p)
		return // exit never returns to write a result back
	case defs.SYS_WAIT:
		ret = k.sysWait(p)
	case defs.SYS_KILL:
		ret = k.sysKill(p)
	case defs.SYS_GETPID:
		ret = p.Pid
	case defs.SYS_SBRK:
		ret = k.sysSbrk(p)
	case defs.SYS_SLEEP:
		ret = k.sysSleep(p)
	case defs.SYS_UPTIME:
		ret = int(trap.ReadTicks())
	default:
		ret = int(defs.EINVAL)
	}
	p.TF.R0 = uint32(ret)
}

func (k *Table) sysFork(p *proc.Proc) int {
	return k.Procs.Fork(p)
}

func (k *Table) sysExit(p *proc.Proc) {
	k.Procs.Exit(p)
}

func (k *Table) sysWait(p *proc.Proc) int {
	return k.Procs.Wait(p)
}

func (k *Table) sysKill(p *proc.Proc) int {
	pid := int(arg(p, 0))
	if !k.Procs.Kill(pid) {
		return int(defs.ESRCH)
	}
	return 0
}

// sysSbrk grows or shrinks the calling process's address space by n
// bytes (n may be negative) and returns the size before the change.
func (k *Table) sysSbrk(p *proc.Proc) int {
	n := int32(arg(p, 0))
	old := p.Sz
	var newSz uint32
	var ok bool
	if n >= 0 {
		newSz, ok = k.VM.Grow(p.As, old, old+uint32(n))
	} else {
		dec := uint32(-n)
		if dec > old {
			dec = old
		}
		newSz = k.VM.Shrink(p.As, old, old-dec)
		ok = true
	}
	if !ok {
		return int(defs.ENOMEM)
	}
	p.Sz = newSz
	vm.SwitchUVM(p.As)
	return int(old)
}

// sysSleep blocks the calling process for at least n ticks. The loop
// condition is ticks-ticks0 < n: the reference kernel shipped with
// "ticks - (ticks0 < n)", where C's operator precedence silently turned
// the subtraction into a comparison against a 0-or-1 boolean, making
// sleep return almost immediately regardless of n. See DESIGN.md.
func (k *Table) sysSleep(p *proc.Proc) int {
	n := arg(p, 0)
	lock.Acquire(&trap.TicksLock)
	ticks0 := trap.Ticks
	for trap.Ticks-ticks0 < n {
		if p.Killed {
			lock.Release(&trap.TicksLock)
			return int(defs.EINTR)
		}
		k.Procs.Sleep(p, trap.TicksChan, &trap.TicksLock)
	}
	lock.Release(&trap.TicksLock)
	return 0
}
