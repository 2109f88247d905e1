package proc

import (
	"arch"
	"defs"
	"lock"
	"vm"
)

// Scheduler is the per-CPU scheduling loop: round-robin over the process
// table, swtching into each RUNNABLE process in turn and returning here
// when that process yields, sleeps, or exits. It returns only if the
// table is halted, which nothing on a real kernel ever does. The
// first call runs with IRQs already disabled from boot; every
// subsequent iteration re-enables them before scanning the table, so a
// timer tick can always interrupt a spinning scheduler.
func (t *Table) Scheduler() {
	for {
		if !Mycpu.Started {
			Mycpu.Started = true
		} else {
			arch.Sti()
		}

		lock.Acquire(&t.mu)
		if t.halted {
			lock.Release(&t.mu)
			return
		}
		for i := range t.procs {
			p := &t.procs[i]
			if p.State != defs.RUNNABLE {
				continue
			}
			Mycpu.Proc = p
			vm.SwitchUVM(p.As)
			p.State = defs.RUNNING
			arch.Swtch(&Mycpu.Scheduler, p.Context)
			// p has relinquished the CPU; a real kernel would restore
			// the kernel-only mapping here (switchkvm); this build
			// keeps KernelPD live underneath every AS, so there is
			// nothing further to switch.
			Mycpu.Proc = nil
		}
		lock.Release(&t.mu)
	}
}

// sched swtches from the calling process back into the scheduler loop.
// The caller must hold t.mu, hold no other lock, have IRQs masked, and
// have already moved curr out of the RUNNING state. It restores the
// IRQ-enabled flag Pushcli recorded on return, exactly as entering sched
// found it.
func (t *Table) sched(curr *Proc) {
	if !lock.Holding(&t.mu) {
		panic("proc.sched: ptable not held")
	}
	if lock.Mycpu.Ncli != 1 {
		panic("proc.sched: locks held")
	}
	if curr.State == defs.RUNNING {
		panic("proc.sched: process running")
	}
	if arch.Readcpsr()&defs.PSRDisableIRQ == 0 {
		panic("proc.sched: interruptible")
	}
	irqWasEnabled := lock.Mycpu.IRQWasEnabled
	arch.Swtch(&curr.Context, Mycpu.Scheduler)
	lock.Mycpu.IRQWasEnabled = irqWasEnabled
}

// Yield gives up the CPU for one scheduling round, returning curr to
// RUNNABLE and reentering the scheduler.
func (t *Table) Yield(curr *Proc) {
	lock.Acquire(&t.mu)
	curr.State = defs.RUNNABLE
	t.sched(curr)
	lock.Release(&t.mu)
}

// sleep is the lock-released core of Sleep, used directly by callers
// (Wait) that are already holding t.mu.
func (t *Table) sleep(curr *Proc, chanID Chan, held *lock.Lock) {
	if held != &t.mu {
		lock.Acquire(&t.mu)
		lock.Release(held)
	}
	curr.Channel = chanID
	curr.State = defs.SLEEPING
	t.sched(curr)
	curr.Channel = NoChan
	if held != &t.mu {
		lock.Release(&t.mu)
		lock.Acquire(held)
	}
}

// Sleep blocks curr on chanID, releasing held until Wakeup(chanID) is
// called. Acquiring t.mu before releasing held closes the lost-wakeup
// window: a Wakeup that runs between the release of held and curr
// actually going to sleep cannot be missed, because Wakeup itself can
// only run while holding t.mu.
func (t *Table) Sleep(curr *Proc, chanID Chan, held *lock.Lock) {
	t.sleep(curr, chanID, held)
}

// wakeupLocked moves every SLEEPING process waiting on chanID to
// RUNNABLE. The caller must already hold t.mu.
func (t *Table) wakeupLocked(chanID Chan) {
	for i := range t.procs {
		p := &t.procs[i]
		if p.State == defs.SLEEPING && p.Channel == chanID {
			p.State = defs.RUNNABLE
		}
	}
}

// Wakeup acquires t.mu and wakes every process sleeping on chanID.
func (t *Table) Wakeup(chanID Chan) {
	lock.Acquire(&t.mu)
	t.wakeupLocked(chanID)
	lock.Release(&t.mu)
}

// Kill marks the process with the given pid as killed and, if it is
// currently SLEEPING, moves it to RUNNABLE so it can notice Killed and
// exit the next time it would otherwise return to user mode. It reports
// false if no process with that pid exists.
func (t *Table) Kill(pid int) bool {
	lock.Acquire(&t.mu)
	defer lock.Release(&t.mu)
	for i := range t.procs {
		p := &t.procs[i]
		if p.Pid == pid {
			p.Killed = true
			if p.State == defs.SLEEPING {
				p.State = defs.RUNNABLE
			}
			return true
		}
	}
	return false
}
