package proc

import (
	"unsafe"

	"arch"
	"defs"
	"lock"
)

const kstackSize = defs.PGSIZE

var tfSize = uintptr(unsafe.Sizeof(arch.TrapFrame{}))
var ctxSize = uintptr(unsafe.Sizeof(arch.Context{}))

// allocProc scans for an UNUSED slot, reserves a pid, and lays out a
// fresh kernel stack holding a zeroed trap frame and context. The caller
// still owes the new process an entry point via t.start before marking
// it RUNNABLE. It returns nil if the table is full or the kernel stack
// page cannot be allocated.
func (t *Table) allocProc() *Proc {
	lock.Acquire(&t.mu)
	var p *Proc
	for i := range t.procs {
		if t.procs[i].State == defs.UNUSED {
			p = &t.procs[i]
			break
		}
	}
	if p == nil {
		lock.Release(&t.mu)
		return nil
	}
	p.State = defs.EMBRYO
	p.Pid = t.nextPid
	t.nextPid++
	lock.Release(&t.mu)

	ka, ok := t.Phys.Alloc()
	if !ok {
		lock.Acquire(&t.mu)
		p.State = defs.UNUSED
		lock.Release(&t.mu)
		return nil
	}
	p.kstack = ka

	top := ka + kstackSize
	tfAddr := top - tfSize
	ctxAddr := tfAddr - ctxSize

	p.TF = (*arch.TrapFrame)(unsafe.Pointer(tfAddr))
	*p.TF = arch.TrapFrame{}

	p.Context = (*arch.Context)(unsafe.Pointer(ctxAddr))
	*p.Context = arch.Context{}

	return p
}

var firstProc = true

// forkReturn is where a freshly scheduled process starts running. It
// releases the table lock the scheduler is still holding across the
// swtch into this process (mirroring the scheduler/sched contract: a
// process always regains control holding the lock, and is responsible
// for dropping it), runs any one-time first-process setup, and then
// hands off to the trap-return path that restores the process's saved
// user-mode registers.
func (t *Table) forkReturn(p *Proc) {
	lock.Release(&t.mu)
	if firstProc {
		firstProc = false
		// A real boot would run filesystem/log recovery here, from a
		// process context rather than main(), because it needs to be
		// able to call Sleep. The filesystem layer is out of scope.
	}
	t.userReturn(p)
}

// UserInit creates the first process: it maps one page at virtual
// address zero, copies init into it, and arranges for the trap frame to
// resume at the start of that page in user mode with the stack pointer
// at the top of the page. The process is left RUNNABLE for the
// scheduler to pick up.
func (t *Table) UserInit(init []byte) *Proc {
	p := t.allocProc()
	if p == nil {
		panic("proc.UserInit: out of process slots")
	}
	t.initProc = p

	as, ok := t.VM.SetupUserAS()
	if !ok {
		panic("proc.UserInit: out of memory")
	}
	if !t.VM.InitUVM(as, init) {
		panic("proc.UserInit: out of memory")
	}
	p.As = as
	p.Sz = defs.PGSIZE

	*p.TF = arch.TrapFrame{}
	p.TF.SavedCPSR = defs.PSRUserMode
	p.TF.UserSP = defs.PGSIZE
	p.TF.PC = 0
	p.Name = "init"

	t.start(p, func() { t.forkReturn(p) })

	lock.Acquire(&t.mu)
	p.State = defs.RUNNABLE
	lock.Release(&t.mu)
	return p
}

// Fork creates a new process as a copy of parent: a deep clone of its
// address space, a duplicated trap frame (with the child's return value
// register cleared so it observes a 0 return from the fork syscall), and
// a fresh pid. The new process is left RUNNABLE; Fork returns its pid,
// or a negative Err_t if the table or physical memory is exhausted.
func (t *Table) Fork(parent *Proc) int {
	child := t.allocProc()
	if child == nil {
		return int(defs.ENOMEM)
	}

	as, ok := t.VM.Clone(parent.As)
	if !ok {
		t.Phys.Free(child.kstack)
		lock.Acquire(&t.mu)
		child.State = defs.UNUSED
		lock.Release(&t.mu)
		return int(defs.ENOMEM)
	}
	child.As = as
	child.Sz = parent.Sz
	child.Parent = parent
	*child.TF = *parent.TF
	child.TF.R0 = 0 // child sees fork() return 0
	child.Ofile = parent.Ofile
	child.Cwd = parent.Cwd
	child.Name = parent.Name

	t.start(child, func() { t.forkReturn(child) })

	pid := child.Pid
	lock.Acquire(&t.mu)
	child.State = defs.RUNNABLE
	lock.Release(&t.mu)
	return pid
}

// Exit terminates the calling process: it wakes its parent if the parent
// is waiting, reparents its own children to the init process (waking
// init if any reparented child is already a zombie), marks itself a
// zombie, and enters the scheduler. It never returns. Exiting the init
// process is a fatal kernel error.
func (t *Table) Exit(curr *Proc) {
	if curr == t.initProc {
		panic("proc.Exit: init exiting")
	}

	lock.Acquire(&t.mu)
	t.wakeupLocked(ChanOf(unsafe.Pointer(curr.Parent)))
	for i := range t.procs {
		p := &t.procs[i]
		if p.Parent == curr {
			p.Parent = t.initProc
			if p.State == defs.ZOMBIE {
				t.wakeupLocked(ChanOf(unsafe.Pointer(t.initProc)))
			}
		}
	}
	curr.State = defs.ZOMBIE
	t.sched(curr)
	panic("proc.Exit: zombie process resumed")
}

// Wait blocks until a child of curr exits, reclaims its process-table
// slot and address space, and returns its pid. It returns a negative
// Err_t immediately if curr has no children, or if curr has been killed.
func (t *Table) Wait(curr *Proc) int {
	lock.Acquire(&t.mu)
	for {
		hasChildren := false
		for i := range t.procs {
			p := &t.procs[i]
			if p.Parent != curr {
				continue
			}
			hasChildren = true
			if p.State == defs.ZOMBIE {
				pid := p.Pid
				t.Phys.Free(p.kstack)
				t.VM.Free(p.As)
				*p = Proc{}
				lock.Release(&t.mu)
				return pid
			}
		}
		if !hasChildren || curr.Killed {
			lock.Release(&t.mu)
			return int(defs.ECHILD)
		}
		t.sleep(curr, ChanOf(unsafe.Pointer(curr)), &t.mu)
	}
}
