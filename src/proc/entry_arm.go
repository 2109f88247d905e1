//go:build arm

package proc

import "arch"

// start installs entry as the code a freshly allocated process's context
// will transfer control to the first time the scheduler swtches to it.
// Swtch restores a bare program counter, so the saved PC cannot carry a
// closure's context pointer; it points at procEntry, which picks the
// real entry back up from the current process's record, the same way
// the reference kernel's forkret rederives everything from myproc().
func (t *Table) start(p *Proc, entry func()) {
	p.entry = entry
	p.Context.LR = funcpc(procEntry)
	p.Context.PC = p.Context.LR
}

// procEntry is the first code every process runs: a plain function,
// reachable from a raw saved PC, that hands off to the process's
// installed entry.
func procEntry() {
	Mycpu.Proc.entry()
}

// userReturn restores p's saved user-mode registers and drops to user
// mode. Control comes back only through the trap vector, never here.
func (t *Table) userReturn(p *Proc) {
	arch.ReturnToUser(p.TF)
}
