//go:build !arm

package proc

import "arch"

// start registers entry as the body of the goroutine-backed fiber arch's
// host simulation uses to stand in for a kernel stack. See arch_sim.go's
// Swtch/Start for the channel handshake this hooks into; there is no
// funcpc trick to play on a build that has no raw PC register to load.
func (t *Table) start(p *Proc, entry func()) {
	arch.Start(p.Context, entry)
}

// userReturn is the hosted stand-in for dropping to user mode: there is
// no user program to run on a development host, so a process whose
// kernel half is done simply exits. Without this, a forked child would
// fall off the end of its fiber still marked RUNNING and the scheduler
// would wait for it forever. Test processes that need a nontrivial body
// install one directly with start instead of going through forkReturn.
func (t *Table) userReturn(p *Proc) {
	arch.ReturnToUser(p.TF)
	t.Exit(p)
}
