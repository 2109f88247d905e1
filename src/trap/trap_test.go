package trap

import (
	"testing"
	"time"

	"arch"
	"defs"
	"proc"
)

func timeoutChan() <-chan time.Time {
	return time.After(2 * time.Second)
}

type fakeIRQ struct {
	p0, p1, pb []uint32
	i          int
}

func (f *fakeIRQ) next() (uint32, uint32, uint32) {
	if f.i >= len(f.p0) {
		return 0, 0, 0
	}
	v0 := f.p0[f.i]
	var v1, vb uint32
	if f.i < len(f.p1) {
		v1 = f.p1[f.i]
	}
	if f.i < len(f.pb) {
		vb = f.pb[f.i]
	}
	f.i++
	return v0, v1, vb
}

func (f *fakeIRQ) Pending0() uint32     { v, _, _ := f.next(); return v }
func (f *fakeIRQ) Pending1() uint32     { return 0 }
func (f *fakeIRQ) PendingBasic() uint32 { return 0 }

func TestHandleIRQDrainsTimerAndUART(t *testing.T) {
	var timerFired, uartFired int
	irq := &fakeIRQ{p0: []uint32{
		1 << defs.IRQTimerBit,
		1 << defs.IRQMiniUARTBit,
		0,
	}}
	d := &Dispatcher{
		IRQ: irq,
		Hooks: Hooks{
			Timer:    func() { timerFired++ },
			MiniUART: func() { uartFired++ },
		},
	}
	isTimer := d.handleIRQ()
	if !isTimer {
		t.Fatal("expected isTimer = true")
	}
	if timerFired != 1 || uartFired != 1 {
		t.Fatalf("timerFired=%d uartFired=%d, want 1 and 1", timerFired, uartFired)
	}
}

// TestHandleIRQStopsOnUnrecognizedBits is a regression test for the
// infinite-loop hazard in the reference kernel's handle_irq: a pending
// bit from a source this core doesn't recognize must not spin the trap
// handler forever.
func TestHandleIRQStopsOnUnrecognizedBits(t *testing.T) {
	irq := &fakeIRQ{p0: []uint32{1 << 17, 1 << 17, 1 << 17}}
	d := &Dispatcher{IRQ: irq}

	done := make(chan bool, 1)
	go func() { done <- d.handleIRQ() }()

	select {
	case isTimer := <-done:
		if isTimer {
			t.Fatal("unrecognized bit reported as a timer interrupt")
		}
	case <-timeoutChan():
		t.Fatal("handleIRQ did not return: spun on an unrecognized pending bit")
	}
}

func TestHandleBadTrapKillsUserProcess(t *testing.T) {
	p := &proc.Proc{Pid: 7, Name: "badproc"}
	proc.Mycpu.Proc = p
	defer func() { proc.Mycpu.Proc = nil }()

	var logged string
	d := &Dispatcher{Log: func(s string) { logged += s }}
	tf := &arch.TrapFrame{SavedCPSR: defs.PSRUserMode, Trapno: 99}
	d.handleBadTrap(tf)

	if !p.Killed {
		t.Fatal("expected process to be marked killed")
	}
	if logged == "" {
		t.Fatal("expected handleBadTrap to print a diagnostic via Log")
	}
}

func TestHandleBadTrapPanicsFromKernelSpace(t *testing.T) {
	proc.Mycpu.Proc = &proc.Proc{}
	defer func() { proc.Mycpu.Proc = nil }()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for a bad trap from kernel space")
		}
	}()

	d := &Dispatcher{}
	tf := &arch.TrapFrame{SavedCPSR: 0x13} // supervisor mode, not user
	d.handleBadTrap(tf)
}
