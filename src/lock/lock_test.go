package lock

import (
	"testing"

	"arch"
)

func resetCPU(t *testing.T) {
	t.Helper()
	Mycpu.Ncli = 0
	Mycpu.IRQWasEnabled = false
	arch.Sti()
}

func irqsMasked() bool {
	return arch.Readcpsr()&0x80 != 0
}

func TestAcquireReleaseRestoresIRQState(t *testing.T) {
	resetCPU(t)
	var l Lock
	Init(&l, "t")

	Acquire(&l)
	if !Holding(&l) {
		t.Fatal("Holding false while held")
	}
	if !irqsMasked() {
		t.Fatal("IRQs not masked under a held lock")
	}
	if Mycpu.Ncli != 1 {
		t.Fatalf("Ncli = %d while holding one lock, want 1", Mycpu.Ncli)
	}

	Release(&l)
	if Holding(&l) {
		t.Fatal("Holding true after release")
	}
	if irqsMasked() {
		t.Fatal("IRQs still masked after the outermost release")
	}
	if Mycpu.Ncli != 0 {
		t.Fatalf("Ncli = %d after release, want 0", Mycpu.Ncli)
	}
}

func TestNestedAcquireKeepsIRQsMaskedUntilOutermostRelease(t *testing.T) {
	resetCPU(t)
	var a, b Lock
	Init(&a, "a")
	Init(&b, "b")

	Acquire(&a)
	Acquire(&b)
	if Mycpu.Ncli != 2 {
		t.Fatalf("Ncli = %d with two locks held, want 2", Mycpu.Ncli)
	}

	Release(&b)
	if !irqsMasked() {
		t.Fatal("inner release re-enabled IRQs while the outer lock is held")
	}

	Release(&a)
	if irqsMasked() {
		t.Fatal("outer release left IRQs masked")
	}
}

func TestReacquirePanics(t *testing.T) {
	resetCPU(t)
	var l Lock
	Init(&l, "t")
	Acquire(&l)

	defer func() {
		if recover() == nil {
			t.Fatal("expected re-acquire to panic")
		}
		// The failed Acquire pushed a cli of its own; unwind both.
		Popcli()
		Release(&l)
	}()
	Acquire(&l)
}

func TestReleaseWithoutHoldingPanics(t *testing.T) {
	resetCPU(t)
	var l Lock
	Init(&l, "t")

	defer func() {
		if recover() == nil {
			t.Fatal("expected release of an unheld lock to panic")
		}
	}()
	Release(&l)
}

func TestPopcliUnderflowPanics(t *testing.T) {
	resetCPU(t)
	arch.Cli() // masked, but with no matching Pushcli on the books

	defer func() {
		if recover() == nil {
			t.Fatal("expected Popcli underflow to panic")
		}
		Mycpu.Ncli = 0
		arch.Sti()
	}()
	Popcli()
}
