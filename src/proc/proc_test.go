package proc

import (
	"testing"
	"time"
	"unsafe"

	"defs"
	"lock"
	"mem"
	"vm"
)

func newTestTable(t *testing.T, pages int) *Table {
	t.Helper()
	phys := mem.New()
	buf := make([]byte, (pages+1)*defs.PGSIZE)
	t.Cleanup(func() { _ = buf })
	base := uintptr(unsafe.Pointer(&buf[0]))
	start := (base + defs.PGSIZE - 1) &^ (defs.PGSIZE - 1)
	end := start + uintptr(pages)*defs.PGSIZE
	phys.InitRegion(start, end)

	vmm := vm.New(phys, start)
	if !vmm.InitKernelMappings(nil) {
		t.Fatal("InitKernelMappings failed")
	}

	Mycpu.Scheduler = nil
	Mycpu.Started = false
	Mycpu.Proc = nil
	lock.Mycpu.Ncli = 0

	tbl := NewTable(phys, vmm)
	schedDone := make(chan struct{})
	go func() {
		tbl.Scheduler()
		close(schedDone)
	}()
	t.Cleanup(func() {
		lock.Acquire(&tbl.mu)
		tbl.halted = true
		lock.Release(&tbl.mu)
		// The next test resets the shared per-CPU records; wait for
		// this table's scheduler to wind down before letting it.
		select {
		case <-schedDone:
		case <-time.After(5 * time.Second):
		}
	})
	return tbl
}

// spawn installs a test-only process body directly, standing in for the
// trap-dispatch-driven code a real user process would run: there is no
// user mode to return to on the host, so the test body calls straight
// into the same Table methods a syscall handler would. Like forkReturn,
// the body's first obligation is releasing the table lock the scheduler
// is still holding across the swtch in.
func (t *Table) spawn(body func(p *Proc)) *Proc {
	p := t.allocProc()
	if p == nil {
		panic("spawn: table full")
	}
	as, ok := t.VM.SetupUserAS()
	if !ok {
		panic("spawn: out of memory")
	}
	p.As = as
	t.start(p, func() {
		lock.Release(&t.mu)
		body(p)
	})
	lock.Acquire(&t.mu)
	p.State = defs.RUNNABLE
	lock.Release(&t.mu)
	return p
}

// await polls until cond is true or the deadline passes, failing the
// test on timeout. The scheduler runs on its own goroutine, so tests
// observe process-table state asynchronously.
func await(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func procState(tbl *Table, p *Proc) defs.Procstate {
	lock.Acquire(&tbl.mu)
	defer lock.Release(&tbl.mu)
	return p.State
}

func TestForkedChildRunsAndExits(t *testing.T) {
	tbl := newTestTable(t, 96)
	result := make(chan string, 1)

	tbl.spawn(func(p *Proc) {
		pid := tbl.Fork(p)
		if pid <= 0 {
			result <- "fork failed"
			tbl.Exit(p)
		}
		// The child runs forkReturn, which on the host exits
		// immediately; Wait must reap exactly that pid.
		if reaped := tbl.Wait(p); reaped != pid {
			result <- "wait returned the wrong pid"
		} else {
			result <- ""
		}
		tbl.Exit(p)
	})

	select {
	case msg := <-result:
		if msg != "" {
			t.Fatal(msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("parent never finished waiting for its child")
	}
}

func TestForkChildSeesZeroReturn(t *testing.T) {
	tbl := newTestTable(t, 96)
	r0 := make(chan uint32, 1)

	tbl.spawn(func(p *Proc) {
		p.TF.R0 = 42
		pid := tbl.Fork(p)
		if pid <= 0 {
			t.Errorf("fork failed: %d", pid)
		}

		// The child has not run yet: the parent keeps the CPU until it
		// gives it up, so the child's saved frame is still intact.
		var v uint32
		lock.Acquire(&tbl.mu)
		for i := range tbl.procs {
			if tbl.procs[i].Pid == pid {
				v = tbl.procs[i].TF.R0
			}
		}
		lock.Release(&tbl.mu)
		r0 <- v

		tbl.Wait(p)
		tbl.Exit(p)
	})

	select {
	case v := <-r0:
		if v != 0 {
			t.Fatalf("child r0 = %d, want 0", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("parent never reported the child's saved r0")
	}
}

func TestSleepWakeupRendezvous(t *testing.T) {
	tbl := newTestTable(t, 64)
	woke := make(chan struct{})
	var gate lock.Lock
	lock.Init(&gate, "gate")

	chanID := ChanOf(unsafe.Pointer(&gate))

	sleeper := tbl.spawn(func(p *Proc) {
		lock.Acquire(&gate)
		tbl.Sleep(p, chanID, &gate)
		lock.Release(&gate)
		close(woke)
		tbl.Exit(p)
	})

	await(t, func() bool { return procState(tbl, sleeper) == defs.SLEEPING })

	tbl.Wakeup(chanID)

	select {
	case <-woke:
	case <-time.After(5 * time.Second):
		t.Fatal("sleeper never woke after Wakeup on its channel")
	}
}

func TestKillWakesSleeper(t *testing.T) {
	tbl := newTestTable(t, 64)
	ran := make(chan struct{})
	var gate lock.Lock
	lock.Init(&gate, "gate")

	p := tbl.spawn(func(p *Proc) {
		lock.Acquire(&gate)
		tbl.Sleep(p, ChanOf(unsafe.Pointer(p)), &gate)
		lock.Release(&gate)
		close(ran)
		tbl.Exit(p)
	})

	await(t, func() bool { return procState(tbl, p) == defs.SLEEPING })

	if !tbl.Kill(p.Pid) {
		t.Fatal("kill reported no such process")
	}

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("killed sleeper never resumed")
	}
	lock.Acquire(&tbl.mu)
	killed := p.Killed
	lock.Release(&tbl.mu)
	if !killed {
		t.Fatal("expected Killed to be set")
	}
}

func TestYieldReturnsProcessToRunnable(t *testing.T) {
	tbl := newTestTable(t, 64)
	rounds := make(chan int, 4)

	tbl.spawn(func(p *Proc) {
		for i := 1; i <= 3; i++ {
			rounds <- i
			tbl.Yield(p)
		}
		tbl.Exit(p)
	})

	for want := 1; want <= 3; want++ {
		select {
		case got := <-rounds:
			if got != want {
				t.Fatalf("round %d reported out of order as %d", want, got)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("process never came back for round %d", want)
		}
	}
}

func TestWaitWithNoChildren(t *testing.T) {
	tbl := newTestTable(t, 64)
	ret := make(chan int, 1)

	tbl.spawn(func(p *Proc) {
		ret <- tbl.Wait(p)
		tbl.Exit(p)
	})

	select {
	case v := <-ret:
		if v != int(defs.ECHILD) {
			t.Fatalf("Wait with no children = %d, want %d", v, defs.ECHILD)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait blocked despite having no children")
	}
}

// TestExitReparentsOrphansToInit walks the orphan scenario: A is the
// parent of C; A exits while C is still alive; C must become init's
// child, and init's Wait must reap C when C exits.
func TestExitReparentsOrphansToInit(t *testing.T) {
	tbl := newTestTable(t, 96)
	reaped := make(chan int, 1)
	var aGate, cGate lock.Lock
	lock.Init(&aGate, "orphan-a")
	lock.Init(&cGate, "orphan-c")
	aChan := ChanOf(unsafe.Pointer(&aGate))
	cChan := ChanOf(unsafe.Pointer(&cGate))

	initp := tbl.spawn(func(p *Proc) {
		for {
			pid := tbl.Wait(p)
			if pid > 0 {
				reaped <- pid
				break
			}
			tbl.Yield(p)
		}
		// init never exits; park it for good once its work is done.
		lock.Acquire(&tbl.mu)
		for {
			tbl.sleep(p, ChanOf(unsafe.Pointer(p)), &tbl.mu)
		}
	})

	c := tbl.spawn(func(p *Proc) {
		lock.Acquire(&cGate)
		tbl.Sleep(p, cChan, &cGate) // held asleep until A has exited
		lock.Release(&cGate)
		tbl.Exit(p)
	})
	// Wait zeroes a reaped slot, so record C's pid while it is live.
	cPid := c.Pid

	a := tbl.spawn(func(p *Proc) {
		lock.Acquire(&aGate)
		tbl.Sleep(p, aChan, &aGate)
		lock.Release(&aGate)
		tbl.Exit(p)
	})

	lock.Acquire(&tbl.mu)
	tbl.initProc = initp
	c.Parent = a
	lock.Release(&tbl.mu)

	// Let A exit while C is still alive (asleep on its own channel).
	await(t, func() bool { return procState(tbl, a) == defs.SLEEPING })
	await(t, func() bool { return procState(tbl, c) == defs.SLEEPING })
	tbl.Wakeup(aChan)
	await(t, func() bool { return procState(tbl, a) == defs.ZOMBIE })

	lock.Acquire(&tbl.mu)
	parent := c.Parent
	lock.Release(&tbl.mu)
	if parent != initp {
		t.Fatal("C was not reparented to init when A exited")
	}

	tbl.Wakeup(cChan)
	select {
	case pid := <-reaped:
		if pid != cPid {
			t.Fatalf("init reaped pid %d, want orphan %d", pid, cPid)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("init never reaped the orphan")
	}
}

// TestForkUntilExhaustionRollsBack forks until the table or physical
// memory gives out, then reaps everything. Every successful fork must
// be matched by a successful wait, and the failed fork must leave no
// half-built child behind.
func TestForkUntilExhaustionRollsBack(t *testing.T) {
	tbl := newTestTable(t, 64)
	counts := make(chan [2]int, 1)

	tbl.spawn(func(p *Proc) {
		forked := 0
		for {
			pid := tbl.Fork(p)
			if pid < 0 {
				break
			}
			forked++
		}
		reaped := 0
		for {
			if pid := tbl.Wait(p); pid < 0 {
				break
			}
			reaped++
		}
		counts <- [2]int{forked, reaped}
		tbl.Exit(p)
	})

	select {
	case c := <-counts:
		if c[0] == 0 {
			t.Fatal("expected at least one fork to succeed before exhaustion")
		}
		if c[1] != c[0] {
			t.Fatalf("reaped %d children of %d forked", c[1], c[0])
		}
	case <-time.After(10 * time.Second):
		t.Fatal("fork/wait exhaustion loop never finished")
	}

	// The rollback path and the reaps must have returned every child's
	// pages: a fresh fork on the drained table succeeds again.
	again := make(chan int, 1)
	tbl.spawn(func(p *Proc) {
		pid := tbl.Fork(p)
		if pid > 0 {
			tbl.Wait(p)
		}
		again <- pid
		tbl.Exit(p)
	})
	select {
	case pid := <-again:
		if pid <= 0 {
			t.Fatalf("fork after full reap failed with %d", pid)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("post-exhaustion fork never completed")
	}
}
