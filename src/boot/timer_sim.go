//go:build !arm

package boot

// TimerSim is the hosted-build stand-in for TimerARM: there is no real
// timer hardware to program on a development host, so it only records
// that Init ran, which boot_test.go checks to confirm Init reaches the
// final orchestration step. Tests that exercise timer-driven yielding
// drive trap.Ticks directly through trap.NewTimerHook instead of
// waiting on a simulated IRQ.
type TimerSim struct {
	Inited       bool
	PeriodMicros uint32
}

var _ Timer = (*TimerSim)(nil)

func (t *TimerSim) Init(periodMicros uint32) {
	t.Inited = true
	t.PeriodMicros = periodMicros
}
