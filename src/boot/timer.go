package boot

// Timer programs the periodic interrupt source the scheduler relies on
// for timer-driven cooperative preemption (the "Timer yield" scenario).
// Grounded on timer3init in the reference kernel, which programs the
// BCM system timer's third compare channel to fire a fixed period after
// boot and keeps refiring it from the ISR.
type Timer interface {
	// Init programs the timer to fire every periodMicros microseconds.
	Init(periodMicros uint32)
}
