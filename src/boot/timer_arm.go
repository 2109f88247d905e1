//go:build arm

package boot

import (
	"unsafe"

	"defs"
)

// BCM2835/2836 ARM-side free-running timer registers. Grounded on
// timer3init in the reference kernel, which programs the analogous
// system-timer compare channel; this build targets the ARM timer block
// instead because it is the source the board wires to IRQ-pending-0
// bit defs.IRQTimerBit.
const (
	armTimerBase = defs.MMIO_VA + 0xB000
	armTimerLoad = armTimerBase + 0x400
	armTimerCtrl = armTimerBase + 0x408
	armTimerClr  = armTimerBase + 0x40C

	armTimerCtrlEnable    = 1 << 7
	armTimerCtrlIRQEnable = 1 << 5
	armTimerCtrl23Bit     = 1 << 1 // 23-bit counter width, not 16-bit
)

func armTimerWrite(reg uintptr, v uint32) {
	*(*uint32)(unsafe.Pointer(reg)) = v
}

// TimerARM programs the real ARM timer to fire periodically and
// acknowledges any pending interrupt left over from a previous boot
// stage before enabling it.
type TimerARM struct{}

var _ Timer = TimerARM{}

func (TimerARM) Init(periodMicros uint32) {
	armTimerWrite(armTimerClr, 1)
	armTimerWrite(armTimerLoad, periodMicros)
	armTimerWrite(armTimerCtrl, armTimerCtrlEnable|armTimerCtrlIRQEnable|armTimerCtrl23Bit)
}
