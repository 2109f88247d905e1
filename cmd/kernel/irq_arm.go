//go:build arm

package main

import (
	"unsafe"

	"defs"
)

// BCM2835/2836 interrupt controller pending registers, grounded on the
// register offsets the reference kernel's trap.c drains directly.
const (
	icBase         = defs.MMIO_VA + 0xB200
	icBasicPending = icBase + 0x00
	icPending1     = icBase + 0x04
	icPending2     = icBase + 0x08
)

func icRead(reg uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(reg))
}

// bcm2835IRQ implements trap.IRQController over the real interrupt
// controller registers.
type bcm2835IRQ struct{}

func (bcm2835IRQ) Pending0() uint32     { return icRead(icPending1) }
func (bcm2835IRQ) Pending1() uint32     { return icRead(icPending2) }
func (bcm2835IRQ) PendingBasic() uint32 { return icRead(icBasicPending) }
