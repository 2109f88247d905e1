//go:build arm

package console

import (
	"unsafe"

	"arch"
	"defs"
)

// PL011 UART0 register offsets from the peripheral MMIO base, matching
// the reference kernel's uart_pl011.c and the register layout in the
// Raspberry Pi UART driver it was cross-checked against.
const (
	gpioBase = defs.MMIO_VA + 0x200000
	gppud     = gpioBase + 0x94
	gppudclk0 = gpioBase + 0x98

	uart0Base = defs.MMIO_VA + 0x201000
	uart0DR   = uart0Base + 0x00
	uart0FR   = uart0Base + 0x18
	uart0IBRD = uart0Base + 0x24
	uart0FBRD = uart0Base + 0x28
	uart0LCRH = uart0Base + 0x2c
	uart0CR   = uart0Base + 0x30
	uart0IMSC = uart0Base + 0x38
	uart0ICR  = uart0Base + 0x44
)

const (
	uart0FR_TXFF = 1 << 5
	uart0FR_RXFE = 1 << 4
)

func mmioWrite(reg uintptr, val uint32) {
	*(*uint32)(unsafe.Pointer(reg)) = val
}

func mmioRead(reg uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(reg))
}

// PL011 is the real hardware UART0 device.
type PL011 struct{}

var _ Device = PL011{}

// Init brings UART0 up at a fixed baud rate with the receive-FIFO
// interrupt enabled, in the same order the reference kernel's
// uartinit_fvp does: disable, clear pull-up/down on the UART pins,
// reset pending interrupts, set the baud-rate divisor, set the line
// control, then unmask and re-enable.
func (PL011) Init() {
	mmioWrite(uart0CR, 0)

	mmioWrite(gppud, 0)
	arch.DsbBarrier()
	mmioWrite(gppudclk0, (1<<14)|(1<<15))
	arch.DsbBarrier()
	mmioWrite(gppudclk0, 0)

	mmioWrite(uart0ICR, 0x7ff)

	mmioWrite(uart0IBRD, 1)
	mmioWrite(uart0FBRD, 40)

	mmioWrite(uart0LCRH, (1<<4)|(1<<5)|(1<<6)) // 8N1, FIFOs enabled

	mmioWrite(uart0IMSC, 1<<4) // RX interrupt only

	mmioWrite(uart0CR, (1<<0)|(1<<8)|(1<<9)) // UARTEN | TXE | RXE
}

// PutC writes c, translating a bare newline to CRLF the way a real
// terminal expects, mirroring uartputc_fvp.
func (PL011) PutC(c byte) {
	if c == lf {
		for mmioRead(uart0FR)&uart0FR_TXFF != 0 {
		}
		mmioWrite(uart0DR, uint32(cr))
	}
	for mmioRead(uart0FR)&uart0FR_TXFF != 0 {
	}
	mmioWrite(uart0DR, uint32(c))
}

// GetC blocks until the receive FIFO holds a byte, then returns it.
func (PL011) GetC() byte {
	for mmioRead(uart0FR)&uart0FR_RXFE != 0 {
	}
	return byte(mmioRead(uart0DR))
}
