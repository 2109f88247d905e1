// Package console implements the kernel's serial line: the one
// character-at-a-time input/output device that exists before any
// filesystem or network stack does, and that boot diagnostics and the
// shell both read and write through.
//
// Device is implemented twice, split by build tag exactly like arch and
// proc's entry installation: console_arm.go drives a real PL011/mini
// UART over MMIO, grounded on the reference kernel's uart_pl011.c and on
// the register layout in iansmith-mazarin's uart_rpi.go. console_sim.go
// backs the same interface with the development host's own terminal, so
// the rest of the kernel never has to know which one it is talking to.
package console

// Device is the minimal serial console contract the kernel depends on.
// PutC blocks until c has been placed in the transmit FIFO; GetC blocks
// until a byte is available to return.
type Device interface {
	Init()
	PutC(c byte)
	GetC() byte
}

// Line buffers GetC bytes into complete, editable input lines the way a
// teletype driver would, so callers can read a line at a time instead of
// hand-rolling backspace/erase handling themselves.
type Line struct {
	dev Device
	buf []byte
}

// NewLine wraps dev with line discipline.
func NewLine(dev Device) *Line {
	return &Line{dev: dev}
}

const (
	ctrlH     = 0x08
	del       = 0x7f
	ctrlU     = 0x15
	cr        = '\r'
	lf        = '\n'
	maxLine   = 128
)

// ReadLine blocks until a full line (terminated by CR or LF) has been
// typed and echoed, then returns it without the terminator.
func (l *Line) ReadLine() string {
	l.buf = l.buf[:0]
	for {
		c := l.dev.GetC()
		switch c {
		case cr, lf:
			l.dev.PutC(lf)
			return string(l.buf)
		case ctrlH, del:
			if len(l.buf) > 0 {
				l.buf = l.buf[:len(l.buf)-1]
				l.dev.PutC(ctrlH)
				l.dev.PutC(' ')
				l.dev.PutC(ctrlH)
			}
		case ctrlU:
			for range l.buf {
				l.dev.PutC(ctrlH)
				l.dev.PutC(' ')
				l.dev.PutC(ctrlH)
			}
			l.buf = l.buf[:0]
		default:
			if len(l.buf) < maxLine {
				l.buf = append(l.buf, c)
				l.dev.PutC(c)
			}
		}
	}
}

// WriteString writes s a byte at a time, translating a bare LF to CRLF
// the way a real terminal expects.
func WriteString(dev Device, s string) {
	for i := 0; i < len(s); i++ {
		if s[i] == lf {
			dev.PutC(cr)
		}
		dev.PutC(s[i])
	}
}
