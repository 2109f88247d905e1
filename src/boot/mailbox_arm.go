//go:build arm

package boot

import "unsafe"

// hwMMIO backs mmioPort with real memory-mapped registers. It carries no
// state: every mailbox register lives at a fixed MMIO address.
type hwMMIO struct{}

var _ mmioPort = hwMMIO{}

func (hwMMIO) read(reg uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(reg))
}

func (hwMMIO) write(reg uintptr, v uint32) {
	*(*uint32)(unsafe.Pointer(reg)) = v
}

// NewHardwareMailbox wires a Mailbox to the real mailbox registers.
func NewHardwareMailbox(buf *[mboxBufWords]uint32) *Mailbox {
	return NewMailbox(hwMMIO{}, buf)
}
