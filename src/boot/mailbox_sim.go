//go:build !arm

package boot

// fakeMMIO backs mmioPort with an in-memory model of the mailbox
// protocol for hosted tests: the status register always reports ready,
// and reading the data register synthesizes the GET_ARM_MEMORY response
// a real firmware would have written, so ARMMemorySize is exercised
// without real hardware.
type fakeMMIO struct {
	buf  *[mboxBufWords]uint32
	size uint32
}

var _ mmioPort = (*fakeMMIO)(nil)

func (f *fakeMMIO) read(reg uintptr) uint32 {
	switch reg {
	case mboxStatus:
		return 0
	case mboxRead:
		f.buf[posRV] = tagResponseBit
		f.buf[posTagSize] = f.size
		return mboxChannelProperty
	}
	return 0
}

func (f *fakeMMIO) write(reg uintptr, v uint32) {}

// NewSimMailbox returns a Mailbox whose ARMMemorySize reports size
// bytes, for use on a development host where there is no real VideoCore
// firmware to query.
func NewSimMailbox(buf *[mboxBufWords]uint32, size uint32) *Mailbox {
	return NewMailbox(&fakeMMIO{buf: buf, size: size}, buf)
}
