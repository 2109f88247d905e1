// Package boot orchestrates kernel initialization: it brings up every
// CORE subsystem in a fixed, one-shot order, then hands off to the
// scheduler. It is grounded on cmain in the reference kernel's main.c,
// restructured as a BootConfig value plus an Init function rather than a
// sequence of bare global calls, so the boot order itself is something a
// test can drive without real hardware.
package boot

import (
	"unsafe"

	"defs"
)

// Mailbox register offsets and status bits, grounded on readmailbox/
// writemailbox in the reference kernel's mailbox.c and on the
// channel-framing protocol in iansmith-mazarin's mailboxRead/
// mailboxSend (src/mazboot/golang/main/mailbox.go). The property
// channel is channel 8, matching both.
const (
	mboxRegBase = defs.MMIO_VA + 0xB880
	mboxRead    = mboxRegBase + 0x00
	mboxStatus  = mboxRegBase + 0x18
	mboxWrite   = mboxRegBase + 0x20

	mboxFull  = 1 << 31
	mboxEmpty = 1 << 30

	mboxChannelProperty = 8

	tagGetARMMemory = 0x00010005
	tagResponseBit  = 1 << 31
)

// Message layout within the 8-word request/response buffer
// create_request builds in the original: overall length, request/
// response code, then one tag (id, buffer length, data length, two
// data words for base+size, and a terminating zero word).
const (
	posOverallLen = 0
	posRV         = 1
	posTagID      = 2
	posTagBuflen  = 3
	posTagDatalen = 4
	posTagBase    = 5
	posTagSize    = 6
	posTagEnd     = 7
)

// mboxBufWords is the size of the buffer ARMMemorySize's single-tag
// request needs.
const mboxBufWords = 8

// mmioPort is the narrow register accessor a Mailbox talks through,
// split by build tag exactly like arch's and console's hardware/
// simulation halves: mailbox_arm.go backs it with real memory-mapped
// registers, mailbox_sim.go with an in-memory fake so ARMMemorySize is
// exercised by a package test.
type mmioPort interface {
	read(reg uintptr) uint32
	write(reg uintptr, v uint32)
}

// Mailbox talks the VideoCore mailbox property-channel protocol used to
// query hardware configuration (here, installed physical memory) before
// any device driver beyond the mailbox itself exists.
type Mailbox struct {
	io  mmioPort
	buf *[mboxBufWords]uint32
}

// NewMailbox wires a Mailbox to its register accessor and a 16-byte-
// aligned message buffer the caller owns. The buffer must outlive every
// call into the mailbox; cmd/kernel declares it in main, which never
// returns, rather than taking it from the physical allocator the way
// mailboxinit's kalloc() does in the original.
func NewMailbox(io mmioPort, buf *[mboxBufWords]uint32) *Mailbox {
	return &Mailbox{io: io, buf: buf}
}

// ARMMemorySize queries the amount of physical memory available to the
// ARM core, mirroring get_pm_size in the original kernel: it builds a
// single-tag GET_ARM_MEMORY request, posts it on the property channel,
// and reads back the base/size pair the firmware fills in. It returns 0
// if the firmware's response does not carry the response bit the
// property protocol requires.
func (m *Mailbox) ARMMemorySize() uint32 {
	buf := m.buf
	buf[posOverallLen] = mboxBufWords * 4
	buf[posRV] = 0 // request
	buf[posTagID] = tagGetARMMemory
	buf[posTagBuflen] = 8
	buf[posTagDatalen] = 0
	buf[posTagBase] = 0
	buf[posTagSize] = 0
	buf[posTagEnd] = 0

	m.post(bufAddr(buf))
	m.wait()

	if buf[posRV]&tagResponseBit == 0 {
		return 0
	}
	return buf[posTagSize]
}

// bufAddr converts buf's address to the 32-bit physical address the
// mailbox protocol frames into a register write. The reference kernel
// additionally translates from its kernel virtual address into VideoCore
// bus-address space (see writemailbox's KERNBASE/0xc0000000 adjustment);
// this repository's Go translation keeps that adjustment out of the
// mailbox package itself and expects NewMailbox's buf to already be
// bus-addressable.
func bufAddr(buf *[mboxBufWords]uint32) uint32 {
	return uint32(uintptr(unsafe.Pointer(buf)))
}

func (m *Mailbox) post(addr uint32) {
	for m.io.read(mboxStatus)&mboxFull != 0 {
	}
	m.io.write(mboxWrite, (addr&^0xF)|mboxChannelProperty)
}

func (m *Mailbox) wait() {
	for {
		for m.io.read(mboxStatus)&mboxEmpty != 0 {
		}
		v := m.io.read(mboxRead)
		if v&0xF == mboxChannelProperty {
			return
		}
	}
}
