//go:build !arm

package console

import (
	"bufio"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Terminal backs Device with the development host's own controlling
// terminal, put into raw mode, so the core can be exercised and tested
// off real hardware. It is the simulation-build analogue of PL011: same
// Device contract, same blocking PutC/GetC semantics, different wire.
type Terminal struct {
	fd    int
	out   *term.Terminal
	state *term.State
	keyCh chan byte
}

var _ Device = (*Terminal)(nil)

// NewTerminal wraps os.Stdin/os.Stdout as a Device. The terminal is not
// put into raw mode until Init is called.
func NewTerminal() *Terminal {
	return &Terminal{
		fd:    int(os.Stdin.Fd()),
		out:   term.NewTerminal(os.Stdout, ""),
		keyCh: make(chan byte, 16),
	}
}

// Init puts the controlling terminal into raw, unbuffered mode (VMIN=1,
// VTIME=0, matching the one-byte-at-a-time semantics a real UART would
// give the kernel) and starts the background reader that feeds GetC.
func (c *Terminal) Init() {
	saved, err := term.MakeRaw(c.fd)
	if err != nil {
		panic("console.Terminal.Init: " + err.Error())
	}
	c.state = saved

	if err := c.setRawTermios(1, 0); err != nil {
		panic("console.Terminal.Init: " + err.Error())
	}

	go c.readLoop()
}

func (c *Terminal) setRawTermios(vmin, vtime byte) error {
	termIO, err := unix.IoctlGetTermios(c.fd, getTermiosIoctl)
	if err != nil {
		return err
	}
	termIO.Cc[unix.VMIN] = vmin
	termIO.Cc[unix.VTIME] = vtime
	return unix.IoctlSetTermios(c.fd, setTermiosIoctl, termIO)
}

func (c *Terminal) readLoop() {
	_ = syscall.SetNonblock(c.fd, false)
	r := bufio.NewReader(os.Stdin)
	for {
		b, err := r.ReadByte()
		if err != nil {
			close(c.keyCh)
			return
		}
		c.keyCh <- b
	}
}

// PutC writes c straight to the terminal.
func (c *Terminal) PutC(ch byte) {
	_, _ = c.out.Write([]byte{ch})
}

// GetC blocks until a byte has been typed.
func (c *Terminal) GetC() byte {
	b, ok := <-c.keyCh
	if !ok {
		return 0
	}
	return b
}

// Restore returns the terminal to the state it was in before Init.
func (c *Terminal) Restore() {
	if c.state != nil {
		_ = term.Restore(c.fd, c.state)
	}
}
