package console

import "testing"

type fakeDevice struct {
	in  []byte
	pos int
	out []byte
}

func (f *fakeDevice) Init() {}

func (f *fakeDevice) PutC(c byte) {
	f.out = append(f.out, c)
}

func (f *fakeDevice) GetC() byte {
	c := f.in[f.pos]
	f.pos++
	return c
}

func TestLineReadLineReturnsOnCR(t *testing.T) {
	dev := &fakeDevice{in: []byte("hello\r")}
	l := NewLine(dev)
	got := l.ReadLine()
	if got != "hello" {
		t.Fatalf("ReadLine() = %q, want %q", got, "hello")
	}
}

func TestLineBackspaceErasesLastRune(t *testing.T) {
	dev := &fakeDevice{in: []byte("helo" + string(rune(del)) + "lo\n")}
	l := NewLine(dev)
	got := l.ReadLine()
	if got != "hello" {
		t.Fatalf("ReadLine() = %q, want %q", got, "hello")
	}
}

func TestLineCtrlUClearsWholeLine(t *testing.T) {
	dev := &fakeDevice{in: []byte("garbage" + string(rune(ctrlU)) + "ok\n")}
	l := NewLine(dev)
	got := l.ReadLine()
	if got != "ok" {
		t.Fatalf("ReadLine() = %q, want %q", got, "ok")
	}
}

func TestWriteStringTranslatesNewlineToCRLF(t *testing.T) {
	dev := &fakeDevice{}
	WriteString(dev, "a\nb")
	want := []byte{'a', cr, lf, 'b'}
	if string(dev.out) != string(want) {
		t.Fatalf("out = %v, want %v", dev.out, want)
	}
}
