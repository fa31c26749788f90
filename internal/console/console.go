// Package console implements the text-mode console sink spec.md §4.5's
// Console I/O functions and §12's supplemented terminal front end need:
// raw/cbreak stdin for unbuffered, unechoed character reads, and a
// simple stdout sink for character writes.
//
// Grounded on skx-cpmulator/cmd/cpm.go, which puts stdin into raw mode
// via golang.org/x/term for the same reason (a CP/M-style console that
// needs per-keystroke input without line buffering or local echo).
package console

import (
	"bufio"
	"io"
	"os"

	"golang.org/x/term"
)

// Console owns the raw-mode tty state and a small pending-byte buffer
// that GetChar drains before reading in and that KeyReady inspects, per
// spec.md §4.5's "flush-then-redo" semantics.
type Console struct {
	in       *os.File
	out      io.Writer
	oldState *term.State
	raw      bool
	pending  []byte
}

// New returns a Console writing to out and reading raw keystrokes from
// in when in is a terminal; otherwise reads fall back to a line reader.
func New(in *os.File, out io.Writer) *Console {
	return &Console{in: in, out: out}
}

// EnableRaw puts stdin into raw mode via term.MakeRaw (no line
// buffering, no echo, no signal keys or output post-processing),
// matching DOS's unbuffered character-input INT 21h functions. A no-op,
// returning nil, when in is not a terminal (e.g. redirected from a
// file or a pipe in a test harness).
func (c *Console) EnableRaw() error {
	if !term.IsTerminal(int(c.in.Fd())) {
		return nil
	}
	state, err := term.MakeRaw(int(c.in.Fd()))
	if err != nil {
		return err
	}
	c.oldState = state
	c.raw = true
	return nil
}

// Restore returns stdin to its original mode. Safe to call even if
// EnableRaw was a no-op.
func (c *Console) Restore() error {
	if !c.raw {
		return nil
	}
	c.raw = false
	return term.Restore(int(c.in.Fd()), c.oldState)
}

// GetChar reads a single byte, blocking until one is available.
func (c *Console) GetChar() (byte, error) {
	if len(c.pending) > 0 {
		b := c.pending[0]
		c.pending = c.pending[1:]
		return b, nil
	}
	buf := make([]byte, 1)
	if _, err := io.ReadFull(c.in, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// KeyReady reports whether a byte is waiting in the pending buffer. It
// does not poll in, so input not yet read through GetChar is not seen.
func (c *Console) KeyReady() bool {
	return len(c.pending) > 0
}

// PutChar writes a single byte to stdout.
func (c *Console) PutChar(b byte) {
	c.out.Write([]byte{b})
}

// PutString writes a run of bytes to stdout, used by the INT 21h 09h
// "$"-terminated string write.
func (c *Console) PutString(s []byte) {
	c.out.Write(s)
}

// GetLine implements DOS's buffered line-input function (INT 21h 0Ah):
// reads until CR, honoring backspace as a single-character erase, and
// echoes each character as it is read, per spec.md §4.5.
func (c *Console) GetLine(maxLen int) (string, error) {
	r := bufio.NewReader(c.in)
	var line []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return string(line), err
		}
		switch b {
		case '\r', '\n':
			c.PutChar('\r')
			c.PutChar('\n')
			return string(line), nil
		case 0x08: // backspace
			if len(line) > 0 {
				line = line[:len(line)-1]
				c.PutString([]byte{0x08, ' ', 0x08})
			}
		default:
			if len(line) < maxLen {
				line = append(line, b)
				c.PutChar(b)
			}
		}
	}
}
