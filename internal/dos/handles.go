package dos

import (
	"io"
	"os"

	"github.com/dmsc-emu/emu2go/internal/cpu"
)

// fileIO implements AH=3Ch-46h: create/open/close/read/write/delete,
// lseek, get/set attributes, IOCTL, dup and forced dup, per spec.md §4.5.
// Every function resolves its DS:DX path argument through the same
// translator the directory functions use.
func (d *Dispatcher) fileIO(c *cpu.CPU, ah uint8) {
	switch ah {
	case 0x3C:
		d.createFile(c)
	case 0x3D:
		d.openFile(c)
	case 0x3E:
		d.closeFile(c)
	case 0x3F:
		d.readFile(c)
	case 0x40:
		d.writeFile(c)
	case 0x41:
		d.deleteFile(c)
	case 0x42:
		d.lseek(c)
	case 0x43:
		d.fileAttr(c)
	case 0x44:
		d.ioctl(c)
	case 0x45:
		d.dup(c)
	case 0x46:
		d.forceDup(c)
	}
}

// pathArg reads the DS:DX ASCIZ path argument common to every function
// in this file.
func (d *Dispatcher) pathArg(c *cpu.CPU) string {
	return d.readASCIZ(c.DefaultDataSeg(), c.GetReg16(cpu.DX), 64)
}

func (d *Dispatcher) allocHandle(f *os.File, isTTY bool) uint16 {
	h := d.nextHandle
	d.nextHandle++
	d.handles[h] = &handle{file: f, isTTY: isTTY}
	return h
}

// createFile implements AH=3Ch: truncate-create, mode in CX is ignored
// (no DOS file-attribute bits are modeled on the host filesystem).
func (d *Dispatcher) createFile(c *cpu.CPU) {
	hostPath, _, ok := d.resolvePath(d.pathArg(c), true)
	if !ok {
		d.fail(c, errPathNotFound)
		return
	}
	f, err := os.OpenFile(hostPath, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		d.fail(c, errnoToDOS(err))
		return
	}
	c.SetReg16(cpu.AX, d.allocHandle(f, false))
	d.ok(c)
}

// openFile implements AH=3Dh: AL's low two bits select read-only(0),
// write-only(1), or read-write(2).
func (d *Dispatcher) openFile(c *cpu.CPU) {
	hostPath, _, ok := d.resolvePath(d.pathArg(c), false)
	if !ok {
		d.fail(c, errFileNotFound)
		return
	}
	var flag int
	switch c.GetReg8(cpu.AL) & 0x03 {
	case 0:
		flag = os.O_RDONLY
	case 1:
		flag = os.O_WRONLY
	default:
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(hostPath, flag, 0)
	if err != nil {
		d.fail(c, errnoToDOS(err))
		return
	}
	c.SetReg16(cpu.AX, d.allocHandle(f, false))
	d.ok(c)
}

func (d *Dispatcher) closeFile(c *cpu.CPU) {
	h := c.GetReg16(cpu.BX)
	hd, ok := d.handles[h]
	if !ok {
		d.fail(c, 6) // invalid handle
		return
	}
	if hd.file != nil {
		hd.file.Close()
	}
	delete(d.handles, h)
	d.ok(c)
}

func (d *Dispatcher) readFile(c *cpu.CPU) {
	h := c.GetReg16(cpu.BX)
	hd, ok := d.handles[h]
	if !ok {
		d.fail(c, 6)
		return
	}
	n := int(c.GetReg16(cpu.CX))
	seg := c.DefaultDataSeg()
	off := c.GetReg16(cpu.DX)

	if hd.isTTY {
		line, _ := d.Console.GetLine(n)
		data := []byte(line)
		if len(data) > n {
			data = data[:n]
		}
		for i, b := range data {
			c.WriteByte(seg, off+uint16(i), b)
		}
		c.SetReg16(cpu.AX, uint16(len(data)))
		d.ok(c)
		return
	}

	buf := make([]byte, n)
	read, err := hd.file.Read(buf)
	if err != nil && err != io.EOF {
		d.fail(c, errnoToDOS(err))
		return
	}
	for i := 0; i < read; i++ {
		c.WriteByte(seg, off+uint16(i), buf[i])
	}
	c.SetReg16(cpu.AX, uint16(read))
	d.ok(c)
}

func (d *Dispatcher) writeFile(c *cpu.CPU) {
	h := c.GetReg16(cpu.BX)
	n := int(c.GetReg16(cpu.CX))
	seg := c.DefaultDataSeg()
	off := c.GetReg16(cpu.DX)
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = c.ReadByte(seg, off+uint16(i))
	}

	hd, ok := d.handles[h]
	if !ok {
		d.fail(c, 6)
		return
	}
	if hd.isTTY {
		d.Console.PutString(buf)
		c.SetReg16(cpu.AX, uint16(n))
		d.ok(c)
		return
	}
	written, err := hd.file.Write(buf)
	if err != nil {
		d.fail(c, errnoToDOS(err))
		return
	}
	c.SetReg16(cpu.AX, uint16(written))
	d.ok(c)
}

func (d *Dispatcher) deleteFile(c *cpu.CPU) {
	hostPath, _, ok := d.resolvePath(d.pathArg(c), false)
	if !ok {
		d.fail(c, errFileNotFound)
		return
	}
	if err := os.Remove(hostPath); err != nil {
		d.fail(c, errnoToDOS(err))
		return
	}
	d.ok(c)
}

// lseek implements AH=42h: AL selects SEEK_SET(0)/SEEK_CUR(1)/SEEK_END(2),
// CX:DX is the signed 32-bit offset, the new position returns in DX:AX.
func (d *Dispatcher) lseek(c *cpu.CPU) {
	h := c.GetReg16(cpu.BX)
	hd, ok := d.handles[h]
	if !ok || hd.file == nil {
		d.fail(c, 6)
		return
	}
	offset := int64(int32(uint32(c.GetReg16(cpu.CX))<<16 | uint32(c.GetReg16(cpu.DX))))
	whence := int(c.GetReg8(cpu.AL))
	pos, err := hd.file.Seek(offset, whence)
	if err != nil {
		d.fail(c, 1)
		return
	}
	c.SetReg16(cpu.AX, uint16(pos))
	c.SetReg16(cpu.DX, uint16(pos>>16))
	d.ok(c)
}

// fileAttr implements AH=43h: AL=00 get, AL=01 set (accepted, discarded
// since the host filesystem's attribute bits don't map onto DOS's).
func (d *Dispatcher) fileAttr(c *cpu.CPU) {
	hostPath, _, ok := d.resolvePath(d.pathArg(c), false)
	if !ok {
		d.fail(c, errFileNotFound)
		return
	}
	switch c.GetReg8(cpu.AL) {
	case 0x00:
		fi, err := os.Stat(hostPath)
		if err != nil {
			d.fail(c, errnoToDOS(err))
			return
		}
		var attr uint16
		if fi.IsDir() {
			attr |= 0x10
		}
		c.SetReg16(cpu.CX, attr)
	case 0x01:
		// accepted, ignored
	}
	d.ok(c)
}

// ioctl implements AH=44h: only the sub-functions that distinguish
// character devices (console/aux/prn) from disk files are modeled, per
// spec.md §4.5; everything else reports "not supported" rather than
// faking device capabilities no guest here actually probes.
func (d *Dispatcher) ioctl(c *cpu.CPU) {
	h := c.GetReg16(cpu.BX)
	switch c.GetReg8(cpu.AL) {
	case 0x00: // get device info
		isTTY := h <= 2
		if hd, ok := d.handles[h]; ok {
			isTTY = hd.isTTY
		}
		var dx uint16
		if isTTY {
			dx = 0x80D3 // character device, current stdin/stdout/NUL-like bits
		} else {
			dx = 0x0000 // block device, drive 0
		}
		c.SetReg16(cpu.DX, dx)
		d.ok(c)
	default:
		d.fail(c, 1)
	}
}

func (d *Dispatcher) dup(c *cpu.CPU) {
	h := c.GetReg16(cpu.BX)
	hd, ok := d.handles[h]
	if !ok {
		d.fail(c, 6)
		return
	}
	var f *os.File
	if hd.file != nil {
		var err error
		f, err = os.Open(hd.file.Name())
		if err != nil {
			d.fail(c, errnoToDOS(err))
			return
		}
	}
	c.SetReg16(cpu.AX, d.allocHandle(f, hd.isTTY))
	d.ok(c)
}

// forceDup implements AH=46h: makes handle CX an alias for handle BX's
// same underlying file, e.g. a child's stdin/stdout redirection.
func (d *Dispatcher) forceDup(c *cpu.CPU) {
	src := c.GetReg16(cpu.BX)
	dst := c.GetReg16(cpu.CX)
	hd, ok := d.handles[src]
	if !ok {
		d.fail(c, 6)
		return
	}
	if old, exists := d.handles[dst]; exists && old.file != nil {
		old.file.Close()
	}
	d.handles[dst] = hd
	d.ok(c)
}
