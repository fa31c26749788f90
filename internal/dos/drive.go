package dos

import (
	"os"

	"github.com/dmsc-emu/emu2go/internal/cpu"
	"github.com/dmsc-emu/emu2go/internal/mcb"
	"github.com/dmsc-emu/emu2go/internal/segment"
)

// driveAndDTA implements AH=0Eh (select default drive), 19h (get default
// drive), 1Ah (set DTA), 2Fh (get DTA address), per spec.md §4.5. DTA is
// a linear address recomputed on every Set DTA call.
func (d *Dispatcher) driveAndDTA(c *cpu.CPU, ah uint8) {
	switch ah {
	case 0x0E:
		d.DefaultDrive = int(c.GetReg8(cpu.DL))
		c.SetReg8(cpu.AL, 26) // number of drive letters supported
	case 0x19:
		c.SetReg8(cpu.AL, uint8(d.DefaultDrive))
	case 0x1A:
		seg := c.DefaultDataSeg()
		off := c.GetReg16(cpu.DX)
		d.DTA = c.Seg[seg].LinearAddress(off)
	case 0x2F:
		d.writeSegOff(c, d.DTA)
	}
	d.ok(c)
}

// writeSegOff sets the ES segment register and BX to the segment:offset
// form of a linear address, the convention DOS "get pointer" functions
// use to return one.
func (d *Dispatcher) writeSegOff(c *cpu.CPU, linear uint32) {
	sel := uint16(linear >> 4)
	c.Seg[segment.ES] = segment.Cache{Selector: sel, Base: uint32(sel) << 4, Limit: 0xFFFF, Flags: 0x92}
	c.SetReg16(cpu.BX, uint16(linear&0xF))
}

// setVector/getVector implement AH=25h/35h: write/read the IVT entry at
// AL*4 directly (spec.md §4.5).
func (d *Dispatcher) setVector(c *cpu.CPU) {
	vector := c.GetReg8(cpu.AL)
	seg := c.DefaultDataSeg()
	off := c.GetReg16(cpu.DX)
	linear := c.Seg[seg].LinearAddress(off)
	d.Mem.WriteDword(uint32(vector)*4, linear)
	d.ok(c)
}

func (d *Dispatcher) getVector(c *cpu.CPU) {
	vector := c.GetReg8(cpu.AL)
	entry := d.Mem.ReadDword(uint32(vector) * 4)
	sel := uint16(entry >> 16)
	c.Seg[segment.ES] = segment.Cache{Selector: sel, Base: uint32(sel) << 4, Limit: 0xFFFF, Flags: 0x92}
	c.SetReg16(cpu.BX, uint16(entry))
	d.ok(c)
}

func (d *Dispatcher) getVersion(c *cpu.CPU) {
	c.SetReg8(cpu.AL, 3)
	c.SetReg8(cpu.AH, 30)
	c.SetReg16(cpu.BX, 0)
	c.SetReg16(cpu.CX, 0)
	d.ok(c)
}

// ctrlBreak implements the supplemented AH=33h (get/set Ctrl-Break / boot
// drive), per SPEC_FULL.md §12: AL=00 get break flag (off), AL=01 set
// (accepted, ignored), AL=05 get boot drive (C:), AL=06 get true version.
func (d *Dispatcher) ctrlBreak(c *cpu.CPU) {
	switch c.GetReg8(cpu.AL) {
	case 0x00:
		c.SetReg8(cpu.DL, 0)
	case 0x01:
		// accepted, ignored
	case 0x05:
		c.SetReg8(cpu.DL, 3) // drive C:
	case 0x06:
		c.SetReg8(cpu.BL, 3)
		c.SetReg8(cpu.BH, 30)
		c.SetReg8(cpu.DL, 0)
		c.SetReg8(cpu.DH, 0)
	}
	d.ok(c)
}

// getFreeSpace implements the supplemented AH=36h: reports free space on
// the drive in DL (0=default), using diskSpace's fixed cluster counts
// (the host filesystem is not queried), in DOS's (sectors/cluster, free clusters, bytes/sector,
// total clusters) tuple, clamped to 16-bit fields.
func (d *Dispatcher) getFreeSpace(c *cpu.CPU) {
	drive := int(c.GetReg8(cpu.DL))
	if drive == 0 {
		drive = d.DefaultDrive
	} else {
		drive--
	}
	if drive < 0 || drive >= 26 || d.Drives.Base[drive] == "" {
		c.SetReg16(cpu.AX, 0xFFFF)
		return
	}

	const sectorsPerCluster = 8
	const bytesPerSector = 512
	freeClusters, totalClusters := diskSpace(d.Drives.Base[drive])

	c.SetReg16(cpu.AX, sectorsPerCluster)
	c.SetReg16(cpu.BX, clampU16(freeClusters))
	c.SetReg16(cpu.CX, bytesPerSector)
	c.SetReg16(cpu.DX, clampU16(totalClusters))
}

func clampU16(v uint64) uint16 {
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}

// switchChar implements the supplemented AH=37h (get/set switch
// character) as a stub matching original_source/src/dos.c: get always
// reports '/', set always fails with AL=0xFF.
func (d *Dispatcher) switchChar(c *cpu.CPU) {
	switch c.GetReg8(cpu.AL) {
	case 0x00:
		c.SetReg8(cpu.DL, '/')
	default:
		c.SetReg8(cpu.AL, 0xFF)
	}
	d.ok(c)
}

// countryInfo implements AH=38h: fills the 34-byte buffer at DS:DX with
// the fixed country-info structure internal/nls built, and reports the
// country code (USA default) in AX/BX.
func (d *Dispatcher) countryInfo(c *cpu.CPU) {
	seg := c.DefaultDataSeg()
	off := c.GetReg16(cpu.DX)
	base := c.Seg[seg].LinearAddress(off)
	d.Mem.WriteBytes(base, d.Mem.ReadBytes(d.NLS.CountryInfo, 34))
	c.SetReg16(cpu.AX, 0)
	c.SetReg16(cpu.BX, 1) // country code 1 = USA, matching the fixed table
	d.ok(c)
}

// extendedCountryInfo implements AH=65h, resolving Open Question §13.1
// as documented in SPEC_FULL.md §13: only sub-functions 00h and
// 01h are supported, everything else fails AX=1/CF=1. The output buffer
// is ES:DI, per the real INT 21h AH=65h convention.
func (d *Dispatcher) extendedCountryInfo(c *cpu.CPU) {
	sub := c.GetReg8(cpu.AL)
	if sub != 0x00 && sub != 0x01 {
		d.fail(c, 1)
		return
	}
	off := c.GetReg16(cpu.DI)
	base := c.Seg[segment.ES].LinearAddress(off)

	writeAt := base
	if sub == 0x01 {
		header := []byte{0x01, 0x26, 0x00, 0x01, 0x00, 0xB5, 0x01}
		for i, b := range header {
			d.Mem.WriteByte(writeAt+uint32(i), b)
		}
		writeAt += uint32(len(header))
	}
	info := d.Mem.ReadBytes(d.NLS.CountryInfo, 34)
	d.Mem.WriteBytes(writeAt, info)
	c.SetReg16(cpu.CX, uint16(len(info)))
	d.ok(c)
}

// dirOp implements AH=39h (mkdir), 3Ah (rmdir), 3Bh (chdir), per
// spec.md §4.5: errno mapped to DOS codes, CWD stored per-drive as a
// normalized DOS path.
func (d *Dispatcher) dirOp(c *cpu.CPU, ah uint8) {
	seg := c.DefaultDataSeg()
	off := c.GetReg16(cpu.DX)
	dosPath := d.readASCIZ(seg, off, 64)

	hostPath, drive, normalized, ok := d.resolvePathNormalized(dosPath, ah == 0x39)
	if !ok {
		d.fail(c, errPathNotFound)
		return
	}

	var err error
	switch ah {
	case 0x39:
		err = os.Mkdir(hostPath, 0o755)
	case 0x3A:
		err = os.Remove(hostPath)
	case 0x3B:
		if fi, statErr := os.Stat(hostPath); statErr != nil || !fi.IsDir() {
			d.fail(c, errPathNotFound)
			return
		}
		d.Drives.CWD[drive] = normalized
		d.ok(c)
		return
	}
	if err != nil {
		d.fail(c, errnoToDOS(err))
		return
	}
	d.ok(c)
}

// getCWD implements AH=47h: writes the current directory (relative to
// the drive root, without a leading backslash) as an ASCIZ string at
// DS:SI.
func (d *Dispatcher) getCWD(c *cpu.CPU) {
	drive := int(c.GetReg8(cpu.DL))
	if drive == 0 {
		drive = d.DefaultDrive
	} else {
		drive--
	}
	cwd := d.Drives.CWD[drive]
	if len(cwd) > 0 && cwd[0] == '\\' {
		cwd = cwd[1:]
	}
	seg := c.DefaultDataSeg()
	off := c.GetReg16(cpu.SI)
	for i, ch := range []byte(cwd) {
		c.WriteByte(seg, off+uint16(i), ch)
	}
	c.WriteByte(seg, off+uint16(len(cwd)), 0)
	d.ok(c)
}

// rename implements AH=56h: maps both DS:DX (old) and ES:DI (new) paths
// via the translator, renames via the host, and translates errno.
func (d *Dispatcher) rename(c *cpu.CPU) {
	oldPath := d.readASCIZ(c.DefaultDataSeg(), c.GetReg16(cpu.DX), 64)
	newPath := d.readASCIZ(segment.ES, c.GetReg16(cpu.DI), 64)

	oldHost, _, ok := d.resolvePath(oldPath, false)
	if !ok {
		d.fail(c, errFileNotFound)
		return
	}
	newHost, _, ok := d.resolvePath(newPath, true)
	if !ok {
		d.fail(c, errPathNotFound)
		return
	}
	if err := os.Rename(oldHost, newHost); err != nil {
		d.fail(c, errnoToDOS(err))
		return
	}
	d.ok(c)
}

// allocStrategy implements AH=58h: 00 returns current allocation
// strategy byte, 01 sets it.
func (d *Dispatcher) allocStrategy(c *cpu.CPU) {
	switch c.GetReg8(cpu.AL) {
	case 0x00:
		c.SetReg8(cpu.AL, uint8(d.Strategy))
	case 0x01:
		d.Strategy = mcb.Strategy(c.GetReg8(cpu.BL))
		d.Alloc.Strategy = d.Strategy
	}
	d.ok(c)
}

// diskSpace is a small filesystem-free-space probe; a cross-platform
// host statfs isn't in the standard library, so this reports a fixed
// generous figure, which is sufficient for guests that merely check
// "is there enough room" rather than displaying an exact number.
func diskSpace(hostDir string) (freeClusters, totalClusters uint64) {
	if _, err := os.Stat(hostDir); err != nil {
		return 0, 0
	}
	return 0xFFFF, 0xFFFF
}
