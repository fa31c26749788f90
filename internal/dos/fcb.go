package dos

import (
	"io"
	"os"
	"strings"

	"github.com/dmsc-emu/emu2go/internal/cpu"
	"github.com/dmsc-emu/emu2go/internal/segment"
)

// fcbDispatch implements the classic FCB-based function group (AH=0Fh-17h,
// 21h-24h, 27h-29h), per spec.md §4.5 and original_source/src/dos.c's
// get_fcb/get_fcb_handle convention: an FCB (DS:DX) may be an "extended"
// FCB (a 0xFF marker byte followed by 5 reserved bytes and an attribute
// byte, then the normal 37-byte FCB), and the DOS handle backing an open
// FCB is stashed in the FCB's own reserved field rather than returned to
// the caller.
func (d *Dispatcher) fcbDispatch(c *cpu.CPU, ah uint8) {
	base := d.fcbBase(c)
	switch ah {
	case 0x0F:
		d.fcbOpen(c, base, false)
	case 0x10:
		d.fcbClose(c, base)
	case 0x11:
		d.fcbFindFirst(c, base)
	case 0x12:
		d.fcbFindNext(c)
	case 0x13:
		d.fcbDelete(c, base)
	case 0x14:
		c.SetReg8(cpu.AL, d.fcbReadRecord(base, d.DTA, true))
	case 0x15:
		c.SetReg8(cpu.AL, d.fcbWriteRecord(base, d.DTA, true))
	case 0x16:
		d.fcbOpen(c, base, true)
	case 0x17:
		d.fcbRename(c, base)
	case 0x21:
		c.SetReg8(cpu.AL, d.fcbReadRecord(base, d.DTA, false))
	case 0x22:
		c.SetReg8(cpu.AL, d.fcbWriteRecord(base, d.DTA, false))
	case 0x23:
		d.fcbGetSize(c, base)
	case 0x24:
		d.fcbSetRandomRecord(base)
		d.ok(c)
	case 0x27, 0x28:
		d.fcbBlockIO(c, base, ah == 0x27)
	case 0x29:
		d.fcbParseFilename(c)
	}
}

// fcbBase resolves DS:DX to the start of the 37-byte "plain" portion of
// the FCB, skipping the 7-byte extended-FCB prefix when present.
func (d *Dispatcher) fcbBase(c *cpu.CPU) uint32 {
	seg := c.DefaultDataSeg()
	off := c.GetReg16(cpu.DX)
	linear := c.Seg[seg].LinearAddress(off)
	if d.Mem.ReadByte(linear) == 0xFF {
		return linear + 7
	}
	return linear
}

func (d *Dispatcher) fcbHandle(base uint32) *handle {
	h := uint16(d.Mem.ReadWord(base + 0x18))
	return d.handles[h]
}

// fcbNameString extracts the 8.3 DOS name (space-trimmed, dot-joined) from the
// FCB's name/ext fields at +1/+9.
func fcbNameString(mem interface {
	ReadByte(uint32) byte
}, base uint32) string {
	name := strings.TrimRight(string(readRun(mem, base+1, 8)), " ")
	ext := strings.TrimRight(string(readRun(mem, base+9, 3)), " ")
	if ext == "" {
		return name
	}
	return name + "." + ext
}

func readRun(mem interface {
	ReadByte(uint32) byte
}, base uint32, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = mem.ReadByte(base + uint32(i))
	}
	return out
}

func (d *Dispatcher) fcbPath(base uint32) (string, bool) {
	drive := d.Mem.ReadByte(base)
	dosName := fcbNameString(d.Mem, base)
	path := `\` + dosName
	if drive != 0 {
		path = string(rune('A'+drive-1)) + ":" + path
	}
	hostPath, _, ok := d.resolvePath(path, false)
	return hostPath, ok
}

// fcbOpen implements AH=0Fh (open, fails if absent) and 16h (create,
// truncates), storing the resulting handle number at FCB+0x18 and
// filling in block number/record size/file size, per
// original_source/src/dos.c's dos_open_file_fcb.
func (d *Dispatcher) fcbOpen(c *cpu.CPU, base uint32, create bool) {
	var hostPath string
	var ok bool
	if create {
		drive := d.Mem.ReadByte(base)
		dosName := fcbNameString(d.Mem, base)
		path := `\` + dosName
		if drive != 0 {
			path = string(rune('A'+drive-1)) + ":" + path
		}
		hostPath, _, ok = d.resolvePath(path, true)
	} else {
		hostPath, ok = d.fcbPath(base)
	}
	if !ok {
		c.SetReg8(cpu.AL, 0xFF)
		return
	}

	flag := os.O_RDWR
	if create {
		flag |= os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(hostPath, flag, 0o644)
	if err != nil {
		c.SetReg8(cpu.AL, 0xFF)
		return
	}
	fi, _ := f.Stat()
	var size uint32
	if fi != nil {
		size = clampSize(fi.Size())
	}

	h := d.allocHandle(f, false)
	d.Mem.WriteWord(base+0x0C, 0)   // current block
	d.Mem.WriteWord(base+0x0E, 128) // default record size
	d.Mem.WriteDword(base+0x10, size)
	d.Mem.WriteWord(base+0x18, h)
	d.Mem.WriteByte(base+0x20, 0) // current record
	c.SetReg8(cpu.AL, 0x00)
}

func (d *Dispatcher) fcbClose(c *cpu.CPU, base uint32) {
	hd := d.fcbHandle(base)
	if hd == nil || hd.file == nil {
		c.SetReg8(cpu.AL, 0xFF)
		return
	}
	hd.file.Close()
	delete(d.handles, uint16(d.Mem.ReadWord(base+0x18)))
	c.SetReg8(cpu.AL, 0x00)
}

func (d *Dispatcher) fcbDelete(c *cpu.CPU, base uint32) {
	hostPath, ok := d.fcbPath(base)
	if !ok {
		c.SetReg8(cpu.AL, 0xFF)
		return
	}
	if err := os.Remove(hostPath); err != nil {
		c.SetReg8(cpu.AL, 0xFF)
		return
	}
	c.SetReg8(cpu.AL, 0x00)
}

func (d *Dispatcher) fcbRename(c *cpu.CPU, base uint32) {
	oldPath, ok := d.fcbPath(base)
	if !ok {
		c.SetReg8(cpu.AL, 0xFF)
		return
	}
	newName := strings.TrimRight(string(readRun(d.Mem, base+0x11, 8)), " ")
	newExt := strings.TrimRight(string(readRun(d.Mem, base+0x19, 3)), " ")
	newDOS := newName
	if newExt != "" {
		newDOS += "." + newExt
	}
	newHost, _, ok := d.resolvePath(`\`+newDOS, true)
	if !ok {
		c.SetReg8(cpu.AL, 0xFF)
		return
	}
	if err := os.Rename(oldPath, newHost); err != nil {
		c.SetReg8(cpu.AL, 0xFF)
		return
	}
	c.SetReg8(cpu.AL, 0x00)
}

// fcbReadRecord implements AH=14h (sequential) and 21h (random): reads
// one record of the FCB's record size into the DTA, returning 0 (read
// ok), 1 (EOF, no data), or 3 (partial record at EOF), per
// original_source/src/dos.c's dos_read_record_fcb.
func (d *Dispatcher) fcbReadRecord(base uint32, dta uint32, sequential bool) byte {
	hd := d.fcbHandle(base)
	if hd == nil || hd.file == nil {
		return 1
	}
	rsize := int64(d.Mem.ReadWord(base + 0x0E))
	if rsize == 0 {
		rsize = 128
	}
	var recordNum uint32
	if sequential {
		recordNum = uint32(d.Mem.ReadByte(base+0x20)) | uint32(d.Mem.ReadWord(base+0x0C))<<7
	} else {
		recordNum = d.Mem.ReadDword(base + 0x21)
	}
	pos := int64(recordNum) * rsize

	if _, err := hd.file.Seek(pos, io.SeekStart); err != nil {
		return 1
	}
	buf := make([]byte, rsize)
	n, err := hd.file.Read(buf)
	if n == 0 {
		return 1
	}
	d.Mem.WriteBytes(dta, buf[:n])

	result := byte(0)
	if int64(n) < rsize {
		for i := int64(n); i < rsize; i++ {
			d.Mem.WriteByte(dta+uint32(i), 0)
		}
		result = 3
	}
	if err == io.EOF && int64(n) == rsize {
		result = 0
	}
	recordNum++
	if sequential {
		d.Mem.WriteByte(base+0x20, byte(recordNum&0x7F))
		d.Mem.WriteWord(base+0x0C, uint16(recordNum>>7))
	} else {
		d.Mem.WriteDword(base+0x21, recordNum)
		d.fcbSetRandomRecord(base)
	}
	return result
}

// fcbWriteRecord mirrors fcbReadRecord, extending the file size field if
// the write grows the file.
func (d *Dispatcher) fcbWriteRecord(base uint32, dta uint32, sequential bool) byte {
	hd := d.fcbHandle(base)
	if hd == nil || hd.file == nil {
		return 1
	}
	rsize := int64(d.Mem.ReadWord(base + 0x0E))
	if rsize == 0 {
		rsize = 128
	}
	var recordNum uint32
	if sequential {
		recordNum = uint32(d.Mem.ReadByte(base+0x20)) | uint32(d.Mem.ReadWord(base+0x0C))<<7
	} else {
		recordNum = d.Mem.ReadDword(base + 0x21)
	}
	pos := int64(recordNum) * rsize

	if _, err := hd.file.Seek(pos, io.SeekStart); err != nil {
		return 1
	}
	buf := d.Mem.ReadBytes(dta, int(rsize))
	if _, err := hd.file.Write(buf); err != nil {
		return 1
	}

	newEnd := pos + rsize
	if size := d.Mem.ReadDword(base + 0x10); uint32(newEnd) > size {
		d.Mem.WriteDword(base+0x10, uint32(newEnd))
	}
	recordNum++
	if sequential {
		d.Mem.WriteByte(base+0x20, byte(recordNum&0x7F))
		d.Mem.WriteWord(base+0x0C, uint16(recordNum>>7))
	} else {
		d.Mem.WriteDword(base+0x21, recordNum)
		d.fcbSetRandomRecord(base)
	}
	return 0
}

func (d *Dispatcher) fcbGetSize(c *cpu.CPU, base uint32) {
	hd := d.fcbHandle(base)
	if hd == nil || hd.file == nil {
		c.SetReg8(cpu.AL, 0xFF)
		return
	}
	fi, err := hd.file.Stat()
	if err != nil {
		c.SetReg8(cpu.AL, 0xFF)
		return
	}
	rsize := int64(d.Mem.ReadWord(base + 0x0E))
	if rsize == 0 {
		rsize = 128
	}
	records := uint32((fi.Size() + rsize - 1) / rsize)
	d.Mem.WriteDword(base+0x21, records)
	c.SetReg8(cpu.AL, 0x00)
}

// fcbSetRandomRecord syncs FCB+0x21's random record number from the
// sequential block/current-record pair, per dos_fcb_rand_to_block.
func (d *Dispatcher) fcbSetRandomRecord(base uint32) {
	block := uint32(d.Mem.ReadWord(base + 0x0C))
	cur := uint32(d.Mem.ReadByte(base + 0x20))
	d.Mem.WriteDword(base+0x21, block*128+cur)
}

// fcbBlockIO implements AH=27h/28h: repeated record I/O for CX records,
// returning the count actually transferred in CX and the last status in
// AL, per original_source/src/dos.c.
func (d *Dispatcher) fcbBlockIO(c *cpu.CPU, base uint32, read bool) {
	count := c.GetReg16(cpu.CX)
	rsize := uint32(d.Mem.ReadWord(base + 0x0E))
	if rsize == 0 {
		rsize = 128
	}
	target := d.DTA
	var status byte
	var done uint16
	for done < count {
		if read {
			status = d.fcbReadRecord(base, target, true)
		} else {
			status = d.fcbWriteRecord(base, target, true)
		}
		if status != 0 && status != 3 {
			break
		}
		target += rsize
		done++
		if status == 3 {
			break
		}
	}
	c.SetReg16(cpu.CX, done)
	c.SetReg8(cpu.AL, status)
}

// fcbParseFilename implements the supplemented AH=29h: parses an ASCIZ
// path at DS:SI into the 37-byte unfilled FCB at ES:DI, per
// original_source/src/dos.c's case 0x29 (per SPEC_FULL.md §12): AL bit 0
// enables skipping one leading separator; leading spaces and tabs are
// always skipped.
func (d *Dispatcher) fcbParseFilename(c *cpu.CPU) {
	fname := d.readASCIZ(c.DefaultDataSeg(), c.GetReg16(cpu.SI), 64)
	al := c.GetReg8(cpu.AL)

	if al&1 != 0 && len(fname) > 0 && strings.ContainsRune(":;.,=+", rune(fname[0])) {
		fname = fname[1:]
	}
	for len(fname) > 0 && (fname[0] == ' ' || fname[0] == '\t') {
		fname = fname[1:]
	}

	dst := c.Seg[segment.ES].LinearAddress(c.GetReg16(cpu.DI))
	d.Mem.WriteByte(dst, 0)

	result := uint8(0)
	if len(fname) >= 2 && fname[1] == ':' {
		drv := fname[0]
		switch {
		case drv >= 'A' && drv <= 'Z':
			d.Mem.WriteByte(dst, drv-'A'+1)
		case drv >= 'a' && drv <= 'z':
			d.Mem.WriteByte(dst, drv-'a'+1)
		default:
			result = 0xFF
		}
		fname = fname[2:]
	}

	name, ext, _ := strings.Cut(strings.ToUpper(fname), ".")
	name = padField(name, 8)
	ext = padField(ext, 3)
	for i := 0; i < 8; i++ {
		d.Mem.WriteByte(dst+1+uint32(i), name[i])
	}
	for i := 0; i < 3; i++ {
		d.Mem.WriteByte(dst+9+uint32(i), ext[i])
	}
	d.Mem.WriteWord(dst+0x0C, 0)
	d.Mem.WriteDword(dst+0x10, 0)
	c.SetReg8(cpu.AL, result)
}

func padField(s string, n int) string {
	if len(s) > n {
		s = s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

// fcbFindFirst/fcbFindNext implement AH=11h/12h: the FCB-style find that
// writes a result FCB into the current DTA rather than the 43-byte
// "normal" find-first layout, per original_source/src/dos.c's
// dos_find_first_fcb/dos_find_next_fcb. This reuses the same pool the
// normal find functions use, keyed by DTA, since only one search can be
// active against a given DTA at a time.
func (d *Dispatcher) fcbFindFirst(c *cpu.CPU, base uint32) {
	pattern := fcbNameString(d.Mem, base)
	if pattern == "" {
		pattern = "*.*"
	}
	hostDir, _, ok := d.resolvePath(`\`, false)
	if !ok {
		c.SetReg8(cpu.AL, 0xFF)
		return
	}
	entries, err := os.ReadDir(hostDir)
	if err != nil {
		c.SetReg8(cpu.AL, 0xFF)
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	entry, found := d.Find.FindFirst(d.DTA, hostDir, names, func(string) bool { return false }, func(string) uint32 { return 0 }, pattern)
	if !found {
		c.SetReg8(cpu.AL, 0xFF)
		return
	}
	d.writeFCBFindResult(entry.DOSName)
	c.SetReg8(cpu.AL, 0x00)
}

func (d *Dispatcher) fcbFindNext(c *cpu.CPU) {
	entry, found := d.Find.FindNext(d.DTA)
	if !found {
		c.SetReg8(cpu.AL, 0xFF)
		return
	}
	d.writeFCBFindResult(entry.DOSName)
	c.SetReg8(cpu.AL, 0x00)
}

// writeFCBFindResult fills the unfilled-FCB-shaped result at the current
// DTA: drive byte, 8.3 name fields, zeroed reserved fields.
func (d *Dispatcher) writeFCBFindResult(dosName string) {
	name, ext, _ := strings.Cut(strings.ToUpper(dosName), ".")
	name = padField(name, 8)
	ext = padField(ext, 3)
	d.Mem.WriteByte(d.DTA, 0)
	for i := 0; i < 8; i++ {
		d.Mem.WriteByte(d.DTA+1+uint32(i), name[i])
	}
	for i := 0; i < 3; i++ {
		d.Mem.WriteByte(d.DTA+9+uint32(i), ext[i])
	}
}
