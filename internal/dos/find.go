package dos

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmsc-emu/emu2go/internal/cpu"
	"github.com/dmsc-emu/emu2go/internal/pathtr"
)

// findFirst implements AH=4Eh: splits the DS:DX path into a directory and
// a wildcard filename, lists the directory, coins/matches names against
// the pattern, and writes the first match into the current DTA, per
// spec.md §4.5/§4.6.
func (d *Dispatcher) findFirst(c *cpu.CPU) {
	dosPath := d.readASCIZ(c.DefaultDataSeg(), c.GetReg16(cpu.DX), 64)
	dirPart, pattern := splitDirPattern(dosPath)

	hostDir, _, ok := d.resolvePath(dirPart, false)
	if !ok {
		d.fail(c, errPathNotFound)
		return
	}

	entries, err := os.ReadDir(hostDir)
	if err != nil {
		d.fail(c, errPathNotFound)
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	entry, found := d.Find.FindFirst(d.DTA, hostDir, names, func(n string) bool {
		fi, err := os.Stat(filepath.Join(hostDir, n))
		return err == nil && fi.IsDir()
	}, func(n string) uint32 {
		fi, err := os.Stat(filepath.Join(hostDir, n))
		if err != nil {
			return 0
		}
		return clampSize(fi.Size())
	}, pattern)

	if !found {
		d.fail(c, 18) // no more files
		return
	}
	d.writeDTAEntry(entry)
	d.ok(c)
}

// findNext implements AH=4Fh: advances the cursor in the pool slot keyed
// by the current DTA.
func (d *Dispatcher) findNext(c *cpu.CPU) {
	entry, found := d.Find.FindNext(d.DTA)
	if !found {
		d.fail(c, 18)
		return
	}
	d.writeDTAEntry(entry)
	d.ok(c)
}

// splitDirPattern separates a DOS path's final component (the wildcard
// filename pattern) from its directory prefix.
func splitDirPattern(dosPath string) (dir, pattern string) {
	idx := strings.LastIndexByte(dosPath, '\\')
	if idx < 0 {
		return `.`, dosPath
	}
	dir = dosPath[:idx]
	if dir == "" {
		dir = `\`
	}
	return dir, dosPath[idx+1:]
}

func clampSize(n int64) uint32 {
	if n > 0x7FFFFFFF {
		return 0x7FFFFFFF
	}
	return uint32(n)
}

// writeDTAEntry fills the 43-byte DTA at the current DTA linear address
// with entry, per spec.md §3's fixed DTA layout: attribute at +0x15,
// packed date/time at +0x16/+0x18, size at +0x1A, 13-byte ASCIZ name at
// +0x1E.
func (d *Dispatcher) writeDTAEntry(entry pathtr.DirEntry) {
	base := d.DTA
	var attr byte
	if entry.IsDir {
		attr = 0x10
	}
	d.Mem.WriteByte(base+0x15, attr)

	now := time.Now()
	packedTime := uint16(now.Hour())<<11 | uint16(now.Minute())<<5 | uint16(now.Second()/2)
	packedDate := uint16(now.Year()-1980)<<9 | uint16(now.Month())<<5 | uint16(now.Day())
	d.Mem.WriteWord(base+0x16, packedTime)
	d.Mem.WriteWord(base+0x18, packedDate)
	d.Mem.WriteDword(base+0x1A, entry.Size)

	name := entry.DOSName
	if len(name) > 12 {
		name = name[:12]
	}
	for i, ch := range []byte(name) {
		d.Mem.WriteByte(base+0x1E+uint32(i), ch)
	}
	d.Mem.WriteByte(base+0x1E+uint32(len(name)), 0)
}
