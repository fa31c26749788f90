// Package loader parses DOS EXE and COM images, relocates them, and
// builds the Program Segment Prefix, per spec.md §4.4.
package loader

import (
	"encoding/binary"
	"fmt"

	"github.com/dmsc-emu/emu2go/internal/mcb"
	"github.com/dmsc-emu/emu2go/internal/memory"
)

// Result describes the registers an entry point expects after a
// successful load, per spec.md §4.4.
type Result struct {
	PSPSegment  uint16
	LoadSegment uint16
	CS, IP      uint16
	SS, SP      uint16
}

// exeHeader mirrors the 28 recognized bytes of the MZ header (spec.md §6).
type exeHeader struct {
	Signature       [2]byte
	BytesLastBlock  uint16
	Blocks          uint16
	RelocCount      uint16
	HeaderParas     uint16
	MinExtraParas   uint16
	MaxExtraParas   uint16
	InitSS          uint16
	InitSP          uint16
	Checksum        uint16
	InitIP          uint16
	InitCS          uint16
	RelocTableOff   uint16
	OverlayNumber   uint16
}

func parseHeader(data []byte) (exeHeader, error) {
	var h exeHeader
	if len(data) < 28 {
		return h, fmt.Errorf("loader: file too short for MZ header")
	}
	copy(h.Signature[:], data[0:2])
	h.BytesLastBlock = binary.LittleEndian.Uint16(data[2:4])
	h.Blocks = binary.LittleEndian.Uint16(data[4:6])
	h.RelocCount = binary.LittleEndian.Uint16(data[6:8])
	h.HeaderParas = binary.LittleEndian.Uint16(data[8:10])
	h.MinExtraParas = binary.LittleEndian.Uint16(data[10:12])
	h.MaxExtraParas = binary.LittleEndian.Uint16(data[12:14])
	h.InitSS = binary.LittleEndian.Uint16(data[14:16])
	h.InitSP = binary.LittleEndian.Uint16(data[16:18])
	h.Checksum = binary.LittleEndian.Uint16(data[18:20])
	h.InitIP = binary.LittleEndian.Uint16(data[20:22])
	h.InitCS = binary.LittleEndian.Uint16(data[22:24])
	h.RelocTableOff = binary.LittleEndian.Uint16(data[24:26])
	h.OverlayNumber = binary.LittleEndian.Uint16(data[26:28])
	return h, nil
}

// IsEXE reports whether data begins with the 'MZ' signature (spec.md §4.4).
func IsEXE(data []byte) bool {
	return len(data) >= 2 && data[0] == 'M' && data[1] == 'Z'
}

// LoadCOM loads a headerless COM image at pspSeg+0x10 (offset 0x100 in
// the PSP's segment), resizing the PSP's MCB block to the largest
// available size first, per spec.md §4.4.
func LoadCOM(mem *memory.Memory, alloc *mcb.Allocator, pspSeg uint16, data []byte) (Result, error) {
	if len(data) > 0xFF00 {
		return Result{}, fmt.Errorf("loader: COM image too large")
	}
	largest := alloc.LargestFree()
	alloc.Resize(pspSeg, largest)

	mem.WriteBytes(memory.LinearAddr(pspSeg, 0x100), data)

	return Result{
		PSPSegment:  pspSeg,
		LoadSegment: pspSeg,
		CS:          pspSeg,
		IP:          0x100,
		SS:          pspSeg,
		SP:          0xFFFE,
	}, nil
}

// LoadEXE loads an MZ image into a freshly allocated segment, applying
// relocations, per spec.md §4.4. loadSeg is pspSeg+16.
func LoadEXE(mem *memory.Memory, alloc *mcb.Allocator, pspSeg uint16, data []byte) (Result, error) {
	h, err := parseHeader(data)
	if err != nil {
		return Result{}, err
	}
	if !IsEXE(data) {
		return Result{}, fmt.Errorf("loader: not an MZ image")
	}

	headerBytes := uint32(h.HeaderParas) * 16
	fileSize := uint32(h.Blocks) * 512
	if h.BytesLastBlock != 0 {
		fileSize = fileSize - 512 + uint32(h.BytesLastBlock)
	}
	if fileSize < headerBytes {
		return Result{}, fmt.Errorf("loader: header larger than file")
	}
	dataSize := fileSize - headerBytes
	dataParas := uint16((dataSize + 15) / 16)

	loadSeg := pspSeg + 16

	want := uint32(dataParas) + uint32(h.MaxExtraParas)
	if want > 0xFFFF {
		want = 0xFFFF
	}
	need := uint32(dataParas) + uint32(h.MinExtraParas)

	got := alloc.Resize(pspSeg, uint16(want))
	if uint32(got) < need {
		return Result{}, fmt.Errorf("loader: insufficient memory: need %d paragraphs, have %d", need, got)
	}

	if int(headerBytes)+int(dataSize) > len(data) {
		return Result{}, fmt.Errorf("loader: short read past end of file")
	}
	mem.WriteBytes(memory.LinearAddr(loadSeg, 0), data[headerBytes:headerBytes+dataSize])

	if err := applyRelocations(mem, data, int(h.RelocTableOff), int(h.RelocCount), loadSeg); err != nil {
		return Result{}, err
	}

	return Result{
		PSPSegment:  pspSeg,
		LoadSegment: loadSeg,
		CS:          loadSeg + h.InitCS,
		IP:          h.InitIP,
		SS:          loadSeg + h.InitSS,
		SP:          h.InitSP,
	}, nil
}

// applyRelocations walks the relocation table and adds relocSeg to each
// pointed-to 16-bit word, per spec.md §4.4.
func applyRelocations(mem *memory.Memory, data []byte, tableOff, count int, relocSeg uint16) error {
	for i := 0; i < count; i++ {
		entryOff := tableOff + i*4
		if entryOff+4 > len(data) {
			return fmt.Errorf("loader: relocation table truncated")
		}
		off := binary.LittleEndian.Uint16(data[entryOff : entryOff+2])
		seg := binary.LittleEndian.Uint16(data[entryOff+2 : entryOff+4])

		linear := memory.LinearAddr(relocSeg+seg, off)
		word := mem.ReadWord(linear)
		mem.WriteWord(linear, word+relocSeg)
	}
	return nil
}

// LoadOverlay loads an image for DOS function 4B03h: same data layout as
// LoadEXE/COM but no new MCB block and no PSP; relocations add relocSeg
// (the caller-supplied segment) instead of a freshly allocated load
// segment, per spec.md §4.4.
func LoadOverlay(mem *memory.Memory, data []byte, loadAddr uint32, relocSeg uint16) error {
	if IsEXE(data) {
		h, err := parseHeader(data)
		if err != nil {
			return err
		}
		headerBytes := uint32(h.HeaderParas) * 16
		fileSize := uint32(h.Blocks) * 512
		if h.BytesLastBlock != 0 {
			fileSize = fileSize - 512 + uint32(h.BytesLastBlock)
		}
		dataSize := fileSize - headerBytes
		mem.WriteBytes(loadAddr, data[headerBytes:headerBytes+dataSize])
		return applyOverlayRelocations(mem, data, int(h.RelocTableOff), int(h.RelocCount), loadAddr, relocSeg)
	}
	mem.WriteBytes(loadAddr, data)
	return nil
}

func applyOverlayRelocations(mem *memory.Memory, data []byte, tableOff, count int, loadAddr uint32, relocSeg uint16) error {
	for i := 0; i < count; i++ {
		entryOff := tableOff + i*4
		if entryOff+4 > len(data) {
			return fmt.Errorf("loader: relocation table truncated")
		}
		off := binary.LittleEndian.Uint16(data[entryOff : entryOff+2])
		seg := binary.LittleEndian.Uint16(data[entryOff+2 : entryOff+4])
		linear := loadAddr + uint32(seg)<<4 + uint32(off)
		word := mem.ReadWord(linear)
		mem.WriteWord(linear, word+relocSeg)
	}
	return nil
}

// BuildPSP writes a Program Segment Prefix at pspSeg per the fixed
// offsets of spec.md §3. envSeg is the segment of the serialized
// environment block; parentPSP is the PSP segment to restore on exit
// (0xFFFE for a top-level process, matching spec.md §4.5 Exit).
func BuildPSP(mem *memory.Memory, pspSeg, topOfMemPara, envSeg, parentPSP uint16, cmdTail string) {
	base := memory.LinearAddr(pspSeg, 0)
	mem.WriteByte(base+0, 0xCD) // INT 20h opcode
	mem.WriteByte(base+1, 0x20)
	mem.WriteWord(base+2, topOfMemPara)
	mem.WriteWord(base+0x2C, envSeg)
	mem.WriteWord(base+0x16, parentPSP) // parent PSP segment, conventional offset

	mem.WriteByte(base+0x50, 0xCD) // INT 21h; RETF trampoline
	mem.WriteByte(base+0x51, 0x21)
	mem.WriteByte(base+0x52, 0xCB)

	for _, off := range []uint32{0x5C, 0x6C} {
		mem.WriteByte(base+off, 0)
		for i := uint32(1); i < 16; i++ {
			mem.WriteByte(base+off+i, 0)
		}
	}

	tail := cmdTail
	if len(tail) > 126 {
		tail = tail[:126]
	}
	mem.WriteByte(base+0x80, byte(len(tail)))
	for i, ch := range []byte(tail) {
		mem.WriteByte(base+0x81+uint32(i), ch)
	}
	mem.WriteByte(base+0x81+uint32(len(tail)), 0x0D)
}
