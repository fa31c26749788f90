package loader

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmsc-emu/emu2go/internal/mcb"
	"github.com/dmsc-emu/emu2go/internal/memory"
)

func newAllocatorAt(t *testing.T, pspSeg uint16) (*memory.Memory, *mcb.Allocator) {
	t.Helper()
	mem := memory.New()
	alloc := mcb.New(mem, pspSeg, 0x9000)
	return mem, alloc
}

func TestIsEXE(t *testing.T) {
	assert.True(t, IsEXE([]byte{'M', 'Z', 0, 0}))
	assert.False(t, IsEXE([]byte{0xB4, 0x09}))
}

func TestLoadCOMPlacesCodeAt0x100(t *testing.T) {
	mem, alloc := newAllocatorAt(t, 0x1000)
	code := []byte{0xB4, 0x09, 0xCD, 0x21}
	res, err := LoadCOM(mem, alloc, 0x1000, code)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x100), res.IP)
	assert.Equal(t, uint16(0x1000), res.CS)
	assert.Equal(t, uint16(0xFFFE), res.SP)

	got := mem.ReadBytes(memory.LinearAddr(0x1000, 0x100), len(code))
	assert.Equal(t, code, got)
}

// buildMinimalEXE constructs a 28-byte header plus 0x110 bytes of data and
// a single relocation entry (seg=0x0010, off=0x0002) pointing at the word
// 0x0005 stored at data offset 0x102, matching the end-to-end scenario of
// spec.md §8.
func buildMinimalEXE() []byte {
	header := make([]byte, 32) // header + 4-byte relocation table, rounded to one paragraph
	header[0], header[1] = 'M', 'Z'
	data := make([]byte, 0x110)
	binary.LittleEndian.PutUint16(data[0x102:], 0x0005)

	fileSize := uint32(len(header) + len(data))
	blocks := (fileSize + 511) / 512
	lastBlock := fileSize % 512

	binary.LittleEndian.PutUint16(header[2:], uint16(lastBlock))
	binary.LittleEndian.PutUint16(header[4:], uint16(blocks))
	binary.LittleEndian.PutUint16(header[6:], 1) // RelocCount
	binary.LittleEndian.PutUint16(header[8:], 2) // HeaderParas = 32 bytes
	binary.LittleEndian.PutUint16(header[10:], 0)
	binary.LittleEndian.PutUint16(header[12:], 0x10)
	binary.LittleEndian.PutUint16(header[14:], 0) // InitSS
	binary.LittleEndian.PutUint16(header[16:], 0xFFFE)
	binary.LittleEndian.PutUint16(header[20:], 0) // InitIP
	binary.LittleEndian.PutUint16(header[22:], 0) // InitCS
	binary.LittleEndian.PutUint16(header[24:], 28) // RelocTableOff

	binary.LittleEndian.PutUint16(header[28:], 0x0002) // reloc offset
	binary.LittleEndian.PutUint16(header[30:], 0x0010) // reloc segment

	return append(header, data...)
}

func TestLoadEXEAppliesRelocation(t *testing.T) {
	mem, alloc := newAllocatorAt(t, 0x1000)
	img := buildMinimalEXE()

	res, err := LoadEXE(mem, alloc, 0x1000, img)
	require.NoError(t, err)

	loadSeg := res.LoadSegment
	assert.Equal(t, uint16(0x1010), loadSeg)

	word := mem.ReadWord(memory.LinearAddr(loadSeg+0x0010, 0x0002))
	assert.Equal(t, uint16(0x0005+loadSeg), word)
}
