package mcb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmsc-emu/emu2go/internal/memory"
)

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	mem := memory.New()
	return New(mem, 0x40, 0x8041)
}

func TestAllocateExactSplit(t *testing.T) {
	a := newTestAllocator(t)
	seg, _ := a.Allocate(0x0100, 1)
	require.NotZero(t, seg)
	assert.Equal(t, uint16(0x41), seg)

	remainder := a.readBlock(seg + 0x0100)
	assert.Equal(t, uint16(0), remainder.owner)
	assert.Equal(t, uint16(0x8000-0x0100-1), remainder.size)
	assert.Equal(t, byte('Z'), remainder.tag)
}

func TestFreeCoalesces(t *testing.T) {
	a := newTestAllocator(t)
	seg, _ := a.Allocate(0x0100, 1)
	a.Free(seg)

	first := a.readBlock(a.mcbStart)
	assert.Equal(t, uint16(0), first.owner)
	assert.Equal(t, uint16(0x8000), first.size)
	assert.Equal(t, byte('Z'), first.tag)
}

func TestAllocateFailureReportsLargest(t *testing.T) {
	a := newTestAllocator(t)
	seg, largest := a.Allocate(0x9000, 1)
	assert.Zero(t, seg)
	assert.Equal(t, uint16(0x8000), largest)
}

func TestChainInvariantHoldsAfterOperations(t *testing.T) {
	a := newTestAllocator(t)
	s1, _ := a.Allocate(0x10, 1)
	s2, _ := a.Allocate(0x20, 2)
	a.Verify()
	a.Free(s1)
	a.Verify()
	a.Resize(s2, 0x30)
	a.Verify()
}

func TestLastFitCarvesTail(t *testing.T) {
	a := newTestAllocator(t)
	a.Strategy = LastFit
	seg, _ := a.Allocate(0x0100, 1)
	assert.Equal(t, uint16(0x8041-0x0100), seg)
	a.Verify()
}

func TestResizeShrinkThenGrow(t *testing.T) {
	a := newTestAllocator(t)
	seg, _ := a.Allocate(0x100, 1)
	got := a.Resize(seg, 0x50)
	assert.Equal(t, uint16(0x50), got)
	a.Verify()
	got = a.Resize(seg, 0x200)
	assert.Equal(t, uint16(0x200), got)
	a.Verify()
}
