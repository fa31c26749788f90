package nls

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmsc-emu/emu2go/internal/memory"
)

func TestBuildLaysOutNonOverlappingTables(t *testing.T) {
	mem := memory.New()
	tables := Build(mem)

	addrs := []uint32{
		tables.UppercaseTable,
		tables.TerminatorTable,
		tables.CollatingTable,
		tables.DBCSTable,
		tables.CountryInfo,
		tables.Sysvars,
	}
	for i := 1; i < len(addrs); i++ {
		assert.Greater(t, addrs[i], addrs[i-1])
	}
	assert.GreaterOrEqual(t, tables.UppercaseTable, uint32(memory.ROMBase))
	assert.Less(t, tables.Sysvars, uint32(memory.ROMTop))
}

func TestUppercaseTableLengthPrefix(t *testing.T) {
	mem := memory.New()
	tables := Build(mem)
	assert.Equal(t, uint16(128), mem.ReadWord(tables.UppercaseTable))
}
