package config

import (
	"testing"

	"github.com/dmsc-emu/emu2go/internal/emulog"
	"github.com/stretchr/testify/assert"
)

func fakeEnv(m map[string]string) optionSource {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	c := load(fakeEnv(nil))
	assert.Equal(t, "emu2", c.DebugName)
	assert.Equal(t, 0, c.DefaultDrive)
	assert.Equal(t, `\`, c.CWD)
	assert.Equal(t, 437, c.Codepage)
	assert.False(t, c.LowMem)
	assert.Nil(t, c.DebugChannels)
	assert.Equal(t, ".", c.DriveBase[0])
}

func TestLoadDebugChannels(t *testing.T) {
	c := load(fakeEnv(map[string]string{"EMU2_DEBUG": "cpu,dos"}))
	assert.ElementsMatch(t, []emulog.Channel{emulog.ChannelCPU, emulog.ChannelDOS}, c.DebugChannels)
}

func TestLoadDriveMapping(t *testing.T) {
	c := load(fakeEnv(map[string]string{
		"EMU2_DRIVE_C":       "/srv/dos",
		"EMU2_DEFAULT_DRIVE": "C",
	}))
	assert.Equal(t, "/srv/dos", c.DriveBase[2])
	assert.Equal(t, 2, c.DefaultDrive)
}

func TestLoadCodepageAndLowMem(t *testing.T) {
	c := load(fakeEnv(map[string]string{
		"EMU2_CODEPAGE": "850",
		"EMU2_LOWMEM":   "1",
	}))
	assert.Equal(t, 850, c.Codepage)
	assert.True(t, c.LowMem)
}

func TestLoadCodepageInvalidFallsBackToDefault(t *testing.T) {
	c := load(fakeEnv(map[string]string{"EMU2_CODEPAGE": "not-a-number"}))
	assert.Equal(t, 437, c.Codepage)
}

func TestLoadAppendPath(t *testing.T) {
	c := load(fakeEnv(map[string]string{"EMU2_APPEND": `C:\UTIL;C:\TOOLS`}))
	assert.Equal(t, `C:\UTIL;C:\TOOLS`, c.AppendPath)
}
