package emulog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannelsSubstringMatch(t *testing.T) {
	chs := ParseChannels("cpu,dos")
	assert.ElementsMatch(t, []Channel{ChannelCPU, ChannelDOS}, chs)
}

func TestNewCreatesOnlyEnabledChannelFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "emu2")

	l, err := New(base, []Channel{ChannelCPU})
	require.NoError(t, err)
	defer l.Close()

	l.Channel(ChannelCPU).Info("hello")
	l.Channel(ChannelDOS).Info("should not appear")

	_, err = os.Stat(base + "-cpu.0.log")
	assert.NoError(t, err)
	_, err = os.Stat(base + "-dos.0.log")
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(base + "-cpu.0.log")
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestCreateLogFileAtomicNumbering(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "emu2")

	f1, err := createLogFile(base, "cpu")
	require.NoError(t, err)
	defer f1.Close()
	f2, err := createLogFile(base, "cpu")
	require.NoError(t, err)
	defer f2.Close()

	assert.Equal(t, base+"-cpu.0.log", f1.Name())
	assert.Equal(t, base+"-cpu.1.log", f2.Name())
}
