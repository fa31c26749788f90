// Package config centralizes every EMU2_* environment variable into one
// Config value built once at startup, per spec.md §6 and SPEC_FULL.md
// §10.3, so the rest of the program never calls os.Getenv directly.
//
// Grounded on rcornwell-S370/config/configparser's small
// Option/registration pattern, generalized from a multi-file config
// reader to a flat environment-variable surface.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/dmsc-emu/emu2go/internal/emulog"
)

// Config is the full set of emulator-wide knobs read from the
// environment, per spec.md §6.
type Config struct {
	DebugChannels []emulog.Channel
	DebugName     string

	ProgName     string
	DefaultDrive int // 0=A..25=Z
	CWD          string

	DriveBase [26]string

	Codepage int
	LowMem   bool

	AppendPath string
}

// optionSource abstracts os.Getenv so tests can supply a fake
// environment without mutating process-global state, mirroring
// configparser's separation of option definition from option source.
type optionSource func(key string) (string, bool)

// Load builds a Config from the process environment.
func Load() Config {
	return load(func(key string) (string, bool) { return os.LookupEnv(key) })
}

func load(get optionSource) Config {
	c := Config{
		DebugName:    "emu2",
		DefaultDrive: 0,
		CWD:          `\`,
		Codepage:     437,
	}

	if v, ok := get("EMU2_DEBUG"); ok {
		c.DebugChannels = emulog.ParseChannels(v)
	}
	if v, ok := get("EMU2_DEBUG_NAME"); ok && v != "" {
		c.DebugName = v
	}
	if v, ok := get("EMU2_PROGNAME"); ok {
		c.ProgName = v
	}
	if v, ok := get("EMU2_DEFAULT_DRIVE"); ok && len(v) == 1 {
		c.DefaultDrive = driveLetterIndex(v[0])
	}
	if v, ok := get("EMU2_CWD"); ok && v != "" {
		c.CWD = v
	}
	for i := 0; i < 26; i++ {
		key := "EMU2_DRIVE_" + string(rune('A'+i))
		if v, ok := get(key); ok && v != "" {
			c.DriveBase[i] = v
		} else {
			c.DriveBase[i] = "."
		}
	}
	if v, ok := get("EMU2_CODEPAGE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Codepage = n
		}
	}
	if v, ok := get("EMU2_LOWMEM"); ok {
		c.LowMem = v != "" && v != "0"
	}
	if v, ok := get("EMU2_APPEND"); ok {
		c.AppendPath = v
	}

	return c
}

func driveLetterIndex(b byte) int {
	b = byte(strings.ToUpper(string(b))[0])
	return int(b - 'A')
}
