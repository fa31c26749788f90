// Command emu2 loads and runs a DOS program under the emulator core, per
// spec.md §6. Grounded on rcornwell-S370/main.go's getopt-based option
// parsing and slog wiring, generalized from an IBM S/370 device-config
// CLI to the DOS loader's narrower flag set.
package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pborman/getopt/v2"

	"github.com/dmsc-emu/emu2go/internal/config"
	"github.com/dmsc-emu/emu2go/internal/console"
	"github.com/dmsc-emu/emu2go/internal/cpu"
	"github.com/dmsc-emu/emu2go/internal/dos"
	"github.com/dmsc-emu/emu2go/internal/emulog"
	"github.com/dmsc-emu/emu2go/internal/hostadapter"
	"github.com/dmsc-emu/emu2go/internal/loader"
	"github.com/dmsc-emu/emu2go/internal/mcb"
	"github.com/dmsc-emu/emu2go/internal/memory"
	"github.com/dmsc-emu/emu2go/internal/nls"
	"github.com/dmsc-emu/emu2go/internal/pathtr"
	"github.com/dmsc-emu/emu2go/internal/segment"
)

// mcbStart is the first MCB chain segment, chosen to sit above the IVT
// and BIOS data area (segment 0x40) with room to spare.
const mcbStart = 0x50

func main() {
	os.Exit(run())
}

func run() int {
	optBinAddr := getopt.StringLong("bin-addr", 'b', "", "load a headerless binary at this linear address instead of parsing prog as EXE/COM")
	optBinStart := getopt.StringLong("bin-start", 'r', "", "starting CS:IP (seg:off) for -b, default 0:0")
	optCompare := getopt.StringLong("compare", 'X', "", "reference memory image to diff against at exit")
	optHelp := getopt.BoolLong("help", 'h', "show usage")
	getopt.SetParameters("prog [args...] [-- env...]")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		return 0
	}

	args := getopt.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "emu2: missing program")
		getopt.Usage()
		return 1
	}
	progPath := args[0]
	cmdArgs, envArgs := splitOnDashDash(args[1:])

	cfg := config.Load()

	logs, err := emulog.New(cfg.DebugName, cfg.DebugChannels)
	if err != nil {
		fmt.Fprintln(os.Stderr, "emu2: log setup:", err)
		return 1
	}
	defer logs.Close()

	con := console.New(os.Stdin, os.Stdout)
	if err := con.EnableRaw(); err == nil {
		defer con.Restore()
	}

	mem := memory.New()
	maxSeg := uint16(0xA000)
	if cfg.LowMem {
		maxSeg = 0x8000
	}
	alloc := mcb.New(mem, mcbStart, maxSeg)

	drives := pathtr.NewDriveMap()
	for i := 0; i < 26; i++ {
		if cfg.DriveBase[i] != "" {
			drives.Base[i] = cfg.DriveBase[i]
		}
	}
	if cfg.CWD != "" {
		drives.CWD[cfg.DefaultDrive] = cfg.CWD
	}

	tables := nls.Build(mem)

	progName := cfg.ProgName
	if progName == "" {
		progName = strings.ToUpper(filepath.Base(progPath))
	}
	if !hasPathVar(envArgs) {
		envArgs = append(envArgs, `PATH=C:\`)
	}
	pspSeg := buildEnvAndPSP(mem, alloc, maxSeg, progName, cmdArgs, envArgs)

	c := cpu.New(mem)

	data, err := os.ReadFile(progPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "emu2:", err)
		return 1
	}

	if *optBinAddr != "" {
		addr, err := strconv.ParseUint(strings.TrimPrefix(*optBinAddr, "0x"), 16, 32)
		if err != nil {
			addr, err = strconv.ParseUint(*optBinAddr, 0, 32)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "emu2: bad -b address:", *optBinAddr)
			return 1
		}
		mem.WriteBytes(uint32(addr), data)
		seg, off := uint16(0), uint16(0)
		if *optBinStart != "" {
			seg, off, err = parseSegOff(*optBinStart)
			if err != nil {
				fmt.Fprintln(os.Stderr, "emu2: bad -r value:", *optBinStart)
				return 1
			}
		}
		c.Seg[segment.CS] = segment.Cache{Selector: seg, Base: uint32(seg) << 4, Limit: 0xFFFF, Flags: 0x9A}
		c.IP = off
	} else {
		var res loader.Result
		if loader.IsEXE(data) {
			res, err = loader.LoadEXE(mem, alloc, pspSeg, data)
		} else {
			res, err = loader.LoadCOM(mem, alloc, pspSeg, data)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "emu2:", err)
			return 1
		}
		c.Seg[segment.CS] = segment.Cache{Selector: res.CS, Base: uint32(res.CS) << 4, Limit: 0xFFFF, Flags: 0x9A}
		c.Seg[segment.SS] = segment.Cache{Selector: res.SS, Base: uint32(res.SS) << 4, Limit: 0xFFFF, Flags: 0x92}
		c.Seg[segment.DS] = segment.Cache{Selector: pspSeg, Base: uint32(pspSeg) << 4, Limit: 0xFFFF, Flags: 0x92}
		c.Seg[segment.ES] = segment.Cache{Selector: pspSeg, Base: uint32(pspSeg) << 4, Limit: 0xFFFF, Flags: 0x92}
		c.IP = res.IP
		c.Regs[cpu.SP] = res.SP
	}

	adapter := hostadapter.New(c, con, logs)
	dispatcher := dos.New(c, alloc, drives, tables, con, logs)
	dispatcher.DefaultDrive = cfg.DefaultDrive
	dispatcher.AppendPath = cfg.AppendPath
	dispatcher.CurPSP = pspSeg
	dispatcher.DTA = memory.LinearAddr(pspSeg, 0x80)

	var childAbnormal bool
	dispatcher.ExecChild = func(hostPath, cmdTail string, env []string) (uint16, error) {
		return execChild(hostPath, cmdTail, env, &childAbnormal)
	}

	var exitCode uint8
	guestExited := false
	dispatcher.OnExit = func(code uint8) {
		exitCode = code
		guestExited = true
		c.Halted = true
	}

	adapter.RegisterDOS(dispatcher.Dispatch)

	runErr := adapter.Run()
	if runErr != nil && runErr != hostadapter.Exited {
		fmt.Fprintln(os.Stderr, "emu2:", runErr)
		return 1
	}
	if !guestExited {
		// INT 19h (system reset) without a prior DOS exit call.
		exitCode = 0
	}

	if *optCompare != "" {
		compareMemory(mem, *optCompare, logs)
	}

	code := int(exitCode)
	if childAbnormal {
		code += 0x100
	}
	return code
}

// splitOnDashDash divides rest into the guest command-line arguments and,
// if a literal "--" is present, the guest environment entries that follow
// it, per spec.md §6.
func splitOnDashDash(rest []string) (cmdArgs, envArgs []string) {
	for i, a := range rest {
		if a == "--" {
			return rest[:i], rest[i+1:]
		}
	}
	return rest, nil
}

func hasPathVar(env []string) bool {
	for _, e := range env {
		if len(e) >= 5 && strings.EqualFold(e[:5], "PATH=") {
			return true
		}
	}
	return false
}

func parseSegOff(s string) (seg, off uint16, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected seg:off")
	}
	segN, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return 0, 0, err
	}
	offN, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return 0, 0, err
	}
	return uint16(segN), uint16(offN), nil
}

// buildEnvAndPSP serializes the guest environment block per the DOS 3.x+
// convention (original_source/src/loader.c's create_PSP: NUL-terminated
// KEY=VALUE strings, a terminating NUL, then a uint16(1) sentinel and the
// ASCIZ program name), allocates it and the PSP through the MCB chain,
// and builds the PSP. Both blocks are allocated with a placeholder owner
// of 1 and then re-tagged to their own PSP segment, mirroring
// mcb_set_owner in the original: a process's PSP and environment blocks
// are self-owned, but the owning segment isn't known until after the PSP
// block itself is allocated.
func buildEnvAndPSP(mem *memory.Memory, alloc *mcb.Allocator, topOfMem uint16, progName string, cmdArgs, envArgs []string) (pspSeg uint16) {
	var buf bytes.Buffer
	for _, e := range envArgs {
		buf.WriteString(e)
		buf.WriteByte(0)
	}
	buf.WriteByte(0) // end of KEY=VALUE list
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	buf.WriteString(progName)
	buf.WriteByte(0)

	envParas := uint16((buf.Len() + 15) / 16)
	envSeg, _ := alloc.Allocate(envParas, 1)
	mem.WriteBytes(memory.LinearAddr(envSeg, 0), buf.Bytes())

	pspSeg, _ = alloc.Allocate(16, 1)
	alloc.SetOwner(envSeg, pspSeg)
	alloc.SetOwner(pspSeg, pspSeg)

	var cmdTail string
	if len(cmdArgs) > 0 {
		cmdTail = " " + strings.Join(cmdArgs, " ")
	}
	loader.BuildPSP(mem, pspSeg, topOfMem, envSeg, 0xFFFE, cmdTail)
	return pspSeg
}

// execChild implements the AH=4Bh/00h host side: re-execute this very
// binary against the resolved guest program, passing the command tail
// and environment through the same CLI grammar main() itself parses, per
// spec.md §6/§7. A child killed by a signal is reported as an error so
// internal/dos maps it to AX=5 (access denied); childAbnormal records
// that for the final process exit-code convention.
func execChild(hostPath, cmdTail string, env []string, childAbnormal *bool) (uint16, error) {
	cmdArgs := append([]string{hostPath}, strings.Fields(cmdTail)...)
	cmdArgs = append(cmdArgs, "--")
	cmdArgs = append(cmdArgs, env...)

	cmd := exec.Command(os.Args[0], cmdArgs...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return 0, err
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		*childAbnormal = true
		return 0, fmt.Errorf("child terminated by signal: %v", ws.Signal())
	}
	return uint16(exitErr.ExitCode() & 0xFF), nil
}

// compareMemory diffs mem's first len(reference) bytes against a
// reference memory image and logs the first mismatch, per spec.md §6's
// -X option; intended for regression-testing the core against a known
// trace, not guest-visible behavior.
func compareMemory(mem *memory.Memory, path string, logs *emulog.Loggers) {
	reference, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "emu2: -X:", err)
		return
	}
	got := mem.ReadBytes(0, len(reference))
	for i := range reference {
		if got[i] != reference[i] {
			fmt.Fprintf(os.Stderr, "emu2: memory differs from %s at offset 0x%X: got 0x%02X, want 0x%02X\n", path, i, got[i], reference[i])
			return
		}
	}
}
