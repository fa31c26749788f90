// Package emulog wraps log/slog with a per-channel handler, one log file
// per debug channel (cpu, int, port, dos, video), atomically created per
// spec.md §6's EMU2_DEBUG/EMU2_DEBUG_NAME environment variables.
//
// Grounded on rcornwell-S370/util/logger.LogHandler: a slog.Handler that
// timestamps, formats, and writes to an owned io.Writer under a mutex.
// Generalized here from "one shared handler with a debug toggle" to "one
// handler instance per named channel, each with its own backing file".
package emulog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/davecgh/go-spew/spew"
)

// Channel names the five debug channels spec.md §1/§6 lists.
type Channel string

const (
	ChannelCPU   Channel = "cpu"
	ChannelInt   Channel = "int"
	ChannelPort  Channel = "port"
	ChannelDOS   Channel = "dos"
	ChannelVideo Channel = "video"
)

var allChannels = []Channel{ChannelCPU, ChannelInt, ChannelPort, ChannelDOS, ChannelVideo}

// ChannelHandler is a slog.Handler writing timestamped lines to one
// channel's backing file, or discarding everything when the channel is
// disabled.
type ChannelHandler struct {
	out     *os.File
	mu      *sync.Mutex
	enabled bool
}

func (h *ChannelHandler) Enabled(context.Context, slog.Level) bool { return h.enabled }

func (h *ChannelHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *ChannelHandler) WithGroup(name string) slog.Handler       { return h }

// Handle formats a record as "<time> <level>: <message> <attrs...>",
// matching rcornwell-S370/util/logger's line format.
func (h *ChannelHandler) Handle(_ context.Context, r slog.Record) error {
	if !h.enabled {
		return nil
	}
	parts := []string{r.Time.Format("2006/01/02 15:04:05"), r.Level.String() + ":", r.Message}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, a.String())
		return true
	})
	line := strings.Join(parts, " ") + "\n"

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.WriteString(line)
	if err == nil {
		err = h.out.Sync()
	}
	return err
}

// Loggers holds one *slog.Logger per debug channel, built once at startup.
type Loggers struct {
	channels map[Channel]*slog.Logger
	files    []*os.File
}

// New builds a Loggers set: channels listed in enabled (as produced by
// ParseChannels) get a real file-backed handler, opened
// atomically as "<base>-<type>.<n>.log" for the lowest available n;
// every other channel gets a permanently-disabled handler, so call
// sites never branch on "is this channel on".
func New(base string, enabled []Channel) (*Loggers, error) {
	enabledSet := make(map[Channel]bool, len(enabled))
	for _, c := range enabled {
		enabledSet[c] = true
	}

	l := &Loggers{channels: make(map[Channel]*slog.Logger, len(allChannels))}
	for _, ch := range allChannels {
		if !enabledSet[ch] {
			l.channels[ch] = slog.New(&ChannelHandler{enabled: false, mu: &sync.Mutex{}})
			continue
		}
		f, err := createLogFile(base, string(ch))
		if err != nil {
			return nil, err
		}
		l.files = append(l.files, f)
		l.channels[ch] = slog.New(&ChannelHandler{out: f, mu: &sync.Mutex{}, enabled: true})
	}
	return l, nil
}

// createLogFile atomically creates "<base>-<type>.<n>.log" for the
// lowest n ≥ 0 not already taken, per spec.md §6.
func createLogFile(base, chType string) (*os.File, error) {
	for n := 0; ; n++ {
		name := fmt.Sprintf("%s-%s.%d.log", base, chType, n)
		f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
	}
}

// Channel returns the logger for a named debug channel.
func (l *Loggers) Channel(ch Channel) *slog.Logger { return l.channels[ch] }

// Dump formats v with go-spew (full struct field dump, pointer-cycle
// safe) for the register/MCB-chain snapshots logged at cpu/dos verbosity.
func Dump(v any) string {
	return spew.Sdump(v)
}

// Close flushes and closes every backing log file.
func (l *Loggers) Close() error {
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ParseChannels parses the EMU2_DEBUG environment value: a comma- or
// substring-matched subset of {cpu,int,port,dos,video}, per spec.md §6.
func ParseChannels(spec string) []Channel {
	if spec == "" {
		return nil
	}
	var out []Channel
	for _, ch := range allChannels {
		for _, part := range strings.Split(spec, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if strings.Contains(string(ch), part) || strings.Contains(part, string(ch)) {
				out = append(out, ch)
				break
			}
		}
	}
	return out
}
