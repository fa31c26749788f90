// Command emu2mon is a live monitor for a running emu2 process: it tails
// the per-channel debug log files internal/emulog writes and renders
// them as a scrolling terminal view, refreshed on a timer.
//
// Adapted from hejops-gone/cpu/debugger.go's bubbletea model, repointed
// from "step a program loaded directly into this process" to "follow log
// files written by someone else's process", since the emulator here runs
// as a separate OS process per spec.md §6 rather than in-process with its
// debugger.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dmsc-emu/emu2go/internal/emulog"
)

const (
	pollInterval = 200 * time.Millisecond
	maxLines     = 500
	visibleLines = 24
)

// tailFile is one channel's open log file and the byte offset already
// rendered.
type tailFile struct {
	channel emulog.Channel
	path    string
	f       *os.File
	offset  int64
}

type tickMsg time.Time

type model struct {
	base   string
	tails  []*tailFile
	lines  []string // ring buffer of "<channel> <line>" entries
	scroll int       // lines scrolled up from the bottom
	err    error
}

func main() {
	base := "emu2"
	if len(os.Args) > 1 {
		base = os.Args[1]
	}
	m := model{base: base}
	m.discoverTails()
	if len(m.tails) == 0 {
		fmt.Fprintf(os.Stderr, "emu2mon: no log files found for base %q (set EMU2_DEBUG before running emu2)\n", base)
		os.Exit(1)
	}
	if _, err := tea.NewProgram(m).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "emu2mon:", err)
		os.Exit(1)
	}
}

// discoverTails globs "<base>-<channel>.*.log" for every known channel
// and opens the highest-numbered (most recent) match read-only, seeked
// to its current end so the view starts empty and fills as new lines
// arrive.
func (m *model) discoverTails() {
	channels := []emulog.Channel{emulog.ChannelCPU, emulog.ChannelInt, emulog.ChannelPort, emulog.ChannelDOS, emulog.ChannelVideo}
	for _, ch := range channels {
		matches, _ := filepath.Glob(fmt.Sprintf("%s-%s.*.log", m.base, ch))
		if len(matches) == 0 {
			continue
		}
		// The matches differ only in <n>, so a shorter name is a smaller
		// number; equal lengths compare as strings.
		sort.Slice(matches, func(i, j int) bool {
			if len(matches[i]) != len(matches[j]) {
				return len(matches[i]) < len(matches[j])
			}
			return matches[i] < matches[j]
		})
		path := matches[len(matches)-1]
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			continue
		}
		m.tails = append(m.tails, &tailFile{channel: ch, path: path, f: f, offset: fi.Size()})
	}
}

func (m model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "j", "down":
			if m.scroll > 0 {
				m.scroll--
			}
		case "k", "up":
			m.scroll++
		case " ":
			m.poll()
		}
	case tickMsg:
		m.poll()
		return m, tick()
	}
	return m, nil
}

// poll reads any bytes appended to each tail file since its last read
// offset, splits them into lines, and appends them to the ring buffer.
func (m *model) poll() {
	for _, t := range m.tails {
		fi, err := t.f.Stat()
		if err != nil || fi.Size() <= t.offset {
			continue
		}
		if _, err := t.f.Seek(t.offset, io.SeekStart); err != nil {
			continue
		}
		buf := make([]byte, fi.Size()-t.offset)
		n, _ := t.f.Read(buf)
		t.offset += int64(n)
		for _, line := range strings.Split(strings.TrimRight(string(buf[:n]), "\n"), "\n") {
			if line == "" {
				continue
			}
			m.lines = append(m.lines, fmt.Sprintf("[%-5s] %s", t.channel, line))
		}
	}
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
)

func (m model) channelTable() string {
	rows := []string{headerStyle.Render("channel   file")}
	for _, t := range m.tails {
		rows = append(rows, fmt.Sprintf("%-9s %s", t.channel, t.path))
	}
	return boxStyle.Render(strings.Join(rows, "\n"))
}

func (m model) logView() string {
	end := len(m.lines) - m.scroll
	if end < 0 {
		end = 0
	}
	if end > len(m.lines) {
		end = len(m.lines)
	}
	start := end - visibleLines
	if start < 0 {
		start = 0
	}
	view := m.lines[start:end]
	return boxStyle.Render(strings.Join(view, "\n"))
}

func (m model) View() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.channelTable(),
		m.logView(),
		"q: quit   j/k: scroll   space: poll now",
	)
}
