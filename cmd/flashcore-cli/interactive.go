// cmd/flashcore-cli/interactive.go
// --interactive TUI progress view. Grounded on the teacher's
// internal/cli/ui.Model.updateResourceData: a tea.Tick producing a
// resource-usage string from gopsutil's cpu/mem packages, folded into the
// same bubbletea Update loop that renders the (here: flashcore) operation
// log — generalized from polling a hasher-host child process's health to
// draining this core's events.Sink.
package main

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	psutil "github.com/shirou/gopsutil/v3/cpu"
	psmem "github.com/shirou/gopsutil/v3/mem"

	"flashcore/internal/events"
)

var (
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

type eventMsg events.Event
type resourceMsg string
type opDoneMsg struct{ err error }

type progressModel struct {
	sink     events.Sink
	lines    []string
	bytes    int64
	total    int64
	resource string
	done     bool
	err      error
}

func newProgressModel(sink events.Sink) progressModel {
	return progressModel{sink: sink}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.sink), tickResources())
}

func waitForEvent(sink events.Sink) tea.Cmd {
	return func() tea.Msg {
		e := <-sink
		return eventMsg(e)
	}
}

func tickResources() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		cpuPercent, _ := psutil.Percent(0, false)
		memInfo, _ := psmem.VirtualMemory()
		cpu := 0.0
		if len(cpuPercent) > 0 {
			cpu = cpuPercent[0]
		}
		mem := 0.0
		if memInfo != nil {
			mem = memInfo.UsedPercent
		}
		return resourceMsg(fmt.Sprintf("CPU: %.1f%% | RAM: %.1f%% | Go: %s", cpu, mem, runtime.Version()))
	})
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		e := events.Event(msg)
		if e.Kind == events.KindProgress {
			m.bytes, m.total = e.BytesDone, e.BytesTotal
		} else {
			m.lines = append(m.lines, e.String())
			if len(m.lines) > 20 {
				m.lines = m.lines[len(m.lines)-20:]
			}
		}
		return m, waitForEvent(m.sink)
	case resourceMsg:
		m.resource = string(msg)
		return m, tickResources()
	case opDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m progressModel) View() string {
	var b strings.Builder
	if m.total > 0 {
		pct := float64(m.bytes) / float64(m.total) * 100
		b.WriteString(progressStyle.Render(fmt.Sprintf("progress: %d/%d (%.1f%%)\n", m.bytes, m.total, pct)))
	}
	for _, l := range m.lines {
		b.WriteString(l + "\n")
	}
	if m.resource != "" {
		b.WriteString(dimStyle.Render(m.resource) + "\n")
	}
	if m.done {
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("failed: %v\n", m.err)))
		} else {
			b.WriteString(progressStyle.Render("done\n"))
		}
	}
	return b.String()
}

// runInteractive drives fn under a bubbletea program rendering progress
// from sink, returning fn's error once the program exits.
func runInteractive(ctx context.Context, sink events.Sink, fn func(ctx context.Context) error) error {
	model := newProgressModel(sink)
	program := tea.NewProgram(model)

	var fnErr error
	go func() {
		fnErr = fn(ctx)
		program.Send(opDoneMsg{err: fnErr})
	}()

	if _, err := program.Run(); err != nil {
		return err
	}
	return fnErr
}
