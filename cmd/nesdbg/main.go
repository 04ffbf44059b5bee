// nesdbg is an interactive single-step TUI debugger: registers, flags, a
// table of the memory rows around PC, and the disassembly of the
// instruction at PC, rebuilt against cpu.Chip.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/retro6502/nes6502/bus"
	"github.com/retro6502/nes6502/cartridge"
	"github.com/retro6502/nes6502/cpu"
	"github.com/retro6502/nes6502/disassemble"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <rom.nes>\n", os.Args[0])
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rom, err := cartridge.Load(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	b := bus.NewWithMapper(cartridge.NewNROM(rom))
	b.PowerOn()
	c, err := cpu.Init(&cpu.ChipDef{Bus: b})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if _, err := tea.NewProgram(model{cpu: c, bus: b}).Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type model struct {
	cpu    *cpu.Chip
	bus    *bus.Bus
	prevPC uint16
	err    error
}

const pageWidth = 16

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case " ", "n":
		m.prevPC = m.cpu.PC
		if _, err := m.cpu.Step(); err != nil {
			m.err = err
		}
	}
	return m, nil
}

func (m model) renderPage(start uint16) string {
	s := fmt.Sprintf("%04X | ", start)
	for i := uint16(0); i < pageWidth; i++ {
		addr := start + i
		v := m.cpu.Read(addr)
		if addr == m.cpu.PC {
			s += fmt.Sprintf("[%02X] ", v)
		} else {
			s += fmt.Sprintf(" %02X  ", v)
		}
	}
	return s
}

func (m model) pageTable() string {
	header := "page | "
	for b := 0; b < pageWidth; b++ {
		header += fmt.Sprintf("  %01X  ", b)
	}
	lines := []string{header}
	base := m.cpu.PC &^ (pageWidth - 1)
	for i := -2; i <= 2; i++ {
		lines = append(lines, m.renderPage(uint16(int(base)+i*pageWidth)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

var flagStyle = lipgloss.NewStyle().Bold(true)

func (m model) status() string {
	tr := m.cpu.Trace()
	bits := []struct {
		name string
		set  bool
	}{
		{"N", tr.P&cpu.PNegative != 0},
		{"V", tr.P&cpu.POverflow != 0},
		{"-", tr.P&cpu.PS1 != 0},
		{"B", tr.P&cpu.PBreak != 0},
		{"D", tr.P&cpu.PDecimal != 0},
		{"I", tr.P&cpu.PInterrupt != 0},
		{"Z", tr.P&cpu.PZero != 0},
		{"C", tr.P&cpu.PCarry != 0},
	}
	flags := ""
	for _, f := range bits {
		if f.set {
			flags += flagStyle.Render(f.name) + " "
		} else {
			flags += f.name + " "
		}
	}
	dis, _ := disassemble.Step(tr.PC, m.bus)
	err := ""
	if m.err != nil {
		err = fmt.Sprintf("\nerr: %v", m.err)
	}
	return fmt.Sprintf("PC: %04X (was %04X)\nA: %02X  X: %02X  Y: %02X  S: %02X\ncycles: %d\n%s\n%s%s",
		tr.PC, m.prevPC, tr.A, tr.X, tr.Y, tr.S, tr.Cycles, flags, dis, err)
}

func (m model) View() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, m.pageTable(), "   ", m.status()),
		"",
		"space/n: step   q: quit",
	)
}
