// Package tui implements jiftool's interactive inspector: a pheader list
// that drills down into the interval tree backing the selected pheader.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bsdinis/jiftool/internal/jif"
	"github.com/bsdinis/jiftool/internal/jif/itree"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

type inspectKeyMap struct {
	Up, Down, Select, Back, Quit key.Binding
}

func defaultInspectKeys() inspectKeyMap {
	return inspectKeyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// InspectModel is the top-level Bubbletea model for `jiftool inspect`: a
// pheader list, drilling into the interval list of whichever pheader is
// selected.
type InspectModel struct {
	path   string
	jif    *jif.Jif
	keys   inspectKeyMap
	cursor int

	inPheader      bool
	pheaderIdx     int
	intervalCursor int

	width, height int
}

// NewInspectModel builds the inspector model for an already-loaded JIF.
func NewInspectModel(path string, j *jif.Jif) InspectModel {
	return InspectModel{path: path, jif: j, keys: defaultInspectKeys()}
}

func (m InspectModel) Init() tea.Cmd { return nil }

func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Back):
			if m.inPheader {
				m.inPheader = false
			}
			return m, nil
		case key.Matches(msg, m.keys.Up):
			m.moveCursor(-1)
		case key.Matches(msg, m.keys.Down):
			m.moveCursor(1)
		case key.Matches(msg, m.keys.Select):
			if !m.inPheader && len(m.jif.Pheaders) > 0 {
				m.inPheader = true
				m.pheaderIdx = m.cursor
				m.intervalCursor = 0
			}
		}
	}
	return m, nil
}

func (m *InspectModel) moveCursor(delta int) {
	if m.inPheader {
		n := len(m.jif.Pheaders[m.pheaderIdx].Tree.InOrderIntervals())
		m.intervalCursor = clamp(m.intervalCursor+delta, 0, n-1)
		return
	}
	m.cursor = clamp(m.cursor+delta, 0, len(m.jif.Pheaders)-1)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (m InspectModel) View() string {
	if m.inPheader {
		return m.viewIntervals()
	}
	return m.viewPheaders()
}

func (m InspectModel) viewPheaders() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", titleStyle.Render(m.path))
	for i, p := range m.jif.Pheaders {
		line := fmt.Sprintf("[%d] %#x-%#x %s", i, p.VBegin, p.VEnd, p.Prot)
		if p.Ref != nil {
			line += dimStyle.Render(fmt.Sprintf("  ref=%s", p.Ref.Path))
		}
		if i == m.cursor {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("↑/↓ move · enter open pheader · q quit"))
	return b.String()
}

func (m InspectModel) viewIntervals() string {
	p := m.jif.Pheaders[m.pheaderIdx]
	intervals := p.Tree.InOrderIntervals()

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", titleStyle.Render(fmt.Sprintf("pheader %d: %#x-%#x", m.pheaderIdx, p.VBegin, p.VEnd)))
	for i, iv := range intervals {
		line := fmt.Sprintf("%#x-%#x  %s", iv.Start, iv.End, kindLabel(iv))
		if i == m.intervalCursor {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("↑/↓ move · esc back · q quit"))
	return b.String()
}

func kindLabel(iv itree.Interval) string {
	switch iv.Data.Kind {
	case itree.KindZero:
		return "zero"
	case itree.KindOwned, itree.KindRef:
		return fmt.Sprintf("data (%d bytes)", iv.Len())
	default:
		return "gap"
	}
}
