// Package tui provides the interactive scenario menu using Bubble Tea.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ahm4dd/ipc-race/internal/scenario"
)

// Color constants to avoid duplication (DRY).
const (
	colorPrimary = "#7D56F4"
	colorDim     = "#666666"
	colorGreen   = "#87D787"
	colorYellow  = "#FFD787"
)

// Styles for the menu (SST - single source of truth for styling).
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorPrimary)).
			MarginBottom(1)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorPrimary)).
			Bold(true)

	itemStyle = lipgloss.NewStyle()

	descStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorDim)).
			PaddingLeft(4)

	lockedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorGreen)).
			Bold(true)

	unlockedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorYellow)).
			Bold(true)
)

// Selection is what the menu hands back to the CLI.
type Selection struct {
	Scenario  string
	Locked    bool
	Cancelled bool
}

// keyMap defines the menu keybindings.
type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Toggle key.Binding
	Select key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Toggle, k.Select, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Toggle: key.NewBinding(
		key.WithKeys("l", " "),
		key.WithHelp("l/space", "toggle lock"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "run"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// model is the Bubble Tea model for the menu.
type model struct {
	scenarios []scenario.Scenario
	cursor    int
	locked    bool
	help      help.Model
	selection Selection
	done      bool
}

func newModel(scenarios []scenario.Scenario) model {
	return model{
		scenarios: scenarios,
		help:      help.New(),
	}
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, keys.Quit):
		m.selection = Selection{Cancelled: true}
		m.done = true
		return m, tea.Quit

	case key.Matches(keyMsg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(keyMsg, keys.Down):
		if m.cursor < len(m.scenarios)-1 {
			m.cursor++
		}

	case key.Matches(keyMsg, keys.Toggle):
		m.locked = !m.locked

	case key.Matches(keyMsg, keys.Select):
		m.selection = Selection{
			Scenario: m.scenarios[m.cursor].Name,
			Locked:   m.locked,
		}
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m model) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("ipc-race: pick a scenario"))
	b.WriteString("\n")

	for i, s := range m.scenarios {
		cursor := "  "
		style := itemStyle
		if i == m.cursor {
			cursor = cursorStyle.Render("> ")
			style = cursorStyle
		}
		b.WriteString(fmt.Sprintf("%s%s\n", cursor, style.Render(s.Name)))
		if i == m.cursor {
			b.WriteString(descStyle.Render(s.Description))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if m.locked {
		b.WriteString(lockedStyle.Render("mode: locked (race prevented)"))
	} else {
		b.WriteString(unlockedStyle.Render("mode: unsynchronized (race induced)"))
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.View(keys))
	return b.String()
}

// Run shows the menu and blocks until a scenario is chosen or the user
// quits.
func Run(scenarios []scenario.Scenario) (Selection, error) {
	p := tea.NewProgram(newModel(scenarios))
	final, err := p.Run()
	if err != nil {
		return Selection{}, fmt.Errorf("run menu: %w", err)
	}

	m, ok := final.(model)
	if !ok {
		return Selection{Cancelled: true}, nil
	}
	return m.selection, nil
}
