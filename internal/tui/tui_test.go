package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahm4dd/ipc-race/internal/scenario"
)

func press(t *testing.T, m model, k string) model {
	t.Helper()
	var msg tea.KeyMsg
	switch k {
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	next, _ := m.Update(msg)
	got, ok := next.(model)
	require.True(t, ok, "Update must return the same model type")
	return got
}

func TestMenu_NavigateAndSelect(t *testing.T) {
	m := newModel(scenario.All())

	m = press(t, m, "down")
	m = press(t, m, "down")
	assert.Equal(t, 2, m.cursor)

	m = press(t, m, "enter")
	assert.True(t, m.done)
	assert.False(t, m.selection.Cancelled)
	assert.Equal(t, scenario.All()[2].Name, m.selection.Scenario)
	assert.False(t, m.selection.Locked)
}

func TestMenu_CursorStopsAtEdges(t *testing.T) {
	m := newModel(scenario.All())

	m = press(t, m, "up")
	assert.Equal(t, 0, m.cursor)

	for range len(m.scenarios) + 3 {
		m = press(t, m, "down")
	}
	assert.Equal(t, len(m.scenarios)-1, m.cursor)
}

func TestMenu_ToggleLocked(t *testing.T) {
	m := newModel(scenario.All())
	assert.False(t, m.locked)

	m = press(t, m, "l")
	assert.True(t, m.locked)

	m = press(t, m, "l")
	assert.False(t, m.locked)

	m = press(t, m, "enter")
	assert.False(t, m.selection.Locked)
}

func TestMenu_LockedSelection(t *testing.T) {
	m := newModel(scenario.All())
	m = press(t, m, "l")
	m = press(t, m, "enter")

	assert.True(t, m.done)
	assert.Equal(t, scenario.All()[0].Name, m.selection.Scenario)
	assert.True(t, m.selection.Locked)
}

func TestMenu_QuitCancels(t *testing.T) {
	m := newModel(scenario.All())
	m = press(t, m, "esc")

	assert.True(t, m.done)
	assert.True(t, m.selection.Cancelled)
	assert.Empty(t, m.selection.Scenario)
}

func TestMenu_ViewListsScenarios(t *testing.T) {
	m := newModel(scenario.All())
	out := m.View()

	for _, s := range scenario.All() {
		assert.Contains(t, out, s.Name)
	}
	assert.Contains(t, out, "unsynchronized")

	m = press(t, m, "l")
	assert.Contains(t, m.View(), "locked")
}

func TestMenu_ViewEmptyAfterDone(t *testing.T) {
	m := newModel(scenario.All())
	m = press(t, m, "enter")
	assert.Empty(t, m.View())
}
