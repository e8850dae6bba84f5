package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/agentpane/paneboard/internal/core"
)

// listLabelWidth bounds a project/session list entry's display width before
// the pane border wraps it, the way the teacher's home.go caps line widths
// with runewidth.StringWidth/Truncate rather than a byte-length check (CJK
// and emoji display names would otherwise blow past a fixed-width pane).
const listLabelWidth = 28

// truncateLabel shortens s to fit listLabelWidth display columns, leaving
// multi-byte display names (not just ASCII) intact.
func truncateLabel(s string) string {
	if runewidth.StringWidth(s) <= listLabelWidth {
		return s
	}
	return runewidth.Truncate(s, listLabelWidth, "…")
}

// tickInterval drives the controller's cooperative loop (spec.md §4.6
// "wait up to ~10 ms for a UI input event ... run a tick").
const tickInterval = 10 * time.Millisecond

var (
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	focusedStyle  = paneStyle.BorderForeground(lipgloss.Color("6"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	modalStyle    = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).Padding(1, 2)
)

// tickMsg is sent on every tickInterval to drive AppController.Tick.
type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// tuiModel is a thin bubbletea adapter over AppController: it translates
// tea.Msg into the controller's two message kinds (spec.md §6) and renders
// the controller's exposed state. Grounded on the teacher's internal/ui
// home.go Update/View split, with all modal/list widget logic removed —
// that rendering layer is an explicit out-of-scope collaborator here
// (spec.md §1).
type tuiModel struct {
	ctrl *core.AppController
}

func newTUIModel(ctrl *core.AppController) tuiModel {
	return tuiModel{ctrl: ctrl}
}

func (m tuiModel) Init() tea.Cmd {
	return tickCmd()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.ctrl.HandleKey(toKeyEvent(msg))
	case tea.WindowSizeMsg:
		m.ctrl.HandleResize(core.ResizeEvent{Cols: msg.Width, Rows: msg.Height})
	case tickMsg:
		m.ctrl.Tick()
		if m.ctrl.ShouldQuit() {
			m.ctrl.Shutdown()
			return m, tea.Quit
		}
		return m, tickCmd()
	}
	return m, nil
}

// specialKeyBindings maps a bubbles/key.Binding onto the controller's
// SpecialKey enum (spec.md §6 "a key event (code + modifiers)"), grounded
// on the teacher's own key.Matches(msg, key.NewBinding(...)) dispatch style
// (internal/ui/beads_panel.go) rather than a raw tea.KeyType switch. Order
// matters no more than it does for a map, since each binding matches a
// disjoint key.
var specialKeyBindings = []struct {
	binding key.Binding
	special core.SpecialKey
}{
	{key.NewBinding(key.WithKeys("enter")), core.KeyEnter},
	{key.NewBinding(key.WithKeys("esc")), core.KeyEsc},
	{key.NewBinding(key.WithKeys("tab")), core.KeyTab},
	{key.NewBinding(key.WithKeys("backspace")), core.KeyBackspace},
	{key.NewBinding(key.WithKeys("up")), core.KeyUp},
	{key.NewBinding(key.WithKeys("down")), core.KeyDown},
	{key.NewBinding(key.WithKeys("left")), core.KeyLeft},
	{key.NewBinding(key.WithKeys("right")), core.KeyRight},
	{key.NewBinding(key.WithKeys("pgup")), core.KeyPgUp},
	{key.NewBinding(key.WithKeys("pgdown")), core.KeyPgDown},
}

// toKeyEvent maps a bubbletea key message onto the controller's
// backend-agnostic KeyEvent. Key-to-byte translation for forwarding
// keystrokes into a pane is out of scope (spec.md §1); only the event
// shape crosses this boundary.
func toKeyEvent(msg tea.KeyMsg) core.KeyEvent {
	for _, sk := range specialKeyBindings {
		if key.Matches(msg, sk.binding) {
			return core.KeyEvent{Special: sk.special}
		}
	}

	s := msg.String()
	if strings.HasPrefix(s, "ctrl+") {
		rest := strings.TrimPrefix(s, "ctrl+")
		if len(rest) == 1 {
			return core.KeyEvent{Rune: rune(rest[0]), Mods: core.ModCtrl}
		}
	}
	if strings.HasPrefix(s, "alt+") {
		rest := strings.TrimPrefix(s, "alt+")
		if len(rest) == 1 {
			return core.KeyEvent{Rune: rune(rest[0]), Mods: core.ModAlt}
		}
	}

	if len(msg.Runes) > 0 {
		return core.KeyEvent{Rune: msg.Runes[0]}
	}
	if s == " " {
		return core.KeyEvent{Rune: ' '}
	}
	return core.KeyEvent{}
}

func (m tuiModel) View() string {
	var b strings.Builder

	b.WriteString(m.renderProjects())
	b.WriteString("  ")
	b.WriteString(m.renderSessions())
	b.WriteString("\n")
	b.WriteString(m.renderTerminal())
	b.WriteString("\n")

	if status := m.ctrl.StatusMessage(); status != "" {
		b.WriteString(statusStyle.Render(status))
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("focus: %s | ^n new | ^w close | tab cycle | ^r sync | ^h help | ^q quit\n",
		m.ctrl.Focus().String()))

	if modal := m.ctrl.CurrentModal(); modal != nil {
		b.WriteString(modalStyle.Render(renderModal(modal)))
	}

	return b.String()
}

func (m tuiModel) renderProjects() string {
	var lines []string
	for i := 0; ; i++ {
		p, ok := m.ctrl.ProjectAt(i)
		if !ok {
			break
		}
		line := truncateLabel(p.DisplayName)
		if active, ok := m.ctrl.ActiveProject(); ok && active.ID == p.ID {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	style := paneStyle
	if m.ctrl.Focus() == core.FocusProjectList {
		style = focusedStyle
	}
	return style.Render("Projects\n" + strings.Join(lines, "\n"))
}

func (m tuiModel) renderSessions() string {
	sessions := m.ctrl.SessionsForActiveProject()
	active, hasActive := m.ctrl.ActiveSession()
	var lines []string
	for _, s := range sessions {
		label := truncateLabel(s.DisplayName)
		if s.Terminated {
			label += " [terminated]"
		}
		if hasActive && active.ID == s.ID {
			label = selectedStyle.Render("> " + label)
		} else {
			label = "  " + label
		}
		lines = append(lines, label)
	}
	style := paneStyle
	if m.ctrl.Focus() == core.FocusSessionList {
		style = focusedStyle
	}
	return style.Render("Sessions\n" + strings.Join(lines, "\n"))
}

func (m tuiModel) renderTerminal() string {
	style := paneStyle
	if m.ctrl.Focus() == core.FocusTerminal {
		style = focusedStyle
	}

	sess, ok := m.ctrl.ActiveSessionHandle()
	if !ok {
		return style.Render("(no attached session)")
	}
	statusLabel := "idle"
	if st, ok := m.ctrl.ActiveSessionStatus(); ok {
		switch st {
		case core.StatusBusy:
			statusLabel = "busy"
		case core.StatusWaiting:
			statusLabel = "waiting"
		case core.StatusIdle:
			statusLabel = "idle"
		}
	}
	return style.Render(fmt.Sprintf("attached (%s) — backend id %s", statusLabel, sess.BackendID()))
}

func renderModal(modal core.Modal) string {
	switch m := modal.(type) {
	case *core.ConfirmModal:
		return m.Prompt + "\n[Enter/Esc to dismiss]"
	case *core.InputModal:
		return m.Prompt + ": " + m.Value + "_"
	case *core.ErrorModal:
		return "Error: " + m.Message + "\n[Enter/Esc to dismiss]"
	case core.HelpModal:
		return "^n new session  ^w close session  tab cycle focus\n^r sync now     ^h toggle help  ^q quit"
	default:
		return ""
	}
}
