// Package ui is the interactive console: a scrollback viewport over the
// server log and an input line feeding the command channel.
package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mctool/internal/console"
	"mctool/internal/domain"
)

const historyDepth = 20

// HistoryProvider seeds the input-line history from past sessions.
type HistoryProvider interface {
	ListCommands(limit int) ([]domain.CommandHistoryEntry, error)
}

type Deps struct {
	Channel *console.Channel
	Tailer  *console.Tailer
	History HistoryProvider
	Status  func() domain.Status
}

type consoleModel struct {
	deps      Deps
	cursor    *console.Cursor
	viewport  viewport.Model
	textInput textinput.Model
	status    domain.Status
	content   string
	history   []string
	histPos   int
	draft     string
	notice    string
	ready     bool
	width     int
	height    int
}

func newConsoleModel(deps Deps) consoleModel {
	ti := textinput.New()
	ti.Placeholder = "Type a command..."
	ti.Focus()
	ti.CharLimit = 256

	m := consoleModel{
		deps: deps,
		// A cursor from the start of the file loads the whole log before
		// following new output.
		cursor:    deps.Tailer.Cursor(true),
		textInput: ti,
		status:    deps.Status(),
	}
	if deps.History != nil {
		if entries, err := deps.History.ListCommands(historyDepth); err == nil {
			for _, e := range entries {
				m.history = append(m.history, e.Text)
			}
		}
	}
	m.histPos = len(m.history)
	return m
}

type logTickMsg time.Time
type statusTickMsg time.Time
type noticeClearMsg struct{}

func logTick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return logTickMsg(t) })
}

func statusTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return statusTickMsg(t) })
}

func noticeClear() tea.Cmd {
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg { return noticeClearMsg{} })
}

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, logTick(), statusTick())
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			// The server keeps running; only the console detaches.
			return m, tea.Quit

		case tea.KeyEnter:
			if value := m.textInput.Value(); value != "" {
				m.textInput.SetValue("")
				if err := m.deps.Channel.Send(value); err != nil {
					m.notice = err.Error()
					return m, noticeClear()
				}
				m.history = append(m.history, value)
				if len(m.history) > historyDepth {
					m.history = m.history[len(m.history)-historyDepth:]
				}
				m.histPos = len(m.history)
				m.draft = ""
			}
			return m, nil

		case tea.KeyUp:
			if m.histPos > 0 {
				if m.histPos == len(m.history) {
					m.draft = m.textInput.Value()
				}
				m.histPos--
				m.textInput.SetValue(m.history[m.histPos])
				m.textInput.CursorEnd()
			}
			return m, nil

		case tea.KeyDown:
			if m.histPos < len(m.history) {
				m.histPos++
				if m.histPos == len(m.history) {
					m.textInput.SetValue(m.draft)
				} else {
					m.textInput.SetValue(m.history[m.histPos])
				}
				m.textInput.CursorEnd()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 8
		contentWidth := msg.Width - 6
		if !m.ready {
			m.viewport = viewport.New(contentWidth, msg.Height-headerHeight)
			m.viewport.SetContent(m.content)
			m.viewport.GotoBottom()
			m.ready = true
		} else {
			m.viewport.Width = contentWidth
			m.viewport.Height = msg.Height - headerHeight
		}

	case logTickMsg:
		lines, err := m.cursor.Next()
		if err != nil {
			m.notice = err.Error()
			return m, tea.Batch(logTick(), noticeClear())
		}
		if len(lines) > 0 {
			follow := m.viewport.AtBottom()
			for _, line := range lines {
				m.content += line.Text + "\n"
			}
			m.viewport.SetContent(m.content)
			if follow {
				m.viewport.GotoBottom()
			}
		}
		return m, logTick()

	case statusTickMsg:
		m.status = m.deps.Status()
		return m, statusTick()

	case noticeClearMsg:
		m.notice = ""
	}

	m.textInput, tiCmd = m.textInput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd)
}

func (m consoleModel) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	title := headerStyle.Width(m.width).Render("MINECRAFT CONSOLE")

	statusLine := ""
	if m.status.Running {
		running := lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("running")
		statusLine = fmt.Sprintf("🟢 %s  •  %s %s  •  PID %d  •  %.0f%% CPU  •  %d MB",
			running, m.status.Type, m.status.Version, m.status.PID,
			m.status.CPUPercent, m.status.RSSMegabytes)
	} else {
		stopped := lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Render("stopped")
		statusLine = fmt.Sprintf("🔴 %s  •  %s %s", stopped, m.status.Type, m.status.Version)
	}

	headerBox := baseStyle.
		Width(m.width - 4).
		Align(lipgloss.Center).
		Render(statusLine)

	logBox := baseStyle.
		Width(m.width - 4).
		Render(m.viewport.View())

	keys := []string{
		keyStyle.Render("enter") + descStyle.Render(": send"),
		keyStyle.Render("↑/↓") + descStyle.Render(": history"),
		keyStyle.Render("pgup/pgdn") + descStyle.Render(": scroll"),
		keyStyle.Render("esc") + descStyle.Render(": detach"),
	}
	helpText := ""
	for i, k := range keys {
		helpText += k
		if i < len(keys)-1 {
			helpText += descStyle.Render(" • ")
		}
	}

	footerLine := helpText
	if m.notice != "" {
		footerLine = noticeStyle.Render(m.notice)
	}

	footerContent := lipgloss.JoinVertical(lipgloss.Left,
		fmt.Sprintf("→ %s", m.textInput.View()),
		lipgloss.NewStyle().Width(m.width-6).Align(lipgloss.Center).Render(footerLine),
	)

	footerBox := footerStyle.
		Width(m.width - 4).
		Align(lipgloss.Left).
		Render(footerContent)

	return lipgloss.JoinVertical(lipgloss.Center,
		title,
		headerBox,
		logBox,
		footerBox,
	)
}

// RunConsole attaches the interactive console until the user detaches.
func RunConsole(deps Deps) error {
	p := tea.NewProgram(newConsoleModel(deps), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
