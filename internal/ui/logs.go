package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/leafrun/internal/logtail"
)

// logState holds the tail of the application log.
type logState struct {
	path     string
	lines    []string
	follow   bool
	err      error
	viewport viewport.Model
}

func newLogState(path string) logState {
	return logState{
		path:     path,
		follow:   true,
		viewport: viewport.New(0, 0),
	}
}

type logsMsg struct {
	lines []string
	err   error
}

func (l logState) fetchCmd() tea.Cmd {
	path := l.path
	return func() tea.Msg {
		lines, err := logtail.Read(path, LogTailLines)
		return logsMsg{lines: lines, err: err}
	}
}

func (m *Model) applyLogs(msg logsMsg) {
	m.logs.err = msg.err
	if msg.err != nil {
		return
	}
	m.logs.lines = msg.lines
	m.refreshLogViewport()
}

func (m *Model) refreshLogViewport() {
	m.logs.viewport.SetContent(renderLogLines(m.logs.lines, m.theme.Styles()))
	if m.logs.follow {
		m.logs.viewport.GotoBottom()
	}
}

// renderLogLines colors each line by its level.
func renderLogLines(lines []string, styles Styles) string {
	if len(lines) == 0 {
		return styles.FaintText.Render("No log output yet.")
	}
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteString("\n")
		}
		e := logtail.Parse(line)
		if e.Level == "" {
			b.WriteString(styles.Text.Render(line))
			continue
		}
		b.WriteString(styles.FaintText.Render(e.Time))
		b.WriteString(" ")
		b.WriteString(styles.LevelStyle(e.Level).Render(padRight(e.Level, 5)))
		if e.Component != "" {
			b.WriteString(" ")
			b.WriteString(styles.AccentText.Render("[" + e.Component + "]"))
		}
		b.WriteString(" ")
		b.WriteString(styles.Text.Render(e.Message))
	}
	return b.String()
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}

func (m *Model) resizeLogs(width, height int) {
	m.logs.viewport.Width = width
	m.logs.viewport.Height = max(height, 1)
	if m.logs.follow {
		m.logs.viewport.GotoBottom()
	}
}

func (m Model) renderLogs() string {
	if m.logs.err != nil {
		return m.theme.Styles().DangerText.Render("Cannot read log: " + m.logs.err.Error())
	}
	return m.logs.viewport.View()
}
