package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/leafrun/internal/state"
)

const progressBarWidth = 20

// progressBar renders a fixed-width bar for a 0..100 percentage.
func progressBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(percent/100*float64(width) + 0.5)
	filled = clamp(filled, 0, width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// formatSince renders a last-sync time relative to now.
func formatSince(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}

// renderHeader renders the title line: route, progress and connectivity.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)
	snap := m.snapshot
	prog := snap.Progress()

	parts := []string{bg.Render("leafrun", styles.WarningText.Bold(true))}
	if snap.Route.Loaded() {
		parts = append(parts, bg.Render(fmt.Sprintf("Route #%d", snap.Route.ID), styles.Text))
	}
	parts = append(parts,
		bg.Render(progressBar(prog.Percent(), progressBarWidth), styles.SuccessText),
		bg.Render(fmt.Sprintf("%d/%d points  %d leaflets  %.0f%%", prog.Completed, prog.Total, prog.Leaflets, prog.Percent()), styles.Text),
	)
	if snap.FromCache {
		parts = append(parts, bg.Render("cached", styles.WarningText))
	}

	conn := styles.StatusStyle(badgeOffline).Render("OFFLINE")
	if snap.Online {
		conn = styles.StatusStyle(badgeOnline).Render("ONLINE")
	}
	parts = append(parts, conn)
	if snap.Pending > 0 {
		parts = append(parts, styles.StatusStyle(badgeQueued).Render(fmt.Sprintf("%d queued", snap.Pending)))
	}
	parts = append(parts, bg.Render("synced "+formatSince(snap.LastSync, time.Now()), styles.MutedText))
	if m.busy {
		parts = append(parts, bg.Render("working...", styles.InfoText))
	}

	return bg.FillLine(bg.Join(parts, "  "), m.width)
}

// renderCommandBar renders the key hints for the current view.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Accent))

	hints := [][2]string{{"p", "Points"}, {"l", "Logs"}}
	if m.currentView == ViewPoints {
		hints = append(hints, [2]string{"c", "Complete"}, [2]string{"o", "Optimize"}, [2]string{"r", "Report"}, [2]string{"x", "Hide done"})
	} else {
		hints = append(hints, [2]string{"space", "Follow"})
	}
	hints = append(hints, [2]string{"s", "Sync"}, [2]string{"?", "Help"}, [2]string{"e", "Quit"})

	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		parts = append(parts, bg.Render("<"+h[0]+">", keyStyle)+bg.Render(" "+h[1], styles.MutedText))
	}
	return bg.FillLine(bg.Join(parts, "  "), m.width)
}

// renderStatusLine shows the latest action result, error or notice.
func (m Model) renderStatusLine() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)

	var text string
	switch {
	case m.flash != "":
		style := styles.InfoText
		if m.flashErr {
			style = styles.DangerText
		}
		text = bg.Render(m.flash, style)
	case m.snapshot.LastError != nil && m.snapshot.Phase != state.PhaseLoadError:
		text = bg.Render(m.snapshot.LastError.Error(), styles.DangerText)
	case m.snapshot.Notice != "":
		text = bg.Render(m.snapshot.Notice, styles.SuccessText)
	case m.snapshot.LastReport != nil:
		r := m.snapshot.LastReport
		text = bg.Render(fmt.Sprintf("Last report: %d/%d points, %d leaflets", r.Completed, r.Total, r.Leaflets), styles.MutedText)
	}
	return bg.FillLine(text, m.width)
}
