package ui

import (
	"fmt"
	"strings"

	"github.com/five82/leafrun/internal/route"
	"github.com/five82/leafrun/internal/state"
)

// visiblePoints returns the points shown in the list, in route order.
func visiblePoints(points []route.Point, hideCompleted bool) []route.Point {
	if !hideCompleted {
		return points
	}
	out := make([]route.Point, 0, len(points))
	for _, p := range points {
		if !p.Completed {
			out = append(out, p)
		}
	}
	return out
}

// selectedPoint returns the point under the cursor.
func (m Model) selectedPoint() (route.Point, bool) {
	points := visiblePoints(m.snapshot.Route.Points, m.prefs.HideCompleted)
	if len(points) == 0 || m.cursor < 0 || m.cursor >= len(points) {
		return route.Point{}, false
	}
	return points[m.cursor], true
}

func (m *Model) moveCursor(delta int) {
	n := len(visiblePoints(m.snapshot.Route.Points, m.prefs.HideCompleted))
	m.cursor = clamp(m.cursor+delta, 0, n-1)
}

// listWindow returns the first visible row so the cursor stays on screen.
func listWindow(cursor, total, height int) int {
	if height <= 0 || total <= height {
		return 0
	}
	start := cursor - height + 1
	return clamp(start, 0, total-height)
}

func (m Model) renderPoints(height int) string {
	styles := m.theme.Styles()

	switch m.snapshot.Phase {
	case state.PhaseLoading, "":
		return styles.MutedText.Render("Loading route...")
	case state.PhaseLoadError:
		msg := "No route available."
		if m.snapshot.LastError != nil {
			msg = m.snapshot.LastError.Error()
		}
		return styles.DangerText.Render(msg) + "\n" + styles.MutedText.Render("Press R to retry.")
	}

	points := visiblePoints(m.snapshot.Route.Points, m.prefs.HideCompleted)
	if len(points) == 0 {
		if len(m.snapshot.Route.Points) > 0 {
			return styles.SuccessText.Render("All points completed.")
		}
		return styles.MutedText.Render("The route has no points.")
	}

	compact := m.width > 0 && m.width < LayoutCompactWidth
	addrWidth := m.width - 30
	if compact {
		addrWidth = m.width - 18
	}
	addrWidth = max(addrWidth, 16)

	start := listWindow(m.cursor, len(points), height)
	end := min(start+max(height, 1), len(points))

	rows := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		rows = append(rows, m.renderPointRow(points[i], i == m.cursor, addrWidth, compact, styles))
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderPointRow(p route.Point, selected bool, addrWidth int, compact bool, styles Styles) string {
	badge := badgeTodo
	label := "todo"
	switch {
	case p.Completed:
		badge, label = badgeDone, "done"
	case matchesKeyword(p.Address, m.priorityKeyword()):
		badge, label = badgePriority, "prio"
	}

	addr := fmt.Sprintf("%-*s", addrWidth, truncate(p.Address, addrWidth))
	row := fmt.Sprintf("#%-5d %s", p.ID, addr)
	if !compact {
		detail := ""
		if p.Completed {
			detail = fmt.Sprintf("%4d lf", p.Leaflets)
			if p.Photo != "" {
				detail += " 📷"
			}
		}
		row += " " + detail
	}

	line := styles.StatusStyle(badge).Render(fmt.Sprintf("%-4s", label)) + " "
	if selected {
		return line + styles.Selected.Render(row)
	}
	if p.Completed {
		return line + styles.MutedText.Render(row)
	}
	return line + styles.Text.Render(row)
}

func (m Model) priorityKeyword() string {
	if m.cfg == nil {
		return ""
	}
	return m.cfg.PriorityKeyword
}
