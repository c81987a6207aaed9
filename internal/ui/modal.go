package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/leafrun/internal/controller"
	"github.com/five82/leafrun/internal/route"
)

// Modal is the interface for modal dialogs.
// The Update method returns the updated modal, a command, and a bool indicating if the modal should close.
type Modal interface {
	Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool)
	View(theme Theme, width, height int) string
}

// completeRequest is emitted when the completion dialog is confirmed.
type completeRequest struct {
	PointID  int64
	Leaflets string
	Photo    string
}

const (
	fieldLeaflets = iota
	fieldPhoto
	fieldCount
)

// completeDialog collects the leaflet count and an optional photo marker
// for one point.
type completeDialog struct {
	point  route.Point
	inputs [fieldCount]textinput.Model
	focus  int
	err    string
}

func newCompleteDialog(p route.Point) *completeDialog {
	leaflets := textinput.New()
	leaflets.Prompt = "Leaflets: "
	leaflets.Placeholder = "0"
	leaflets.CharLimit = 6
	leaflets.Focus()

	photo := textinput.New()
	photo.Prompt = "Photo:    "
	photo.Placeholder = "optional file name"
	photo.CharLimit = 128

	return &completeDialog{
		point:  p,
		inputs: [fieldCount]textinput.Model{leaflets, photo},
	}
}

func (d *completeDialog) Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(km, keys.Escape):
			return d, nil, true
		case key.Matches(km, keys.Confirm):
			return d.submit()
		case key.Matches(km, keys.NextField):
			return d, d.setFocus((d.focus + 1) % fieldCount), false
		}
	}
	var cmd tea.Cmd
	d.inputs[d.focus], cmd = d.inputs[d.focus].Update(msg)
	return d, cmd, false
}

// submit validates locally so the dialog stays open on bad input; the
// controller validates again.
func (d *completeDialog) submit() (Modal, tea.Cmd, bool) {
	leaflets := d.inputs[fieldLeaflets].Value()
	if _, err := controller.ParseLeaflets(leaflets); err != nil {
		d.err = err.Error()
		return d, d.setFocus(fieldLeaflets), false
	}
	req := completeRequest{
		PointID:  d.point.ID,
		Leaflets: strings.TrimSpace(leaflets),
		Photo:    strings.TrimSpace(d.inputs[fieldPhoto].Value()),
	}
	return d, func() tea.Msg { return req }, true
}

func (d *completeDialog) setFocus(i int) tea.Cmd {
	d.focus = i
	var cmd tea.Cmd
	for j := range d.inputs {
		if j == i {
			cmd = d.inputs[j].Focus()
			continue
		}
		d.inputs[j].Blur()
	}
	return cmd
}

func (d *completeDialog) View(theme Theme, width, height int) string {
	styles := theme.Styles()

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render(fmt.Sprintf("Complete point #%d", d.point.ID)))
	b.WriteString("\n")
	b.WriteString(styles.MutedText.Render(truncate(d.point.Address, 44)))
	b.WriteString("\n\n")
	for _, in := range d.inputs {
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	if d.err != "" {
		b.WriteString("\n")
		b.WriteString(styles.DangerText.Render(d.err))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render("enter save · tab next field · esc cancel"))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(theme.BorderFocus)).
		Background(lipgloss.Color(theme.SurfaceAlt)).
		Padding(1, 2).
		Width(50)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box.Render(b.String()))
}
