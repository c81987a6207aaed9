// Package ui provides the terminal user interface for leafrun.
//
// The interface is a single Bubble Tea model. It never touches the network
// or the local store directly: it reads state.Snapshot values published by
// the route controller and turns key presses into controller calls that run
// as tea.Cmd functions off the UI goroutine.
//
// # Package Structure
//
//   - app.go: Model, Options, key dispatch, tick loop and the Run function
//   - header.go: title bar with progress and connectivity, command bar, status line
//   - points.go: point list rendering, filtering and cursor handling
//   - modal.go: Modal interface and the completion dialog
//   - logs.go: tail of the application log in a viewport
//   - help.go: keyboard shortcut overlay
//   - theme.go, style_helpers.go: color themes and lipgloss helpers
//
// # Views
//
//   - Points: the day's route in visit order. Completed points can be hidden;
//     points whose address matches the configured priority keyword are badged.
//   - Logs: the last lines of the log file written by the running process,
//     colored by level. Follow mode keeps the view pinned to the end.
//
// # Key Bindings
//
//   - c/enter: complete the selected point (leaflet count and photo marker)
//   - o: optimize the order of the remaining points
//   - r: send the daily report
//   - s: sync queued actions now
//   - R: reload the route
//   - x: hide or show completed points
//   - p/l/tab: switch views
//   - T: cycle theme
//   - h/?: help
//   - e/ctrl+c: quit
//
// Theme and the hide-completed toggle are stored in the preferences file.
package ui
