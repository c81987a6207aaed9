package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth is the threshold below which the address column
	// drops the leaflet and photo columns.
	LayoutCompactWidth = 80
)

// Log display limits.
const (
	// LogTailLines is the number of log lines read from the end of the file.
	LogTailLines = 500
)

// Timing constants.
const (
	// DefaultUIInterval is the default snapshot refresh interval.
	DefaultUIInterval = time.Second

	// ActionTimeout bounds a single user action started from the TUI.
	ActionTimeout = 30 * time.Second
)
