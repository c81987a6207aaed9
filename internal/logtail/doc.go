// Package logtail reads the end of the leafrun log file for the TUI log view.
//
// # Reading
//
// Read keeps a ring buffer of maxLines entries while scanning the file once,
// so memory stays O(maxLines) however large the log grows. Lines come back
// in file order. A non-positive maxLines returns the whole file.
//
//	lines, err := logtail.Read(cfg.LogPath(), 400)
//
// # Parsing
//
// Parse splits a line written by the console encoder of internal/logging
// ("time | LEVEL | component | caller | message | fields") so the view can
// colour by level and show the component. Lines from other sources, such as
// a panic trace, are returned with only Message set.
package logtail
