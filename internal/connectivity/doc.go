// Package connectivity reports whether the API host is reachable.
//
// An Oracle exposes the current state and edge-triggered transition events.
// Manual is set by hand (tests and --offline runs). Monitor dials the API host
// on an interval and also accepts outcomes reported by the API client, with a
// two-failure threshold before it declares the host offline.
package connectivity
