// Package state holds the snapshot the presentation layer renders.
//
// # Overview
//
// The route controller and the sync loop publish into a Store; the TUI and
// the status command read from it. The Store never performs I/O and never
// decides anything: it is the meeting point between background work and
// rendering.
//
//	Producers:                      Consumer (UI):
//	┌──────────────────────┐       ┌──────────────────┐
//	│ controller.Load      │       │                  │
//	│ controller.Complete  │──────→│ store.Snapshot() │
//	│ controller.Sync      │ mutex │       ↓          │
//	│ connectivity events  │       │   render view    │
//	└──────────────────────┘       └──────────────────┘
//
// # Core Types
//
// Store:
//   - Zero value is ready to use
//   - Update(fn) mutates under the write lock
//   - Fail records an error; Notify records a notice and clears the error
//
// Snapshot:
//   - Phase (loading, ready, load_error) mirrors the controller
//   - Route, Pending, Online and LastSync drive the header and list
//   - LastDrain and LastReport carry the most recent outcomes
//   - Notice and LastError carry the status line
//
// # Copy Semantics
//
// Update clones the route after fn returns, so callers may hand over slices
// they keep using. Snapshot clones the route, the error and the result
// pointers, so renderers may mutate what they receive.
package state
