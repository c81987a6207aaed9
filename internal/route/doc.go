// Package route holds the leaflet route domain types.
//
// A Snapshot is the route as cached on the device: an optional server route
// id plus an ordered list of points. Order carries walking meaning and can be
// changed by Optimize. Points only ever move from incomplete to completed;
// Complete refuses a second completion and never clears the flag.
//
// Snapshots are values. Complete and Optimize return new data and leave the
// input untouched.
package route
