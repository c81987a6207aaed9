// Package controller owns the day's route and turns user actions into
// persisted, submitted or queued work.
//
// The decision logic is the pure function Reduce: given the current Model
// and an Intent it returns the next Model and an ordered list of Effects
// (persist the route, submit directly, enqueue). Controller runs those
// effects under a mutex, so the steps of one action never interleave with
// another's. A direct submission that fails is reduced again as
// DeliveryFailed, which yields an enqueue.
//
// The lifecycle phase (loading, ready, load_error) is a looplab/fsm machine.
// Load returns to loading through the reload event.
//
// Local changes are never rolled back. After a reload from the server,
// completions still waiting in the queue are applied on top of the fetched
// route so a point never reverts to open.
package controller
