// Package queue holds actions that have not yet been confirmed by the server.
//
// Actions are appended in creation order and replayed in the same order by
// the sync engine. Each action carries a typed payload (CompletePoint or
// SendReport) and a UUIDv7 identifier. The queue lives in the local store
// under the pending_actions key and is rewritten whole on every mutation.
//
// An action leaves the queue only through Remove, after the server confirms
// delivery, or through an explicit Clear.
package queue
