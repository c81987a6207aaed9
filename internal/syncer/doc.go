// Package syncer drains the pending-action queue against the server.
//
// A drain snapshots the queue once and walks it in creation order. Each
// action gets its own timeout; a success removes the action, a failure leaves
// it queued and the pass continues with the next one. Actions enqueued while
// a drain runs wait for the next drain. The sync cursor (last_sync) is written
// after every pass whatever the outcome.
//
// At most one drain runs at a time. The lock is a weighted semaphore taken
// with TryAcquire, so a second trigger returns ErrDrainInProgress at once
// instead of queueing behind the first.
package syncer
