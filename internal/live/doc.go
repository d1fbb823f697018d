// Package live implements the live query engine: subscriptions over the
// storage backend that re-deliver a full, current result set after any
// relevant committed mutation.
//
// # Snapshots
//
// Every delivery is a complete, correctly sorted result list, never a
// delta. The anticipated dataset (one user's task list) is small enough
// that re-scanning on each change beats incremental diffing.
//
// # Ordering
//
// Deliveries to a single subscription are serialized and tagged with a
// monotonically increasing sequence, so a subscriber never observes a
// snapshot older than one it has already received. When mutations outpace
// a subscriber's callback, intermediate snapshots are coalesced into the
// latest one.
//
// # Dispatch
//
// Dispatch is synchronous: the entity store calls Notify after a commit
// and every affected subscription is re-evaluated and called back before
// Notify returns. Re-evaluation runs after the transaction commits, never
// inside it.
//
// # Failures
//
// If re-evaluating a query fails, the subscriber keeps its last good
// snapshot and the error is pushed to the subscription's Errors channel
// without tearing the subscription down.
package live
