// Package cache provides concurrent in-memory key value store with memcached semantics.
//
// Every mutation gets event id from store sequence, and notification about it is
// published to subscribers synchronously, on mutator goroutine, in strict event id order.
// Slow subscriber stalls mutations, so subscribers that do I/O should hand off work
// to another goroutine. Subscribers must not mutate store from notification callback.
//
// Entries are kept in sync.Map and replaced by compare-and-swap of immutable items.
// Removed keys are marked by tombstone items, that remember event id of removal, until
// expiry sweep purges them. That keeps per key order of map states equal to
// event id order, which persistence relies on.
//
// Whole map operations (Clear, eviction candidate selection) are not atomic relative to
// concurrent single key writes. Aggregate used bytes counter is updated after
// compare-and-swap, so it can disagree with map for a short time, but it is exact
// when store is quiescent.
package cache
