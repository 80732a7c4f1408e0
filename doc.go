// Package nemcache is memcached compatible in-process cache engine with durable persistence.
//
// Engine restores cache content from persisted data, and then keeps persisting
// every cache mutation off the hot path. Late subscribers get cache state and
// live notifications after it, each exactly once.
package nemcache
