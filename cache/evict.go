package cache

import (
	"math/rand"
	"sync"
	"time"
)

// Strategy chooses entries to evict, when store is over capacity.
type Strategy interface {
	// EvictEntry removes one entry, except keep, that is being written now.
	// Returns false if there is nothing to evict.
	EvictEntry(keep string) bool
	// Close detaches strategy from store.
	Close()
}

func newStrategy(p EvictionPolicy, s *Store) Strategy {
	switch p {
	case EvictLRU:
		return newLRU(s)
	case EvictRandom:
		return newRandom(s)
	case EvictNone:
		return nullStrategy{}
	}
	panic("unexpected eviction policy: " + p.String())
}

// nullStrategy never evicts. Store reports ErrCapacityExceeded instead.
type nullStrategy struct{}

func (nullStrategy) EvictEntry(string) bool { return false }
func (nullStrategy) Close()                 {}

// randomStrategy evicts uniformly chosen entry.
type randomStrategy struct {
	store *Store
	lock  sync.Mutex
	rand  *rand.Rand
}

func newRandom(s *Store) *randomStrategy {
	return &randomStrategy{
		store: s,
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *randomStrategy) EvictEntry(keep string) bool {
	for {
		key, ok := r.sample(keep)
		if !ok {
			return false
		}
		if r.store.evict(key) {
			return true
		}
		// Removed concurrently. Choose again.
	}
}

// sample chooses key by reservoir sampling over point in time key set.
func (r *randomStrategy) sample(keep string) (chosen string, ok bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	var seen int
	r.store.items.Range(func(k, v interface{}) bool {
		key := k.(string)
		if key == keep || !v.(*item).present() {
			return true
		}
		seen++
		if r.rand.Intn(seen) == 0 {
			chosen = key
		}
		return true
	})
	return chosen, seen > 0
}

func (r *randomStrategy) Close() {}
