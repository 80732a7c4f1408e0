package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/facebookgo/stackerr"
	"go.uber.org/atomic"

	"github.com/skipor/nemcache/internal/clock"
	"github.com/skipor/nemcache/log"
)

type EvictionPolicy int

const (
	EvictLRU EvictionPolicy = iota
	EvictRandom
	// EvictNone disables eviction: writes that don't fit fail with ErrCapacityExceeded.
	EvictNone
)

var evictionPolicyNames = map[EvictionPolicy]string{
	EvictLRU:    "lru",
	EvictRandom: "random",
	EvictNone:   "none",
}

func (p EvictionPolicy) String() string {
	if name, ok := evictionPolicyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("EvictionPolicy(%d)", int(p))
}

func EvictionPolicyFromString(s string) (EvictionPolicy, error) {
	for p, name := range evictionPolicyNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown eviction policy %q", s)
}

type Config struct {
	// Capacity is limit of total data size in bytes. Zero means unlimited.
	Capacity int64
	Eviction EvictionPolicy
	// SweepInterval is period of expired entries removal. Zero disables sweep.
	SweepInterval time.Duration
	// StartSequence is last event id, that was used before.
	StartSequence int64
}

type Store struct {
	log      log.Logger
	sched    clock.Scheduler
	capacity int64
	strategy Strategy
	bus      *bus
	stats    *stats

	items sync.Map // string -> *item
	used  atomic.Int64
	count atomic.Int64
	seq   atomic.Int64
	// clearMark is event id of latest Clear.
	clearMark atomic.Int64
	disposed  atomic.Bool

	sweepInterval time.Duration
	// sweepLock is held during sweep, so Dispose waits for running sweep.
	sweepLock    sync.Mutex
	sweepStopped bool
	sweepTimer   clock.Cancelable
}

func NewStore(l log.Logger, sched clock.Scheduler, conf Config) *Store {
	if conf.Capacity < 0 {
		panic("negative capacity")
	}
	s := &Store{
		log:           l,
		sched:         sched,
		capacity:      conf.Capacity,
		bus:           newBus(conf.StartSequence),
		sweepInterval: conf.SweepInterval,
	}
	s.seq.Store(conf.StartSequence)
	s.stats = newStats(s)
	s.strategy = newStrategy(conf.Eviction, s)
	if s.sweepInterval > 0 {
		s.scheduleSweep()
	}
	l.Debugf("Cache store created: capacity %v, eviction %s, sequence %v.",
		conf.Capacity, conf.Eviction, conf.StartSequence)
	return s
}

// Subscribe registers deliver to be called for every notification.
// Durable notifications are delivered in event id order, starting from Watermark()+1
// observed after Subscribe returns. Should not be called from deliver callback.
func (s *Store) Subscribe(deliver func(Notification)) (unsubscribe func()) {
	s.checkDisposed()
	return s.bus.subscribe(deliver)
}

// Watermark returns event id, through which all notifications were delivered.
func (s *Store) Watermark() int64 { return s.bus.watermark() }

// Sequence returns last reserved event id.
func (s *Store) Sequence() int64 { return s.seq.Load() }

func (s *Store) Capacity() int64 { return s.capacity }

// Used returns total data size of held entries, including expired but not swept yet.
func (s *Store) Used() int64 { return s.used.Load() }

// Len returns number of held entries, including expired but not swept yet.
func (s *Store) Len() int { return int(s.count.Load()) }

// Dispose stops expiry sweep and releases eviction strategy. Store methods
// panic with ErrDisposed after it.
func (s *Store) Dispose() {
	if !s.disposed.CompareAndSwap(false, true) {
		return
	}
	s.sweepLock.Lock()
	s.sweepStopped = true
	if s.sweepTimer != nil {
		s.sweepTimer.Cancel()
	}
	s.sweepLock.Unlock()
	s.strategy.Close()
	s.stats.close()
	s.checkInvariants()
	s.log.Debug("Cache store disposed.")
}

func (s *Store) checkDisposed() {
	if s.disposed.Load() {
		panic(ErrDisposed)
	}
}

func (s *Store) load(key string) *item {
	v, ok := s.items.Load(key)
	if !ok {
		return nil
	}
	return v.(*item)
}

// swap replaces cur by next, if key value is still cur.
func (s *Store) swap(key string, cur, next *item) bool {
	if cur == nil {
		_, loaded := s.items.LoadOrStore(key, next)
		return !loaded
	}
	return s.items.CompareAndSwap(key, cur, next)
}

// reserve returns fresh event id. Id is greater than id of every item loaded before call.
func (s *Store) reserve() int64 { return s.seq.Inc() }

// write describes replacement of key item.
type write struct {
	next *item
	note Notification
	// keepToken is true, when next.CasToken is final. Otherwise token is event id.
	keepToken bool
}

// apply calls fn with current key item, until its result is swapped in.
// No change happens if fn returns nil next item or error.
// Capacity is ensured for size growth before event id reserve: eviction
// publishes notifications itself, and can't wait for ids reserved by caller.
func (s *Store) apply(key string, fn func(cur *item, now time.Time) (write, error)) (ok bool, err error) {
	for {
		cur := s.load(key)
		var w write
		w, err = fn(cur, s.sched.Now())
		if err != nil || w.next == nil {
			return
		}
		delta := w.next.size() - cur.size()
		if delta > 0 {
			err = s.ensureCapacity(key, w.next.size(), delta)
			if err != nil {
				return
			}
		}
		id := s.reserve()
		w.next.EventID = id
		w.note.EventID = id
		if !w.keepToken && w.next.present() {
			w.next.CasToken = uint64(id)
		}
		if !s.swap(key, cur, w.next) {
			s.bus.skip(id)
			continue
		}
		s.account(cur, w.next)
		s.afterSwap(key, w.next)
		s.bus.publish(w.note)
		if w.next.dead {
			s.purge(key, w.next)
		}
		s.stats.mutations.Mark(1)
		return true, nil
	}
}

func (s *Store) account(prev, next *item) {
	if delta := next.size() - prev.size(); delta != 0 {
		s.used.Add(delta)
	}
	switch {
	case !prev.present() && next.present():
		s.count.Inc()
	case prev.present() && !next.present():
		s.count.Dec()
	}
}

// afterSwap removes entry written with event id older than concurrent Clear,
// which could have missed it.
func (s *Store) afterSwap(key string, it *item) {
	if !it.present() {
		return
	}
	mark := s.clearMark.Load()
	if it.EventID >= mark {
		return
	}
	if s.items.CompareAndSwap(key, it, tombstone(mark)) {
		s.account(it, nil)
	}
}

// ensureCapacity evicts entries, until delta fits into capacity.
func (s *Store) ensureCapacity(keep string, size, delta int64) error {
	if s.capacity == 0 {
		return nil
	}
	if size > s.capacity {
		s.log.Warnf("Entry %q size %v is greater than capacity %v.", keep, size, s.capacity)
		return stackerr.Wrap(ErrCapacityExceeded)
	}
	for s.used.Load()+delta > s.capacity {
		if !s.strategy.EvictEntry(keep) {
			return stackerr.Wrap(ErrCapacityExceeded)
		}
	}
	return nil
}

// remove tombstones key item, if it satisfies cond.
func (s *Store) remove(key string, cond func(it *item, now time.Time) bool) bool {
	ok, _ := s.apply(key, func(cur *item, now time.Time) (w write, err error) {
		if !cur.present() || !cond(cur, now) {
			return
		}
		w.next = tombstone(0)
		w.note = Notification{Kind: KindRemove, Key: key}
		return
	})
	return ok
}

// evict removes entry regardless of expiry. Called by strategies.
func (s *Store) evict(key string) bool {
	ok := s.remove(key, func(*item, time.Time) bool { return true })
	if ok {
		s.stats.evictions.Inc(1)
		s.log.Debugf("Evict %q.", key)
	}
	return ok
}

func (s *Store) clear() {
	id := s.reserve()
	s.clearMarkMax(id)
	type grave struct {
		key string
		it  *item
	}
	var graves []grave
	s.items.Range(func(k, v interface{}) bool {
		key := k.(string)
		it := v.(*item)
		for it.present() && it.EventID < id {
			ts := tombstone(id)
			if s.items.CompareAndSwap(key, it, ts) {
				s.account(it, nil)
				graves = append(graves, grave{key, ts})
				break
			}
			it = s.load(key)
		}
		return true
	})
	s.bus.publish(Notification{Kind: KindClear, EventID: id})
	for _, g := range graves {
		s.purge(g.key, g.it)
	}
}

// purge deletes tombstone of published removal.
// Writers with lower ids are done after publish, and writers that
// saw tombstone have greater ids, so key absence is equivalent to it.
func (s *Store) purge(key string, ts *item) {
	if ts.EventID <= s.bus.watermark() {
		s.items.CompareAndDelete(key, ts)
	}
}

func (s *Store) clearMarkMax(id int64) {
	for {
		mark := s.clearMark.Load()
		if mark >= id || s.clearMark.CompareAndSwap(mark, id) {
			return
		}
	}
}
