package cache

import (
	"sort"
	"time"
)

// Store sets key value unconditionally.
func (s *Store) Store(key string, flags uint64, data []byte, expiry time.Time) error {
	s.checkDisposed()
	_, err := s.apply(key, func(cur *item, now time.Time) (w write, err error) {
		return newEntryWrite(key, OpStore, flags, expiry, data), nil
	})
	return err
}

// Add stores entry, only if key is absent. Expired entry is treated as absent.
func (s *Store) Add(key string, flags uint64, expiry time.Time, data []byte) (bool, error) {
	s.checkDisposed()
	return s.add(key, flags, expiry, data)
}

// Populate is Add for initial store population from persisted state.
func (s *Store) Populate(key string, flags uint64, expiry time.Time, data []byte) (bool, error) {
	s.checkDisposed()
	if !expiry.IsZero() && !expiry.After(s.sched.Now()) {
		return false, nil
	}
	return s.add(key, flags, expiry, data)
}

func (s *Store) add(key string, flags uint64, expiry time.Time, data []byte) (bool, error) {
	return s.apply(key, func(cur *item, now time.Time) (w write, err error) {
		if cur.live(now) {
			return
		}
		return newEntryWrite(key, OpAdd, flags, expiry, data), nil
	})
}

// Replace stores entry, only if key is present.
func (s *Store) Replace(key string, flags uint64, expiry time.Time, data []byte) (bool, error) {
	s.checkDisposed()
	return s.apply(key, func(cur *item, now time.Time) (w write, err error) {
		if !cur.live(now) {
			return
		}
		return newEntryWrite(key, OpReplace, flags, expiry, data), nil
	})
}

// Append adds data after value of present key. Flags and expiry are ignored:
// entry keeps its own.
func (s *Store) Append(key string, flags uint64, expiry time.Time, data []byte) (bool, error) {
	s.checkDisposed()
	return s.concat(key, OpAppend, data)
}

// Prepend adds data before value of present key. Flags and expiry are ignored:
// entry keeps its own.
func (s *Store) Prepend(key string, flags uint64, expiry time.Time, data []byte) (bool, error) {
	s.checkDisposed()
	return s.concat(key, OpPrepend, data)
}

func (s *Store) concat(key string, op Operation, data []byte) (bool, error) {
	return s.apply(key, func(cur *item, now time.Time) (w write, err error) {
		if !cur.live(now) {
			return
		}
		joined := make([]byte, 0, len(cur.Data)+len(data))
		if op == OpAppend {
			joined = append(append(joined, cur.Data...), data...)
		} else {
			joined = append(append(joined, data...), cur.Data...)
		}
		return newEntryWrite(key, op, cur.Flags, cur.Expiry, joined), nil
	})
}

// Cas updates entry, if its cas token equals casToken. Absent key is stored unconditionally.
// Stored entry gets casToken as its token.
func (s *Store) Cas(key string, flags uint64, expiry time.Time, casToken uint64, data []byte) (bool, error) {
	s.checkDisposed()
	return s.apply(key, func(cur *item, now time.Time) (w write, err error) {
		op := OpStore
		if cur.live(now) {
			if cur.CasToken != casToken {
				return
			}
			op = OpReplace
		}
		w = newEntryWrite(key, op, flags, expiry, data)
		w.next.CasToken = casToken
		w.keepToken = true
		return
	})
}

// Touch sets expiry of present key.
func (s *Store) Touch(key string, expiry time.Time) bool {
	s.checkDisposed()
	ok, _ := s.apply(key, func(cur *item, now time.Time) (w write, err error) {
		if !cur.live(now) {
			return
		}
		e := cur.Entry
		e.Expiry = expiry
		w.next = &item{Entry: e}
		w.keepToken = true
		w.note = Notification{Kind: KindTouch, Key: key, Expiry: expiry}
		return
	})
	return ok
}

// Remove deletes key. Returns false, if key was absent or expired.
func (s *Store) Remove(key string) bool {
	s.checkDisposed()
	var wasLive bool
	s.remove(key, func(it *item, now time.Time) bool {
		wasLive = it.live(now)
		return true
	})
	return wasLive
}

// Clear removes all entries, that were stored before call.
func (s *Store) Clear() {
	s.checkDisposed()
	s.clear()
	s.log.Debug("Cache cleared.")
}

// Retrieve returns live entries for found keys, and notifies subscribers about each read.
func (s *Store) Retrieve(keys ...string) map[string]Entry {
	s.checkDisposed()
	res := make(map[string]Entry, len(keys))
	for _, key := range keys {
		if e, ok := s.get(key, true); ok {
			res[key] = e
		}
	}
	return res
}

// Get is Retrieve of single key.
func (s *Store) Get(key string) (Entry, bool) {
	s.checkDisposed()
	return s.get(key, true)
}

// TryGet returns live key entry without notification.
func (s *Store) TryGet(key string) (Entry, bool) {
	s.checkDisposed()
	return s.get(key, false)
}

func (s *Store) get(key string, notify bool) (e Entry, ok bool) {
	it := s.load(key)
	if !it.live(s.sched.Now()) {
		s.stats.misses.Inc(1)
		return
	}
	s.stats.hits.Inc(1)
	if notify {
		s.bus.notify(Notification{Kind: KindRetrieve, Key: key})
	}
	return it.Entry, true
}

// CurrentState returns live entries reflecting all notifications through returned Sequence.
// Entries rewritten by later notifications are omitted: subscriber gets them live.
func (s *Store) CurrentState() State {
	s.checkDisposed()
	st := State{
		Sequence: s.bus.watermark(),
		Entries:  map[string]Entry{},
	}
	now := s.sched.Now()
	s.items.Range(func(k, v interface{}) bool {
		it := v.(*item)
		if it.live(now) && it.EventID <= st.Sequence {
			st.Entries[k.(string)] = it.Entry
		}
		return true
	})
	return st
}

// Notifications returns State content as Store notifications in event id order.
func (st State) Notifications() []Notification {
	res := make([]Notification, 0, len(st.Entries))
	for key, e := range st.Entries {
		n := storeNotification(key, OpAdd, e)
		n.EventID = e.EventID
		res = append(res, n)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].EventID < res[j].EventID })
	return res
}

func newEntryWrite(key string, op Operation, flags uint64, expiry time.Time, data []byte) write {
	e := Entry{Flags: flags, Expiry: expiry, Data: data}
	return write{
		next: &item{Entry: e},
		note: storeNotification(key, op, e),
	}
}
