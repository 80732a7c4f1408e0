package cache

import (
	"strconv"
	"time"

	"github.com/facebookgo/stackerr"
)

// Mutate increments or decrements decimal value of present key by delta.
// Decrement below zero results zero, increment wraps at 2^64.
// Returns new value, or false if key is absent.
func (s *Store) Mutate(key string, delta uint64, positive bool) (value uint64, ok bool, err error) {
	s.checkDisposed()
	ok, err = s.apply(key, func(cur *item, now time.Time) (w write, err error) {
		if !cur.live(now) {
			return
		}
		var old uint64
		old, err = strconv.ParseUint(string(cur.Data), 10, 64)
		if err != nil {
			err = stackerr.Wrap(ErrNotNumeric)
			return
		}
		value = mutate(old, delta, positive)
		w = newEntryWrite(key, OpReplace, cur.Flags, cur.Expiry, strconv.AppendUint(nil, value, 10))
		return
	})
	return
}

func mutate(v, delta uint64, positive bool) uint64 {
	if positive {
		return v + delta
	}
	if delta > v {
		return 0
	}
	return v - delta
}
