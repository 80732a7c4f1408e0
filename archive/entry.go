// Package archive defines durable representation of cache notifications:
// records, their codecs, length prefixed framing, and log compaction.
package archive

import (
	"fmt"
	"time"

	"github.com/skipor/nemcache/cache"
)

// Entry is durable mirror of cache notification. Exactly one field is set.
type Entry struct {
	Store  *StoreRecord  `msgpack:"s,omitempty" cbor:"1,keyasint,omitempty"`
	Clear  *ClearRecord  `msgpack:"c,omitempty" cbor:"2,keyasint,omitempty"`
	Touch  *TouchRecord  `msgpack:"t,omitempty" cbor:"3,keyasint,omitempty"`
	Remove *RemoveRecord `msgpack:"r,omitempty" cbor:"4,keyasint,omitempty"`
}

type StoreRecord struct {
	Key   string `msgpack:"k" cbor:"1,keyasint"`
	Flags uint64 `msgpack:"f" cbor:"2,keyasint"`
	// Expiry is Unix time in nanoseconds. Zero means never.
	Expiry    int64           `msgpack:"e" cbor:"3,keyasint"`
	Data      []byte          `msgpack:"d" cbor:"4,keyasint"`
	Operation cache.Operation `msgpack:"o" cbor:"5,keyasint"`
	EventID   int64           `msgpack:"i" cbor:"6,keyasint"`
}

type ClearRecord struct {
	EventID int64 `msgpack:"i" cbor:"1,keyasint"`
}

type TouchRecord struct {
	Key     string `msgpack:"k" cbor:"1,keyasint"`
	Expiry  int64  `msgpack:"e" cbor:"2,keyasint"`
	EventID int64  `msgpack:"i" cbor:"3,keyasint"`
}

type RemoveRecord struct {
	Key     string `msgpack:"k" cbor:"1,keyasint"`
	EventID int64  `msgpack:"i" cbor:"2,keyasint"`
}

// FromNotification converts durable notification into Entry.
// Returns false for read markers.
func FromNotification(n cache.Notification) (e Entry, ok bool) {
	switch n.Kind {
	case cache.KindStore:
		e.Store = &StoreRecord{
			Key:       n.Key,
			Flags:     n.Flags,
			Expiry:    ExpiryToNanos(n.Expiry),
			Data:      n.Data,
			Operation: n.Operation,
			EventID:   n.EventID,
		}
	case cache.KindClear:
		e.Clear = &ClearRecord{EventID: n.EventID}
	case cache.KindTouch:
		e.Touch = &TouchRecord{Key: n.Key, Expiry: ExpiryToNanos(n.Expiry), EventID: n.EventID}
	case cache.KindRemove:
		e.Remove = &RemoveRecord{Key: n.Key, EventID: n.EventID}
	default:
		return
	}
	return e, true
}

// Notification converts Entry back into notification.
func (e Entry) Notification() cache.Notification {
	switch {
	case e.Store != nil:
		return e.Store.Notification()
	case e.Clear != nil:
		return cache.Notification{Kind: cache.KindClear, EventID: e.Clear.EventID}
	case e.Touch != nil:
		return cache.Notification{
			Kind:    cache.KindTouch,
			Key:     e.Touch.Key,
			Expiry:  NanosToExpiry(e.Touch.Expiry),
			EventID: e.Touch.EventID,
		}
	case e.Remove != nil:
		return cache.Notification{Kind: cache.KindRemove, Key: e.Remove.Key, EventID: e.Remove.EventID}
	}
	panic("empty archive entry")
}

func (r StoreRecord) Notification() cache.Notification {
	return cache.Notification{
		Kind:      cache.KindStore,
		Key:       r.Key,
		Data:      r.Data,
		Flags:     r.Flags,
		Expiry:    NanosToExpiry(r.Expiry),
		Operation: r.Operation,
		EventID:   r.EventID,
	}
}

func (r StoreRecord) Live(now time.Time) bool {
	return r.Expiry == 0 || r.Expiry > now.UnixNano()
}

func (e Entry) EventID() int64 {
	switch {
	case e.Store != nil:
		return e.Store.EventID
	case e.Clear != nil:
		return e.Clear.EventID
	case e.Touch != nil:
		return e.Touch.EventID
	case e.Remove != nil:
		return e.Remove.EventID
	}
	return 0
}

func (e Entry) validate() error {
	var set int
	for _, ok := range []bool{e.Store != nil, e.Clear != nil, e.Touch != nil, e.Remove != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("archive entry has %v records set", set)
	}
	return nil
}

func ExpiryToNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func NanosToExpiry(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
