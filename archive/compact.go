package archive

import (
	"time"

	"github.com/skipor/nemcache/cache"
)

// Compact returns records of keys that are live after entries applied in order.
// Log is scanned backward up to latest Clear: for every key only the latest Store
// or Remove matters, and Touch after that Store overrides its expiry.
// Records are returned in log order, as Add operations with their original event ids.
func Compact(entries []Entry, now time.Time) []StoreRecord {
	touched := map[string]int64{}
	decided := map[string]bool{}
	var survivors []StoreRecord
scan:
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		switch {
		case e.Clear != nil:
			break scan
		case e.Touch != nil:
			key := e.Touch.Key
			if _, ok := touched[key]; !ok && !decided[key] {
				touched[key] = e.Touch.Expiry
			}
		case e.Remove != nil:
			decided[e.Remove.Key] = true
		case e.Store != nil:
			rec := *e.Store
			if decided[rec.Key] {
				continue
			}
			decided[rec.Key] = true
			if expiry, ok := touched[rec.Key]; ok {
				rec.Expiry = expiry
			}
			if !rec.Live(now) {
				continue
			}
			rec.Operation = cache.OpAdd
			survivors = append(survivors, rec)
		}
	}
	for i, j := 0, len(survivors)-1; i < j; i, j = i+1, j-1 {
		survivors[i], survivors[j] = survivors[j], survivors[i]
	}
	return survivors
}

// LastEventID returns max event id of entries.
func LastEventID(entries []Entry) (id int64) {
	for _, e := range entries {
		if eid := e.EventID(); eid > id {
			id = eid
		}
	}
	return
}

// Entries wraps records into Store entries.
func Entries(records []StoreRecord) []Entry {
	res := make([]Entry, len(records))
	for i := range records {
		res[i] = Entry{Store: &records[i]}
	}
	return res
}
