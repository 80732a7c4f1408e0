package cache

import "time"

// Entry is cached value. Entries are immutable after publish: readers must not modify Data.
type Entry struct {
	Flags uint64
	// Expiry is zero for entries that never expire.
	Expiry   time.Time
	CasToken uint64
	Data     []byte
	// EventID is id of notification, that produced entry.
	EventID int64
}

func (e Entry) Expired(now time.Time) bool {
	return !e.Expiry.IsZero() && !e.Expiry.After(now)
}

func (e Entry) Size() int64 { return int64(len(e.Data)) }

// State is point in time copy of store content.
type State struct {
	// Sequence is event id through which all notifications are reflected in Entries,
	// or delivered to subscribers, if entry was rewritten by later notification.
	Sequence int64
	Entries  map[string]Entry
}

// item is sync.Map value. Items are never modified after store.
type item struct {
	Entry
	// dead items are tombstones. EventID of tombstone is id of removal.
	dead bool
}

func tombstone(id int64) *item {
	return &item{Entry: Entry{EventID: id}, dead: true}
}

// present reports that item holds entry, which can be expired.
func (it *item) present() bool { return it != nil && !it.dead }

func (it *item) live(now time.Time) bool { return it.present() && !it.Expired(now) }

func (it *item) size() int64 {
	if !it.present() {
		return 0
	}
	return it.Size()
}
