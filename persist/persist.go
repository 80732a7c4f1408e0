// Package persist makes cache durable: it restores cache content on startup,
// and writes cache notifications off the hot path while cache runs.
package persist

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/skipor/nemcache/archive"
	"github.com/skipor/nemcache/cache"
)

const (
	DefaultQueueSize = 1024
	// maxBatch limits records written in one AOF transaction.
	maxBatch = 256
)

// Source is notification source, such as cache.Store.
type Source interface {
	Subscribe(deliver func(cache.Notification)) (unsubscribe func())
}

var _ Source = (*cache.Store)(nil)

// Persister writes notifications of attached source. Close writes queued ones.
type Persister interface {
	io.Closer
	Attach(src Source)
}

var (
	_ Persister = (*Log)(nil)
	_ Persister = (*KV)(nil)
)

// Restored is cache content, that survived restart.
type Restored struct {
	// Records are live entries, in event id order.
	Records []archive.StoreRecord
	// LastEventID is max event id seen in persisted data.
	LastEventID int64
	// Truncated is true, if broken tail was cut off.
	Truncated bool
}

// Populate adds restored records into store. Records that don't fit are skipped.
func (r *Restored) Populate(s *cache.Store, now time.Time) (populated int, err error) {
	for _, rec := range r.Records {
		if !rec.Live(now) {
			continue
		}
		var ok bool
		ok, err = s.Populate(rec.Key, rec.Flags, archive.NanosToExpiry(rec.Expiry), rec.Data)
		if cache.IsCapacityExceeded(err) {
			err = nil
			continue
		}
		if err != nil {
			return
		}
		if ok {
			populated++
		}
	}
	return
}

func sortByEventID(records []archive.StoreRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].EventID < records[j].EventID })
}

// CorruptedError is returned when persisted data can't be read even partially.
type CorruptedError struct {
	Path string
	Err  error
}

func (e *CorruptedError) Error() string {
	return fmt.Sprintf("%s is corrupted: %v", e.Path, e.Err)
}

func (e *CorruptedError) Cause() error { return e.Err }
