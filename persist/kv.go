package persist

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/facebookgo/stackerr"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/skipor/nemcache/archive"
	"github.com/skipor/nemcache/cache"
	"github.com/skipor/nemcache/internal/clock"
	"github.com/skipor/nemcache/internal/fs"
	"github.com/skipor/nemcache/log"
	"github.com/skipor/nemcache/logstore"
)

type Backend string

const (
	BackendBitcask Backend = "bitcask"
	BackendHybrid  Backend = "hybrid"
)

// Cache keys are stored with keyPrefix, so any key is disjoint with sequenceKey,
// which holds last written event id.
const (
	keyPrefix   = "k/"
	sequenceKey = "sequence"
)

func storeKey(key string) string { return keyPrefix + key }

type KVConfig struct {
	Backend Backend
	// Path is directory for bitcask, and file for hybrid.
	Path           string
	MaxSegmentSize int64
	MemoryLimit    int64
	Codec          archive.Codec
	QueueSize      int
	// CompactOnOpen rewrites hybrid log with live entries only, before open.
	CompactOnOpen bool
}

// KV persists latest state of every key into logstore.Store.
// Store path is exclusively locked while KV is open.
type KV struct {
	log   log.Logger
	conf  KVConfig
	clock clock.Clock
	store logstore.Store
	flock fs.Locker

	lock        sync.Mutex
	queue       *queue
	unsubscribe func()
	closed      bool
	lastID      int64

	errors atomic.Int64
}

func OpenKV(l log.Logger, fsys fs.FS, clk clock.Clock, conf KVConfig) (kv *KV, err error) {
	if conf.Codec == nil {
		conf.Codec = archive.Msgpack
	}
	if conf.QueueSize <= 0 {
		conf.QueueSize = DefaultQueueSize
	}
	switch conf.Backend {
	case BackendBitcask, BackendHybrid:
	default:
		return nil, stackerr.Newf("unknown kv backend %q", conf.Backend)
	}
	err = fsys.MkdirAll(filepath.Dir(conf.Path), dirPerm)
	if err != nil {
		return nil, stackerr.Wrap(err)
	}
	flock, err := fsys.Lock(conf.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			flock.Close()
		}
	}()
	kv = &KV{log: l, conf: conf, clock: clk, flock: flock}
	switch conf.Backend {
	case BackendBitcask:
		kv.store, err = logstore.OpenBitcask(fsys, logstore.BitcaskConfig{
			Dir:            conf.Path,
			MaxSegmentSize: conf.MaxSegmentSize,
		})
	case BackendHybrid:
		hconf := logstore.HybridConfig{Path: conf.Path, MemoryLimit: conf.MemoryLimit}
		if conf.CompactOnOpen {
			var exists bool
			exists, err = fsys.Exists(conf.Path)
			if err == nil && exists {
				err = logstore.CompactHybrid(fsys, hconf)
			}
			if err != nil {
				return nil, err
			}
		}
		kv.store, err = logstore.OpenHybrid(fsys, hconf)
	}
	if err != nil {
		return nil, err
	}
	return
}

// Restore reads live entries. Expired entries are deleted from store.
func (kv *KV) Restore() (r *Restored, err error) {
	r = &Restored{}
	now := kv.clock.Now()
	var expired []string
	var decodeErr error
	err = kv.store.Entries(func(key string, value []byte) bool {
		if key == sequenceKey {
			r.LastEventID = max(r.LastEventID, decodeSequence(value))
			return true
		}
		var e archive.Entry
		decodeErr = kv.conf.Codec.Unmarshal(value, &e)
		if decodeErr == nil && e.Store == nil {
			decodeErr = fmt.Errorf("entry of %q is not store record", key)
		}
		if decodeErr != nil {
			decodeErr = &CorruptedError{Path: kv.conf.Path, Err: decodeErr}
			return false
		}
		rec := *e.Store
		r.LastEventID = max(r.LastEventID, rec.EventID)
		if !rec.Live(now) {
			expired = append(expired, key)
			return true
		}
		r.Records = append(r.Records, rec)
		return true
	})
	if err == nil {
		err = decodeErr
	}
	if err != nil {
		return nil, err
	}
	for _, key := range expired {
		if err = kv.store.Delete(key); err != nil {
			return nil, err
		}
	}
	sortByEventID(r.Records)
	kv.lastID = r.LastEventID
	kv.log.Infof("KV %s restored: %v live keys, %v expired. Last event id %v.",
		kv.conf.Path, len(r.Records), len(expired), r.LastEventID)
	return
}

func (kv *KV) Attach(src Source) {
	kv.lock.Lock()
	defer kv.lock.Unlock()
	if kv.queue != nil {
		panic("kv is attached already")
	}
	kv.queue = newQueue(kv.log, kv.conf.QueueSize, kv.write)
	kv.unsubscribe = src.Subscribe(kv.queue.deliver)
}

func (kv *KV) write(batch []archive.Entry) {
	var err error
	for _, e := range batch {
		err = multierr.Append(err, kv.apply(e))
		kv.lastID = max(kv.lastID, e.EventID())
	}
	err = multierr.Append(err, kv.store.Put(sequenceKey, encodeSequence(kv.lastID)))
	if err != nil {
		kv.errors.Inc()
		kv.log.Errorf("KV write failed: %v", err)
	}
}

func (kv *KV) apply(e archive.Entry) error {
	switch {
	case e.Store != nil:
		return kv.put(*e.Store)
	case e.Remove != nil:
		return kv.store.Delete(storeKey(e.Remove.Key))
	case e.Touch != nil:
		rec, ok, err := kv.get(e.Touch.Key)
		if err != nil || !ok {
			return err
		}
		rec.Expiry = e.Touch.Expiry
		return kv.put(rec)
	case e.Clear != nil:
		var keys []string
		err := kv.store.Entries(func(key string, _ []byte) bool {
			if key != sequenceKey {
				keys = append(keys, key)
			}
			return true
		})
		for _, key := range keys {
			err = multierr.Append(err, kv.store.Delete(key))
		}
		return err
	}
	return nil
}

func (kv *KV) put(rec archive.StoreRecord) error {
	rec.Operation = cache.OpAdd
	data, err := kv.conf.Codec.Marshal(&archive.Entry{Store: &rec})
	if err != nil {
		return stackerr.Wrap(err)
	}
	return kv.store.Put(storeKey(rec.Key), data)
}

func (kv *KV) get(key string) (rec archive.StoreRecord, ok bool, err error) {
	data, ok, err := kv.store.TryGet(storeKey(key))
	if err != nil || !ok {
		return
	}
	var e archive.Entry
	err = kv.conf.Codec.Unmarshal(data, &e)
	if err != nil {
		return rec, false, stackerr.Wrap(err)
	}
	if e.Store == nil {
		return rec, false, nil
	}
	return *e.Store, true, nil
}

// Errors returns number of failed batch writes.
func (kv *KV) Errors() int64 { return kv.errors.Load() }

func (kv *KV) Sync() error { return kv.store.Sync() }

// Close unsubscribes, writes queued notifications and closes store.
func (kv *KV) Close() error {
	kv.lock.Lock()
	defer kv.lock.Unlock()
	if kv.closed {
		return nil
	}
	kv.closed = true
	if kv.queue != nil {
		kv.unsubscribe()
		kv.queue.close()
	}
	return multierr.Combine(kv.store.Close(), kv.flock.Close())
}

func encodeSequence(id int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func decodeSequence(data []byte) int64 {
	if len(data) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(data))
}
