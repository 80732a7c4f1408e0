package persist

import (
	"io"
	"sync"

	"github.com/facebookgo/stackerr"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/skipor/nemcache/aof"
	"github.com/skipor/nemcache/archive"
	"github.com/skipor/nemcache/internal/clock"
	"github.com/skipor/nemcache/internal/fs"
	"github.com/skipor/nemcache/log"
)

// Log appends cache notifications to AOF.
// Log file is exclusively locked while Log is open.
type Log struct {
	log   log.Logger
	conf  Config
	clock clock.Clock
	aof   *aof.AOF
	flock fs.Locker

	lock        sync.Mutex
	queue       *queue
	unsubscribe func()
	closed      bool

	written atomic.Int64
	errors  atomic.Int64
}

// OpenLog locks log and opens it for appending.
func OpenLog(l log.Logger, fsys fs.FS, clk clock.Clock, conf Config) (lg *Log, err error) {
	conf = conf.withDefaults()
	flock, err := fsys.Lock(conf.Path)
	if err != nil {
		return nil, err
	}
	lg, err = openLocked(l, fsys, clk, conf, flock)
	if err != nil {
		flock.Close()
	}
	return
}

// RestoreLog locks log, restores it and opens it for appending.
// Log is not touched, if it is locked by another owner.
func RestoreLog(l log.Logger, fsys fs.FS, clk clock.Clock, conf Config) (lg *Log, r *Restored, err error) {
	conf = conf.withDefaults()
	flock, err := fsys.Lock(conf.Path)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err != nil {
			flock.Close()
		}
	}()
	r, err = Restore(l, fsys, clk, conf)
	if err != nil {
		return nil, nil, err
	}
	lg, err = openLocked(l, fsys, clk, conf, flock)
	if err != nil {
		return nil, nil, err
	}
	return
}

func openLocked(l log.Logger, fsys fs.FS, clk clock.Clock, conf Config, flock fs.Locker) (lg *Log, err error) {
	lg = &Log{log: l, conf: conf, clock: clk, flock: flock}
	lg.aof, err = aof.Open(l, fsys, lg.rotator(), conf.aof())
	if err != nil {
		return nil, err
	}
	return
}

// rotator compacts log prefix the same way as Restore does.
func (lg *Log) rotator() aof.Rotator {
	return aof.RotatorFunc(func(r aof.ROFile, w io.Writer) (err error) {
		entries, truncated, err := archive.ReadAll(r, lg.conf.Codec)
		if err != nil {
			return
		}
		if truncated {
			return stackerr.New("log prefix ends with incomplete record")
		}
		records := archive.Compact(entries, lg.clock.Now())
		for i := range records {
			err = archive.WriteRecord(w, lg.conf.Codec, archive.Entry{Store: &records[i]})
			if err != nil {
				return
			}
		}
		lg.log.Debugf("Log prefix compacted: %v records to %v.", len(entries), len(records))
		return
	})
}

// Attach subscribes log to source notifications. Log can be attached once.
func (lg *Log) Attach(src Source) {
	lg.lock.Lock()
	defer lg.lock.Unlock()
	if lg.queue != nil {
		panic("log is attached already")
	}
	lg.queue = newQueue(lg.log, lg.conf.QueueSize, lg.write)
	lg.unsubscribe = src.Subscribe(lg.queue.deliver)
}

func (lg *Log) write(batch []archive.Entry) {
	t := lg.aof.NewTransaction()
	var err error
	var n int
	for _, e := range batch {
		err = archive.WriteRecord(t, lg.conf.Codec, e)
		if err != nil {
			break
		}
		n++
	}
	err = multierr.Append(err, t.Close())
	lg.written.Add(int64(n))
	if err != nil {
		lg.errors.Inc()
		lg.log.Errorf("Log write failed: %v", err)
	}
}

// Written returns number of records written.
func (lg *Log) Written() int64 { return lg.written.Load() }

// Errors returns number of failed batch writes.
func (lg *Log) Errors() int64 { return lg.errors.Load() }

// Size returns current log file size.
func (lg *Log) Size() int64 { return lg.aof.Size() }

func (lg *Log) Sync() error { return lg.aof.Sync() }

// WaitRotation blocks until background compaction in progress finishes.
func (lg *Log) WaitRotation() { lg.aof.WaitRotation() }

// Close unsubscribes log, writes queued notifications and closes file.
func (lg *Log) Close() (err error) {
	lg.lock.Lock()
	defer lg.lock.Unlock()
	if lg.closed {
		return nil
	}
	lg.closed = true
	if lg.queue != nil {
		lg.unsubscribe()
		lg.queue.close()
	}
	return multierr.Combine(lg.aof.Close(), lg.flock.Close())
}
