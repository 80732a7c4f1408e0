package persist

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/skipor/nemcache/archive"
	"github.com/skipor/nemcache/cache"
	"github.com/skipor/nemcache/log"
)

// queue hands durable notifications from cache writers to single writer goroutine.
type queue struct {
	log    log.Logger
	handle func(batch []archive.Entry)
	ch     chan archive.Entry
	done   chan struct{}

	// lock is read locked by senders, so close waits for sends in progress.
	lock    sync.RWMutex
	stopped bool

	dropped atomic.Int64
}

func newQueue(l log.Logger, size int, handle func(batch []archive.Entry)) *queue {
	q := &queue{
		log:    l,
		handle: handle,
		ch:     make(chan archive.Entry, size),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// deliver is cache subscriber callback. Read markers are ignored.
func (q *queue) deliver(n cache.Notification) {
	e, ok := archive.FromNotification(n)
	if !ok {
		return
	}
	q.lock.RLock()
	defer q.lock.RUnlock()
	if q.stopped {
		q.dropped.Inc()
		q.log.Warnf("Notification %v dropped: persistence is closed.", n)
		return
	}
	q.ch <- e
}

func (q *queue) run() {
	defer close(q.done)
	batch := make([]archive.Entry, 0, maxBatch)
	for e := range q.ch {
		batch = append(batch[:0], e)
	drain:
		for len(batch) < maxBatch {
			select {
			case e, ok := <-q.ch:
				if !ok {
					break drain
				}
				batch = append(batch, e)
			default:
				break drain
			}
		}
		q.handle(batch)
	}
}

// close stops accepting notifications and waits until queued are handled.
func (q *queue) close() {
	q.lock.Lock()
	if q.stopped {
		q.lock.Unlock()
		<-q.done
		return
	}
	q.stopped = true
	close(q.ch)
	q.lock.Unlock()
	<-q.done
}

func (q *queue) Dropped() int64 { return q.dropped.Load() }
