// Package replay merges bounded history with live notification stream,
// so late subscriber gets every durable notification exactly once, in event id order.
package replay

import (
	"sync"

	"github.com/skipor/nemcache/cache"
)

// Live is source of live notifications, such as cache.Store.
type Live interface {
	Subscribe(deliver func(cache.Notification)) (unsubscribe func())
}

// History replays past notifications in event id order.
type History interface {
	// Replay emits history and returns event id, through which history is complete.
	Replay(emit func(cache.Notification)) (through int64, err error)
}

type HistoryFunc func(emit func(cache.Notification)) (through int64, err error)

func (f HistoryFunc) Replay(emit func(cache.Notification)) (int64, error) { return f(emit) }

// Combined is subscription, that delivers history, and live notifications after it.
// Live notifications that arrive before history completion are buffered.
// Buffer is not bounded: slow history with heavy live traffic grows it.
// Read markers are not delivered: they have no event id to order them.
type Combined struct {
	deliver     func(cache.Notification)
	unsubscribe func()
	onClose     func()
	done        chan struct{}

	// lock protects fields bellow. Delivery happens under it, so deliver calls are serialized.
	lock        sync.Mutex
	historyDone bool
	closed      bool
	err         error
	buffer      []cache.Notification
	maxBuffered int
	// last is event id of last delivered notification.
	last int64
}

// Combine subscribes to live first, and then replays history in separate goroutine.
func Combine(live Live, history History, deliver func(cache.Notification)) *Combined {
	c := &Combined{
		deliver: deliver,
		done:    make(chan struct{}),
	}
	c.unsubscribe = live.Subscribe(c.onLive)
	go c.replay(history)
	return c
}

func (c *Combined) onLive(n cache.Notification) {
	if !n.Durable() {
		return
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed || c.err != nil {
		return
	}
	if !c.historyDone {
		c.buffer = append(c.buffer, n)
		if len(c.buffer) > c.maxBuffered {
			c.maxBuffered = len(c.buffer)
		}
		return
	}
	c.forward(n)
}

func (c *Combined) replay(history History) {
	defer close(c.done)
	through, err := history.Replay(func(n cache.Notification) {
		c.lock.Lock()
		defer c.lock.Unlock()
		if !c.closed {
			c.forward(n)
		}
	})

	c.lock.Lock()
	if err != nil {
		c.err = err
		c.buffer = nil
		c.lock.Unlock()
		c.unsubscribe()
		return
	}
	defer c.lock.Unlock()
	if through > c.last {
		c.last = through
	}
	for _, n := range c.buffer {
		if c.closed {
			break
		}
		c.forward(n)
	}
	c.buffer = nil
	c.historyDone = true
}

// forward delivers notifications that were not delivered yet. Requires lock held.
func (c *Combined) forward(n cache.Notification) {
	if n.EventID <= c.last {
		return
	}
	c.last = n.EventID
	c.deliver(n)
}

// Done is closed, when history replay finishes.
func (c *Combined) Done() <-chan struct{} { return c.done }

// Err returns history replay error. Valid after Done is closed.
func (c *Combined) Err() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.err
}

// Buffered returns max number of live notifications buffered while waiting history.
func (c *Combined) Buffered() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.maxBuffered
}

// Last returns event id of last delivered notification.
func (c *Combined) Last() int64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.last
}

// OnClose sets fn to be called once by first Close. Should be set before Close.
func (c *Combined) OnClose(fn func()) {
	c.lock.Lock()
	c.onClose = fn
	c.lock.Unlock()
}

// Close stops delivery. It doesn't wait for history replay finish.
func (c *Combined) Close() {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return
	}
	c.closed = true
	c.buffer = nil
	onClose := c.onClose
	c.lock.Unlock()
	c.unsubscribe()
	if onClose != nil {
		onClose()
	}
}
