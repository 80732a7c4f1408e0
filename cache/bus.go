package cache

import "sync"

// bus delivers notifications to subscribers in event id order.
// Event id can be delivered only after all lower ids were delivered or skipped,
// so every reserved id MUST be passed to publish or skip exactly once.
type bus struct {
	lock sync.Mutex
	cond *sync.Cond
	// next is id that is expected to be published.
	next       int64
	delivering bool
	// subs are copied on write, so delivery can iterate them without lock.
	subs []*subscriber
}

type subscriber struct {
	deliver func(Notification)
}

// newBus creates bus, that expects ids after start.
func newBus(start int64) *bus {
	b := &bus{next: start + 1}
	b.cond = sync.NewCond(&b.lock)
	return b
}

// subscribe waits for in-flight delivery finish, so subscriber
// gets every id after watermark observed just after subscribe.
// Should not be called from deliver callback.
func (b *bus) subscribe(deliver func(Notification)) (unsubscribe func()) {
	s := &subscriber{deliver}
	b.lock.Lock()
	for b.delivering {
		b.cond.Wait()
	}
	subs := make([]*subscriber, len(b.subs), len(b.subs)+1)
	copy(subs, b.subs)
	b.subs = append(subs, s)
	b.lock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(s) })
	}
}

func (b *bus) unsubscribe(s *subscriber) {
	b.lock.Lock()
	defer b.lock.Unlock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub != s {
			subs = append(subs, sub)
		}
	}
	b.subs = subs
}

// publish delivers n, after all previous ids are done.
func (b *bus) publish(n Notification) {
	id := n.EventID
	b.lock.Lock()
	b.waitTurn(id)
	b.delivering = true
	subs := b.subs
	b.lock.Unlock()

	defer b.done()
	for _, s := range subs {
		s.deliver(n)
	}
}

// skip marks id as done without delivery.
func (b *bus) skip(id int64) {
	b.lock.Lock()
	b.waitTurn(id)
	b.delivering = true
	b.lock.Unlock()
	b.done()
}

// notify delivers read marker immediately. It is not ordered with mutations.
func (b *bus) notify(n Notification) {
	b.lock.Lock()
	subs := b.subs
	b.lock.Unlock()
	for _, s := range subs {
		s.deliver(n)
	}
}

// watermark returns id through which every notification is delivered or skipped.
func (b *bus) watermark() int64 {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.next - 1
}

func (b *bus) subscribers() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.subs)
}

// waitTurn requires lock held.
func (b *bus) waitTurn(id int64) {
	if id < b.next {
		panic("event id published twice")
	}
	for b.next != id || b.delivering {
		b.cond.Wait()
	}
}

func (b *bus) done() {
	b.lock.Lock()
	b.delivering = false
	b.next++
	b.lock.Unlock()
	b.cond.Broadcast()
}
