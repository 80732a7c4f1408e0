package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is Scheduler for deterministic tests. Time moves only on Advance call,
// and due actions are called synchronously from Advance.
type Fake struct {
	lock    sync.Mutex
	now     time.Time
	seq     int
	pending []*fakeTimer
}

var _ Scheduler = (*Fake)(nil)

// NewFake returns Fake with time set to start.
// Zero start means fixed date, to keep tests independent from wall clock.
func NewFake(start time.Time) *Fake {
	if start.IsZero() {
		start = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.now
}

func (f *Fake) Schedule(delay time.Duration, action func()) Cancelable {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.seq++
	t := &fakeTimer{
		fake:   f,
		at:     f.now.Add(delay),
		seq:    f.seq,
		action: action,
	}
	f.pending = append(f.pending, t)
	return t
}

// Advance moves time forward by d, calling every action that became due, in due order.
// Actions scheduled by called actions are called too, if they are due.
func (f *Fake) Advance(d time.Duration) {
	f.lock.Lock()
	target := f.now.Add(d)
	f.lock.Unlock()
	for {
		f.lock.Lock()
		t := f.popDue(target)
		if t == nil {
			f.now = target
			f.lock.Unlock()
			return
		}
		if t.at.After(f.now) {
			f.now = t.at
		}
		f.lock.Unlock()
		t.action()
	}
}

// Pending returns number of scheduled, but not called and not canceled actions.
func (f *Fake) Pending() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.pending)
}

func (f *Fake) popDue(target time.Time) *fakeTimer {
	if len(f.pending) == 0 {
		return nil
	}
	sort.Slice(f.pending, func(i, j int) bool {
		a, b := f.pending[i], f.pending[j]
		if a.at.Equal(b.at) {
			return a.seq < b.seq
		}
		return a.at.Before(b.at)
	})
	t := f.pending[0]
	if t.at.After(target) {
		return nil
	}
	f.pending = f.pending[1:]
	return t
}

type fakeTimer struct {
	fake   *Fake
	at     time.Time
	seq    int
	action func()
}

func (t *fakeTimer) Cancel() bool {
	f := t.fake
	f.lock.Lock()
	defer f.lock.Unlock()
	for i, p := range f.pending {
		if p == t {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			return true
		}
	}
	return false
}
