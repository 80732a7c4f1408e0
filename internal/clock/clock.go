// Package clock provides time source and delayed callbacks abstraction.
// Components get Scheduler in constructor, so tests can substitute Fake and drive time manually.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

// Scheduler is Clock that can call action after delay.
type Scheduler interface {
	Clock
	// Schedule calls action once, in separate goroutine, after delay passed.
	Schedule(delay time.Duration, action func()) Cancelable
}

type Cancelable interface {
	// Cancel prevents action call. Returns false, if action has been called or canceled already.
	Cancel() bool
}

// Real returns Scheduler backed by time package.
func Real() Scheduler { return realScheduler{} }

type realScheduler struct{}

func (realScheduler) Now() time.Time { return time.Now() }

func (realScheduler) Schedule(delay time.Duration, action func()) Cancelable {
	return realTimer{time.AfterFunc(delay, action)}
}

type realTimer struct{ t *time.Timer }

func (t realTimer) Cancel() bool { return t.t.Stop() }
