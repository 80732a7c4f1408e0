package cache

import "time"

func (s *Store) scheduleSweep() {
	s.sweepLock.Lock()
	defer s.sweepLock.Unlock()
	if s.sweepStopped {
		return
	}
	s.sweepTimer = s.sched.Schedule(s.sweepInterval, s.sweepAndReschedule)
}

func (s *Store) sweepAndReschedule() {
	s.sweepLock.Lock()
	if s.sweepStopped {
		s.sweepLock.Unlock()
		return
	}
	s.sweep()
	s.sweepTimer = s.sched.Schedule(s.sweepInterval, s.sweepAndReschedule)
	s.sweepLock.Unlock()
}

// sweep removes expired entries, and purges tombstones left by writers that raced with Clear.
// Iterates over point in time key set, so never blocks mutators.
func (s *Store) sweep() {
	now := s.sched.Now()
	watermark := s.bus.watermark()
	var expired []string
	s.items.Range(func(k, v interface{}) bool {
		key, it := k.(string), v.(*item)
		switch {
		case it.dead:
			if it.EventID <= watermark {
				s.items.CompareAndDelete(key, it)
			}
		case it.Expired(now):
			expired = append(expired, key)
		}
		return true
	})
	var removed int
	for _, key := range expired {
		if s.remove(key, func(it *item, now time.Time) bool { return it.Expired(now) }) {
			removed++
		}
	}
	if removed > 0 {
		s.stats.expirations.Inc(int64(removed))
		s.log.Debugf("Sweep removed %v expired entries.", removed)
	}
}
