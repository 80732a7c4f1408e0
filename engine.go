package nemcache

import (
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	metrics "github.com/rcrowley/go-metrics"

	"github.com/skipor/nemcache/cache"
	"github.com/skipor/nemcache/internal/clock"
	"github.com/skipor/nemcache/internal/fs"
	"github.com/skipor/nemcache/internal/promexport"
	"github.com/skipor/nemcache/internal/tag"
	"github.com/skipor/nemcache/log"
	"github.com/skipor/nemcache/persist"
	"github.com/skipor/nemcache/replay"
)

const metricsNamespace = "nemcache"

type Engine struct {
	log       log.Logger
	store     *cache.Store
	persister persist.Persister
	collector *promexport.Collector

	lock   sync.Mutex
	subs   map[*replay.Combined]struct{}
	closed bool
}

// Open restores persisted cache content and starts persisting new mutations.
// Restored entries are populated before persistence is attached, so they are not persisted twice.
// Log that can't be read even partially fails Open with *persist.CorruptedError.
// Nil logger means logger built from conf.LogLevel and conf.LogDestination.
func Open(l log.Logger, fsys fs.FS, sched clock.Scheduler, conf Config) (e *Engine, err error) {
	if l == nil {
		dest := conf.LogDestination
		if dest == nil {
			dest = os.Stderr
		}
		l = log.NewLogger(conf.LogLevel, dest)
	}
	if tag.Debug {
		l.Warn("Using debug build. It has more runtime checks and large performance overhead.")
	}
	var (
		restored  = &persist.Restored{}
		persister persist.Persister
	)
	switch conf.Persistence {
	case PersistNone:
	case PersistLog:
		var lg *persist.Log
		lg, restored, err = persist.RestoreLog(l, fsys, sched, conf.Log)
		if err == nil {
			persister = lg
		}
	case PersistKV:
		var kv *persist.KV
		kv, err = persist.OpenKV(l, fsys, sched, conf.KV)
		if err == nil {
			persister = kv
			restored, err = kv.Restore()
		}
	default:
		panic("unexpected persistence " + conf.Persistence.String())
	}
	if err != nil {
		if persister != nil {
			persister.Close()
		}
		return nil, err
	}

	cacheConf := conf.Cache
	cacheConf.StartSequence = max(cacheConf.StartSequence, restored.LastEventID)
	store := cache.NewStore(l, sched, cacheConf)
	populated, err := restored.Populate(store, sched.Now())
	if err != nil {
		store.Dispose()
		if persister != nil {
			persister.Close()
		}
		return nil, err
	}
	if len(restored.Records) > 0 {
		l.Infof("Cache populated with %v of %v restored entries.", populated, len(restored.Records))
	}

	e = &Engine{
		log:       l,
		store:     store,
		collector: promexport.New(metricsNamespace, store.Metrics()),
		subs:      map[*replay.Combined]struct{}{},
	}
	if persister != nil {
		persister.Attach(store)
		e.persister = persister
	}
	return
}

func (e *Engine) Cache() *cache.Store { return e.store }

// Subscribe delivers current cache state as Store notifications, and live notifications after it.
func (e *Engine) Subscribe(deliver func(cache.Notification)) *replay.Combined {
	c := replay.Combine(e.store, replay.StateHistory(e.store.CurrentState), deliver)
	e.lock.Lock()
	e.subs[c] = struct{}{}
	e.lock.Unlock()
	c.OnClose(func() {
		e.lock.Lock()
		delete(e.subs, c)
		e.lock.Unlock()
	})
	return c
}

func (e *Engine) subscriptions() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.subs)
}

func (e *Engine) Metrics() metrics.Registry { return e.store.Metrics() }

func (e *Engine) Collector() prometheus.Collector { return e.collector }

// Close stops subscriptions, writes pending mutations and disposes cache.
// Cache must not be used after Close.
func (e *Engine) Close() (err error) {
	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		return nil
	}
	e.closed = true
	subs := e.subs
	e.subs = nil
	e.lock.Unlock()
	for s := range subs {
		s.Close()
	}
	if e.persister != nil {
		err = e.persister.Close()
	}
	e.store.Dispose()
	if err != nil {
		e.log.Errorf("Engine close failed: %v", err)
	}
	return
}
