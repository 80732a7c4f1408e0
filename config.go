package nemcache

import (
	"fmt"
	"io"

	"github.com/skipor/nemcache/cache"
	"github.com/skipor/nemcache/log"
	"github.com/skipor/nemcache/persist"
)

type Persistence int

const (
	PersistNone Persistence = iota
	// PersistLog appends every notification to log, compacted on startup and rotation.
	PersistLog
	// PersistKV keeps latest state of every key in log structured key value store.
	PersistKV
)

var persistenceNames = map[Persistence]string{
	PersistNone: "none",
	PersistLog:  "log",
	PersistKV:   "kv",
}

func (p Persistence) String() string {
	if name, ok := persistenceNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Persistence(%d)", int(p))
}

func PersistenceFromString(s string) (Persistence, error) {
	for p, name := range persistenceNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown persistence %q", s)
}

type Config struct {
	LogDestination io.Writer
	LogLevel       log.Level

	Cache       cache.Config
	Persistence Persistence
	Log         persist.Config
	KV          persist.KVConfig
}
