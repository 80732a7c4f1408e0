package persist

import (
	"time"

	"github.com/skipor/nemcache/archive"
	"github.com/skipor/nemcache/aof"
)

const (
	filePerm = 0644
	dirPerm  = 0755
)

type Config struct {
	Path  string
	Codec archive.Codec
	// SyncPeriod less than aof.MinSyncPeriod means sync after every written batch.
	SyncPeriod time.Duration
	// RotateSize is log size, after which log prefix is compacted in background. Zero disables it.
	RotateSize int64
	BuffSize   int
	// QueueSize bounds notifications waiting for write. Cache writers block, when queue is full.
	QueueSize int
}

func (c Config) withDefaults() Config {
	if c.Codec == nil {
		c.Codec = archive.Msgpack
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}

func (c Config) aof() aof.Config {
	return aof.Config{
		Path:       c.Path,
		SyncPeriod: c.SyncPeriod,
		RotateSize: c.RotateSize,
		BuffSize:   c.BuffSize,
	}
}
