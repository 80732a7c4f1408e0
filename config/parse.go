package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/facebookgo/stackerr"

	"github.com/skipor/nemcache"
	"github.com/skipor/nemcache/archive"
	"github.com/skipor/nemcache/cache"
	"github.com/skipor/nemcache/log"
	"github.com/skipor/nemcache/persist"
)

// RotateSizeCoef is default log rotate size to cache size ratio.
const RotateSizeCoef = 3

const logFilePerm = 0644

func Parse(conf *Config) (nconf nemcache.Config, err error) {
	nconf.LogDestination, err = logDestination(conf.LogDestination)
	if err != nil {
		err = stackerr.Newf("Log destination open error: %v", err)
		return
	}
	nconf.LogLevel, err = log.LevelFromString(conf.LogLevel)
	if err != nil {
		err = stackerr.Newf("Log level parse error: %v", err)
		return
	}
	nconf.Cache.Capacity, err = parseSize(conf.CacheSize)
	if err != nil {
		err = stackerr.Newf("Cache size parse error: %v", err)
		return
	}
	nconf.Cache.Eviction, err = cache.EvictionPolicyFromString(conf.Eviction)
	if err != nil {
		err = stackerr.Wrap(err)
		return
	}
	nconf.Cache.SweepInterval, err = parseDuration(conf.SweepInterval)
	if err != nil {
		err = stackerr.Newf("Sweep interval parse error: %v", err)
		return
	}
	nconf.Persistence, err = nemcache.PersistenceFromString(conf.Persistence)
	if err != nil {
		err = stackerr.Wrap(err)
		return
	}
	nconf.Log, err = parseLog(conf.Log, nconf.Cache.Capacity)
	if err != nil {
		return
	}
	nconf.KV, err = parseKV(conf.KV)
	return
}

func parseLog(conf LogConfig, cacheSize int64) (pconf persist.Config, err error) {
	pconf.Path = conf.Path
	pconf.QueueSize = conf.QueueSize
	pconf.Codec, err = archive.CodecByName(conf.Codec)
	if err != nil {
		err = stackerr.Wrap(err)
		return
	}
	pconf.SyncPeriod, err = parseDuration(conf.Sync)
	if err != nil {
		err = stackerr.Newf("Log sync period parse error: %v", err)
		return
	}
	var bufSize int64
	bufSize, err = parseSize(conf.BufSize)
	if err != nil {
		err = stackerr.Newf("Log buf size parse error: %v", err)
		return
	}
	pconf.BuffSize = int(bufSize)
	if conf.RotateSize == "" {
		pconf.RotateSize = cacheSize * RotateSizeCoef
		return
	}
	pconf.RotateSize, err = parseSize(conf.RotateSize)
	if err != nil {
		err = stackerr.Newf("Log rotate size parse error: %v", err)
	}
	return
}

func parseKV(conf KVConfig) (kconf persist.KVConfig, err error) {
	kconf.Path = conf.Path
	kconf.CompactOnOpen = conf.CompactOnOpen
	kconf.QueueSize = conf.QueueSize
	switch b := persist.Backend(conf.Backend); b {
	case persist.BackendBitcask, persist.BackendHybrid:
		kconf.Backend = b
	default:
		err = stackerr.Newf("Unknown kv backend %q", conf.Backend)
		return
	}
	kconf.Codec, err = archive.CodecByName(conf.Codec)
	if err != nil {
		err = stackerr.Wrap(err)
		return
	}
	kconf.MaxSegmentSize, err = parseSize(conf.MaxSegmentSize)
	if err != nil {
		err = stackerr.Newf("KV max segment size parse error: %v", err)
		return
	}
	kconf.MemoryLimit, err = parseSize(conf.MemoryLimit)
	if err != nil {
		err = stackerr.Newf("KV memory limit parse error: %v", err)
	}
	return
}

// parseSize parses sizes like 10g, 128m, 1024k, 1000000b. Empty and "0" are zero.
func parseSize(s string) (size int64, err error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	if len(s) < 2 {
		err = errors.New("Invalid size format.")
		return
	}
	sep := len(s) - 1
	sizeStr := s[:sep]
	exponentStr := s[sep:]
	var exponent uint32
	switch strings.ToLower(exponentStr) {
	case "b":
		exponent = 0
	case "k":
		exponent = 10
	case "m":
		exponent = 20
	case "g":
		exponent = 30
	default:
		err = errors.New("Invalid exponent. Only 'b', 'k', 'm', 'g' allowed.")
		return
	}
	size, err = strconv.ParseInt(sizeStr, 10, 31)
	if err != nil {
		err = fmt.Errorf("Size parse error: %s", err)
		return
	}
	size <<= exponent
	return
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func logDestination(dest string) (w io.Writer, err error) {
	switch strings.ToLower(dest) {
	case "stderr", "":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		w, err = os.OpenFile(dest, os.O_WRONLY|os.O_APPEND|os.O_CREATE, logFilePerm)
	}
	return
}
