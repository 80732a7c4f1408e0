package logstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/facebookgo/stackerr"
	"go.uber.org/multierr"

	"github.com/skipor/nemcache/internal/fs"
)

const (
	segmentExt  = ".seg"
	segmentPerm = 0644
	dirPerm     = 0755
)

type BitcaskConfig struct {
	Dir string
	// MaxSegmentSize is soft limit of segment file size. Record larger than it
	// gets own segment. Zero means unlimited.
	MaxSegmentSize int64
}

// Bitcask is segmented append-only log with in memory index.
// Only last segment is written. Index maps key to value position.
type Bitcask struct {
	fs   fs.FS
	conf BitcaskConfig

	lock     sync.RWMutex
	segments []*segment
	index    map[string]location
	closed   bool
}

var _ Store = (*Bitcask)(nil)

type segment struct {
	id   int
	file fs.File
	size int64
}

type location struct {
	segment int // index in segments
	offset  int64
	length  int
}

func segmentName(id int) string { return fmt.Sprintf("%08d%s", id, segmentExt) }

func OpenBitcask(fsys fs.FS, conf BitcaskConfig) (b *Bitcask, err error) {
	err = fsys.MkdirAll(conf.Dir, dirPerm)
	if err != nil {
		return nil, stackerr.Wrap(err)
	}
	b = &Bitcask{fs: fsys, conf: conf, index: map[string]location{}}
	var ids []int
	ids, err = b.segmentIDs()
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			b.closeFiles()
		}
	}()
	for _, id := range ids {
		err = b.openSegment(id)
		if err != nil {
			return
		}
	}
	if len(b.segments) == 0 {
		err = b.openSegment(1)
	}
	return
}

func (b *Bitcask) segmentIDs() (ids []int, err error) {
	entries, err := b.fs.ReadDir(b.conf.Dir)
	if err != nil {
		return nil, stackerr.Wrap(err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, segmentExt) {
			continue
		}
		id, parseErr := strconv.Atoi(strings.TrimSuffix(name, segmentExt))
		if parseErr != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return
}

// openSegment opens or creates segment, replays it into index and makes it active.
func (b *Bitcask) openSegment(id int) (err error) {
	path := filepath.Join(b.conf.Dir, segmentName(id))
	file, err := b.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, segmentPerm)
	if err != nil {
		return stackerr.Wrap(err)
	}
	seg := &segment{id: id, file: file}
	n := len(b.segments)
	valid, err := scan(file, func(key string, value []byte, offset int64) {
		if len(value) == 0 {
			delete(b.index, key)
			return
		}
		b.index[key] = location{
			segment: n,
			offset:  offset + headerSize + int64(len(key)),
			length:  len(value),
		}
	})
	if err == nil {
		err = truncateTail(file, valid)
	}
	if err != nil {
		file.Close()
		return
	}
	seg.size = valid
	b.segments = append(b.segments, seg)
	return
}

func truncateTail(file fs.File, valid int64) error {
	info, err := file.Stat()
	if err != nil {
		return stackerr.Wrap(err)
	}
	if info.Size() == valid {
		return nil
	}
	return stackerr.Wrap(file.Truncate(valid))
}

func (b *Bitcask) active() *segment { return b.segments[len(b.segments)-1] }

func (b *Bitcask) Put(key string, value []byte) error {
	if len(value) == 0 {
		return stackerr.Wrap(ErrEmptyValue)
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.write(key, value)
}

func (b *Bitcask) Delete(key string) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return stackerr.Wrap(ErrClosed)
	}
	if _, ok := b.index[key]; !ok {
		return nil
	}
	return b.write(key, nil)
}

func (b *Bitcask) write(key string, value []byte) (err error) {
	if b.closed {
		return stackerr.Wrap(ErrClosed)
	}
	size := recordSize(key, value)
	seg := b.active()
	if b.conf.MaxSegmentSize > 0 && seg.size > 0 && seg.size+size > b.conf.MaxSegmentSize {
		err = b.openSegment(seg.id + 1)
		if err != nil {
			return
		}
		seg = b.active()
	}
	_, err = seg.file.Write(appendRecord(nil, key, value))
	if err != nil {
		return stackerr.Wrap(err)
	}
	if len(value) == 0 {
		delete(b.index, key)
	} else {
		b.index[key] = location{
			segment: len(b.segments) - 1,
			offset:  seg.size + headerSize + int64(len(key)),
			length:  len(value),
		}
	}
	seg.size += size
	return
}

func (b *Bitcask) TryGet(key string) (value []byte, ok bool, err error) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	if b.closed {
		return nil, false, stackerr.Wrap(ErrClosed)
	}
	loc, ok := b.index[key]
	if !ok {
		return
	}
	value, err = b.read(loc)
	return
}

func (b *Bitcask) read(loc location) ([]byte, error) {
	value := make([]byte, loc.length)
	_, err := b.segments[loc.segment].file.ReadAt(value, loc.offset)
	if err != nil {
		return nil, stackerr.Wrap(err)
	}
	return value, nil
}

func (b *Bitcask) Entries(fn func(key string, value []byte) bool) error {
	b.lock.RLock()
	defer b.lock.RUnlock()
	if b.closed {
		return stackerr.Wrap(ErrClosed)
	}
	for _, key := range sortedKeys(b.index) {
		value, err := b.read(b.index[key])
		if err != nil {
			return err
		}
		if !fn(key, value) {
			return nil
		}
	}
	return nil
}

// Len returns number of live keys.
func (b *Bitcask) Len() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return len(b.index)
}

// Segments returns number of segment files.
func (b *Bitcask) Segments() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return len(b.segments)
}

func (b *Bitcask) Sync() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return stackerr.Wrap(ErrClosed)
	}
	return stackerr.Wrap(b.active().file.Sync())
}

func (b *Bitcask) Close() (err error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return multierr.Append(
		stackerr.Wrap(b.active().file.Sync()),
		b.closeFiles(),
	)
}

func (b *Bitcask) closeFiles() (err error) {
	for _, seg := range b.segments {
		err = multierr.Append(err, stackerr.Wrap(seg.file.Close()))
	}
	return
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
