package logstore

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/facebookgo/stackerr"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/skipor/nemcache/internal/fs"
)

const logPerm = 0644

type HybridConfig struct {
	Path string
	// MemoryLimit is write buffer size, after which buffer is flushed to file.
	// Zero means flush on every write.
	MemoryLimit int64
}

// Hybrid is single file log with in memory write buffer.
// Recent writes are served from buffer until flush.
type Hybrid struct {
	fs   fs.FS
	conf HybridConfig

	lock     sync.RWMutex
	file     fs.File
	fileSize int64
	buffer   []byte
	index    map[string]hybridLocation
	closed   bool
}

var _ Store = (*Hybrid)(nil)

// hybridLocation offset is relative to buffer start, while value is buffered.
type hybridLocation struct {
	offset   int64
	length   int
	buffered bool
}

func OpenHybrid(fsys fs.FS, conf HybridConfig) (h *Hybrid, err error) {
	file, err := fsys.OpenFile(conf.Path, os.O_RDWR|os.O_CREATE|os.O_APPEND, logPerm)
	if err != nil {
		return nil, stackerr.Wrap(err)
	}
	h = &Hybrid{fs: fsys, conf: conf, file: file, index: map[string]hybridLocation{}}
	valid, err := scan(file, func(key string, value []byte, offset int64) {
		if len(value) == 0 {
			delete(h.index, key)
			return
		}
		h.index[key] = hybridLocation{offset: offset + headerSize + int64(len(key)), length: len(value)}
	})
	if err == nil {
		err = truncateTail(file, valid)
	}
	if err != nil {
		file.Close()
		return nil, err
	}
	h.fileSize = valid
	return
}

func (h *Hybrid) Put(key string, value []byte) error {
	if len(value) == 0 {
		return stackerr.Wrap(ErrEmptyValue)
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.write(key, value)
}

func (h *Hybrid) Delete(key string) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.closed {
		return stackerr.Wrap(ErrClosed)
	}
	if _, ok := h.index[key]; !ok {
		return nil
	}
	return h.write(key, nil)
}

func (h *Hybrid) write(key string, value []byte) error {
	if h.closed {
		return stackerr.Wrap(ErrClosed)
	}
	offset := int64(len(h.buffer)) + headerSize + int64(len(key))
	h.buffer = appendRecord(h.buffer, key, value)
	if len(value) == 0 {
		delete(h.index, key)
	} else {
		h.index[key] = hybridLocation{offset: offset, length: len(value), buffered: true}
	}
	if int64(len(h.buffer)) > h.conf.MemoryLimit {
		return h.flush()
	}
	return nil
}

// flush writes buffer to file end, and rebases buffered locations to file offsets.
func (h *Hybrid) flush() error {
	if len(h.buffer) == 0 {
		return nil
	}
	_, err := h.file.Write(h.buffer)
	if err != nil {
		return stackerr.Wrap(err)
	}
	for key, loc := range h.index {
		if loc.buffered {
			h.index[key] = hybridLocation{offset: h.fileSize + loc.offset, length: loc.length}
		}
	}
	h.fileSize += int64(len(h.buffer))
	h.buffer = h.buffer[:0]
	return nil
}

func (h *Hybrid) TryGet(key string) (value []byte, ok bool, err error) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	if h.closed {
		return nil, false, stackerr.Wrap(ErrClosed)
	}
	loc, ok := h.index[key]
	if !ok {
		return
	}
	value, err = h.read(loc)
	return
}

func (h *Hybrid) read(loc hybridLocation) ([]byte, error) {
	value := make([]byte, loc.length)
	if loc.buffered {
		copy(value, h.buffer[loc.offset:])
		return value, nil
	}
	_, err := h.file.ReadAt(value, loc.offset)
	if err != nil {
		return nil, stackerr.Wrap(err)
	}
	return value, nil
}

func (h *Hybrid) Entries(fn func(key string, value []byte) bool) error {
	h.lock.RLock()
	defer h.lock.RUnlock()
	if h.closed {
		return stackerr.Wrap(ErrClosed)
	}
	for _, key := range sortedKeys(h.index) {
		value, err := h.read(h.index[key])
		if err != nil {
			return err
		}
		if !fn(key, value) {
			return nil
		}
	}
	return nil
}

func (h *Hybrid) Len() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.index)
}

// Buffered returns size of not flushed writes.
func (h *Hybrid) Buffered() int64 {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return int64(len(h.buffer))
}

func (h *Hybrid) Sync() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.closed {
		return stackerr.Wrap(ErrClosed)
	}
	if err := h.flush(); err != nil {
		return err
	}
	return stackerr.Wrap(h.file.Sync())
}

func (h *Hybrid) Close() (err error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	err = h.flush()
	if err == nil {
		err = stackerr.Wrap(h.file.Sync())
	}
	return multierr.Append(err, stackerr.Wrap(h.file.Close()))
}

// CompactHybrid rewrites log at conf.Path, so it contains only live entries.
// Log must not be opened by anyone else.
func CompactHybrid(fsys fs.FS, conf HybridConfig) (err error) {
	src, err := OpenHybrid(fsys, conf)
	if err != nil {
		return
	}
	defer func() { err = multierr.Append(err, src.Close()) }()

	tmpConf := conf
	tmpConf.Path = filepath.Join(filepath.Dir(conf.Path),
		"."+filepath.Base(conf.Path)+"."+uuid.NewString()+".compact")
	dst, err := OpenHybrid(fsys, tmpConf)
	if err != nil {
		return
	}
	err = Compact(dst, src)
	err = multierr.Append(err, dst.Close())
	if err != nil {
		_ = fsys.Remove(tmpConf.Path)
		return
	}
	return stackerr.Wrap(fsys.Replace(tmpConf.Path, conf.Path, conf.Path+".bak"))
}
