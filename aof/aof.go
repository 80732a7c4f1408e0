// Package aof implements append only file with periodic sync and background rotation.
package aof

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/facebookgo/stackerr"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/skipor/nemcache/internal/fs"
	"github.com/skipor/nemcache/log"
)

const MinSyncPeriod = 100 * time.Millisecond

// MinRotateCompress is rotated to original size ratio, that is expected from rotator.
// Next rotation is postponed, when rotation compress less.
const MinRotateCompress = 0.7
const Perm = 0664

var ErrClosed = errors.New("AOF is closed")

type Config struct {
	Path       string
	SyncPeriod time.Duration
	RotateSize int64 // AOF size, after which Rotator will be called. Zero disables rotation.
	BuffSize   int   // 0 if no buffering.
}

// AOF represents Append Only File.
type AOF struct {
	config  Config
	rotator Rotator
	log     log.Logger
	fs      fs.FS

	// lock protects fields bellow.
	lock sync.Mutex
	// writer is current proxy io.Writer to write AOF.
	// It can be file, *bufio.Writer or another proxy.
	writer io.Writer
	// If buffering is on, flusher.Flush() flushes buffer into file.
	flusher flusher
	file    file
	// Current AOF size.
	size int64
	// rotateAt is size, after which rotation starts.
	rotateAt int64
	// rotateDone is not nil while rotation in process, and closed on its finish.
	rotateDone chan struct{}
	closing    bool
	closed     bool

	syncStop chan struct{}
	syncDone chan struct{}
}

func Open(l log.Logger, fsys fs.FS, r Rotator, conf Config) (aof *AOF, err error) {
	if r == nil {
		panic("nil rotator")
	}
	aof = &AOF{
		log:      l,
		fs:       fsys,
		rotator:  r,
		config:   conf,
		rotateAt: conf.RotateSize,
	}
	err = aof.init()
	if err != nil {
		return
	}
	if !aof.isSyncEveryTransaction() {
		aof.startSync()
	}
	return
}

func (f *AOF) init() (err error) {
	var file fs.File
	file, err = f.fs.OpenFile(f.config.Path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, Perm)
	if err != nil {
		return stackerr.Wrap(err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return stackerr.Wrap(err)
	}
	f.size = stat.Size()
	f.file = file

	f.log.Debugf("AOF %s opened. Size %v.", f.config.Path, f.size)

	if f.config.BuffSize == 0 {
		f.writer = file
		f.flusher = nopFlusher{}
		return
	}
	bufWriter := bufio.NewWriterSize(file, f.config.BuffSize)
	f.writer = bufWriter
	f.flusher = bufWriter
	return
}

// Size returns current AOF size, including buffered data.
func (f *AOF) Size() int64 {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.size
}

func (f *AOF) isSyncEveryTransaction() bool {
	return f.config.SyncPeriod < MinSyncPeriod
}

func (f *AOF) sync() (err error) {
	err = f.flusher.Flush()
	if err != nil {
		return stackerr.Wrap(err)
	}
	err = f.file.Sync()
	return stackerr.Wrap(err)
}

// Sync flushes buffer and syncs file.
func (f *AOF) Sync() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.closed {
		return stackerr.Wrap(ErrClosed)
	}
	return f.sync()
}

// Close waits for rotation in process, stops background sync, and closes file.
func (f *AOF) Close() (err error) {
	f.lock.Lock()
	if f.closing {
		f.lock.Unlock()
		return
	}
	f.closing = true
	rotateDone := f.rotateDone
	f.lock.Unlock()
	if rotateDone != nil {
		<-rotateDone
	}
	if f.syncStop != nil {
		close(f.syncStop)
		<-f.syncDone
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	err = f.closeFile()
	f.closed = true
	f.log.Debugf("AOF %s closed.", f.config.Path)
	return
}

func (f *AOF) closeFile() (err error) {
	err = f.sync()
	if cerr := f.file.Close(); err == nil {
		err = stackerr.Wrap(cerr)
	}
	return
}

// NewTransaction create new AOF transaction.
// Returned transaction hold AOF lock until close,
// so callee should write data and close it, as soon as possible.
func (f *AOF) NewTransaction() io.WriteCloser {
	f.lock.Lock()
	return &transaction{AOF: f}
}

// startRotate start background rotation of file snapshot into new file.
// While rotation in process, all appended data is buffering in memory.
// When rotation complete, all buffered data is appended to new file and
// old file is atomically replace with new.
// Requires lock held.
func (f *AOF) startRotate() {
	f.rotateDone = make(chan struct{})
	go f.rotate(f.rotateDone)
}

func (f *AOF) rotate(done chan struct{}) {
	f.log.Info("AOF rotation started.")
	tmpName := filepath.Join(filepath.Dir(f.config.Path),
		"."+filepath.Base(f.config.Path)+"."+uuid.NewString()+".rotate")
	newFile, err := f.fs.OpenFile(tmpName, os.O_RDWR|os.O_CREATE|os.O_EXCL, Perm)
	if err != nil {
		f.finishRotate(done, stackerr.Wrap(err))
		return
	}
	abort := func(err error) {
		newFile.Close()
		f.fs.Remove(tmpName)
		f.finishRotate(done, err)
	}

	// Buffer for extra data appended after rotation start.
	extra := &bytes.Buffer{}

	// Take file snapshot.
	f.lock.Lock()
	// We should to flush data for reader.
	err = f.flusher.Flush()
	if err != nil {
		f.lock.Unlock()
		abort(stackerr.Wrap(err))
		return
	}
	oldWriter := f.writer
	f.writer = io.MultiWriter(oldWriter, extra)
	size := f.size
	f.lock.Unlock()

	afterFileSnapshotTestHook()

	restoreWriter := func() {
		f.lock.Lock()
		f.writer = oldWriter
		f.lock.Unlock()
	}

	// Rotate file snapshot.
	f.log.Debug("AOF snapshot rotation started.")
	err = RotateFile(f.fs, f.rotator, f.config.Path, size, newFile)
	var rotatedSize int64
	if err == nil {
		var stat os.FileInfo
		stat, err = newFile.Stat()
		if err == nil {
			rotatedSize = stat.Size()
		}
	}
	if err != nil {
		restoreWriter()
		abort(stackerr.Wrap(err))
		return
	}
	f.log.Debugf("AOF snapshot rotation finished: %v -> %v bytes.", size, rotatedSize)

	// Meanwhile extra can grow large. Writing it in background decreases lock time.
	newExtra := &bytes.Buffer{}

	// Take extra written.
	f.lock.Lock()
	f.writer = io.MultiWriter(oldWriter, newExtra)
	f.lock.Unlock()

	// Do without lock as much work, as we can.
	_, err = extra.WriteTo(newFile)
	if err == nil {
		err = newFile.Sync()
	}
	if err != nil {
		restoreWriter()
		abort(stackerr.Wrap(err))
		return
	}

	afterExtraWriteTestHook()

	// Write newExtra, replace old with new.
	f.lock.Lock()
	_, err = newExtra.WriteTo(newFile)
	if err == nil {
		err = newFile.Sync()
	}
	if err == nil {
		err = newFile.Close()
	}
	if err != nil {
		f.writer = oldWriter
		f.lock.Unlock()
		abort(stackerr.Wrap(err))
		return
	}
	f.writer = oldWriter
	err = f.closeFile()
	if err == nil {
		err = f.fs.Replace(tmpName, f.config.Path, f.config.Path+".bak")
	}
	if ierr := f.init(); err == nil {
		err = ierr
	} else if ierr != nil {
		f.log.Errorf("AOF reopen failed: %v", ierr)
	}
	f.lock.Unlock()
	if err != nil {
		f.fs.Remove(tmpName)
	}
	f.finishRotate(done, err)
	afterFinishTestHook()
}

// finishRotate postpones next rotation, if current failed or compressed not enough.
func (f *AOF) finishRotate(done chan struct{}, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	switch {
	case err != nil:
		f.log.Errorf("AOF rotation failed: %v", err)
		f.rotateAt = 2 * f.size
	case float64(f.size) > float64(f.config.RotateSize)*MinRotateCompress:
		f.log.Warnf("AOF rotation doesn't compress enough: size after rotation %v.", f.size)
		f.rotateAt = 2 * f.size
	default:
		f.rotateAt = f.config.RotateSize
		f.log.Info("AOF rotation finished.")
	}
	f.rotateDone = nil
	close(done)
}

// WaitRotation blocks until rotation in process finishes.
func (f *AOF) WaitRotation() {
	f.lock.Lock()
	done := f.rotateDone
	f.lock.Unlock()
	if done != nil {
		<-done
	}
}

var (
	afterFileSnapshotTestHook = func() {}
	afterExtraWriteTestHook   = func() {}
	afterFinishTestHook       = func() {}
)

func (f *AOF) startSync() {
	f.syncStop = make(chan struct{})
	f.syncDone = make(chan struct{})
	go func() {
		defer close(f.syncDone)
		ticker := time.NewTicker(f.config.SyncPeriod)
		defer ticker.Stop()
		var prevSize int64
		for {
			select {
			case <-f.syncStop:
				return
			case <-ticker.C:
			}
			f.lock.Lock()
			if f.size != prevSize {
				prevSize = f.size
				if err := f.sync(); err != nil {
					f.log.Errorf("AOF sync failed: %v", err)
				}
			}
			f.lock.Unlock()
		}
	}()
}
