package fs

import (
	"os"

	"github.com/facebookgo/stackerr"
	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"
)

const lockPerm = 0644

// Real implements FS on top of os package.
type Real struct{}

var _ FS = Real{}

func NewReal() Real { return Real{} }

func (Real) Open(path string) (File, error)   { return os.Open(path) }
func (Real) Create(path string) (File, error) { return os.Create(path) }
func (Real) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(path, flag, perm)
}

func (Real) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (Real) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (Real) ReadDir(path string) ([]os.DirEntry, error)    { return os.ReadDir(path) }
func (Real) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (Real) Remove(path string) error                      { return os.Remove(path) }
func (Real) RemoveAll(path string) error                   { return os.RemoveAll(path) }
func (Real) Rename(oldpath, newpath string) error          { return os.Rename(oldpath, newpath) }

// Replace hard links dst as backup, then atomically renames src over dst.
// So there is no moment, when dst not exists.
func (Real) Replace(src, dst, backup string) error {
	if backup != "" {
		err := os.Remove(backup)
		if err != nil && !os.IsNotExist(err) {
			return stackerr.Wrap(err)
		}
		err = os.Link(dst, backup)
		if err != nil && !os.IsNotExist(err) {
			return stackerr.Wrap(err)
		}
	}
	return stackerr.Wrap(atomic.ReplaceFile(src, dst))
}

func (Real) Lock(path string) (Locker, error) {
	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, lockPerm)
	if err != nil {
		return nil, stackerr.Wrap(err)
	}
	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		f.Close()
		return nil, stackerr.Newf("%s is locked by another owner: %v", path, err)
	}
	return &realLock{file: f}, nil
}

type realLock struct {
	file *os.File
}

func (l *realLock) Close() error {
	if l.file == nil {
		return nil
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return stackerr.Wrap(err)
}
