// Package fs provides filesystem abstraction used by persistence layers.
//
// Persistence code never calls os package directly, so tests can substitute
// failing or recording implementations.
package fs

import (
	"io"
	"os"
)

// File represents an open file. Satisfied by *os.File.
type File interface {
	io.ReadWriteCloser
	io.Seeker
	io.ReaderAt
	Name() string
	Stat() (os.FileInfo, error)
	Sync() error
	Truncate(size int64) error
}

// Locker is held exclusive lock. Close releases it.
type Locker interface {
	io.Closer
}

type FS interface {
	Open(path string) (File, error)
	Create(path string) (File, error)
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// Exists returns (false, nil) if path not exists.
	Exists(path string) (bool, error)
	// Size returns file size in bytes.
	Size(path string) (int64, error)
	ReadDir(path string) ([]os.DirEntry, error)
	MkdirAll(path string, perm os.FileMode) error

	Remove(path string) error
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
	// Replace atomically replaces dst with src.
	// If backup is not empty, previous dst content remains available as backup,
	// and stale backup is removed before.
	Replace(src, dst, backup string) error

	// Lock acquires exclusive lock associated with path, without blocking.
	Lock(path string) (Locker, error)
}

var _ File = (*os.File)(nil)
