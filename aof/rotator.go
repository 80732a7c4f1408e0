package aof

import (
	"bufio"
	"io"

	"github.com/facebookgo/stackerr"

	"github.com/skipor/nemcache/internal/fs"
)

type Rotator interface {
	// Rotate reads AOF prefix from r, and writes its equivalent into w.
	Rotate(r ROFile, w io.Writer) error
}

type RotatorFunc func(r ROFile, w io.Writer) error

func (f RotatorFunc) Rotate(r ROFile, w io.Writer) error {
	return f(r, w)
}

type ROFile interface {
	io.Reader
}

// RotateFile rotates path file prefix size of limit into w.
func RotateFile(fsys fs.FS, rot Rotator, path string, limit int64, w io.Writer) (err error) {
	var file fs.File
	file, err = fsys.Open(path)
	if err != nil {
		return stackerr.Wrap(err)
	}
	defer file.Close()
	bufW := bufio.NewWriter(w)
	r := bufio.NewReader(io.LimitReader(file, limit))
	err = rot.Rotate(r, bufW)
	if err != nil {
		return stackerr.Wrap(err)
	}
	err = bufW.Flush()
	return stackerr.Wrap(err)
}
