package replay

import (
	"io"

	"github.com/facebookgo/stackerr"

	"github.com/skipor/nemcache/archive"
	"github.com/skipor/nemcache/cache"
	"github.com/skipor/nemcache/internal/fs"
)

// StateHistory replays store snapshot.
func StateHistory(state func() cache.State) History {
	return HistoryFunc(func(emit func(cache.Notification)) (int64, error) {
		st := state()
		for _, n := range st.Notifications() {
			emit(n)
		}
		return st.Sequence, nil
	})
}

// ChanHistory replays notifications received from ch, until it is closed.
func ChanHistory(ch <-chan cache.Notification) History {
	return HistoryFunc(func(emit func(cache.Notification)) (through int64, err error) {
		for n := range ch {
			emit(n)
			if n.EventID > through {
				through = n.EventID
			}
		}
		return
	})
}

// LogHistory replays persisted log. Missing log is empty history, torn tail is ignored.
func LogHistory(fsys fs.FS, path string, codec archive.Codec) History {
	return HistoryFunc(func(emit func(cache.Notification)) (through int64, err error) {
		var exists bool
		exists, err = fsys.Exists(path)
		if err != nil || !exists {
			return
		}
		var file fs.File
		file, err = fsys.Open(path)
		if err != nil {
			return 0, stackerr.Wrap(err)
		}
		defer file.Close()
		r := archive.NewReader(file, codec)
		for {
			var e archive.Entry
			e, err = r.Next()
			if err == io.EOF || archive.IsTruncated(err) {
				return through, nil
			}
			if err != nil {
				return
			}
			emit(e.Notification())
			if id := e.EventID(); id > through {
				through = id
			}
		}
	})
}
