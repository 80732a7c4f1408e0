package persist

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/facebookgo/stackerr"
	"github.com/google/uuid"

	"github.com/skipor/nemcache/archive"
	"github.com/skipor/nemcache/internal/clock"
	"github.com/skipor/nemcache/internal/fs"
	"github.com/skipor/nemcache/log"
)

// Restore reads log, compacts it and atomically replaces log with compacted version.
// Previous log remains as backup with ".bak" suffix.
// Truncated tail is dropped. Log which first record can't be read, is CorruptedError.
// Caller should own log exclusively. RestoreLog takes care of that.
func Restore(l log.Logger, fsys fs.FS, clk clock.Clock, conf Config) (r *Restored, err error) {
	conf = conf.withDefaults()
	r = &Restored{}
	exists, err := fsys.Exists(conf.Path)
	if err != nil {
		return nil, stackerr.Wrap(err)
	}
	if !exists {
		l.Infof("Log %s is not exists. New will be created.", conf.Path)
		return
	}
	entries, truncated, err := readLog(fsys, conf)
	if err != nil {
		if archive.IsCorrupt(err) {
			err = &CorruptedError{Path: conf.Path, Err: err}
		}
		return nil, err
	}
	if truncated {
		l.Warnf("Log %s has truncated tail. It is dropped, %v records are valid.", conf.Path, len(entries))
	}
	r.Truncated = truncated
	r.LastEventID = archive.LastEventID(entries)
	r.Records = archive.Compact(entries, clk.Now())
	err = rewrite(fsys, conf, r.Records)
	if err != nil {
		return nil, err
	}
	l.Infof("Log %s restored: %v records compacted to %v. Last event id %v.",
		conf.Path, len(entries), len(r.Records), r.LastEventID)
	sortByEventID(r.Records)
	return
}

func readLog(fsys fs.FS, conf Config) (entries []archive.Entry, truncated bool, err error) {
	file, err := fsys.Open(conf.Path)
	if err != nil {
		return nil, false, stackerr.Wrap(err)
	}
	defer file.Close()
	return archive.ReadAll(file, conf.Codec)
}

// rewrite writes records into temp file and replaces log with it.
func rewrite(fsys fs.FS, conf Config, records []archive.StoreRecord) (err error) {
	tmp := tempName(conf.Path, "restore")
	file, err := fsys.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return stackerr.Wrap(err)
	}
	defer func() {
		if err != nil {
			file.Close()
			fsys.Remove(tmp)
		}
	}()
	w := bufio.NewWriter(file)
	for i := range records {
		err = archive.WriteRecord(w, conf.Codec, archive.Entry{Store: &records[i]})
		if err != nil {
			return
		}
	}
	if err = w.Flush(); err != nil {
		return stackerr.Wrap(err)
	}
	if err = file.Sync(); err != nil {
		return stackerr.Wrap(err)
	}
	if err = file.Close(); err != nil {
		return stackerr.Wrap(err)
	}
	return stackerr.Wrap(fsys.Replace(tmp, conf.Path, conf.Path+".bak"))
}

func tempName(path, suffix string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+"."+suffix)
}
