package archive

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/facebookgo/stackerr"
	"github.com/pkg/errors"

	"github.com/skipor/nemcache/internal/util"
)

const headerSize = 4

// MaxRecordSize limits payload length. Larger length prefix means garbage.
const MaxRecordSize = 1 << 30

var (
	// ErrTruncated returned, when log tail is not complete record.
	// Records before it are valid.
	ErrTruncated = errors.New("archive record is truncated")
	// ErrCorrupt returned, when first log record can't be read.
	ErrCorrupt = errors.New("archive is corrupt")
)

func IsTruncated(err error) bool { return errors.Cause(util.Unwrap(err)) == ErrTruncated }

func IsCorrupt(err error) bool { return errors.Cause(util.Unwrap(err)) == ErrCorrupt }

// WriteRecord writes length prefixed entry payload.
func WriteRecord(w io.Writer, c Codec, e Entry) (err error) {
	if err = e.validate(); err != nil {
		return stackerr.Wrap(err)
	}
	var payload []byte
	payload, err = c.Marshal(&e)
	if err != nil {
		return stackerr.Wrap(err)
	}
	record := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(record, uint32(len(payload)))
	copy(record[headerSize:], payload)
	_, err = w.Write(record)
	return stackerr.Wrap(err)
}

// Reader reads records written by WriteRecord.
type Reader struct {
	r       *bufio.Reader
	codec   Codec
	records int
	offset  int64
}

func NewReader(r io.Reader, c Codec) *Reader {
	return &Reader{r: bufio.NewReader(r), codec: c}
}

// Next returns next entry. Returns io.EOF after last complete record, and
// ErrTruncated on incomplete or undecodable tail. Undecodable first record is ErrCorrupt.
func (r *Reader) Next() (e Entry, err error) {
	var header [headerSize]byte
	var n int
	n, err = io.ReadFull(r.r, header[:])
	if err == io.EOF {
		return
	}
	if err != nil {
		return e, r.short(err, errors.Wrapf(ErrTruncated, "header: read %v bytes", n))
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxRecordSize {
		return e, r.broken(errors.Wrapf(ErrTruncated, "record size %v is too large", size))
	}
	payload := make([]byte, size)
	n, err = io.ReadFull(r.r, payload)
	if err != nil {
		return e, r.short(err, errors.Wrapf(ErrTruncated, "payload: read %v of %v bytes", n, size))
	}
	err = r.codec.Unmarshal(payload, &e)
	if err == nil {
		err = e.validate()
	}
	if err != nil {
		return Entry{}, r.broken(errors.Wrapf(ErrTruncated, "decode: %v", err))
	}
	r.records++
	r.offset += headerSize + int64(size)
	return
}

// Offset returns size of records read successfully.
func (r *Reader) Offset() int64 { return r.offset }

func (r *Reader) Records() int { return r.records }

// short returns truncated, if read err is unexpected EOF. Other errors are I/O failures.
func (r *Reader) short(readErr, truncated error) error {
	if readErr == io.ErrUnexpectedEOF || readErr == io.EOF {
		return stackerr.Wrap(truncated)
	}
	return stackerr.Wrap(readErr)
}

func (r *Reader) broken(err error) error {
	if r.records == 0 {
		return stackerr.Wrap(errors.Wrap(ErrCorrupt, err.Error()))
	}
	return stackerr.Wrap(err)
}

// ReadAll reads entries until end or broken tail. Broken tail is reported by truncated,
// not by error. Error is returned only for unreadable non-empty input or I/O error.
func ReadAll(r io.Reader, c Codec) (entries []Entry, truncated bool, err error) {
	reader := NewReader(r, c)
	for {
		var e Entry
		e, err = reader.Next()
		switch {
		case err == nil:
			entries = append(entries, e)
			continue
		case err == io.EOF:
			err = nil
		case IsTruncated(err):
			truncated = true
			err = nil
		}
		return
	}
}
