// Package logstore provides durable key to bytes stores built on append-only logs.
//
// Every write is record [4 byte key len][4 byte value len][key][value], big endian.
// Zero length value is tombstone, so empty values can't be stored.
package logstore

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/facebookgo/stackerr"
	"github.com/pkg/errors"

	"github.com/skipor/nemcache/internal/util"
)

type Store interface {
	Put(key string, value []byte) error
	// TryGet returns (nil, false, nil) for missing key.
	TryGet(key string) (value []byte, ok bool, err error)
	// Delete writes tombstone, if key is present.
	Delete(key string) error
	// Entries calls fn for every live key, in key order, until fn returns false.
	// fn must not modify store.
	Entries(fn func(key string, value []byte) bool) error
	// Sync flushes buffered writes and fsyncs them.
	Sync() error
	// Close syncs and releases files. Store is unusable after it.
	Close() error
}

var (
	ErrEmptyValue = errors.New("empty value can't be stored: it is tombstone")
	ErrClosed     = errors.New("log store is closed")
)

func IsClosed(err error) bool { return errors.Cause(util.Unwrap(err)) == ErrClosed }

const (
	headerSize = 8
	// maxFieldSize limits key and value length. Larger length means garbage.
	maxFieldSize = 1 << 30
)

func recordSize(key string, value []byte) int64 {
	return headerSize + int64(len(key)) + int64(len(value))
}

// appendRecord appends encoded record to buf.
func appendRecord(buf []byte, key string, value []byte) []byte {
	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(key)))
	binary.BigEndian.PutUint32(header[4:], uint32(len(value)))
	buf = append(buf, header[:]...)
	buf = append(buf, key...)
	return append(buf, value...)
}

// scan calls fn for every complete record in r, with record offset in r.
// It returns size of complete records prefix. Incomplete or garbage tail is not error:
// caller should truncate it.
func scan(r io.Reader, fn func(key string, value []byte, offset int64)) (valid int64, err error) {
	br := bufio.NewReader(r)
	var header [headerSize]byte
	for {
		_, err = io.ReadFull(br, header[:])
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return valid, nil
		}
		if err != nil {
			return valid, stackerr.Wrap(err)
		}
		keyLen := binary.BigEndian.Uint32(header[:4])
		valueLen := binary.BigEndian.Uint32(header[4:])
		if keyLen > maxFieldSize || valueLen > maxFieldSize {
			return valid, nil
		}
		body := make([]byte, int(keyLen)+int(valueLen))
		_, err = io.ReadFull(br, body)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return valid, nil
		}
		if err != nil {
			return valid, stackerr.Wrap(err)
		}
		fn(string(body[:keyLen]), body[keyLen:], valid)
		valid += headerSize + int64(len(body))
	}
}

// Compact copies live entries of src into dst.
func Compact(dst, src Store) (err error) {
	var putErr error
	err = src.Entries(func(key string, value []byte) bool {
		putErr = dst.Put(key, value)
		return putErr == nil
	})
	if err != nil {
		return
	}
	return putErr
}
