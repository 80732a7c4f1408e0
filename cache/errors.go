package cache

import (
	"github.com/pkg/errors"

	"github.com/skipor/nemcache/internal/util"
)

var (
	// ErrCapacityExceeded returned when entry is larger than store capacity,
	// or eviction strategy can't free enough space.
	ErrCapacityExceeded = errors.New("cache capacity exceeded")
	ErrNotNumeric       = errors.New("cannot increment or decrement non-numeric value")
	// ErrDisposed is panic value, on store use after Dispose.
	ErrDisposed = errors.New("cache store is disposed")
)

func IsCapacityExceeded(err error) bool { return util.IsCause(err, ErrCapacityExceeded) }

func IsNotNumeric(err error) bool { return util.IsCause(err, ErrNotNumeric) }
