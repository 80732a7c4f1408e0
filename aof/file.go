package aof

import "io"

type file interface {
	io.WriteCloser
	Sync() error
}

type flusher interface {
	Flush() error
}

type nopFlusher struct{}

func (nopFlusher) Flush() error { return nil }
