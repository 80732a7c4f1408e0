// +build !debug

// Package tag exposes build tags as constants.
package tag

// Debug is true in builds with "debug" tag. Such builds run extra invariant checks.
const Debug = false
