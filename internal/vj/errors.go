package vj

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoTemporaryLink is returned when a remote store cannot produce a download link.
	ErrNoTemporaryLink = errors.New("no temporary link available")
)
