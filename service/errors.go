package service

import "errors"

var (
	// ErrStorage indicates the backing store was unreachable or rejected a write
	ErrStorage = errors.New("storage error")

	// ErrMarkingFailed indicates the EOD read-modify-write did not complete.
	// No partial write is persisted when it is returned.
	ErrMarkingFailed = errors.New("eod marking failed")
)
