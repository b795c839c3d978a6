package core

import "errors"

// Sentinel errors shared by every package in the module. Device I/O
// failures are not sentinels; they wrap the underlying driver error and
// are recognised by not matching any of these.
var (
	// ErrNotFound is returned when a named partition does not exist, or
	// when a read operation is attempted on an empty queue.
	ErrNotFound = errors.New("flashfifo: not found")

	// ErrInvalidSize is returned when a record size is zero, exceeds the
	// device sector size, or a caller buffer does not match the record size.
	ErrInvalidSize = errors.New("flashfifo: invalid size")

	// ErrNoMem is returned by PushBack when the ring is full and
	// overwrite is disabled.
	ErrNoMem = errors.New("flashfifo: queue full")

	// ErrClosed is returned by operations on a closed queue.
	ErrClosed = errors.New("flashfifo: queue closed")
)
