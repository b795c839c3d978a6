// Package blockdev defines the capability surface the queue expects from a
// wear-levelled flash driver, plus two implementations: an in-memory device
// for tests and host-side use, and a file-backed device for partition
// images.
package blockdev

import "errors"

// ErrOutOfRange is returned when an access falls outside the device.
var ErrOutOfRange = errors.New("blockdev: access out of range")

// ErrUnaligned is returned when an erase is not sector-aligned.
var ErrUnaligned = errors.New("blockdev: erase not sector aligned")

// BlockDevice is the byte-addressable view of a wear-levelled flash
// region. Implementations map logical offsets to physical sectors and are
// responsible for spreading erases; callers treat the device as a flat
// byte array with an erase-before-write discipline.
//
// EraseRange requires off to be sector-aligned and length a multiple of
// the sector size. WriteAt assumes the target bytes are in the erased
// (all-0xFF) state; writing over live data without an erase is undefined.
type BlockDevice interface {
	// Size returns the device length in bytes.
	Size() int64
	// SectorSize returns the erase-unit size in bytes.
	SectorSize() uint32
	// ReadAt fills p from the device starting at off.
	ReadAt(p []byte, off int64) error
	// WriteAt programs p into the device starting at off.
	WriteAt(p []byte, off int64) error
	// EraseRange resets [off, off+length) to the erased state.
	EraseRange(off, length int64) error
}
