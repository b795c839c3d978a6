//go:build !unix

package blockdev

import (
	"fmt"
	"os"
)

// FileDevice is a BlockDevice backed by a partition image file. On
// platforms without mmap support it falls back to positional file I/O with
// an fsync after every mutating operation.
type FileDevice struct {
	file       *os.File
	size       int64
	sectorSize uint32
}

var _ BlockDevice = (*FileDevice)(nil)

// CreateFile creates (or truncates) a partition image of the given shape,
// erased to 0xFF.
func CreateFile(path string, sectors int, sectorSize uint32) (*FileDevice, error) {
	size := int64(sectors) * int64(sectorSize)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create image %s: %w", path, err)
	}
	if err := file.Truncate(size); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to size image %s: %w", path, err)
	}
	dev := &FileDevice{file: file, size: size, sectorSize: sectorSize}
	if err := dev.EraseRange(0, size); err != nil {
		dev.Close()
		return nil, err
	}
	return dev, nil
}

// OpenFile opens an existing partition image. The image length must be a
// whole number of sectors.
func OpenFile(path string, sectorSize uint32) (*FileDevice, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat image %s: %w", path, err)
	}
	if sectorSize == 0 || info.Size()%int64(sectorSize) != 0 {
		file.Close()
		return nil, fmt.Errorf("image %s is %d bytes, not a multiple of sector size %d", path, info.Size(), sectorSize)
	}
	return &FileDevice{file: file, size: info.Size(), sectorSize: sectorSize}, nil
}

func (d *FileDevice) Size() int64        { return d.size }
func (d *FileDevice) SectorSize() uint32 { return d.sectorSize }

func (d *FileDevice) ReadAt(p []byte, off int64) error {
	if err := d.checkRange(off, int64(len(p))); err != nil {
		return err
	}
	if _, err := d.file.ReadAt(p, off); err != nil {
		return fmt.Errorf("failed to read image at %d: %w", off, err)
	}
	return nil
}

func (d *FileDevice) WriteAt(p []byte, off int64) error {
	if err := d.checkRange(off, int64(len(p))); err != nil {
		return err
	}
	if _, err := d.file.WriteAt(p, off); err != nil {
		return fmt.Errorf("failed to write image at %d: %w", off, err)
	}
	return d.file.Sync()
}

func (d *FileDevice) EraseRange(off, length int64) error {
	if err := d.checkRange(off, length); err != nil {
		return err
	}
	if off%int64(d.sectorSize) != 0 || length%int64(d.sectorSize) != 0 {
		return fmt.Errorf("erase of [%d, %d): %w", off, off+length, ErrUnaligned)
	}
	blank := make([]byte, d.sectorSize)
	for i := range blank {
		blank[i] = 0xFF
	}
	for sec := off; sec < off+length; sec += int64(d.sectorSize) {
		if _, err := d.file.WriteAt(blank, sec); err != nil {
			return fmt.Errorf("failed to erase image at %d: %w", sec, err)
		}
	}
	return d.file.Sync()
}

// Close flushes and closes the image.
func (d *FileDevice) Close() error {
	if d.file == nil {
		return nil
	}
	syncErr := d.file.Sync()
	closeErr := d.file.Close()
	d.file = nil
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

func (d *FileDevice) checkRange(off, length int64) error {
	if off < 0 || length < 0 || off+length > d.size {
		return fmt.Errorf("[%d, %d) on device of %d bytes: %w", off, off+length, d.size, ErrOutOfRange)
	}
	return nil
}
