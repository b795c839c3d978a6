//go:build unix

package blockdev

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileDevice is a BlockDevice backed by a memory-mapped partition image
// file. Mutating operations are flushed with msync before returning, so a
// successful WriteAt or EraseRange is durable the way a real flash write
// would be.
type FileDevice struct {
	file       *os.File
	data       []byte
	sectorSize uint32
}

var _ BlockDevice = (*FileDevice)(nil)

// CreateFile creates (or truncates) a partition image of the given shape,
// erased to 0xFF, and maps it.
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
	dev, err := mapFile(file, sectorSize)
	if err != nil {
		file.Close()
		return nil, err
	}
	if err := dev.EraseRange(0, size); err != nil {
		dev.Close()
		return nil, err
	}
	return dev, nil
}

// OpenFile maps an existing partition image. The image length must be a
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
	dev, err := mapFile(file, sectorSize)
	if err != nil {
		file.Close()
		return nil, err
	}
	return dev, nil
}

func mapFile(file *os.File, sectorSize uint32) (*FileDevice, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}
	data, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap image %s: %w", file.Name(), err)
	}
	return &FileDevice{file: file, data: data, sectorSize: sectorSize}, nil
}

func (d *FileDevice) Size() int64        { return int64(len(d.data)) }
func (d *FileDevice) SectorSize() uint32 { return d.sectorSize }

func (d *FileDevice) ReadAt(p []byte, off int64) error {
	if err := d.checkRange(off, int64(len(p))); err != nil {
		return err
	}
	copy(p, d.data[off:])
	return nil
}

func (d *FileDevice) WriteAt(p []byte, off int64) error {
	if err := d.checkRange(off, int64(len(p))); err != nil {
		return err
	}
	copy(d.data[off:], p)
	return d.sync()
}

func (d *FileDevice) EraseRange(off, length int64) error {
	if err := d.checkRange(off, length); err != nil {
		return err
	}
	if off%int64(d.sectorSize) != 0 || length%int64(d.sectorSize) != 0 {
		return fmt.Errorf("erase of [%d, %d): %w", off, off+length, ErrUnaligned)
	}
	for i := off; i < off+length; i++ {
		d.data[i] = 0xFF
	}
	return d.sync()
}

// Close flushes, unmaps, and closes the image.
func (d *FileDevice) Close() error {
	if d.data == nil {
		return nil
	}
	syncErr := d.sync()
	if err := unix.Munmap(d.data); err != nil {
		return fmt.Errorf("failed to munmap image: %w", err)
	}
	d.data = nil
	closeErr := d.file.Close()
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

func (d *FileDevice) sync() error {
	if err := unix.Msync(d.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("failed to msync image: %w", err)
	}
	return nil
}

func (d *FileDevice) checkRange(off, length int64) error {
	if off < 0 || length < 0 || off+length > int64(len(d.data)) {
		return fmt.Errorf("[%d, %d) on device of %d bytes: %w", off, off+length, len(d.data), ErrOutOfRange)
	}
	return nil
}
