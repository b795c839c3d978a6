// Package testutil provides fault-injection helpers for crash and
// power-loss testing of the queue.
package testutil

import (
	"errors"

	"github.com/INLOpen/flashfifo/blockdev"
)

// ErrPowerLoss is the error surfaced by a FaultDevice once its write
// budget is exhausted, standing in for the driver error a dying board
// would report, if it reported anything at all.
var ErrPowerLoss = errors.New("testutil: simulated power loss")

// FaultDevice wraps a MemDevice and cuts power after a configured number
// of mutated bytes. The interrupted operation applies a byte-accurate
// prefix of its effect, mirroring a device that lost power mid-program or
// mid-erase; every later operation fails until Restore is called.
type FaultDevice struct {
	inner   *blockdev.MemDevice
	budget  int64 // mutated bytes until power loss; <0 means unlimited
	tripped bool
	mutated int64 // total bytes mutated across all operations
}

var _ blockdev.BlockDevice = (*FaultDevice)(nil)

// NewFaultDevice wraps dev with an unlimited budget.
func NewFaultDevice(dev *blockdev.MemDevice) *FaultDevice {
	return &FaultDevice{inner: dev, budget: -1}
}

// CutAfter arms the device: the next n mutated bytes land, then power is
// lost mid-operation.
func (d *FaultDevice) CutAfter(n int64) {
	d.budget = n
	d.tripped = false
}

// Restore turns power back on with an unlimited budget. The flash image
// keeps whatever prefix of effects landed before the cut.
func (d *FaultDevice) Restore() {
	d.budget = -1
	d.tripped = false
}

// Tripped reports whether a simulated power loss has occurred.
func (d *FaultDevice) Tripped() bool { return d.tripped }

// MutatedBytes returns the total number of bytes mutated through this
// device. Run an operation once unarmed to learn its mutation footprint,
// then iterate CutAfter over every prefix.
func (d *FaultDevice) MutatedBytes() int64 { return d.mutated }

func (d *FaultDevice) Size() int64        { return d.inner.Size() }
func (d *FaultDevice) SectorSize() uint32 { return d.inner.SectorSize() }

func (d *FaultDevice) ReadAt(p []byte, off int64) error {
	if d.tripped {
		return ErrPowerLoss
	}
	return d.inner.ReadAt(p, off)
}

func (d *FaultDevice) WriteAt(p []byte, off int64) error {
	if d.tripped {
		return ErrPowerLoss
	}
	n := d.take(int64(len(p)))
	if n < 0 {
		d.mutated += int64(len(p))
		return d.inner.WriteAt(p, off)
	}
	d.mutated += n
	if n > 0 {
		if err := d.inner.WriteAt(p[:n], off); err != nil {
			return err
		}
	}
	d.tripped = true
	return ErrPowerLoss
}

func (d *FaultDevice) EraseRange(off, length int64) error {
	if d.tripped {
		return ErrPowerLoss
	}
	n := d.take(length)
	if n < 0 {
		d.mutated += length
		return d.inner.EraseRange(off, length)
	}
	d.mutated += n
	// Partial erase: fill the prefix with 0xFF directly, bypassing the
	// sector-alignment contract the full erase would obey.
	data := d.inner.Bytes()
	for i := off; i < off+n; i++ {
		data[i] = 0xFF
	}
	d.tripped = true
	return ErrPowerLoss
}

// take consumes up to n from the budget. It returns -1 when the whole
// operation fits (or the budget is unlimited), else the number of bytes
// that still land before the cut.
func (d *FaultDevice) take(n int64) int64 {
	if d.budget < 0 {
		return -1
	}
	if d.budget >= n {
		d.budget -= n
		return -1
	}
	granted := d.budget
	d.budget = 0
	return granted
}
