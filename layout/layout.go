// Package layout holds the pure arithmetic that maps record indices onto
// byte offsets of a flash partition. It knows nothing about devices or
// headers beyond their reserved sizes, which keeps it testable in isolation.
package layout

import (
	"fmt"

	"github.com/INLOpen/flashfifo/core"
)

// Geometry describes a mounted partition: the sector size SEC, the record
// size R, the number of sectors H reserved per metadata copy, and the
// number of data-ring sectors N.
//
// Records never straddle a sector boundary: each sector holds
// RecordsPerSector slots followed by unused tail bytes.
type Geometry struct {
	SectorSize    uint32
	RecordSize    uint32
	HeaderSectors uint32
	DataSectors   uint32
}

// New derives the geometry for a device of deviceSize bytes. The first
// 2·HeaderSectors sectors are reserved for the two metadata copies; the
// remainder forms the data ring.
func New(deviceSize int64, sectorSize, recordSize uint32) (Geometry, error) {
	if sectorSize == 0 {
		return Geometry{}, fmt.Errorf("sector size must be positive: %w", core.ErrInvalidSize)
	}
	if recordSize == 0 || recordSize > sectorSize {
		return Geometry{}, fmt.Errorf("record size %d not in (0, %d]: %w", recordSize, sectorSize, core.ErrInvalidSize)
	}

	totalSectors := uint32(deviceSize / int64(sectorSize))
	headerSectors := (core.HeaderSize + sectorSize - 1) / sectorSize
	if totalSectors <= 2*headerSectors {
		return Geometry{}, fmt.Errorf("device of %d sectors leaves no room for a data ring: %w", totalSectors, core.ErrInvalidSize)
	}

	return Geometry{
		SectorSize:    sectorSize,
		RecordSize:    recordSize,
		HeaderSectors: headerSectors,
		DataSectors:   totalSectors - 2*headerSectors,
	}, nil
}

// RecordsPerSector returns the number of record slots per sector.
func (g Geometry) RecordsPerSector() uint32 {
	return g.SectorSize / g.RecordSize
}

// Capacity returns the maximum number of records the ring can hold.
func (g Geometry) Capacity() uint32 {
	return g.DataSectors * g.RecordsPerSector()
}

// DataOffset returns the device byte offset at which the data ring begins.
// It must be added to every ring-relative offset before touching the device.
func (g Geometry) DataOffset() int64 {
	return 2 * int64(g.HeaderSectors) * int64(g.SectorSize)
}

// HeaderOffset returns the device byte offset of metadata copy slot 0 or 1.
func (g Geometry) HeaderOffset(slot int) int64 {
	return int64(slot) * int64(g.HeaderSectors) * int64(g.SectorSize)
}

// HeaderSlotBytes returns the byte length of one metadata copy's reservation.
func (g Geometry) HeaderSlotBytes() int64 {
	return int64(g.HeaderSectors) * int64(g.SectorSize)
}

// FrontSlotRoom returns the number of record slots from front to the end of
// front's sector, counting front's own slot.
func (g Geometry) FrontSlotRoom(front uint32) uint32 {
	return (g.SectorSize - front%g.SectorSize) / g.RecordSize
}

// Back returns the ring-relative byte offset of the next free record slot
// for a queue in state (front, recordNum), walking forward from front
// sector by sector and wrapping at DataSectors. full is true when the walk
// lands back on front's sector while records are live, i.e. the ring has
// no free slot.
func (g Geometry) Back(front, recordNum uint32) (back uint32, full bool) {
	room := g.FrontSlotRoom(front)
	if room > recordNum {
		return front + recordNum*g.RecordSize, false
	}

	// The partially filled front sector consumes one whole ring position,
	// hence the +1.
	rem := recordNum - room
	fullSectors := rem / g.RecordsPerSector()
	frontSector := front / g.SectorSize
	backSector := (frontSector + fullSectors + 1) % g.DataSectors
	back = backSector*g.SectorSize + (rem%g.RecordsPerSector())*g.RecordSize
	return back, backSector == frontSector && recordNum > 0
}

// NextSectorStart returns the ring-relative offset of the first slot of the
// sector following front's, wrapping at DataSectors.
func (g Geometry) NextSectorStart(front uint32) uint32 {
	return ((front/g.SectorSize + 1) % g.DataSectors) * g.SectorSize
}

// AdvanceFront returns front moved past one consumed record. When front
// sits in the last slot of its sector the next record lives in the next
// sector, so front skips the unused tail bytes and lands on that sector's
// first slot.
func (g Geometry) AdvanceFront(front uint32) uint32 {
	if g.SectorSize-front%g.SectorSize >= 2*g.RecordSize {
		return front + g.RecordSize
	}
	return g.NextSectorStart(front)
}
