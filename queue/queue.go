// Package queue implements a persistent, power-loss-tolerant FIFO queue of
// fixed-size records on a wear-levelled flash partition.
//
// Two alternating metadata headers at the start of the partition carry the
// queue state; every mutating operation commits one of them synchronously,
// so across any crash at least one header describes a consistent state.
package queue

import (
	"context"
	"expvar"
	"fmt"
	"log/slog"

	"github.com/INLOpen/flashfifo/blockdev"
	"github.com/INLOpen/flashfifo/core"
	"github.com/INLOpen/flashfifo/hooks"
	"github.com/INLOpen/flashfifo/layout"
	"github.com/INLOpen/flashfifo/partition"
)

// Options holds configuration for mounting a queue.
type Options struct {
	// Partition names the flash partition to mount through Registry.
	Partition string
	Registry  *partition.Registry

	// Device mounts a block device directly, bypassing the registry.
	Device blockdev.BlockDevice

	// RecordSize is the fixed byte size of every record. Must not exceed
	// the device sector size.
	RecordSize uint32

	// Overwrite makes PushBack discard the oldest sector of records when
	// the ring is full instead of failing with ErrNoMem.
	Overwrite bool

	// RecoveryMode permits reconstructing state at mount time when exactly
	// one header copy is valid, probing the ring for a record whose header
	// commit was lost.
	RecoveryMode bool

	Logger      *slog.Logger
	HookManager hooks.HookManager

	// Metrics counters; nil counters are skipped.
	PushesTotal     *expvar.Int
	PopsTotal       *expvar.Int
	CommitsTotal    *expvar.Int
	RecoveriesTotal *expvar.Int
	BytesWritten    *expvar.Int
}

// Queue is a mounted FIFO queue. It is the exclusive owner of its
// partition's state and is not safe for concurrent use; callers sharing a
// queue between goroutines must serialise access themselves.
type Queue struct {
	dev       blockdev.BlockDevice
	geo       layout.Geometry
	overwrite bool

	logger      *slog.Logger
	hookManager hooks.HookManager

	front     uint32 // ring-relative offset of the oldest live record
	recordNum uint32
	sequence  uint32

	closed bool

	metricsPushesTotal     *expvar.Int
	metricsPopsTotal       *expvar.Int
	metricsCommitsTotal    *expvar.Int
	metricsRecoveriesTotal *expvar.Int
	metricsBytesWritten    *expvar.Int

	testingOnlyInjectCommitError error
}

var _ QueueInterface = (*Queue)(nil)

// SetTestingOnlyInjectCommitError sets an error that will be returned by
// every header commit attempt until cleared.
func (q *Queue) SetTestingOnlyInjectCommitError(err error) {
	q.testingOnlyInjectCommitError = err
}

// PushBack appends rec to the tail of the queue and commits. When the ring
// is full it either discards the oldest sector of records (overwrite
// mounts) or fails with ErrNoMem. rec must be exactly RecordSize bytes.
func (q *Queue) PushBack(rec []byte) error {
	if q.closed {
		return core.ErrClosed
	}
	if uint32(len(rec)) != q.geo.RecordSize {
		return fmt.Errorf("record of %d bytes on a queue of %d-byte records: %w", len(rec), q.geo.RecordSize, core.ErrInvalidSize)
	}

	if q.hookManager != nil {
		if err := q.hookManager.Trigger(context.Background(), hooks.NewPrePushBackEvent(hooks.PrePushBackPayload{Record: rec})); err != nil {
			return err
		}
	}

	// Work on a scratch copy of the state: a failed data write must leave
	// the in-RAM state untouched.
	front, recordNum := q.front, q.recordNum
	var discarded uint32

	back, full := q.geo.Back(front, recordNum)
	if full {
		if !q.overwrite {
			return core.ErrNoMem
		}
		// Drop the whole front sector and recompute the back position in
		// the shifted geometry.
		discarded = q.geo.FrontSlotRoom(front)
		front = q.geo.NextSectorStart(front)
		recordNum -= discarded
		back, _ = q.geo.Back(front, recordNum)
	}

	// Sectors are erased immediately before their first record, never
	// rewritten partway.
	if back%q.geo.SectorSize == 0 {
		if err := q.dev.EraseRange(q.geo.DataOffset()+int64(back), int64(q.geo.SectorSize)); err != nil {
			return fmt.Errorf("failed to erase data sector at %d: %w", back, err)
		}
	}
	if err := q.dev.WriteAt(rec, q.geo.DataOffset()+int64(back)); err != nil {
		return fmt.Errorf("failed to write record at %d: %w", back, err)
	}

	q.front = front
	q.recordNum = recordNum + 1

	if q.metricsPushesTotal != nil {
		q.metricsPushesTotal.Add(1)
	}
	if q.metricsBytesWritten != nil {
		q.metricsBytesWritten.Add(int64(q.geo.RecordSize))
	}

	err := q.commit()

	if q.hookManager != nil {
		q.hookManager.Trigger(context.Background(), hooks.NewPostPushBackEvent(hooks.PostPushBackPayload{
			Front:     q.front,
			RecordNum: q.recordNum,
			Discarded: discarded,
		}))
	}
	return err
}

// PeekFront reads the oldest record into buf without consuming it. buf
// must be exactly RecordSize bytes.
func (q *Queue) PeekFront(buf []byte) error {
	if q.closed {
		return core.ErrClosed
	}
	if uint32(len(buf)) != q.geo.RecordSize {
		return fmt.Errorf("buffer of %d bytes on a queue of %d-byte records: %w", len(buf), q.geo.RecordSize, core.ErrInvalidSize)
	}
	if q.recordNum == 0 {
		return core.ErrNotFound
	}
	if err := q.dev.ReadAt(buf, q.geo.DataOffset()+int64(q.front)); err != nil {
		return fmt.Errorf("failed to read record at %d: %w", q.front, err)
	}
	return nil
}

// DeleteFront consumes the oldest record and commits. It fails with
// ErrNotFound on an empty queue.
func (q *Queue) DeleteFront() error {
	if q.closed {
		return core.ErrClosed
	}
	if q.recordNum == 0 {
		return core.ErrNotFound
	}

	q.front = q.geo.AdvanceFront(q.front)
	q.recordNum--

	if q.metricsPopsTotal != nil {
		q.metricsPopsTotal.Add(1)
	}

	err := q.commit()

	if q.hookManager != nil {
		q.hookManager.Trigger(context.Background(), hooks.NewPostDeleteFrontEvent(hooks.PostDeleteFrontPayload{
			Front:     q.front,
			RecordNum: q.recordNum,
		}))
	}
	return err
}

// PopFront reads the oldest record into buf and consumes it. If the read
// succeeds but the commit fails, the record bytes have been delivered and
// remain on flash; they will still be present after the next mount.
func (q *Queue) PopFront(buf []byte) error {
	if err := q.PeekFront(buf); err != nil {
		return err
	}
	return q.DeleteFront()
}

// Len returns the number of live records.
func (q *Queue) Len() uint32 { return q.recordNum }

// Cap returns the maximum number of records the ring can hold.
func (q *Queue) Cap() uint32 { return q.geo.Capacity() }

// Sequence returns the metadata commit counter.
func (q *Queue) Sequence() uint32 { return q.sequence }

// Front returns the ring-relative byte offset of the oldest live record.
// Diagnostic only.
func (q *Queue) Front() uint32 { return q.front }

// Geometry returns the mounted partition's layout.
func (q *Queue) Geometry() layout.Geometry { return q.geo }

// Close detaches the queue. The block device stays open; it belongs to
// whoever registered it. Every mutation commits synchronously, so there is
// nothing to flush.
func (q *Queue) Close() error {
	if q.closed {
		return nil
	}
	q.closed = true
	q.logger.Info("Queue closed.")
	return nil
}

// commit durably writes the current state into the header slot selected by
// the new sequence number. Alternating slots keeps the previous committed
// state intact throughout the erase+write window, so a crash at any point
// leaves at least one valid header on flash.
func (q *Queue) commit() error {
	q.sequence++

	h := core.Header{
		Magic:     core.HeaderMagic,
		Front:     q.front,
		RecordNum: q.recordNum,
		Sequence:  q.sequence,
	}
	buf := h.Encode()

	slot := int(q.sequence % 2)
	off := q.geo.HeaderOffset(slot)

	if q.testingOnlyInjectCommitError != nil {
		return q.testingOnlyInjectCommitError
	}

	if err := q.dev.EraseRange(off, q.geo.HeaderSlotBytes()); err != nil {
		return fmt.Errorf("failed to erase header slot %d: %w", slot, err)
	}
	if err := q.dev.WriteAt(buf, off); err != nil {
		return fmt.Errorf("failed to write header slot %d: %w", slot, err)
	}

	if q.metricsCommitsTotal != nil {
		q.metricsCommitsTotal.Add(1)
	}
	if q.metricsBytesWritten != nil {
		q.metricsBytesWritten.Add(core.HeaderSize)
	}
	if q.hookManager != nil {
		q.hookManager.Trigger(context.Background(), hooks.NewPostHeaderCommitEvent(hooks.PostHeaderCommitPayload{
			Slot:   slot,
			Header: h,
		}))
	}
	return nil
}
