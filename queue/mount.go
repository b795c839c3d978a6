package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/INLOpen/flashfifo/core"
	"github.com/INLOpen/flashfifo/hooks"
	"github.com/INLOpen/flashfifo/layout"
)

// Open mounts a queue on a partition and validates or rebuilds its
// metadata. It resolves Options.Device directly, or Options.Partition
// through the registry.
func Open(opts Options) (*Queue, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "Queue")
	} else {
		opts.Logger = opts.Logger.With("component", "Queue")
	}

	dev := opts.Device
	if dev == nil {
		if opts.Registry == nil || opts.Partition == "" {
			return nil, fmt.Errorf("no device and no partition to mount: %w", core.ErrNotFound)
		}
		var err error
		dev, err = opts.Registry.Open(opts.Partition)
		if err != nil {
			return nil, err
		}
	}

	geo, err := layout.New(dev.Size(), dev.SectorSize(), opts.RecordSize)
	if err != nil {
		return nil, err
	}

	q := &Queue{
		dev:                    dev,
		geo:                    geo,
		overwrite:              opts.Overwrite,
		logger:                 opts.Logger,
		hookManager:            opts.HookManager,
		metricsPushesTotal:     opts.PushesTotal,
		metricsPopsTotal:       opts.PopsTotal,
		metricsCommitsTotal:    opts.CommitsTotal,
		metricsRecoveriesTotal: opts.RecoveriesTotal,
		metricsBytesWritten:    opts.BytesWritten,
	}

	if err := q.mount(opts.RecoveryMode); err != nil {
		return nil, err
	}

	q.logger.Info("Queue mounted.",
		"partition", opts.Partition,
		"record_size", geo.RecordSize,
		"capacity", geo.Capacity(),
		"record_num", q.recordNum,
		"sequence", q.sequence)
	return q, nil
}

// mount reads both header copies and decides the starting state: adopt the
// newer of two valid headers, recover from a single valid header, or
// initialise fresh.
func (q *Queue) mount(recoveryMode bool) error {
	headerA, validA, err := q.readHeaderSlot(0)
	if err != nil {
		return err
	}
	headerB, validB, err := q.readHeaderSlot(1)
	if err != nil {
		return err
	}

	switch {
	case validA && validB:
		adopted := headerA
		if headerB.NewerThan(headerA) {
			adopted = headerB
		}
		q.adopt(adopted)

	case (validA || validB) && recoveryMode:
		if validA {
			q.adopt(headerA)
		} else {
			q.adopt(headerB)
		}
		return q.recoverBack()

	default:
		// Neither copy is usable (or a lone survivor may not be trusted
		// without recovery mode): start over.
		q.logger.Info("No committed queue state found, initialising.", "header_a_valid", validA, "header_b_valid", validB)
		q.front = 0
		q.recordNum = 0
		q.sequence = math.MaxUint32 // first commit wraps this to 0
		if err := q.commit(); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) readHeaderSlot(slot int) (core.Header, bool, error) {
	buf := make([]byte, core.HeaderSize)
	if err := q.dev.ReadAt(buf, q.geo.HeaderOffset(slot)); err != nil {
		return core.Header{}, false, fmt.Errorf("failed to read header slot %d: %w", slot, err)
	}
	h, err := core.DecodeHeader(buf)
	if err != nil {
		return core.Header{}, false, err
	}
	return h, h.Check(), nil
}

func (q *Queue) adopt(h core.Header) {
	q.front = h.Front
	q.recordNum = h.RecordNum
	q.sequence = h.Sequence
}

// recoverBack repairs the state adopted from a single surviving header. A
// writer erases a data sector only when crossing into it, so if the next
// free slot holds bytes that are not all 0xFF, a record landed there whose
// header commit was lost; reinstate it. At worst this includes one
// partially programmed record.
func (q *Queue) recoverBack() error {
	repaired := false

	back, full := q.geo.Back(q.front, q.recordNum)
	if !full && back%q.geo.SectorSize != 0 {
		slot := make([]byte, q.geo.RecordSize)
		if err := q.dev.ReadAt(slot, q.geo.DataOffset()+int64(back)); err != nil {
			return fmt.Errorf("failed to probe slot at %d: %w", back, err)
		}
		if !allErased(slot) {
			q.recordNum++
			if err := q.commit(); err != nil {
				return err
			}
			repaired = true
			q.logger.Warn("Recovered a record whose header commit was lost.", "back", back, "record_num", q.recordNum)
		}
	}

	if q.metricsRecoveriesTotal != nil {
		q.metricsRecoveriesTotal.Add(1)
	}
	if q.hookManager != nil {
		q.hookManager.Trigger(context.Background(), hooks.NewPostRecoveryEvent(hooks.PostRecoveryPayload{
			Repaired:  repaired,
			Front:     q.front,
			RecordNum: q.recordNum,
		}))
	}
	return nil
}

func allErased(p []byte) bool {
	for _, b := range p {
		if b != 0xFF {
			return false
		}
	}
	return true
}
