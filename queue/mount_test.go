package queue

import (
	"context"
	"expvar"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/flashfifo/blockdev"
	"github.com/INLOpen/flashfifo/hooks"
)

func TestRecoveryModeAdoptsLoneHeader(t *testing.T) {
	dev := blockdev.NewMemDevice(testSectors, testSectorSize)
	q := openTestQueue(t, dev)
	require.NoError(t, q.PushBack(record(0)))
	require.NoError(t, q.PushBack(record(1))) // seq 2, slot 0

	// Wipe slot 1; slot 0 holds the latest state and must be trusted.
	require.NoError(t, dev.EraseRange(testSectorSize, testSectorSize))

	q2 := sweepOpen(t, dev, true)
	assert.Equal(t, uint32(2), q2.Len())

	buf := make([]byte, testRecordSize)
	require.NoError(t, q2.PeekFront(buf))
	assert.Equal(t, record(0), buf)
}

func TestRecoveryModeOnBlankPartition(t *testing.T) {
	dev := blockdev.NewMemDevice(testSectors, testSectorSize)
	q := sweepOpen(t, dev, true)
	assert.Equal(t, uint32(0), q.Len())
}

func TestMountReinitialisesForeignPartition(t *testing.T) {
	dev := blockdev.NewMemDevice(testSectors, testSectorSize)
	// Something else lives here: plausible-looking but non-queue bytes.
	require.NoError(t, dev.WriteAt([]byte("not a queue header at all"), 0))

	q, err := Open(testOptions(t, dev))
	require.NoError(t, err, "a foreign partition is treated as uninitialised")
	assert.Equal(t, uint32(0), q.Len())
}

func TestQueueHooks(t *testing.T) {
	dev := blockdev.NewMemDevice(testSectors, testSectorSize)
	hm := hooks.NewHookManager(nil)

	var events []hooks.EventType
	listener := hooks.ListenerFunc(func(_ context.Context, event hooks.HookEvent) error {
		events = append(events, event.Type())
		return nil
	})
	hm.Register(hooks.EventPostPushBack, listener)
	hm.Register(hooks.EventPostDeleteFront, listener)
	hm.Register(hooks.EventPostHeaderCommit, listener)

	opts := testOptions(t, dev)
	opts.HookManager = hm
	q, err := Open(opts)
	require.NoError(t, err)

	require.NoError(t, q.PushBack(record(0)))
	require.NoError(t, q.DeleteFront())
	hm.Stop()

	assert.Equal(t, []hooks.EventType{
		hooks.EventPostHeaderCommit, // initialising commit
		hooks.EventPostHeaderCommit, // push commit
		hooks.EventPostPushBack,
		hooks.EventPostHeaderCommit, // delete commit
		hooks.EventPostDeleteFront,
	}, events)
}

func TestPrePushHookCancels(t *testing.T) {
	dev := blockdev.NewMemDevice(testSectors, testSectorSize)
	hm := hooks.NewHookManager(nil)
	hm.Register(hooks.EventPrePushBack, hooks.ListenerFunc(func(_ context.Context, event hooks.HookEvent) error {
		payload := event.Payload().(hooks.PrePushBackPayload)
		if payload.Record[0] == 0xBB {
			return assert.AnError
		}
		return nil
	}))

	opts := testOptions(t, dev)
	opts.HookManager = hm
	q, err := Open(opts)
	require.NoError(t, err)

	require.NoError(t, q.PushBack(record(0xAA)))

	err = q.PushBack(record(0xBB))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, uint32(1), q.Len(), "a cancelled push must not change state")
}

func TestQueueMetrics(t *testing.T) {
	dev := blockdev.NewMemDevice(testSectors, testSectorSize)
	opts := testOptions(t, dev)
	opts.PushesTotal = new(expvar.Int)
	opts.PopsTotal = new(expvar.Int)
	opts.CommitsTotal = new(expvar.Int)
	opts.BytesWritten = new(expvar.Int)
	q, err := Open(opts)
	require.NoError(t, err)

	require.NoError(t, q.PushBack(record(0)))
	require.NoError(t, q.PushBack(record(1)))
	require.NoError(t, q.DeleteFront())

	assert.Equal(t, int64(2), opts.PushesTotal.Value())
	assert.Equal(t, int64(1), opts.PopsTotal.Value())
	// Initialising commit plus one per operation.
	assert.Equal(t, int64(4), opts.CommitsTotal.Value())
	// Two records plus four headers.
	assert.Equal(t, int64(2*testRecordSize+4*20), opts.BytesWritten.Value())
}
