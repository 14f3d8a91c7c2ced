package txlog

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-score/mw-com-go/mwerrors"
	"github.com/eclipse-score/mw-com-go/shm"
)

func newTestChannel(t *testing.T, slotCount uint32) *shm.Channel {
	t.Helper()
	meta := shm.EventMetaInfo{TypeSize: 8, Alignment: 8, SlotCount: slotCount}
	data := make([]byte, meta.RegionSize())
	ch, err := shm.NewChannel(meta, data)
	require.NoError(t, err)
	return ch
}

func newTestTable(t *testing.T, maxSubscribers int, channel *shm.Channel, slotCount int) *Table {
	t.Helper()
	data := make([]byte, TableSize(maxSubscribers, slotCount))
	tbl, err := NewTable(data, maxSubscribers, slotCount, channel, nil)
	require.NoError(t, err)
	return tbl
}

func TestTable_AcquireAndFree(t *testing.T) {
	ch := newTestChannel(t, 4)
	tbl := newTestTable(t, 2, ch, 4)

	entry, err := tbl.Acquire(os.Getpid())
	require.NoError(t, err)
	entry.MarkSubscribed()

	slot, _, err := ch.Allocate()
	require.NoError(t, err)
	_, err = ch.Send(slot)
	require.NoError(t, err)

	require.NoError(t, entry.Retain(slot))
	require.NoError(t, entry.ReleaseSlot(slot))

	require.NoError(t, entry.Free())
}

func TestTable_AcquireExhaustion(t *testing.T) {
	ch := newTestChannel(t, 4)
	tbl := newTestTable(t, 1, ch, 4)

	_, err := tbl.Acquire(os.Getpid())
	require.NoError(t, err)

	_, err = tbl.Acquire(os.Getpid())
	assert.ErrorIs(t, err, mwerrors.ErrMaxSubscribersExceeded)
}

func TestTable_CrashRecovery_ReapsDeadSubscriberRefs(t *testing.T) {
	// One slot, so the final Allocate can only succeed on the reaped slot.
	ch := newTestChannel(t, 1)
	tbl := newTestTable(t, 1, ch, 1)

	// A pid that is guaranteed not to be alive: pid 1 is free to simulate
	// as "dead" only if we are not pid 1 ourselves; use a very large,
	// virtually never-assigned pid instead.
	const deadPid = 999999

	entry, err := tbl.Acquire(deadPid)
	require.NoError(t, err)
	entry.MarkSubscribed()

	slot, _, err := ch.Allocate()
	require.NoError(t, err)
	_, err = ch.Send(slot)
	require.NoError(t, err)
	require.NoError(t, entry.Retain(slot))

	// The table is now full (maxSubscribers=1) and its sole entry is held
	// by a dead pid with an outstanding slot reference. A second Acquire
	// must reclaim it and release the channel's reference.
	newEntry, err := tbl.Acquire(os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, entry.Index(), newEntry.Index())

	// reclaimStaleLocked already drove the slot's refcount back to zero,
	// so it must be reusable by Allocate without any further Release.
	freed, _, err := ch.Allocate()
	require.NoError(t, err)
	assert.Equal(t, slot, freed)
}

func TestTable_LiveOwnerIsNotReclaimed(t *testing.T) {
	ch := newTestChannel(t, 4)
	tbl := newTestTable(t, 1, ch, 4)

	entry, err := tbl.Acquire(os.Getpid())
	require.NoError(t, err)
	entry.MarkSubscribed()

	_, err = tbl.Acquire(os.Getpid())
	assert.ErrorIs(t, err, mwerrors.ErrMaxSubscribersExceeded)
}
