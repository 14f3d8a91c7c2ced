// Package txlog implements the TransactionLog component: a fixed-size,
// shm-resident table of per-subscriber bookkeeping entries used both for
// event-slot reference counting and for crash recovery.
package txlog

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/eclipse-score/mw-com-go/mwerrors"
	"github.com/eclipse-score/mw-com-go/shm"
)

// entryState is the subscribe/unsubscribe state byte of a table entry.
type entryState byte

const (
	entryFree entryState = iota
	entrySubscribeIncomplete
	entrySubscribed
	entryUnsubscribeIncomplete
)

const (
	pidFieldSize   = 4
	stateFieldSize = 1
	headerPadding  = 3 // pad pid+state to a 8-byte boundary before the refcount array
	headerSize     = pidFieldSize + stateFieldSize + headerPadding
)

// TableSize returns the byte size a Table needs for maxSubscribers
// entries, each tracking one uint16 refcount per slot in slotCount.
func TableSize(maxSubscribers, slotCount int) int {
	return maxSubscribers * entryStride(slotCount)
}

func entryStride(slotCount int) int {
	raw := headerSize + slotCount*2
	if rem := raw % 8; rem != 0 {
		raw += 8 - rem
	}
	return raw
}

// Table is the fixed-width subscriber table, laid out over a shared byte
// slice. It is always paired with the Channel whose slots its entries
// reference, since recovery must release that channel's aggregate slot
// refcounts.
type Table struct {
	data           []byte
	maxSubscribers int
	slotCount      int
	stride         int
	channel        *shm.Channel

	mu       sync.Mutex
	lockFile *os.File
}

// NewTable wraps data (at least TableSize(maxSubscribers, slotCount)
// bytes) as a subscriber table for channel. lockFile backs the
// cross-process named-mutex discipline used to serialize
// acquisition/recovery scans across subscriber processes; within this
// process, mu serializes goroutines.
func NewTable(data []byte, maxSubscribers, slotCount int, channel *shm.Channel, lockFile *os.File) (*Table, error) {
	need := TableSize(maxSubscribers, slotCount)
	if len(data) < need {
		return nil, fmt.Errorf("%w: transaction log table too small: have %d, need %d", mwerrors.ErrAllocationFailed, len(data), need)
	}
	return &Table{
		data:           data,
		maxSubscribers: maxSubscribers,
		slotCount:      slotCount,
		stride:         entryStride(slotCount),
		channel:        channel,
		lockFile:       lockFile,
	}, nil
}

func (t *Table) entryBytes(index int) []byte {
	off := index * t.stride
	return t.data[off : off+t.stride]
}

func (t *Table) pid(index int) int32 {
	return int32(binary.LittleEndian.Uint32(t.entryBytes(index)[0:4]))
}

func (t *Table) setPid(index int, pid int32) {
	binary.LittleEndian.PutUint32(t.entryBytes(index)[0:4], uint32(pid))
}

func (t *Table) state(index int) entryState {
	return entryState(t.entryBytes(index)[4])
}

func (t *Table) setState(index int, s entryState) {
	t.entryBytes(index)[4] = byte(s)
}

func (t *Table) refcount(index, slot int) uint16 {
	off := headerSize + slot*2
	return binary.LittleEndian.Uint16(t.entryBytes(index)[off : off+2])
}

func (t *Table) setRefcount(index, slot int, v uint16) {
	off := headerSize + slot*2
	binary.LittleEndian.PutUint16(t.entryBytes(index)[off:off+2], v)
}

// lock takes both the in-process mutex and the cross-process file lock.
func (t *Table) lock() error {
	t.mu.Lock()
	if t.lockFile == nil {
		return nil
	}
	if err := unix.Flock(int(t.lockFile.Fd()), unix.LOCK_EX); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("%w: locking transaction log: %v", mwerrors.ErrBindingFailure, err)
	}
	return nil
}

func (t *Table) unlock() {
	if t.lockFile != nil {
		unix.Flock(int(t.lockFile.Fd()), unix.LOCK_UN)
	}
	t.mu.Unlock()
}

// pidAlive reports whether pid still names a running process.
func pidAlive(pid int32) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(int(pid), 0)
	if err == nil {
		return true
	}
	return err != unix.ESRCH
}

// reclaimStaleLocked scans for entries owned by a dead pid and frees them,
// releasing every slot reference they held back to the channel. Caller
// must hold the table lock.
func (t *Table) reclaimStaleLocked() {
	for i := 0; i < t.maxSubscribers; i++ {
		state := t.state(i)
		if state == entryFree {
			continue
		}
		pid := t.pid(i)
		if pidAlive(pid) {
			continue
		}

		for slot := 0; slot < t.slotCount; slot++ {
			count := t.refcount(i, slot)
			if count == 0 {
				continue
			}
			_ = t.channel.ReleaseN(slot, count)
			t.setRefcount(i, slot, 0)
		}
		t.setState(i, entryFree)
		t.setPid(i, 0)
	}
}

// Entry is a handle to one acquired table row.
type Entry struct {
	table *Table
	index int
}

// Index returns the entry's row index within the table.
func (e *Entry) Index() int { return e.index }

// Acquire reserves a free entry for pid, marking it subscribe_incomplete.
// If the table is full, it first runs crash recovery over stale entries
// and retries once before failing with ErrMaxSubscribersExceeded.
func (t *Table) Acquire(pid int) (*Entry, error) {
	if err := t.lock(); err != nil {
		return nil, err
	}
	defer t.unlock()

	if idx, ok := t.findFreeLocked(); ok {
		t.setPid(idx, int32(pid))
		t.setState(idx, entrySubscribeIncomplete)
		return &Entry{table: t, index: idx}, nil
	}

	t.reclaimStaleLocked()

	if idx, ok := t.findFreeLocked(); ok {
		t.setPid(idx, int32(pid))
		t.setState(idx, entrySubscribeIncomplete)
		return &Entry{table: t, index: idx}, nil
	}

	return nil, mwerrors.ErrMaxSubscribersExceeded
}

func (t *Table) findFreeLocked() (int, bool) {
	for i := 0; i < t.maxSubscribers; i++ {
		if t.state(i) == entryFree {
			return i, true
		}
	}
	return 0, false
}

// MarkSubscribed transitions the entry to the fully subscribed state once
// the subscriber has installed its receive handler.
func (e *Entry) MarkSubscribed() {
	e.table.mu.Lock()
	defer e.table.mu.Unlock()
	e.table.setState(e.index, entrySubscribed)
}

// Retain records one additional reference to slot held by this entry's
// subscriber and retains it on the backing channel.
func (e *Entry) Retain(slot int) error {
	t := e.table
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.channel.Retain(slot); err != nil {
		return err
	}
	t.setRefcount(e.index, slot, t.refcount(e.index, slot)+1)
	return nil
}

// ReleaseSlot drops one reference to slot held by this entry's subscriber.
func (e *Entry) ReleaseSlot(slot int) error {
	t := e.table
	t.mu.Lock()
	defer t.mu.Unlock()

	count := t.refcount(e.index, slot)
	if count == 0 {
		return fmt.Errorf("%w: entry %d holds no reference to slot %d", mwerrors.ErrBindingFailure, e.index, slot)
	}
	if err := t.channel.Release(slot); err != nil {
		return err
	}
	t.setRefcount(e.index, slot, count-1)
	return nil
}

// Free releases every outstanding slot reference this entry holds and
// returns the entry to the table's free pool.
func (e *Entry) Free() error {
	t := e.table
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()

	t.setState(e.index, entryUnsubscribeIncomplete)
	for slot := 0; slot < t.slotCount; slot++ {
		count := t.refcount(e.index, slot)
		if count == 0 {
			continue
		}
		if err := t.channel.ReleaseN(slot, count); err != nil {
			return err
		}
		t.setRefcount(e.index, slot, 0)
	}
	t.setState(e.index, entryFree)
	t.setPid(e.index, 0)
	return nil
}
