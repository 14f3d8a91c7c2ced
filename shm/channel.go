package shm

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/eclipse-score/mw-com-go/mwerrors"
)

// slotState is the control word's state component: the control word
// transitions free -> writing -> ready(ts) -> free; a ready slot whose
// refcount is zero counts as free to Allocate and goes straight back to
// writing.
type slotState uint8

const (
	slotFree slotState = iota
	slotWriting
	slotReady
)

// Control word layout (one uint64 per slot, atomically updated):
//
//	bits 0-1   state (slotState)
//	bits 2-15  refcount (aggregate across all consumers, 14 bits)
//	bits 16-63 timestamp (monotonic producer counter, 48 bits)
const (
	stateBits   = 2
	refBits     = 14
	stateMask   = uint64(1)<<stateBits - 1
	refMask     = uint64(1)<<refBits - 1
	refShift    = stateBits
	tsShift     = stateBits + refBits
	maxRefcount = refMask
)

func packControl(state slotState, refcount uint16, ts uint64) uint64 {
	return uint64(state)&stateMask | (uint64(refcount)&refMask)<<refShift | ts<<tsShift
}

func unpackControl(word uint64) (state slotState, refcount uint16, ts uint64) {
	state = slotState(word & stateMask)
	refcount = uint16((word >> refShift) & refMask)
	ts = word >> tsShift
	return
}

// EventMetaInfo describes a channel's fixed geometry, set once at offer
// time and read-only to consumers thereafter.
type EventMetaInfo struct {
	TypeSize  uint32
	Alignment uint32
	SlotCount uint32
}

func alignUp(v, align uint32) uint32 {
	if align == 0 {
		return v
	}
	rem := v % align
	if rem == 0 {
		return v
	}
	return v + (align - rem)
}

// ControlArraySize returns the byte size of meta's control array.
func (meta EventMetaInfo) ControlArraySize() uint32 {
	return meta.SlotCount * 8
}

// PayloadOffset returns the byte offset, within the region, at which the
// aligned payload array begins.
func (meta EventMetaInfo) PayloadOffset() uint32 {
	return alignUp(meta.ControlArraySize(), meta.Alignment)
}

// SlotStride returns the per-slot payload size, rounded up to Alignment.
func (meta EventMetaInfo) SlotStride() uint32 {
	return alignUp(meta.TypeSize, meta.Alignment)
}

// RegionSize returns the total byte size a region backing meta must have.
func (meta EventMetaInfo) RegionSize() int {
	return int(meta.PayloadOffset() + meta.SlotCount*meta.SlotStride())
}

// Sample is a consumer's reference-counted view into one ready slot.
// Release must be called exactly once, typically via the owning
// TransactionLog entry.
type Sample struct {
	Index     int
	Timestamp uint64
	Data      []byte
}

// Channel is the producer/consumer view over one service element's slot
// ring.
type Channel struct {
	meta EventMetaInfo
	data []byte

	// allocMu serializes Allocate/Send: this channel has a single producer,
	// so this need only prevent two goroutines of that one producer from
	// racing, not arbitrate across processes.
	allocMu sync.Mutex

	producerTs uint64

	subMu     sync.Mutex
	nextSubID uint64
	notifyFns map[uint64]func()
}

// NewChannel wraps data (a region's backing bytes, at least
// meta.RegionSize() long) as a slot ring of the given geometry.
func NewChannel(meta EventMetaInfo, data []byte) (*Channel, error) {
	if len(data) < meta.RegionSize() {
		return nil, fmt.Errorf("%w: region too small for channel geometry: have %d, need %d", mwerrors.ErrAllocationFailed, len(data), meta.RegionSize())
	}
	return &Channel{meta: meta, data: data, notifyFns: make(map[uint64]func())}, nil
}

// Subscribe registers fn to be invoked, without any lock held, after every
// successful Send on this channel — the slot-ready notification hook a
// subscription.Machine installs for as long as it stays Subscribed. The
// returned token is passed to Unsubscribe to remove fn again.
func (c *Channel) Subscribe(fn func()) uint64 {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.notifyFns[id] = fn
	return id
}

// Unsubscribe removes the notification callback registered under id. A
// no-op if id is unknown (already removed, or never registered).
func (c *Channel) Unsubscribe(id uint64) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	delete(c.notifyFns, id)
}

func (c *Channel) notifySubscribers() {
	c.subMu.Lock()
	fns := make([]func(), 0, len(c.notifyFns))
	for _, fn := range c.notifyFns {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (c *Channel) controlWordPtr(slot int) *uint64 {
	off := slot * 8
	return (*uint64)(unsafe.Pointer(&c.data[off]))
}

func (c *Channel) slotPayload(slot int) []byte {
	start := int(c.meta.PayloadOffset()) + slot*int(c.meta.SlotStride())
	return c.data[start : start+int(c.meta.SlotStride())]
}

func (c *Channel) loadControl(slot int) uint64 {
	return atomic.LoadUint64(c.controlWordPtr(slot))
}

// Allocate claims the unreferenced slot (free, or ready with a zero
// refcount) whose last-ready timestamp is oldest (LRU). It never blocks:
// if every slot is being written or is referenced by a consumer, it
// returns ErrAllocationFailed.
func (c *Channel) Allocate() (int, []byte, error) {
	c.allocMu.Lock()
	defer c.allocMu.Unlock()

	best := -1
	var bestTs, bestWord uint64

	for i := 0; i < int(c.meta.SlotCount); i++ {
		word := c.loadControl(i)
		state, refcount, ts := unpackControl(word)
		if state == slotWriting || refcount != 0 {
			continue
		}
		if best == -1 || ts < bestTs {
			best = i
			bestTs = ts
			bestWord = word
		}
	}

	if best == -1 {
		return 0, nil, mwerrors.ErrAllocationFailed
	}

	ptr := c.controlWordPtr(best)
	newWord := packControl(slotWriting, 0, bestTs)
	if !atomic.CompareAndSwapUint64(ptr, bestWord, newWord) {
		return 0, nil, mwerrors.ErrAllocationFailed
	}

	return best, c.slotPayload(best), nil
}

// Send atomically publishes slot, CASing its control word from writing to
// ready(ts) with ts taken from the channel's monotonic producer counter,
// then fires every registered notification callback so subscribers
// currently Subscribed learn a new sample is available.
func (c *Channel) Send(slot int) (uint64, error) {
	ts := atomic.AddUint64(&c.producerTs, 1)

	ptr := c.controlWordPtr(slot)
	for {
		word := atomic.LoadUint64(ptr)
		state, refcount, _ := unpackControl(word)
		if state != slotWriting {
			return 0, fmt.Errorf("%w: slot %d not in writing state", mwerrors.ErrBindingFailure, slot)
		}
		newWord := packControl(slotReady, refcount, ts)
		if atomic.CompareAndSwapUint64(ptr, word, newWord) {
			c.notifySubscribers()
			return ts, nil
		}
	}
}

// ReadySlot is a scan result identifying a ready slot before any guard is
// acquired against it.
type ReadySlot struct {
	Index     int
	Timestamp uint64
}

// PeekReadySlots returns up to max ready slots with ts > lastSeenTs, in
// increasing ts order, without acquiring a guard on any of them. Callers
// that need crash-consistent bookkeeping (subscription.Machine) retain
// each slot through their own TransactionLog entry rather than through
// Channel.Retain directly.
func (c *Channel) PeekReadySlots(lastSeenTs uint64, max int) []ReadySlot {
	var candidates []ReadySlot
	for i := 0; i < int(c.meta.SlotCount); i++ {
		state, _, ts := unpackControl(c.loadControl(i))
		if state == slotReady && ts > lastSeenTs {
			candidates = append(candidates, ReadySlot{Index: i, Timestamp: ts})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Timestamp < candidates[j].Timestamp })
	if len(candidates) > max {
		candidates = candidates[:max]
	}
	return candidates
}

// Payload returns the payload view for slot, valid regardless of its
// current state (callers are expected to only read/write it while they
// hold an appropriate guard).
func (c *Channel) Payload(slot int) []byte {
	return c.slotPayload(slot)
}

// Retain increments a slot's aggregate refcount, keeping it ineligible for
// reclamation by Allocate.
func (c *Channel) Retain(slot int) error {
	ptr := c.controlWordPtr(slot)
	for {
		word := atomic.LoadUint64(ptr)
		state, refcount, ts := unpackControl(word)
		if state != slotReady {
			return fmt.Errorf("%w: slot %d not ready", mwerrors.ErrBindingFailure, slot)
		}
		if refcount == maxRefcount {
			return fmt.Errorf("%w: slot %d refcount saturated", mwerrors.ErrAllocationFailed, slot)
		}
		newWord := packControl(state, refcount+1, ts)
		if atomic.CompareAndSwapUint64(ptr, word, newWord) {
			return nil
		}
	}
}

// Release decrements a slot's aggregate refcount. When it reaches zero the
// slot becomes free again, retaining its timestamp for LRU comparison on
// the next Allocate.
func (c *Channel) Release(slot int) error {
	ptr := c.controlWordPtr(slot)
	for {
		word := atomic.LoadUint64(ptr)
		state, refcount, ts := unpackControl(word)
		if refcount == 0 {
			return fmt.Errorf("%w: slot %d already at zero refcount", mwerrors.ErrBindingFailure, slot)
		}
		refcount--
		newState := state
		if refcount == 0 {
			newState = slotFree
		}
		newWord := packControl(newState, refcount, ts)
		if atomic.CompareAndSwapUint64(ptr, word, newWord) {
			return nil
		}
	}
}

// ReleaseN releases count references to slot in one go, used by crash
// recovery to reap a dead subscriber's aggregate holdings.
func (c *Channel) ReleaseN(slot int, count uint16) error {
	for i := uint16(0); i < count; i++ {
		if err := c.Release(slot); err != nil {
			return err
		}
	}
	return nil
}

// GetNewSamples scans for up to max new ready slots since lastSeenTs,
// retains each, and invokes callback with the resulting Sample. It
// returns the highest timestamp observed so the caller can advance its
// cursor.
func (c *Channel) GetNewSamples(lastSeenTs uint64, max int, callback func(Sample)) (newLastSeenTs uint64, delivered int, err error) {
	newLastSeenTs = lastSeenTs

	for _, cand := range c.PeekReadySlots(lastSeenTs, max) {
		if err := c.Retain(cand.Index); err != nil {
			continue
		}
		callback(Sample{Index: cand.Index, Timestamp: cand.Timestamp, Data: c.slotPayload(cand.Index)})
		delivered++
		if cand.Timestamp > newLastSeenTs {
			newLastSeenTs = cand.Timestamp
		}
	}

	return newLastSeenTs, delivered, nil
}

// GetNumNewSamplesAvailable counts ready slots with ts > lastSeenTs.
func (c *Channel) GetNumNewSamplesAvailable(lastSeenTs uint64) int {
	count := 0
	for i := 0; i < int(c.meta.SlotCount); i++ {
		state, _, ts := unpackControl(c.loadControl(i))
		if state == slotReady && ts > lastSeenTs {
			count++
		}
	}
	return count
}

// MetaInfo returns the channel's fixed geometry.
func (c *Channel) MetaInfo() EventMetaInfo { return c.meta }
