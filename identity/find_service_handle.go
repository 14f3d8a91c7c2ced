package identity

import "sync/atomic"

// FindServiceHandle is an opaque, equality- and order-comparable, hashable
// uid returned by StartFindService. Handles are minted from a
// single process-wide monotonic counter so that two handles are never
// accidentally equal within the lifetime of a process.
type FindServiceHandle struct {
	uid uint64
}

var findServiceHandleCounter uint64

// NewFindServiceHandle mints a fresh, process-unique handle.
func NewFindServiceHandle() FindServiceHandle {
	return FindServiceHandle{uid: atomic.AddUint64(&findServiceHandleCounter, 1)}
}

func (h FindServiceHandle) Equal(other FindServiceHandle) bool { return h.uid == other.uid }
func (h FindServiceHandle) Less(other FindServiceHandle) bool  { return h.uid < other.uid }
func (h FindServiceHandle) Hash() uint64                       { return h.uid }
func (h FindServiceHandle) Uid() uint64                        { return h.uid }
