package domain

import "github.com/google/uuid"

// TraceContextId is a small, compile-time-assigned identifier for one
// service element's trace-done-callback slot. The tracing bridge does not
// bound how many distinct ids are in use; it only rejects (panics on) an
// id whose slot is already occupied.
type TraceContextId uint32

// TraceDoneCallback is invoked by the tracing sink once it has consumed the
// data referenced by a prior Trace call, identified by its TraceContextId.
type TraceDoneCallback func(ctx TraceContextId)

// TracingSinkIface models the external tracing daemon interface as an
// opaque callback sink. Errors from it are logged and otherwise
// non-fatal.
type TracingSinkIface interface {
	RegisterClient() (uuid.UUID, error)
	RegisterShmObject(client uuid.UUID, path string) (ShmObjectHandle, error)
	UnregisterShmObject(client uuid.UUID, handle ShmObjectHandle) error
	RegisterTraceDoneCB(client uuid.UUID, cb TraceDoneCallback) error
	Trace(client uuid.UUID, handle ShmObjectHandle, offset uintptr, size uintptr, ctx TraceContextId) error
}

// ShmObjectHandle is the opaque handle the tracing sink returns for a
// registered shm region.
type ShmObjectHandle uint64
