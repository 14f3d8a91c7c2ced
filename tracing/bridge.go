// Package tracing implements the TracingBridge component: it registers shm
// regions with an external trace sink and bridges the sink's asynchronous
// done-callback back to releasing the sample pointer
// it was holding for the sink's benefit.
package tracing

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eclipse-score/mw-com-go/domain"
)

// Bridge is one client's registration with the tracing sink.
type Bridge struct {
	sink   domain.TracingSinkIface
	client uuid.UUID

	mu    sync.Mutex
	slots map[domain.TraceContextId]func()
}

// New registers a fresh client with sink and wires its trace-done
// callback back to this bridge.
func New(sink domain.TracingSinkIface) (*Bridge, error) {
	client, err := sink.RegisterClient()
	if err != nil {
		return nil, fmt.Errorf("tracing: registering client: %w", err)
	}

	b := &Bridge{
		sink:   sink,
		client: client,
		slots:  make(map[domain.TraceContextId]func()),
	}

	if err := sink.RegisterTraceDoneCB(client, b.onDone); err != nil {
		return nil, fmt.Errorf("tracing: registering done callback: %w", err)
	}

	return b, nil
}

// RegisterShmObject registers path with the sink at offer time, returning
// the opaque handle later Trace calls reference.
func (b *Bridge) RegisterShmObject(path string) (domain.ShmObjectHandle, error) {
	return b.sink.RegisterShmObject(b.client, path)
}

// UnregisterShmObject withdraws a previously registered shm region.
func (b *Bridge) UnregisterShmObject(handle domain.ShmObjectHandle) error {
	return b.sink.UnregisterShmObject(b.client, handle)
}

// Trace is called by the producer after Send: it stores release (the
// sample pointer's guard release, deferred until the sink is done reading
// it) under ctx and posts the trace call. Setting into an already
// occupied context slot is a programmer error and panics; failures from
// the sink itself are logged and otherwise non-fatal.
func (b *Bridge) Trace(handle domain.ShmObjectHandle, offset, size uintptr, ctx domain.TraceContextId, release func()) {
	b.mu.Lock()
	if _, occupied := b.slots[ctx]; occupied {
		b.mu.Unlock()
		panic(fmt.Sprintf("tracing: trace-context %d already occupied", ctx))
	}
	b.slots[ctx] = release
	b.mu.Unlock()

	if err := b.sink.Trace(b.client, handle, offset, size, ctx); err != nil {
		logrus.Warnf("tracing: Trace call failed for context %d: %v", ctx, err)
	}
}

// onDone is the sink's done-callback: it clears the stored slot and runs
// its release function, handing the referenced slot back to the ring.
func (b *Bridge) onDone(ctx domain.TraceContextId) {
	b.mu.Lock()
	release, ok := b.slots[ctx]
	if ok {
		delete(b.slots, ctx)
	}
	b.mu.Unlock()

	if ok && release != nil {
		release()
	}
}

// OccupiedSlots reports the current count of non-empty trace-context
// slots. The bridge itself enforces no upper bound on this count.
func (b *Bridge) OccupiedSlots() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.slots)
}
