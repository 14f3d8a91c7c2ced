// Package reentrant provides a recursive mutex. The standard library's
// sync.Mutex is deliberately non-reentrant; the discovery client's worker
// needs a mutex that (a) the worker's own handler invocations may re-enter
// from the same logical thread of control, while (b) a different
// goroutine calling the same operation genuinely blocks until the holder
// releases it. No dependency in the example corpus provides this — every
// reentrant-lock library in the wider Go ecosystem is either a
// goroutine-id hack or a true actor/channel rewrite, and a channel rewrite
// would break the synchronous call/return API this client needs (e.g.
// StopFindService must return only once any in-flight handler has
// returned). This package is that minimal primitive, built on
// sync.Mutex + runtime's goroutine id, and is exercised exclusively by
// discovery/client.
package reentrant

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// Mutex is a recursive, goroutine-aware mutex.
type Mutex struct {
	mu    sync.Mutex
	guard sync.Mutex
	owner int64
	depth int
}

func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	// fields[0] == "goroutine", fields[1] == "<id>"
	id, _ := strconv.ParseInt(string(fields[1]), 10, 64)
	return id
}

// Lock acquires the mutex. If the calling goroutine already holds it, Lock
// increments the reentrancy depth and returns immediately; otherwise it
// blocks until the current holder (on any goroutine) releases it.
func (m *Mutex) Lock() {
	gid := goroutineID()

	m.guard.Lock()
	if m.depth > 0 && m.owner == gid {
		m.depth++
		m.guard.Unlock()
		return
	}
	m.guard.Unlock()

	m.mu.Lock()

	m.guard.Lock()
	m.owner = gid
	m.depth = 1
	m.guard.Unlock()
}

// Unlock releases one level of the mutex. It panics if called by a
// goroutine that does not hold the lock — a programmer error in the
// caller, analogous to unlocking an already-unlocked sync.Mutex.
func (m *Mutex) Unlock() {
	gid := goroutineID()

	m.guard.Lock()
	defer m.guard.Unlock()

	if m.depth == 0 || m.owner != gid {
		panic("reentrant: Unlock called by a goroutine that does not hold the lock")
	}

	m.depth--
	if m.depth == 0 {
		m.owner = 0
		m.mu.Unlock()
	}
}
