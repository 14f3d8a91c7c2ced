// Package subscription implements the SubscriptionMachine component: the
// per-proxy-event state machine binding subscribe intent to a
// transaction-log entry and shm slot delivery.
package subscription

import (
	"fmt"
	"os"
	"sync"

	"github.com/eclipse-score/mw-com-go/mwerrors"
	"github.com/eclipse-score/mw-com-go/shm"
	"github.com/eclipse-score/mw-com-go/shm/txlog"
)

// State is one of the three states of the subscription lifecycle.
type State int

const (
	NotSubscribed State = iota
	SubscriptionPending
	Subscribed
)

func (s State) String() string {
	switch s {
	case NotSubscribed:
		return "NotSubscribed"
	case SubscriptionPending:
		return "SubscriptionPending"
	case Subscribed:
		return "Subscribed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ReceiveHandler is invoked whenever new samples become available while
// Subscribed. It may be set in any state, but only fires while the
// machine is Subscribed.
type ReceiveHandler func()

// Machine is the per-proxy-event subscription state machine, bound to one
// Channel and the Table its transaction-log entry lives in.
type Machine struct {
	mu sync.Mutex

	state      State
	channel    *shm.Channel
	table      *txlog.Table
	entry      *txlog.Entry
	maxSamples uint32
	lastSeenTs uint64
	handler    ReceiveHandler

	offerVisible bool

	notifyRegistered bool
	notifySubID      uint64
}

// New builds a Machine in the NotSubscribed state.
func New(channel *shm.Channel, table *txlog.Table) *Machine {
	return &Machine{channel: channel, table: table}
}

// State returns the machine's current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetReceiveHandler installs h, replacing any previously installed
// handler. Valid in any state; wired to slot-ready notifications only
// while Subscribed.
func (m *Machine) SetReceiveHandler(h ReceiveHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// notify invokes the installed receive handler, if any, without holding
// the machine's lock (the handler may re-enter GetNewSamples). It is both
// the callback registered on the channel for slot-ready notifications and
// the one-shot fired when availability is restored.
func (m *Machine) notify() {
	m.mu.Lock()
	h := m.handler
	subscribed := m.state == Subscribed
	m.mu.Unlock()
	if h != nil && subscribed {
		h()
	}
}

// registerNotifyLocked wires m.notify to the channel's slot-ready
// notifications, if it isn't already. Called with m.mu held.
func (m *Machine) registerNotifyLocked() {
	if m.notifyRegistered {
		return
	}
	m.notifySubID = m.channel.Subscribe(m.notify)
	m.notifyRegistered = true
}

// unregisterNotifyLocked undoes registerNotifyLocked. Called with m.mu held.
func (m *Machine) unregisterNotifyLocked() {
	if !m.notifyRegistered {
		return
	}
	m.channel.Unsubscribe(m.notifySubID)
	m.notifyRegistered = false
}

// Subscribe records maxSamples as the subscriber's requested sample
// budget; GetNewSamples does not limit the number of samples held at once
// by it. If the offer is currently visible it transitions straight to
// Subscribed, acquiring a transaction-log entry; otherwise it records
// intent and moves to SubscriptionPending until OnAvailabilityChanged(true).
func (m *Machine) Subscribe(maxSamples uint32, offerVisible bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != NotSubscribed {
		return nil
	}

	m.maxSamples = maxSamples
	m.offerVisible = offerVisible

	if !offerVisible {
		m.state = SubscriptionPending
		return nil
	}

	if err := m.acquireLocked(); err != nil {
		return err
	}
	m.state = Subscribed
	m.registerNotifyLocked()
	return nil
}

func (m *Machine) acquireLocked() error {
	if m.entry != nil {
		panic("subscription: transaction-log entry acquired twice")
	}
	entry, err := m.table.Acquire(os.Getpid())
	if err != nil {
		return err
	}
	entry.MarkSubscribed()
	m.entry = entry
	m.lastSeenTs = 0
	return nil
}

// Unsubscribe releases any held transaction-log entry and returns the
// machine to NotSubscribed. It is idempotent from NotSubscribed.
func (m *Machine) Unsubscribe() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case NotSubscribed:
		return nil
	case Subscribed, SubscriptionPending:
		if m.entry != nil {
			if err := m.entry.Free(); err != nil {
				return err
			}
			m.entry = nil
		}
		m.unregisterNotifyLocked()
		m.state = NotSubscribed
		m.maxSamples = 0
		return nil
	}
	return nil
}

// OnAvailabilityChanged is driven by the discovery layer's find-service
// callback: visible=false models a detected provider crash or
// StopOfferService, visible=true models the offer (re)appearing.
func (m *Machine) OnAvailabilityChanged(visible bool) error {
	m.mu.Lock()

	m.offerVisible = visible

	switch m.state {
	case NotSubscribed:
		m.mu.Unlock()
		return nil

	case SubscriptionPending:
		if !visible {
			m.mu.Unlock()
			return nil
		}
		if m.entry == nil {
			if err := m.acquireLocked(); err != nil {
				m.mu.Unlock()
				return err
			}
		}
		m.state = Subscribed
		m.registerNotifyLocked()
		m.mu.Unlock()
		m.notify()
		return nil

	case Subscribed:
		if visible {
			m.mu.Unlock()
			return nil
		}
		// Keep the transaction-log entry: delivery pauses but the
		// subscriber's reserved slot-ring holdings are not released.
		m.unregisterNotifyLocked()
		m.state = SubscriptionPending
		m.mu.Unlock()
		return nil
	}

	m.mu.Unlock()
	return nil
}

// GetNewSamples delivers up to max new samples to callback, exactly as
// shm.Channel.GetNewSamples, but routes each slot's guard through this
// machine's transaction-log entry and fails with ErrNotSubscribed outside
// the Subscribed state — including the post-crash SubscriptionPending
// transition (see DESIGN.md: matches the shipped, still-unresolved
// behavior of the binding this was ported from).
func (m *Machine) GetNewSamples(max int, callback func(shm.Sample)) (int, error) {
	m.mu.Lock()
	if m.state != Subscribed {
		m.mu.Unlock()
		return 0, mwerrors.ErrNotSubscribed
	}
	entry := m.entry
	lastSeen := m.lastSeenTs
	m.mu.Unlock()

	candidates := m.channel.PeekReadySlots(lastSeen, max)

	delivered := 0
	newLastSeen := lastSeen
	for _, cand := range candidates {
		if err := entry.Retain(cand.Index); err != nil {
			continue
		}
		callback(shm.Sample{Index: cand.Index, Timestamp: cand.Timestamp, Data: m.channel.Payload(cand.Index)})
		delivered++
		if cand.Timestamp > newLastSeen {
			newLastSeen = cand.Timestamp
		}
	}

	m.mu.Lock()
	if newLastSeen > m.lastSeenTs {
		m.lastSeenTs = newLastSeen
	}
	m.mu.Unlock()

	return delivered, nil
}

// GetNumNewSamplesAvailable counts new ready slots; like GetNewSamples, it
// is only callable while Subscribed.
func (m *Machine) GetNumNewSamplesAvailable() (int, error) {
	m.mu.Lock()
	if m.state != Subscribed {
		m.mu.Unlock()
		return 0, mwerrors.ErrNotSubscribed
	}
	lastSeen := m.lastSeenTs
	m.mu.Unlock()

	return m.channel.GetNumNewSamplesAvailable(lastSeen), nil
}

// ReleaseSample drops the reference a previously delivered sample holds.
func (m *Machine) ReleaseSample(index int) error {
	m.mu.Lock()
	entry := m.entry
	m.mu.Unlock()
	if entry == nil {
		return fmt.Errorf("%w: no active transaction log entry", mwerrors.ErrNotSubscribed)
	}
	return entry.ReleaseSlot(index)
}
