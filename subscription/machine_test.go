package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-score/mw-com-go/mwerrors"
	"github.com/eclipse-score/mw-com-go/shm"
	"github.com/eclipse-score/mw-com-go/shm/txlog"
)

func newMachine(t *testing.T, slotCount uint32, maxSubscribers int) (*Machine, *shm.Channel) {
	t.Helper()
	meta := shm.EventMetaInfo{TypeSize: 8, Alignment: 8, SlotCount: slotCount}
	ch, err := shm.NewChannel(meta, make([]byte, meta.RegionSize()))
	require.NoError(t, err)

	tbl, err := txlog.NewTable(make([]byte, txlog.TableSize(maxSubscribers, int(slotCount))), maxSubscribers, int(slotCount), ch, nil)
	require.NoError(t, err)

	return New(ch, tbl), ch
}

func TestMachine_SubscribeWithOfferVisible_GoesStraightToSubscribed(t *testing.T) {
	m, _ := newMachine(t, 4, 2)
	require.NoError(t, m.Subscribe(4, true))
	assert.Equal(t, Subscribed, m.State())
}

func TestMachine_SubscribeWithoutOffer_GoesPending(t *testing.T) {
	m, _ := newMachine(t, 4, 2)
	require.NoError(t, m.Subscribe(4, false))
	assert.Equal(t, SubscriptionPending, m.State())
}

func TestMachine_PendingBecomesSubscribedOnAvailability(t *testing.T) {
	m, _ := newMachine(t, 4, 2)
	require.NoError(t, m.Subscribe(4, false))
	require.NoError(t, m.OnAvailabilityChanged(true))
	assert.Equal(t, Subscribed, m.State())
}

func TestMachine_SubscribedPausesOnCrashButKeepsTxLogEntry(t *testing.T) {
	m, ch := newMachine(t, 4, 2)
	require.NoError(t, m.Subscribe(4, true))

	slot, _, err := ch.Allocate()
	require.NoError(t, err)
	_, err = ch.Send(slot)
	require.NoError(t, err)

	_, err = m.GetNewSamples(10, func(shm.Sample) {})
	require.NoError(t, err)

	require.NoError(t, m.OnAvailabilityChanged(false))
	assert.Equal(t, SubscriptionPending, m.State())
	assert.NotNil(t, m.entry, "the transaction-log entry must be kept across the crash")
}

func TestMachine_Unsubscribe_FromSubscribed(t *testing.T) {
	m, _ := newMachine(t, 4, 2)
	require.NoError(t, m.Subscribe(4, true))
	require.NoError(t, m.Unsubscribe())
	assert.Equal(t, NotSubscribed, m.State())
}

func TestMachine_Unsubscribe_FromPending(t *testing.T) {
	m, _ := newMachine(t, 4, 2)
	require.NoError(t, m.Subscribe(4, false))
	require.NoError(t, m.Unsubscribe())
	assert.Equal(t, NotSubscribed, m.State())
}

func TestMachine_Unsubscribe_FromPendingAfterCrash_ReleasesKeptEntry(t *testing.T) {
	// One slot, so the final Allocate can only succeed on the released slot.
	m, ch := newMachine(t, 1, 2)
	require.NoError(t, m.Subscribe(4, true))

	slot, _, err := ch.Allocate()
	require.NoError(t, err)
	_, err = ch.Send(slot)
	require.NoError(t, err)
	_, err = m.GetNewSamples(10, func(shm.Sample) {})
	require.NoError(t, err)

	require.NoError(t, m.OnAvailabilityChanged(false))
	require.NoError(t, m.Unsubscribe())
	assert.Equal(t, NotSubscribed, m.State())

	// Unsubscribe must have released the kept reference.
	freed, _, err := ch.Allocate()
	require.NoError(t, err)
	assert.Equal(t, slot, freed)
}

func TestMachine_GetNewSamples_OutsideSubscribed_ReturnsNotSubscribed(t *testing.T) {
	m, _ := newMachine(t, 4, 2)
	_, err := m.GetNewSamples(10, func(shm.Sample) {})
	assert.ErrorIs(t, err, mwerrors.ErrNotSubscribed)
}

func TestMachine_GetNewSamples_PostCrashPending_ReturnsNotSubscribed(t *testing.T) {
	// Open Question 1 decision (DESIGN.md): GetNewSamples/GetNumNewSamplesAvailable
	// return ErrNotSubscribed whenever SubscriptionState != Subscribed,
	// including the post-crash Subscribed -> SubscriptionPending transition.
	m, _ := newMachine(t, 4, 2)
	require.NoError(t, m.Subscribe(4, true))
	require.NoError(t, m.OnAvailabilityChanged(false))
	assert.Equal(t, SubscriptionPending, m.State())

	_, err := m.GetNewSamples(10, func(shm.Sample) {})
	assert.ErrorIs(t, err, mwerrors.ErrNotSubscribed)

	_, err = m.GetNumNewSamplesAvailable()
	assert.ErrorIs(t, err, mwerrors.ErrNotSubscribed)
}

func TestMachine_SetReceiveHandler_FiresOnAvailabilityRestored(t *testing.T) {
	m, _ := newMachine(t, 4, 2)

	fired := make(chan struct{}, 1)
	m.SetReceiveHandler(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	require.NoError(t, m.Subscribe(4, false))
	require.NoError(t, m.OnAvailabilityChanged(true))

	select {
	case <-fired:
	default:
		t.Fatal("receive handler was not invoked on transition into Subscribed")
	}
}

func TestMachine_SetReceiveHandler_FiresOnNewSampleWhileSubscribed(t *testing.T) {
	m, ch := newMachine(t, 4, 2)

	fired := make(chan struct{}, 1)
	m.SetReceiveHandler(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	require.NoError(t, m.Subscribe(4, true))

	slot, _, err := ch.Allocate()
	require.NoError(t, err)
	_, err = ch.Send(slot)
	require.NoError(t, err)

	select {
	case <-fired:
	default:
		t.Fatal("receive handler was not invoked on Channel.Send while Subscribed")
	}
}

func TestMachine_ReceiveHandler_DoesNotFireAfterUnsubscribe(t *testing.T) {
	m, ch := newMachine(t, 4, 2)

	fired := make(chan struct{}, 1)
	m.SetReceiveHandler(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	require.NoError(t, m.Subscribe(4, true))
	require.NoError(t, m.Unsubscribe())

	slot, _, err := ch.Allocate()
	require.NoError(t, err)
	_, err = ch.Send(slot)
	require.NoError(t, err)

	select {
	case <-fired:
		t.Fatal("receive handler fired after Unsubscribe")
	default:
	}
}

func TestMachine_AcquireExhaustion_MaxSubscribersExceeded(t *testing.T) {
	meta := shm.EventMetaInfo{TypeSize: 8, Alignment: 8, SlotCount: 4}
	ch, err := shm.NewChannel(meta, make([]byte, meta.RegionSize()))
	require.NoError(t, err)
	tbl, err := txlog.NewTable(make([]byte, txlog.TableSize(1, 4)), 1, 4, ch, nil)
	require.NoError(t, err)

	m1 := New(ch, tbl)
	m2 := New(ch, tbl)

	require.NoError(t, m1.Subscribe(4, true))

	// Table has a single entry already held by a live pid (this process);
	// a second acquire must fail.
	err = m2.Subscribe(4, true)
	assert.ErrorIs(t, err, mwerrors.ErrMaxSubscribersExceeded)
}
