package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-score/mw-com-go/discovery/flagfile"
	"github.com/eclipse-score/mw-com-go/domain"
	"github.com/eclipse-score/mw-com-go/identity"
)

func testIdentifier(instID uint16, findAny bool) identity.InstanceIdentifier {
	svc := identity.ServiceTypeDeployment{ServiceID: 7}
	var id identity.ServiceInstanceId
	if findAny {
		id = identity.EmptyServiceInstanceId()
	} else {
		id = identity.NewLoLaServiceInstanceId(instID)
	}
	return identity.NewInstanceIdentifier(svc, identity.ServiceInstanceDeployment{
		ServiceType: svc,
		InstanceID:  id,
		Quality:     identity.QualityQM,
		Binding:     identity.BindingLoLa,
	})
}

// waitFor polls until cond returns true or the timeout elapses, failing the
// test otherwise. Needed because the client dispatches callbacks from a
// background inotify worker.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestFindService_OfferBeforeFind(t *testing.T) {
	root := t.TempDir()
	pub := flagfile.NewPublisher(root)
	id := testIdentifier(1, false)
	require.NoError(t, pub.Offer(id))

	c, err := New(root)
	require.NoError(t, err)
	defer c.Close()

	enriched := identity.NewEnrichedInstanceIdentifier(id)
	result, err := c.FindService(enriched)
	require.NoError(t, err)
	assert.Len(t, result, 1)
}

func TestStartFindService_FindBeforeOffer(t *testing.T) {
	root := t.TempDir()
	pub := flagfile.NewPublisher(root)
	id := testIdentifier(2, false)

	c, err := New(root)
	require.NoError(t, err)
	defer c.Close()

	var mu sync.Mutex
	var calls int
	var last domain.KnownInstancesContainer

	enriched := identity.NewEnrichedInstanceIdentifier(id)
	handle := identity.NewFindServiceHandle()
	require.NoError(t, c.StartFindService(handle, func(instances domain.KnownInstancesContainer, h identity.FindServiceHandle) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		last = instances
	}, enriched))

	mu.Lock()
	assert.Equal(t, 0, calls)
	mu.Unlock()

	require.NoError(t, pub.Offer(id))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 1
	})

	mu.Lock()
	assert.Len(t, last, 1)
	mu.Unlock()
}

func TestStartFindService_FindAnyTwoOffers(t *testing.T) {
	root := t.TempDir()
	pub := flagfile.NewPublisher(root)
	findAnyID := testIdentifier(0, true)

	c, err := New(root)
	require.NoError(t, err)
	defer c.Close()

	var mu sync.Mutex
	var last domain.KnownInstancesContainer

	enriched := identity.NewEnrichedInstanceIdentifier(findAnyID)
	handle := identity.NewFindServiceHandle()
	require.NoError(t, c.StartFindService(handle, func(instances domain.KnownInstancesContainer, h identity.FindServiceHandle) {
		mu.Lock()
		defer mu.Unlock()
		last = instances
	}, enriched))

	require.NoError(t, pub.Offer(testIdentifier(10, false)))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 1
	})

	require.NoError(t, pub.Offer(testIdentifier(11, false)))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 2
	})
}

func TestStopOfferService_VisibleToWatcher(t *testing.T) {
	root := t.TempDir()
	pub := flagfile.NewPublisher(root)
	id := testIdentifier(20, false)
	require.NoError(t, pub.Offer(id))

	c, err := New(root)
	require.NoError(t, err)
	defer c.Close()

	var mu sync.Mutex
	var last domain.KnownInstancesContainer
	var calls int

	enriched := identity.NewEnrichedInstanceIdentifier(id)
	handle := identity.NewFindServiceHandle()
	require.NoError(t, c.StartFindService(handle, func(instances domain.KnownInstancesContainer, h identity.FindServiceHandle) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		last = instances
	}, enriched))

	mu.Lock()
	assert.Len(t, last, 1)
	mu.Unlock()

	require.NoError(t, pub.StopOffer(id, domain.QualitySelectorBoth))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2 && len(last) == 0
	})
}

func TestStartFindService_ReentrantCallbackDoesNotDeadlock(t *testing.T) {
	root := t.TempDir()
	pub := flagfile.NewPublisher(root)
	id := testIdentifier(30, false)

	c, err := New(root)
	require.NoError(t, err)
	defer c.Close()

	var mu sync.Mutex
	var reentrantHandle identity.FindServiceHandle
	var stopped bool

	enriched := identity.NewEnrichedInstanceIdentifier(id)
	handle := identity.NewFindServiceHandle()

	require.NoError(t, c.StartFindService(handle, func(instances domain.KnownInstancesContainer, h identity.FindServiceHandle) {
		if len(instances) == 0 {
			return
		}
		mu.Lock()
		already := stopped
		mu.Unlock()
		if already {
			return
		}
		mu.Lock()
		stopped = true
		mu.Unlock()
		// Reentrant call from inside the callback, same goroutine: must not
		// deadlock against the client's recursive mutex.
		_ = c.StopFindService(h)
		reentrantHandle = h
	}, enriched))

	require.NoError(t, pub.Offer(id))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return stopped
	})
	assert.Equal(t, handle, reentrantHandle)
}

func TestStopFindService_BlocksConcurrentGoroutineUntilCallbackReturns(t *testing.T) {
	root := t.TempDir()
	pub := flagfile.NewPublisher(root)
	id := testIdentifier(40, false)

	c, err := New(root)
	require.NoError(t, err)
	defer c.Close()

	inCallback := make(chan struct{})
	releaseCallback := make(chan struct{})

	enriched := identity.NewEnrichedInstanceIdentifier(id)
	handle := identity.NewFindServiceHandle()

	first := true
	require.NoError(t, c.StartFindService(handle, func(instances domain.KnownInstancesContainer, h identity.FindServiceHandle) {
		if len(instances) == 0 || !first {
			return
		}
		first = false
		close(inCallback)
		<-releaseCallback
	}, enriched))

	require.NoError(t, pub.Offer(id))
	<-inCallback

	stopDone := make(chan struct{})
	go func() {
		_ = c.StopFindService(handle)
		close(stopDone)
	}()

	select {
	case <-stopDone:
		t.Fatal("StopFindService returned before the in-flight callback released the mutex")
	case <-time.After(50 * time.Millisecond):
	}

	close(releaseCallback)
	<-stopDone
}

func TestClose_NoCallbackAfterReturn(t *testing.T) {
	root := t.TempDir()
	pub := flagfile.NewPublisher(root)
	id := testIdentifier(50, false)

	c, err := New(root)
	require.NoError(t, err)

	var mu sync.Mutex
	var calls int

	enriched := identity.NewEnrichedInstanceIdentifier(id)
	handle := identity.NewFindServiceHandle()
	require.NoError(t, c.StartFindService(handle, func(instances domain.KnownInstancesContainer, h identity.FindServiceHandle) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, enriched))

	require.NoError(t, c.Close())

	require.NoError(t, pub.Offer(id))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls, "nothing was offered before Close, and no callback may fire after Close returns")
}

func TestWatchedPaths_DedupAndOrder(t *testing.T) {
	root := t.TempDir()
	pub := flagfile.NewPublisher(root)
	idA := testIdentifier(1, false)
	idB := testIdentifier(2, false)
	require.NoError(t, pub.Offer(idA))
	require.NoError(t, pub.Offer(idB))

	c, err := New(root)
	require.NoError(t, err)
	defer c.Close()

	h1 := identity.NewFindServiceHandle()
	h2 := identity.NewFindServiceHandle()
	require.NoError(t, c.StartFindService(h1, func(domain.KnownInstancesContainer, identity.FindServiceHandle) {}, identity.NewEnrichedInstanceIdentifier(idA)))
	require.NoError(t, c.StartFindService(h2, func(domain.KnownInstancesContainer, identity.FindServiceHandle) {}, identity.NewEnrichedInstanceIdentifier(idB)))
	// A sister search on idA's path must share its watch, not add a path.
	require.NoError(t, c.StartFindService(identity.NewFindServiceHandle(), func(domain.KnownInstancesContainer, identity.FindServiceHandle) {}, identity.NewEnrichedInstanceIdentifier(idA)))

	paths := c.WatchedPaths()
	require.Len(t, paths, 2)
	assert.True(t, paths[0] < paths[1], "WatchedPaths must be lexicographically ordered")
}

var _ domain.DiscoveryClientIface = (*Client)(nil)
