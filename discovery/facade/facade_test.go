package facade

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-score/mw-com-go/domain"
	"github.com/eclipse-score/mw-com-go/identity"
	"github.com/eclipse-score/mw-com-go/mwerrors"
)

type stubResolver struct {
	deployments map[string][]identity.InstanceIdentifier
}

func (r *stubResolver) Resolve(specifier identity.InstanceSpecifier) ([]identity.InstanceIdentifier, error) {
	ids, ok := r.deployments[specifier.String()]
	if !ok {
		return nil, mwerrors.ErrInstanceIDCouldNotBeResolved
	}
	return ids, nil
}

func lolaIdentifier(serviceID identity.ServiceId, instID uint16) identity.InstanceIdentifier {
	svc := identity.ServiceTypeDeployment{ServiceID: serviceID}
	return identity.NewInstanceIdentifier(svc, identity.ServiceInstanceDeployment{
		ServiceType: svc,
		InstanceID:  identity.NewLoLaServiceInstanceId(instID),
		Quality:     identity.QualityQM,
		Binding:     identity.BindingLoLa,
	})
}

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

func TestFacade_OfferThenFindByIdentifier(t *testing.T) {
	root := t.TempDir()
	f, err := New(root, &stubResolver{})
	require.NoError(t, err)
	defer f.Close()

	id := lolaIdentifier(1, 1)
	require.NoError(t, f.OfferService(id))

	result, err := f.FindServiceByIdentifier(id)
	require.NoError(t, err)
	assert.Len(t, result, 1)
}

func TestFacade_StartFindServiceBySpecifier_UnknownSpecifierFails(t *testing.T) {
	root := t.TempDir()
	f, err := New(root, &stubResolver{})
	require.NoError(t, err)
	defer f.Close()

	spec, err := identity.NewInstanceSpecifier("unknown")
	require.NoError(t, err)

	_, err = f.StartFindServiceBySpecifier(func(domain.KnownInstancesContainer, identity.FindServiceHandle) {}, spec)
	assert.ErrorIs(t, err, mwerrors.ErrInstanceIDCouldNotBeResolved)
}

func TestFacade_StartFindServiceBySpecifier_FanOutAcrossDeployments(t *testing.T) {
	root := t.TempDir()
	idA := lolaIdentifier(1, 1)
	idB := lolaIdentifier(2, 1)

	resolver := &stubResolver{deployments: map[string][]identity.InstanceIdentifier{
		"multi": {idA, idB},
	}}
	f, err := New(root, resolver)
	require.NoError(t, err)
	defer f.Close()

	var mu sync.Mutex
	var last domain.KnownInstancesContainer

	spec, err := identity.NewInstanceSpecifier("multi")
	require.NoError(t, err)

	handle, err := f.StartFindServiceBySpecifier(func(instances domain.KnownInstancesContainer, h identity.FindServiceHandle) {
		mu.Lock()
		defer mu.Unlock()
		last = instances
	}, spec)
	require.NoError(t, err)

	require.NoError(t, f.OfferService(idA))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 1
	})

	require.NoError(t, f.OfferService(idB))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 2
	})

	require.NoError(t, f.StopFindService(handle))
}

func TestFacade_StopOfferService_MakesInstanceDisappear(t *testing.T) {
	root := t.TempDir()
	f, err := New(root, &stubResolver{})
	require.NoError(t, err)
	defer f.Close()

	id := lolaIdentifier(5, 1)
	require.NoError(t, f.OfferService(id))

	result, err := f.FindServiceByIdentifier(id)
	require.NoError(t, err)
	assert.Len(t, result, 1)

	require.NoError(t, f.StopOfferService(id, domain.QualitySelectorBoth))

	result, err = f.FindServiceByIdentifier(id)
	require.NoError(t, err)
	assert.Len(t, result, 0)
}

var _ domain.DiscoveryFacadeIface = (*Facade)(nil)
