// Package facade implements the DiscoveryFacade component: the single,
// binding-agnostic entry point application code and the runtime singleton
// call, dispatching to the binding-specific DiscoveryClient for each
// resolved identifier and aggregating their results under one
// facade-level handle.
package facade

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	discclient "github.com/eclipse-score/mw-com-go/discovery/client"
	"github.com/eclipse-score/mw-com-go/discovery/flagfile"
	"github.com/eclipse-score/mw-com-go/domain"
	"github.com/eclipse-score/mw-com-go/identity"
	"github.com/eclipse-score/mw-com-go/mwerrors"
)

// childRegistration is one underlying DiscoveryClient.StartFindService
// registration backing a single facade-level handle — a specifier or
// find-any identifier may resolve to more than one configured deployment
// (e.g. one per binding), and the facade must fan out to each.
type childRegistration struct {
	client domain.DiscoveryClientIface
	handle identity.FindServiceHandle
}

// registration is the facade-level bookkeeping for one StartFindService*
// call: it owns the child registrations and the last-known result from
// each, and re-flattens them into a single KnownInstancesContainer every
// time any child reports a change.
type registration struct {
	mu       sync.Mutex
	callback domain.FindServiceHandler
	facadeH  identity.FindServiceHandle
	children []childRegistration
	results  [][]identity.HandleType
}

func (r *registration) update(index int, instances domain.KnownInstancesContainer) {
	r.mu.Lock()
	r.results[index] = append([]identity.HandleType(nil), instances...)
	merged := make(domain.KnownInstancesContainer, 0)
	for _, part := range r.results {
		merged = append(merged, part...)
	}
	cb := r.callback
	h := r.facadeH
	r.mu.Unlock()

	cb(merged, h)
}

// Facade is the process-wide DiscoveryFacade.
type Facade struct {
	resolver  domain.ConfigResolverIface
	publisher *flagfile.Publisher
	clients   map[identity.BindingKind]domain.DiscoveryClientIface

	mu            sync.Mutex
	registrations map[uint64]*registration
}

// New builds a Facade rooted at discoveryRoot. Only the LoLa binding has a
// DiscoveryClient implementation in this repo — this core only transports
// over shared memory (the LoLa binding); SomeIp is recognized as a BindingKind
// variant but has no wired client, so any operation against a SomeIp
// identifier fails with ErrBindingFailure until a SomeIp client is added.
func New(discoveryRoot string, resolver domain.ConfigResolverIface) (*Facade, error) {
	lolaClient, err := discclient.New(discoveryRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: starting LoLa discovery client: %v", mwerrors.ErrBindingFailure, err)
	}

	return &Facade{
		resolver:  resolver,
		publisher: flagfile.NewPublisher(discoveryRoot),
		clients: map[identity.BindingKind]domain.DiscoveryClientIface{
			identity.BindingLoLa: lolaClient,
		},
		registrations: make(map[uint64]*registration),
	}, nil
}

func (f *Facade) clientFor(binding identity.BindingKind) (domain.DiscoveryClientIface, error) {
	client, ok := f.clients[binding]
	if !ok {
		return nil, fmt.Errorf("%w: no discovery client wired for binding %s", mwerrors.ErrBindingFailure, binding)
	}
	return client, nil
}

// OfferService publishes flag files for id and notifies its binding's
// discovery client.
func (f *Facade) OfferService(id identity.InstanceIdentifier) error {
	client, err := f.clientFor(id.Instance.Binding)
	if err != nil {
		return err
	}
	if err := f.publisher.Offer(id); err != nil {
		return err
	}
	if err := client.OfferService(id); err != nil {
		return err
	}
	logrus.Debugf("facade: offered %s", id)
	return nil
}

// StopOfferService withdraws id's offer for the qualities named by
// selector.
func (f *Facade) StopOfferService(id identity.InstanceIdentifier, selector domain.QualityTypeSelector) error {
	client, err := f.clientFor(id.Instance.Binding)
	if err != nil {
		return err
	}
	if err := f.publisher.StopOffer(id, selector); err != nil {
		return err
	}
	return client.StopOfferService(id, selector)
}

// StartFindServiceBySpecifier resolves specifier against the configured
// manifest and starts a find-service search across every deployment it
// names.
func (f *Facade) StartFindServiceBySpecifier(callback domain.FindServiceHandler, specifier identity.InstanceSpecifier) (identity.FindServiceHandle, error) {
	ids, err := f.resolver.Resolve(specifier)
	if err != nil {
		return identity.FindServiceHandle{}, err
	}
	if len(ids) == 0 {
		return identity.FindServiceHandle{}, fmt.Errorf("%w: specifier %s has no configured deployment", mwerrors.ErrInstanceIDCouldNotBeResolved, specifier)
	}

	enriched := make([]identity.EnrichedInstanceIdentifier, len(ids))
	for i, id := range ids {
		enriched[i] = identity.NewEnrichedInstanceIdentifier(id)
	}
	return f.startMulti(callback, enriched)
}

// StartFindServiceByIdentifier starts a single-deployment search.
func (f *Facade) StartFindServiceByIdentifier(callback domain.FindServiceHandler, id identity.InstanceIdentifier) (identity.FindServiceHandle, error) {
	return f.startMulti(callback, []identity.EnrichedInstanceIdentifier{identity.NewEnrichedInstanceIdentifier(id)})
}

// StartFindServiceByEnrichedIdentifier starts a search against an already
// resolved/enriched identifier (e.g. re-searching from a previously
// discovered handle).
func (f *Facade) StartFindServiceByEnrichedIdentifier(callback domain.FindServiceHandler, enriched identity.EnrichedInstanceIdentifier) (identity.FindServiceHandle, error) {
	return f.startMulti(callback, []identity.EnrichedInstanceIdentifier{enriched})
}

// startMulti registers one child search per entry in targets, rolling
// back any already-registered child if a later one fails to register.
func (f *Facade) startMulti(callback domain.FindServiceHandler, targets []identity.EnrichedInstanceIdentifier) (identity.FindServiceHandle, error) {
	facadeHandle := identity.NewFindServiceHandle()
	reg := &registration{
		callback: callback,
		facadeH:  facadeHandle,
		results:  make([][]identity.HandleType, len(targets)),
	}

	var rollbackErr *multierror.Error

	for i, target := range targets {
		client, err := f.clientFor(target.InstanceIdentifier().Instance.Binding)
		if err != nil {
			f.rollbackChildren(reg)
			return identity.FindServiceHandle{}, fmt.Errorf("%w: %v", mwerrors.ErrBindingFailure, err)
		}

		childHandle := identity.NewFindServiceHandle()
		index := i
		err = client.StartFindService(childHandle, func(instances domain.KnownInstancesContainer, _ identity.FindServiceHandle) {
			reg.update(index, instances)
		}, target)
		if err != nil {
			rollbackErr = multierror.Append(rollbackErr, err)
			f.rollbackChildren(reg)
			return identity.FindServiceHandle{}, fmt.Errorf("%w: %v", mwerrors.ErrBindingFailure, rollbackErr)
		}

		reg.children = append(reg.children, childRegistration{client: client, handle: childHandle})
	}

	f.mu.Lock()
	f.registrations[facadeHandle.Uid()] = reg
	f.mu.Unlock()

	return facadeHandle, nil
}

func (f *Facade) rollbackChildren(reg *registration) {
	for _, child := range reg.children {
		if err := child.client.StopFindService(child.handle); err != nil {
			logrus.Warnf("facade: rollback StopFindService failed: %v", err)
		}
	}
}

// StopFindService stops every child search registered under handle.
func (f *Facade) StopFindService(handle identity.FindServiceHandle) error {
	f.mu.Lock()
	reg, ok := f.registrations[handle.Uid()]
	if ok {
		delete(f.registrations, handle.Uid())
	}
	f.mu.Unlock()

	if !ok {
		return nil
	}

	var errs *multierror.Error
	for _, child := range reg.children {
		if err := child.client.StopFindService(child.handle); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if errs != nil {
		return fmt.Errorf("%w: %v", mwerrors.ErrBindingFailure, errs)
	}
	return nil
}

// FindServiceBySpecifier performs a synchronous one-shot search across
// every deployment specifier resolves to.
func (f *Facade) FindServiceBySpecifier(specifier identity.InstanceSpecifier) (domain.KnownInstancesContainer, error) {
	ids, err := f.resolver.Resolve(specifier)
	if err != nil {
		return nil, err
	}

	merged := make(domain.KnownInstancesContainer, 0)
	var errs *multierror.Error
	for _, id := range ids {
		result, err := f.FindServiceByIdentifier(id)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		merged = append(merged, result...)
	}
	if errs != nil {
		return merged, fmt.Errorf("%w: %v", mwerrors.ErrBindingFailure, errs)
	}
	return merged, nil
}

// FindServiceByIdentifier performs a synchronous one-shot search for id.
func (f *Facade) FindServiceByIdentifier(id identity.InstanceIdentifier) (domain.KnownInstancesContainer, error) {
	client, err := f.clientFor(id.Instance.Binding)
	if err != nil {
		return nil, err
	}
	return client.FindService(identity.NewEnrichedInstanceIdentifier(id))
}

// Close tears down every wired binding client.
func (f *Facade) Close() error {
	var errs *multierror.Error
	for _, client := range f.clients {
		if err := client.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if errs != nil {
		return errs
	}
	return nil
}

var _ domain.DiscoveryFacadeIface = (*Facade)(nil)
