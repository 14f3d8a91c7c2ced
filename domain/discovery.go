package domain

import "github.com/eclipse-score/mw-com-go/identity"

// QualityTypeSelector restricts a StopOfferService call to a single
// quality tree: a selector of QM leaves the B file intact.
type QualityTypeSelector int

const (
	QualitySelectorBoth QualityTypeSelector = iota
	QualitySelectorQM
)

// KnownInstancesContainer is the current, complete set of discovered
// handles reported to a find-service callback — always the full set, never
// a delta.
type KnownInstancesContainer []identity.HandleType

// FindServiceHandler is the user-supplied callback invoked by the discovery
// layer whenever the set of known instances for a search changes. It is
// owned by the discovery facade, which is responsible for the "no
// callback after StopFindService returns" lifecycle guarantee.
type FindServiceHandler func(instances KnownInstancesContainer, handle identity.FindServiceHandle)

// DiscoveryClientIface is the per-binding discovery engine: it translates
// filesystem/offer-protocol events into find-service callbacks. The facade
// holds one implementation per wired BindingKind (only LoLa is wired) and
// dispatches to whichever binding owns a given identifier.
type DiscoveryClientIface interface {
	OfferService(id identity.InstanceIdentifier) error
	StopOfferService(id identity.InstanceIdentifier, selector QualityTypeSelector) error

	StartFindService(handle identity.FindServiceHandle, callback FindServiceHandler, enriched identity.EnrichedInstanceIdentifier) error
	StopFindService(handle identity.FindServiceHandle) error
	FindService(enriched identity.EnrichedInstanceIdentifier) (KnownInstancesContainer, error)

	// Close tears down the client's background worker. No callback fires
	// after Close returns.
	Close() error
}

// DiscoveryFacadeIface is the process-wide, binding-agnostic discovery
// API. It is what application code and the runtime singleton actually
// call.
type DiscoveryFacadeIface interface {
	OfferService(id identity.InstanceIdentifier) error
	StopOfferService(id identity.InstanceIdentifier, selector QualityTypeSelector) error

	StartFindServiceBySpecifier(callback FindServiceHandler, specifier identity.InstanceSpecifier) (identity.FindServiceHandle, error)
	StartFindServiceByIdentifier(callback FindServiceHandler, id identity.InstanceIdentifier) (identity.FindServiceHandle, error)
	StartFindServiceByEnrichedIdentifier(callback FindServiceHandler, enriched identity.EnrichedInstanceIdentifier) (identity.FindServiceHandle, error)
	StopFindService(handle identity.FindServiceHandle) error

	FindServiceBySpecifier(specifier identity.InstanceSpecifier) (KnownInstancesContainer, error)
	FindServiceByIdentifier(id identity.InstanceIdentifier) (KnownInstancesContainer, error)

	Close() error
}

// ConfigResolverIface maps an InstanceSpecifier to the configured set of
// InstanceIdentifiers, the one contract the facade needs from the
// externally-loaded configuration.
type ConfigResolverIface interface {
	Resolve(specifier identity.InstanceSpecifier) ([]identity.InstanceIdentifier, error)
}
