package identity

// EnrichedInstanceIdentifier is a mutable wrapper around an
// InstanceIdentifier that lets discovery resolve or override the instance
// id and quality it carries without mutating the underlying (immutable)
// InstanceIdentifier. It is the third identifier shape alongside
// InstanceIdentifier (pure configuration data) and HandleType (always a
// concrete, discovered instance) referenced throughout discovery and
// binding construction.
type EnrichedInstanceIdentifier struct {
	identifier InstanceIdentifier
	instanceID ServiceInstanceId
	quality    Quality
}

// NewEnrichedInstanceIdentifier wraps identifier, taking its instance id
// and quality as-is.
func NewEnrichedInstanceIdentifier(identifier InstanceIdentifier) EnrichedInstanceIdentifier {
	return EnrichedInstanceIdentifier{
		identifier: identifier,
		instanceID: identifier.Instance.InstanceID,
		quality:    identifier.Instance.Quality,
	}
}

// NewEnrichedInstanceIdentifierWithID wraps identifier but overrides its
// instance id with one resolved during a find-any search. identifier must
// not already carry a concrete id — supplying one when it does is a
// programmer error and panics.
func NewEnrichedInstanceIdentifierWithID(identifier InstanceIdentifier, instanceID ServiceInstanceId) EnrichedInstanceIdentifier {
	if !identifier.Instance.InstanceID.IsEmpty() {
		panic("identity: EnrichedInstanceIdentifier given an explicit instance id although the configuration already has one")
	}
	return EnrichedInstanceIdentifier{
		identifier: identifier,
		instanceID: instanceID,
		quality:    identifier.Instance.Quality,
	}
}

// NewEnrichedInstanceIdentifierFromHandle derives an enriched identifier
// from a previously discovered handle.
func NewEnrichedInstanceIdentifierFromHandle(h HandleType) EnrichedInstanceIdentifier {
	return EnrichedInstanceIdentifier{
		identifier: h.Identifier(),
		instanceID: h.InstanceID(),
		quality:    h.Identifier().Instance.Quality,
	}
}

func (e EnrichedInstanceIdentifier) InstanceIdentifier() InstanceIdentifier { return e.identifier }
func (e EnrichedInstanceIdentifier) InstanceID() ServiceInstanceId          { return e.instanceID }
func (e EnrichedInstanceIdentifier) Quality() Quality                       { return e.quality }

// WithQuality returns a copy of e with its quality overridden.
func (e EnrichedInstanceIdentifier) WithQuality(q Quality) EnrichedInstanceIdentifier {
	e.quality = q
	return e
}
