// Package config implements the JSON-manifest configuration loader,
// carried here as the ambient-stack reference implementation: a mapping
// from InstanceSpecifier to the list of ServiceInstanceDeployments offered or
// searched under that name, validated with
// github.com/go-playground/validator/v10 before it is handed to the
// discovery facade.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"

	"github.com/eclipse-score/mw-com-go/domain"
	"github.com/eclipse-score/mw-com-go/identity"
	"github.com/eclipse-score/mw-com-go/mwerrors"
)

// rawManifest is the on-disk JSON shape. It mirrors identity's value types
// field-for-field rather than embedding them directly, since the wire
// quality/binding tags are lowercase strings, not the numeric enums
// identity uses internally.
type rawManifest struct {
	MaxSubscribers uint32                  `json:"max_subscribers" validate:"required"`
	Instances      []rawInstanceDeployment `json:"instances" validate:"required,dive"`
}

type rawInstanceDeployment struct {
	Specifier  string   `json:"specifier" validate:"required"`
	ServiceID  uint16   `json:"service_id"`
	EventIDs   []uint16 `json:"event_ids"`
	FieldIDs   []uint16 `json:"field_ids"`
	InstanceID *uint16  `json:"instance_id"`
	Binding    string   `json:"binding" validate:"required,oneof=lola someip"`
	Quality    string   `json:"quality" validate:"required,oneof=qm b"`
	MaxSamples uint32   `json:"max_samples" validate:"required"`
}

// Loader is the reference ConfigLoaderIface implementation (domain/config.go):
// it reads a JSON manifest from disk, validates its shape, and converts it
// into the identity.InstanceIdentifier values the rest of the core
// operates on.
type Loader struct {
	validate *validator.Validate
}

// NewLoader builds a Loader. Safe for concurrent use — validator.Validate
// instances are stateless after construction, as in the teacher's own use
// of go-playground/validator for manifest-shaped config.
func NewLoader() *Loader {
	return &Loader{validate: validator.New()}
}

var _ domain.ConfigLoaderIface = (*Loader)(nil)

// Load reads and validates the manifest at path, returning
// ErrInvalidConfiguration wrapping the parse/validation detail on any
// failure, so configuration errors are reported at startup.
func (l *Loader) Load(path string) (*domain.Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", mwerrors.ErrInvalidConfiguration, path, err)
	}

	var parsed rawManifest
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", mwerrors.ErrInvalidConfiguration, path, err)
	}

	if err := l.validate.Struct(parsed); err != nil {
		return nil, fmt.Errorf("%w: validating %s: %v", mwerrors.ErrInvalidConfiguration, path, err)
	}

	deployments := make(map[string][]identity.InstanceIdentifier, len(parsed.Instances))
	var errs *multierror.Error
	for _, inst := range parsed.Instances {
		id, err := convertInstance(inst)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("specifier %q: %w", inst.Specifier, err))
			continue
		}
		deployments[inst.Specifier] = append(deployments[inst.Specifier], id)
	}
	if errs.ErrorOrNil() != nil {
		return nil, fmt.Errorf("%w: %v", mwerrors.ErrInvalidConfiguration, errs)
	}

	return &domain.Manifest{
		Deployments:    deployments,
		MaxSubscribers: parsed.MaxSubscribers,
	}, nil
}

func convertInstance(inst rawInstanceDeployment) (identity.InstanceIdentifier, error) {
	binding := identity.BindingLoLa
	if inst.Binding == "someip" {
		binding = identity.BindingSomeIp
	}

	quality := identity.QualityQM
	if inst.Quality == "b" {
		quality = identity.QualityB
	}

	var instID identity.ServiceInstanceId
	switch {
	case inst.InstanceID == nil:
		instID = identity.EmptyServiceInstanceId()
	case binding == identity.BindingSomeIp:
		instID = identity.NewSomeIpServiceInstanceId(*inst.InstanceID)
	default:
		instID = identity.NewLoLaServiceInstanceId(*inst.InstanceID)
	}

	svcType := identity.ServiceTypeDeployment{
		ServiceID: identity.ServiceId(inst.ServiceID),
		EventIDs:  toEventIds(inst.EventIDs),
		FieldIDs:  toFieldIds(inst.FieldIDs),
	}

	deployment := identity.ServiceInstanceDeployment{
		ServiceType:    svcType,
		InstanceID:     instID,
		Quality:        quality,
		Binding:        binding,
		MaxSamples:     inst.MaxSamples,
		MaxSubscribers: 0,
	}

	return identity.NewInstanceIdentifier(svcType, deployment), nil
}

func toEventIds(raw []uint16) []identity.EventId {
	out := make([]identity.EventId, len(raw))
	for i, v := range raw {
		out[i] = identity.EventId(v)
	}
	return out
}

func toFieldIds(raw []uint16) []identity.FieldId {
	out := make([]identity.FieldId, len(raw))
	for i, v := range raw {
		out[i] = identity.FieldId(v)
	}
	return out
}

// Resolver adapts a loaded Manifest into domain.ConfigResolverIface, the
// one contract the discovery facade needs from configuration.
type Resolver struct {
	manifest *domain.Manifest
}

// NewResolver wraps an already-loaded manifest for facade lookups.
func NewResolver(m *domain.Manifest) *Resolver {
	return &Resolver{manifest: m}
}

var _ domain.ConfigResolverIface = (*Resolver)(nil)

// Resolve maps specifier to its configured identifiers, failing with
// ErrInstanceIDCouldNotBeResolved when the specifier names nothing in the
// loaded manifest.
func (r *Resolver) Resolve(specifier identity.InstanceSpecifier) ([]identity.InstanceIdentifier, error) {
	ids, ok := r.manifest.Deployments[specifier.String()]
	if !ok {
		return nil, fmt.Errorf("%w: specifier %q not present in configuration", mwerrors.ErrInstanceIDCouldNotBeResolved, specifier.String())
	}
	return ids, nil
}
