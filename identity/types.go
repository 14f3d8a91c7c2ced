// Package identity implements the IdentityModel component: value types for
// service/instance identification, with stable hashing, total ordering, and
// lossless (de)serialization. Every type here is a plain value type — no
// pointers, no shared mutable state — so that two identifiers built from
// the same configuration data are always equal and hash equal.
package identity

import "fmt"

// Quality is the safety integrity level of a service instance deployment.
// QualityB additionally requires a second, safety-segregated shm region.
type Quality uint8

const (
	QualityQM Quality = iota
	QualityB
)

func (q Quality) String() string {
	switch q {
	case QualityQM:
		return "asil-qm"
	case QualityB:
		return "asil-b"
	default:
		return fmt.Sprintf("quality(%d)", uint8(q))
	}
}

// BindingKind is the closed tagged variant over known transport bindings.
// The facade dispatches on this value rather than through virtual
// dispatch; new bindings are added here, not through an open interface
// hierarchy.
type BindingKind uint8

const (
	BindingLoLa BindingKind = iota
	BindingSomeIp
)

func (b BindingKind) String() string {
	switch b {
	case BindingLoLa:
		return "lola"
	case BindingSomeIp:
		return "someip"
	default:
		return fmt.Sprintf("binding(%d)", uint8(b))
	}
}

// ElementKind distinguishes an event element from a field element within an
// ElementFqId.
type ElementKind uint8

const (
	ElementEvent ElementKind = iota
	ElementField
)

func (k ElementKind) String() string {
	if k == ElementField {
		return "field"
	}
	return "event"
}

// ServiceId, EventId and FieldId are the raw numeric identifiers carried by
// a configuration manifest.
type ServiceId uint16
type EventId uint16
type FieldId uint16

// ServiceTypeDeployment describes a service type: its service id and the
// event/field ids it offers. It is immutable once produced by config
// loading.
type ServiceTypeDeployment struct {
	ServiceID ServiceId
	EventIDs  []EventId
	FieldIDs  []FieldId
}

// Equal reports whether two deployments describe the same service type.
func (d ServiceTypeDeployment) Equal(other ServiceTypeDeployment) bool {
	if d.ServiceID != other.ServiceID {
		return false
	}
	if len(d.EventIDs) != len(other.EventIDs) || len(d.FieldIDs) != len(other.FieldIDs) {
		return false
	}
	for i, e := range d.EventIDs {
		if other.EventIDs[i] != e {
			return false
		}
	}
	for i, f := range d.FieldIDs {
		if other.FieldIDs[i] != f {
			return false
		}
	}
	return true
}

// ElementFqId fully qualifies one event or field across the process.
type ElementFqId struct {
	ServiceID  ServiceId
	InstanceID uint16
	ElementID  uint16
	Kind       ElementKind
}

func (e ElementFqId) String() string {
	return fmt.Sprintf("%d/%d/%d/%s", e.ServiceID, e.InstanceID, e.ElementID, e.Kind)
}
