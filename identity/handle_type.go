package identity

import "fmt"

// HandleType is (InstanceIdentifier, ServiceInstanceId) where the second is
// always concrete; it is the user-facing identifier of a
// discovered instance, sufficient to construct a proxy.
type HandleType struct {
	identifier InstanceIdentifier
	instanceID ServiceInstanceId
}

// NewHandleType constructs a HandleType. If identifier already carries a
// concrete instance id, id (if supplied) must equal it; if identifier
// lacks one, id must be supplied. Violating either rule is a programmer
// error and panics.
func NewHandleType(identifier InstanceIdentifier, id *ServiceInstanceId) HandleType {
	existing := identifier.Instance.InstanceID

	if existing.IsEmpty() {
		if id == nil {
			panic("identity: HandleType requires a concrete ServiceInstanceId when the identifier is a find-any template")
		}
		return HandleType{identifier: identifier, instanceID: *id}
	}

	if id != nil && !id.Equal(existing) {
		panic(fmt.Sprintf("identity: HandleType id mismatch: identifier carries %s, supplied %s", existing, *id))
	}

	return HandleType{identifier: identifier, instanceID: existing}
}

func (h HandleType) Identifier() InstanceIdentifier  { return h.identifier }
func (h HandleType) InstanceID() ServiceInstanceId   { return h.instanceID }

func (h HandleType) Equal(other HandleType) bool {
	return h.identifier.Equal(other.identifier) && h.instanceID.Equal(other.instanceID)
}

func (h HandleType) String() string {
	return fmt.Sprintf("%s@%s", h.identifier, h.instanceID)
}
