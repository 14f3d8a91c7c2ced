package identity

import "fmt"

// ServiceInstanceId is the tagged union {LoLa u16, SomeIp u16, empty}.
// When empty, the enclosing InstanceIdentifier is a "find-any"
// template; HandleType always carries a concrete (non-empty) id.
type ServiceInstanceId struct {
	binding BindingKind
	value   uint16
	isEmpty bool
}

// EmptyServiceInstanceId returns the "find-any" placeholder id.
func EmptyServiceInstanceId() ServiceInstanceId {
	return ServiceInstanceId{isEmpty: true}
}

// NewLoLaServiceInstanceId builds a concrete LoLa-binding instance id.
func NewLoLaServiceInstanceId(v uint16) ServiceInstanceId {
	return ServiceInstanceId{binding: BindingLoLa, value: v}
}

// NewSomeIpServiceInstanceId builds a concrete SOME/IP-binding instance id.
func NewSomeIpServiceInstanceId(v uint16) ServiceInstanceId {
	return ServiceInstanceId{binding: BindingSomeIp, value: v}
}

func (id ServiceInstanceId) IsEmpty() bool        { return id.isEmpty }
func (id ServiceInstanceId) Binding() BindingKind  { return id.binding }

// Value returns the raw numeric id. Calling it on an empty id is a
// programmer error: callers must check IsEmpty first.
func (id ServiceInstanceId) Value() uint16 {
	if id.isEmpty {
		panic("identity: Value() called on an empty (find-any) ServiceInstanceId")
	}
	return id.value
}

func (id ServiceInstanceId) Equal(other ServiceInstanceId) bool {
	if id.isEmpty != other.isEmpty {
		return false
	}
	if id.isEmpty {
		return true
	}
	return id.binding == other.binding && id.value == other.value
}

// Less gives ServiceInstanceId a total order: empty sorts first, then by
// binding, then by value. Used by InstanceIdentifier.Compare.
func (id ServiceInstanceId) Less(other ServiceInstanceId) bool {
	if id.isEmpty != other.isEmpty {
		return id.isEmpty
	}
	if id.isEmpty {
		return false
	}
	if id.binding != other.binding {
		return id.binding < other.binding
	}
	return id.value < other.value
}

func (id ServiceInstanceId) String() string {
	if id.isEmpty {
		return "*"
	}
	return fmt.Sprintf("%s:%d", id.binding, id.value)
}

// appendHashString appends a canonical, allocation-free representation of
// the id to dst, returning the grown slice. Used by hashing.go's combined
// hash so that ServiceInstanceId participates in InstanceIdentifier's hash
// without a heap allocation.
func (id ServiceInstanceId) appendHashString(dst []byte) []byte {
	if id.isEmpty {
		return append(dst, '*')
	}
	dst = appendUint(dst, uint64(id.binding))
	dst = append(dst, ':')
	dst = appendUint(dst, uint64(id.value))
	return dst
}
