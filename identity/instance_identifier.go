package identity

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/eclipse-score/mw-com-go/mwerrors"
)

// serializationVersion is bumped whenever the wire layout of a serialized
// InstanceIdentifier changes. Deserializing a payload stamped with a
// different version is a programmer error: configuration and running
// binaries are expected to agree on this format, so a mismatch
// can only mean stale or foreign data reached this process, which the
// caller cannot safely interpret. It panics rather than returning an error.
const serializationVersion uint16 = 1

// ServiceInstanceDeployment binds a service type to an instance id and a
// quality level. Immutable after configuration load.
type ServiceInstanceDeployment struct {
	ServiceType    ServiceTypeDeployment
	InstanceID     ServiceInstanceId
	Quality        Quality
	Binding        BindingKind
	MaxSamples     uint32
	MaxSubscribers uint32
}

// InstanceIdentifier pairs a ServiceInstanceDeployment with its
// ServiceTypeDeployment. Value-equal, totally ordered, hashable.
type InstanceIdentifier struct {
	ServiceType ServiceTypeDeployment
	Instance    ServiceInstanceDeployment
}

// NewInstanceIdentifier builds an identifier from its two components.
func NewInstanceIdentifier(svcType ServiceTypeDeployment, instance ServiceInstanceDeployment) InstanceIdentifier {
	return InstanceIdentifier{ServiceType: svcType, Instance: instance}
}

// IsFindAny reports whether this identifier carries no concrete instance id
// and therefore names a find-any search template.
func (id InstanceIdentifier) IsFindAny() bool {
	return id.Instance.InstanceID.IsEmpty()
}

func (id InstanceIdentifier) Equal(other InstanceIdentifier) bool {
	return id.ServiceType.Equal(other.ServiceType) &&
		id.Instance.InstanceID.Equal(other.Instance.InstanceID) &&
		id.Instance.Quality == other.Instance.Quality &&
		id.Instance.Binding == other.Instance.Binding
}

// Compare gives InstanceIdentifier a total order: by service id, then by
// instance id, then by quality.
func (id InstanceIdentifier) Compare(other InstanceIdentifier) int {
	if id.ServiceType.ServiceID != other.ServiceType.ServiceID {
		if id.ServiceType.ServiceID < other.ServiceType.ServiceID {
			return -1
		}
		return 1
	}
	if !id.Instance.InstanceID.Equal(other.Instance.InstanceID) {
		if id.Instance.InstanceID.Less(other.Instance.InstanceID) {
			return -1
		}
		return 1
	}
	if id.Instance.Quality != other.Instance.Quality {
		if id.Instance.Quality < other.Instance.Quality {
			return -1
		}
		return 1
	}
	return 0
}

// Hash returns a stable hash over this identifier's service type and
// instance id.
func (id InstanceIdentifier) Hash() uint64 {
	return HashInstanceIdentifier(id.ServiceType, id.Instance.InstanceID)
}

func (id InstanceIdentifier) String() string {
	return fmt.Sprintf("svc=%d/inst=%s/q=%s", id.ServiceType.ServiceID, id.Instance.InstanceID, id.Instance.Quality)
}

// Serialize round-trips an InstanceIdentifier losslessly to a byte slice,
// stamped with serializationVersion.
func (id InstanceIdentifier) Serialize() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.BigEndian, serializationVersion); err != nil {
		return nil, fmt.Errorf("%w: %v", mwerrors.ErrInvalidInstanceIdentifierString, err)
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(id.ServiceType.ServiceID)); err != nil {
		return nil, fmt.Errorf("%w: %v", mwerrors.ErrInvalidInstanceIdentifierString, err)
	}

	writeIDList := func(ids []uint16) error {
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(ids))); err != nil {
			return err
		}
		for _, v := range ids {
			if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
				return err
			}
		}
		return nil
	}

	events := make([]uint16, len(id.ServiceType.EventIDs))
	for i, e := range id.ServiceType.EventIDs {
		events[i] = uint16(e)
	}
	fields := make([]uint16, len(id.ServiceType.FieldIDs))
	for i, f := range id.ServiceType.FieldIDs {
		fields[i] = uint16(f)
	}
	if err := writeIDList(events); err != nil {
		return nil, fmt.Errorf("%w: %v", mwerrors.ErrInvalidInstanceIdentifierString, err)
	}
	if err := writeIDList(fields); err != nil {
		return nil, fmt.Errorf("%w: %v", mwerrors.ErrInvalidInstanceIdentifierString, err)
	}

	var instTag byte
	var instVal uint16
	if id.Instance.InstanceID.IsEmpty() {
		instTag = 0
	} else if id.Instance.InstanceID.Binding() == BindingLoLa {
		instTag = 1
		instVal = id.Instance.InstanceID.Value()
	} else {
		instTag = 2
		instVal = id.Instance.InstanceID.Value()
	}
	buf.WriteByte(instTag)
	if err := binary.Write(&buf, binary.BigEndian, instVal); err != nil {
		return nil, fmt.Errorf("%w: %v", mwerrors.ErrInvalidInstanceIdentifierString, err)
	}
	buf.WriteByte(byte(id.Instance.Quality))
	buf.WriteByte(byte(id.Instance.Binding))

	return buf.Bytes(), nil
}

// DeserializeInstanceIdentifier is the inverse of Serialize. A malformed
// payload fails with ErrInvalidInstanceIdentifierString; a serializationVersion
// mismatch is a programmer error and panics.
func DeserializeInstanceIdentifier(data []byte) (InstanceIdentifier, error) {
	r := bytes.NewReader(data)

	var version uint16
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return InstanceIdentifier{}, fmt.Errorf("%w: %v", mwerrors.ErrInvalidInstanceIdentifierString, err)
	}
	if version != serializationVersion {
		panic(fmt.Sprintf("identity: serializationVersion mismatch: got %d, want %d", version, serializationVersion))
	}

	var serviceID uint16
	if err := binary.Read(r, binary.BigEndian, &serviceID); err != nil {
		return InstanceIdentifier{}, fmt.Errorf("%w: %v", mwerrors.ErrInvalidInstanceIdentifierString, err)
	}

	readIDList := func() ([]uint16, error) {
		var n uint16
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		out := make([]uint16, n)
		for i := range out {
			if err := binary.Read(r, binary.BigEndian, &out[i]); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	events, err := readIDList()
	if err != nil {
		return InstanceIdentifier{}, fmt.Errorf("%w: %v", mwerrors.ErrInvalidInstanceIdentifierString, err)
	}
	fields, err := readIDList()
	if err != nil {
		return InstanceIdentifier{}, fmt.Errorf("%w: %v", mwerrors.ErrInvalidInstanceIdentifierString, err)
	}

	instTag, err := r.ReadByte()
	if err != nil {
		return InstanceIdentifier{}, fmt.Errorf("%w: %v", mwerrors.ErrInvalidInstanceIdentifierString, err)
	}
	var instVal uint16
	if err := binary.Read(r, binary.BigEndian, &instVal); err != nil {
		return InstanceIdentifier{}, fmt.Errorf("%w: %v", mwerrors.ErrInvalidInstanceIdentifierString, err)
	}
	quality, err := r.ReadByte()
	if err != nil {
		return InstanceIdentifier{}, fmt.Errorf("%w: %v", mwerrors.ErrInvalidInstanceIdentifierString, err)
	}
	binding, err := r.ReadByte()
	if err != nil {
		return InstanceIdentifier{}, fmt.Errorf("%w: %v", mwerrors.ErrInvalidInstanceIdentifierString, err)
	}

	var instanceID ServiceInstanceId
	switch instTag {
	case 0:
		instanceID = EmptyServiceInstanceId()
	case 1:
		instanceID = NewLoLaServiceInstanceId(instVal)
	case 2:
		instanceID = NewSomeIpServiceInstanceId(instVal)
	default:
		return InstanceIdentifier{}, fmt.Errorf("%w: unknown instance-id tag %d", mwerrors.ErrInvalidInstanceIdentifierString, instTag)
	}

	eventIDs := make([]EventId, len(events))
	for i, e := range events {
		eventIDs[i] = EventId(e)
	}
	fieldIDs := make([]FieldId, len(fields))
	for i, f := range fields {
		fieldIDs[i] = FieldId(f)
	}

	svcType := ServiceTypeDeployment{ServiceID: ServiceId(serviceID), EventIDs: eventIDs, FieldIDs: fieldIDs}
	instance := ServiceInstanceDeployment{
		ServiceType: svcType,
		InstanceID:  instanceID,
		Quality:     Quality(quality),
		Binding:     BindingKind(binding),
	}

	return InstanceIdentifier{ServiceType: svcType, Instance: instance}, nil
}
