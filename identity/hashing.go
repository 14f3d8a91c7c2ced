package identity

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// maxHashBytes bounds the scratch buffer used to build the combined
// hash-string of a ServiceTypeDeployment + ServiceInstanceId. It is sized
// generously for the fixed maxima this system deals with (a handful of
// event/field ids per service type, one binding tag plus one uint16 for
// the instance id) so that hashing never allocates.
// Hashing aborts (panics) rather than silently truncating if a
// configuration ever produces a longer encoding than this budget — that
// would indicate a service type deployment far outside any realistic
// configuration and is treated as a programmer/configuration error.
const maxHashBytes = 512

// appendUint appends the base-10 digits of v to dst without allocating
// (strconv.AppendUint reuses dst's backing array when there is capacity).
func appendUint(dst []byte, v uint64) []byte {
	return strconv.AppendUint(dst, v, 10)
}

func appendServiceTypeHashString(dst []byte, d ServiceTypeDeployment) []byte {
	dst = appendUint(dst, uint64(d.ServiceID))
	for _, e := range d.EventIDs {
		dst = append(dst, '/')
		dst = appendUint(dst, uint64(e))
	}
	for _, f := range d.FieldIDs {
		dst = append(dst, '#')
		dst = appendUint(dst, uint64(f))
	}
	return dst
}

// HashInstanceIdentifier combines the hash-strings of a service type
// deployment and an instance id into a single stable 64-bit hash. It uses a
// fixed-size stack array as scratch space and never allocates on the heap;
// if the combined encoding would exceed that budget the function panics,
// since that represents a configuration far larger than any fixed maxima
// this system is built for.
func HashInstanceIdentifier(svcType ServiceTypeDeployment, instanceID ServiceInstanceId) uint64 {
	var buf [maxHashBytes]byte
	b := buf[:0]

	b = appendServiceTypeHashString(b, svcType)
	b = append(b, '|')
	b = instanceID.appendHashString(b)

	if len(b) > maxHashBytes {
		panic("identity: hash-string exceeds fixed scratch budget")
	}

	return xxhash.Sum64(b)
}
