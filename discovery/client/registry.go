package client

import (
	"github.com/eclipse-score/mw-com-go/domain"
	"github.com/eclipse-score/mw-com-go/identity"
)

// searchEntry is one StartFindService registration.
type searchEntry struct {
	handle       identity.FindServiceHandle
	callback     domain.FindServiceHandler
	target       identity.EnrichedInstanceIdentifier
	findAny      bool
	watchPath    string
	lastReported domain.KnownInstancesContainer
}

// dirState is the shared, reference-counted watch state for one directory
// this client observes — either a service directory (find-any: watches for
// instance-subdirectory create/delete) or an instance directory (concrete
// search: watches for flag-file create/delete). Two searches that resolve
// to the same path share one dirState instead of issuing a second
// filesystem walk.
type dirState struct {
	path         string
	isServiceDir bool
	refCount     int

	// instance-dir fields
	offered bool

	// service-dir fields: instance id -> child instance-dir path. Children
	// are watched on the service dir's behalf and released when the
	// service dir's last referencing search stops.
	children map[uint16]string
}
