package domain

import "github.com/eclipse-score/mw-com-go/identity"

// Manifest is the parsed form of the external JSON configuration: a
// mapping from InstanceSpecifier to the list of deployments
// offered/searched under that name, plus the global knobs
// (max_subscribers) this repo's core needs at startup.
type Manifest struct {
	Deployments    map[string][]identity.InstanceIdentifier
	MaxSubscribers uint32
}

// ConfigLoaderIface loads and validates a configuration manifest. Parse
// errors and unknown-specifier lookups are configuration errors, reported
// at startup or at first resolve, never retried.
type ConfigLoaderIface interface {
	Load(path string) (*Manifest, error)
}
