// Package mwerrors holds the sentinel error values surfaced at the API
// boundary. It has no dependencies on any other package in this module so
// that every layer — identity, discovery, shm, runtime — can return these
// errors without import cycles.
//
// Recoverable failures are always one of these, checked with errors.Is.
// Programmer errors (mismatched serialization version, double-acquire of a
// transaction-log slot, trace-context double-set, inotify queue overflow)
// panic instead of returning an error.
package mwerrors

import "errors"

var (
	ErrServiceNotOffered                = errors.New("mwcom: service not offered")
	ErrNotSubscribed                    = errors.New("mwcom: not subscribed")
	ErrBindingFailure                   = errors.New("mwcom: binding failure")
	ErrInvalidInstanceIdentifierString  = errors.New("mwcom: invalid instance identifier string")
	ErrInvalidMetaModelShortname        = errors.New("mwcom: invalid meta-model shortname")
	ErrInvalidConfiguration             = errors.New("mwcom: invalid configuration")
	ErrInstanceIDCouldNotBeResolved     = errors.New("mwcom: instance id could not be resolved")
	ErrMaxSubscribersExceeded           = errors.New("mwcom: max subscribers exceeded")
	ErrAllocationFailed                 = errors.New("mwcom: no free slot")
)
