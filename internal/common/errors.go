// Package common defines the sentinel error kinds shared by repositories,
// services, and the transport layer. Callers should use errors.Is to match
// these values; additional detail is attached with fmt.Errorf("%w: ...").
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Domain failure kinds surfaced by services. The transport layer maps
	// these to status codes; the message shown to the client for
	// security-sensitive failures is collapsed there, not here.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrValidation      = errors.New("validation failed")
	ErrDuplicate       = errors.New("duplicate value found")
	ErrForbidden       = errors.New("forbidden")
	ErrBadRequest      = errors.New("bad request")

	// ErrInternal covers unexpected infrastructure faults (store failures,
	// signing faults, timeouts). Never retried inside the core.
	ErrInternal = errors.New("server error")
)
