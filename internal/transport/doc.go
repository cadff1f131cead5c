// Package transport fetches raw bytes for a location.
//
// A Transport serves one or more URI schemes. The Registry maps schemes to
// transports so that the rest of the client never needs to know how bytes
// are retrieved. HTTP(S) and local files ship built in; other transports
// (version-control checkouts, object stores) register the same interface.
//
// Every fetch takes a byte ceiling. Transports stop reading once the ceiling
// is crossed and return ErrTooLarge instead of a truncated payload.
//
// Remote failures are reported as *StatusError, which carries the status
// code and any Retry-After interval so callers can tell throttling apart
// from other failures.
package transport
