// Package security decides whether a location may be fetched at all.
//
// The Validator runs before every fetch. It rejects locations that would
// let a published manifest steer the client into the operator's own
// network: loopback, private, link-local, carrier-grade NAT and cloud
// metadata addresses, plus well-known metadata host names. Operators can
// lift the restriction globally (AllowPrivate) or per host (AllowHosts).
//
// Host names are only resolved at check time when a Resolver is
// configured. The HTTP transport installs DialControl so that the address
// actually connected to is checked as well, which also covers DNS answers
// that change between check and connect.
//
// Limits collects the resource ceilings that apply to one client:
// manifest and entry sizes, entry count, depth, redirects and timeouts.
package security
