// Package client is the burrow discovery, traversal and fetch engine.
//
// A Client is built once from a config.Config and is safe for concurrent
// use. It owns the transport registry, the security validator, the cache
// manager and the per-host rate limiter, and wires them together:
//
//	location -> normalize -> validate -> cache -> rate limit -> transport
//
// Discover finds a burrow and/or warren at a base location by trying the
// dotfile, plain and well-known file names, walking up parent directories.
// FetchEntry resolves an entry, fetches it and verifies its declared hash.
// Traverse walks a manifest tree breadth-first and yields events on a
// channel; stopping consumption stops the walk.
//
// Every failure is returned as an *Error carrying a report.Category, so
// callers can match with errors.Is(err, report.CategoryHashMismatch).
// Recoverable categories are retried with exponential backoff before they
// surface.
package client
