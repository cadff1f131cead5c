// Package config holds the settings a burrow client is built from.
//
// NewConfig returns working defaults. Values can then be overridden by a
// YAML file (.burrow.yaml) and finally by command-line flags or BURROW_*
// environment variables. Validate reports the first invalid setting as one
// of the sentinel errors in errors.go.
//
// The YAML file also carries per-host site settings: headers and cookies
// the HTTP transport injects, and pacing overrides for the rate limiter.
package config
