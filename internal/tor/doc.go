// Package tor supports fetching burrows published as onion services.
//
// It can launch an embedded Tor daemon through tornago, verify that a
// configured proxy speaks SOCKS5, and validate v3 onion host names. The
// HTTP transport does the actual proxying; this package only supplies the
// SOCKS5 address and the host checks the security validator relies on.
package tor
