package tor

import "errors"

var (
	// ErrInvalidProxyAddress is returned when a proxy address is not "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrProxyUnreachable is returned when no TCP connection to the proxy
	// can be made.
	ErrProxyUnreachable = errors.New("cannot connect to SOCKS5 proxy")

	// ErrNotSOCKS5 is returned when the proxy answers but not as an
	// unauthenticated SOCKS5 server.
	ErrNotSOCKS5 = errors.New("proxy is not an unauthenticated SOCKS5 proxy")

	// ErrNotRunning is returned when the embedded daemon has not been started.
	ErrNotRunning = errors.New("embedded Tor daemon is not running")
)
