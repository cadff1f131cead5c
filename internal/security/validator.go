package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/nao1215/burrow/internal/tor"
)

var (
	// ErrBlocked is the umbrella error for every rejected location.
	ErrBlocked = errors.New("location blocked by security policy")

	// ErrBlockedAddress is returned for private, loopback and similar IPs.
	ErrBlockedAddress = errors.New("address is private, loopback or reserved")

	// ErrBlockedHost is returned for metadata-service and local host names.
	ErrBlockedHost = errors.New("host name is blocked")

	// ErrSchemeEscalation is returned when a remote document references a
	// local file.
	ErrSchemeEscalation = errors.New("remote location may not reference a local file")

	// ErrSchemeNotAllowed is returned for schemes outside the allowed set.
	ErrSchemeNotAllowed = errors.New("scheme not allowed")

	// ErrInvalidLocation is returned for unparseable or host-less locations.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrOnionWithoutProxy is returned for .onion hosts when no SOCKS
	// proxy is configured.
	ErrOnionWithoutProxy = errors.New("onion locations need a SOCKS5 proxy")

	// ErrInvalidOnion is returned for .onion hosts that are not valid v3
	// addresses.
	ErrInvalidOnion = errors.New("invalid v3 onion address")
)

// blockedHostNames are resolved by cloud providers to instance metadata
// services or to the local machine.
var blockedHostNames = map[string]bool{
	"localhost":                  true,
	"metadata":                   true,
	"metadata.google.internal":   true,
	"metadata.goog":              true,
	"instance-data":              true,
	"instance-data.ec2.internal": true,
}

// blockedNetworks are ranges net.IP has no predicate for.
var blockedNetworks = mustParseCIDRs(
	"0.0.0.0/8",         // "this" network
	"100.64.0.0/10",     // carrier-grade NAT
	"192.0.0.0/24",      // IETF protocol assignments
	"198.18.0.0/15",     // benchmarking
	"240.0.0.0/4",       // reserved
	"fd00:ec2::254/128", // AWS IMDS over IPv6
	"64:ff9b::/96",      // NAT64, may embed a private IPv4
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Validator checks locations before they are fetched. It is safe for
// concurrent use once built.
type Validator struct {
	allowPrivate bool
	allowHosts   map[string]bool
	allowNets    []*net.IPNet
	schemes      map[string]bool
	resolver     Resolver
	proxied      bool
	proxyDNS     bool
	limits       Limits
}

// Option configures a Validator.
type Option func(*Validator)

// WithAllowPrivate disables address blocking entirely.
func WithAllowPrivate(allow bool) Option {
	return func(v *Validator) {
		v.allowPrivate = allow
	}
}

// WithAllowHosts exempts host names, IP addresses and CIDR ranges from
// blocking.
func WithAllowHosts(hosts ...string) Option {
	return func(v *Validator) {
		for _, h := range hosts {
			h = strings.ToLower(strings.TrimSpace(h))
			if h == "" {
				continue
			}
			if _, n, err := net.ParseCIDR(h); err == nil {
				v.allowNets = append(v.allowNets, n)
				continue
			}
			v.allowHosts[strings.Trim(h, "[]")] = true
		}
	}
}

// WithSchemes restricts locations to the given schemes. Without it any
// scheme passes and the transport registry decides what is reachable.
func WithSchemes(schemes ...string) Option {
	return func(v *Validator) {
		v.schemes = make(map[string]bool, len(schemes))
		for _, s := range schemes {
			v.schemes[strings.ToLower(s)] = true
		}
	}
}

// WithResolver resolves host names during Check so blocked targets fail
// before any connection is attempted.
func WithResolver(r Resolver) Option {
	return func(v *Validator) {
		v.resolver = r
	}
}

// WithProxy tells the validator that traffic leaves through a SOCKS5
// proxy, which makes .onion hosts reachable.
//
// Proxied host names are resolved by the proxy, not locally, so only IP
// literals and blocked names are checked: a name that resolves to a
// private address on the proxy's side gets through. Use WithProxyDNSCheck
// to resolve names locally as well.
func WithProxy(proxied bool) Option {
	return func(v *Validator) {
		v.proxied = proxied
	}
}

// WithProxyDNSCheck resolves proxied host names with the local resolver
// and blocks private results, as without a proxy. Each check then issues
// a local DNS query, which a Tor setup usually wants to avoid. .onion
// hosts are never resolved.
func WithProxyDNSCheck(check bool) Option {
	return func(v *Validator) {
		v.proxyDNS = check
	}
}

// WithLimits sets the resource ceilings reported by Limits.
func WithLimits(l Limits) Option {
	return func(v *Validator) {
		v.limits = l
	}
}

// NewValidator builds a validator. By default private addresses are
// blocked and DefaultLimits apply.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		allowHosts: make(map[string]bool),
		limits:     DefaultLimits(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Limits returns the configured resource ceilings.
func (v *Validator) Limits() Limits {
	return v.limits
}

// Allowed reports whether host was explicitly exempted from blocking.
func (v *Validator) Allowed(host string) bool {
	host = strings.ToLower(strings.Trim(host, "[]"))
	if v.allowHosts[host] {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		for _, n := range v.allowNets {
			if n.Contains(ip) {
				return true
			}
		}
	}
	return false
}

// Check reports whether location may be fetched.
func (v *Validator) Check(ctx context.Context, location string) error {
	u, err := url.Parse(location)
	if err != nil {
		return blocked(fmt.Errorf("%w: %w", ErrInvalidLocation, err))
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		return blocked(fmt.Errorf("%w: %q has no scheme", ErrInvalidLocation, location))
	}
	if v.schemes != nil && !v.schemes[scheme] {
		return blocked(fmt.Errorf("%w: %q", ErrSchemeNotAllowed, scheme))
	}
	if scheme == "file" {
		return nil
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return blocked(fmt.Errorf("%w: %q has no host", ErrInvalidLocation, location))
	}
	return v.checkHost(ctx, host)
}

// CheckReference checks target as a reference found inside the document
// at parent. On top of Check it refuses to let a remote document point at
// a local file.
func (v *Validator) CheckReference(ctx context.Context, parent, target string) error {
	if parent != "" {
		p, perr := url.Parse(parent)
		t, terr := url.Parse(target)
		if perr == nil && terr == nil &&
			!strings.EqualFold(p.Scheme, "file") && strings.EqualFold(t.Scheme, "file") {
			return blocked(fmt.Errorf("%w: %s references %s", ErrSchemeEscalation, parent, target))
		}
	}
	return v.Check(ctx, target)
}

func (v *Validator) checkHost(ctx context.Context, host string) error {
	if v.Allowed(host) {
		return nil
	}

	if tor.IsOnionHost(host) {
		if !v.proxied {
			return blocked(fmt.Errorf("%w: %s", ErrOnionWithoutProxy, host))
		}
		if !tor.IsValidV3Address(host) {
			return blocked(fmt.Errorf("%w: %s", ErrInvalidOnion, host))
		}
		return nil
	}

	if v.allowPrivate {
		return nil
	}

	if blockedHostNames[host] || strings.HasSuffix(host, ".localhost") {
		return blocked(fmt.Errorf("%w: %s", ErrBlockedHost, host))
	}

	if ip := net.ParseIP(host); ip != nil {
		return v.CheckIP(ip)
	}

	if v.resolver == nil || (v.proxied && !v.proxyDNS) {
		return nil
	}
	addrs, err := v.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		// Resolution failures surface from the transport with more context.
		return nil
	}
	for _, a := range addrs {
		if err := v.CheckIP(a.IP); err != nil {
			return fmt.Errorf("%s resolves to %s: %w", host, a.IP, err)
		}
	}
	return nil
}

// CheckIP reports whether ip may be connected to.
func (v *Validator) CheckIP(ip net.IP) error {
	if v.allowPrivate || v.Allowed(ip.String()) {
		return nil
	}
	if IsBlockedIP(ip) {
		return blocked(fmt.Errorf("%w: %s", ErrBlockedAddress, ip))
	}
	return nil
}

// DialControl is a net.Dialer Control hook that refuses connections to
// blocked addresses.
func (v *Validator) DialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return blocked(fmt.Errorf("%w: dial target %q is not an IP", ErrInvalidLocation, address))
	}
	return v.CheckIP(ip)
}

// IsBlockedIP reports whether ip is loopback, private, link-local,
// unspecified, multicast or in another reserved range.
func IsBlockedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return true
	}
	for _, n := range blockedNetworks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func blocked(err error) error {
	return fmt.Errorf("%w: %w", ErrBlocked, err)
}
