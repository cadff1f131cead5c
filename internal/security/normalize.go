package security

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/idna"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// NormalizeLocation returns the canonical form of location so that
// equivalent spellings compare equal: lowercase scheme and host, IDNA
// hosts in ASCII form, default ports removed, dot segments resolved and
// the fragment dropped. A trailing slash is kept.
func NormalizeLocation(location string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidLocation, location)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Fragment = ""
	u.RawFragment = ""

	if host := u.Hostname(); host != "" {
		ascii, err := asciiHost(strings.TrimSuffix(host, "."))
		if err != nil {
			return "", fmt.Errorf("%w: host %q: %w", ErrInvalidLocation, host, err)
		}
		port := u.Port()
		if port == defaultPorts[u.Scheme] {
			port = ""
		}
		if strings.Contains(ascii, ":") {
			ascii = "[" + ascii + "]"
		}
		if port != "" {
			u.Host = net.JoinHostPort(strings.Trim(ascii, "[]"), port)
		} else {
			u.Host = ascii
		}
	}

	if u.Opaque == "" {
		p := u.Path
		if p == "" && u.Host != "" {
			p = "/"
		}
		if p != "" {
			trailing := strings.HasSuffix(p, "/")
			p = path.Clean(p)
			if trailing && p != "/" {
				p += "/"
			}
		}
		u.Path = p
		u.RawPath = ""
	}
	return u.String(), nil
}

// asciiHost lowercases host and converts internationalized names to their
// punycode form. IP literals and plain ASCII names that fail the strict
// lookup rules (underscores, for instance) are only lowercased.
func asciiHost(host string) (string, error) {
	if net.ParseIP(host) != nil {
		return strings.ToLower(host), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err == nil {
		return strings.ToLower(ascii), nil
	}
	for i := 0; i < len(host); i++ {
		if host[i] >= 0x80 {
			return "", err
		}
	}
	return strings.ToLower(host), nil
}
