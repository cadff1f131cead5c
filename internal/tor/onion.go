package tor

import (
	"encoding/base32"
	"errors"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// OnionSuffix is the top-level label of onion service hosts.
	OnionSuffix = ".onion"

	onionV3Version = 0x03
)

var onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)

// checksumPrefix is the constant mixed into the v3 address checksum.
var checksumPrefix = []byte(".onion checksum")

// IsOnionHost reports whether host is under the .onion TLD. Subdomains
// such as "docs.<addr>.onion" count.
func IsOnionHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSuffix(host, ".")), OnionSuffix)
}

// IsValidV3Address reports whether host is a v3 onion address with a
// correct checksum. A single leading subdomain label is allowed.
func IsValidV3Address(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	labels := strings.Split(host, ".")
	if len(labels) > 2 {
		host = strings.Join(labels[len(labels)-2:], ".")
	}
	if !onionV3Pattern.MatchString(host) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(host, OnionSuffix)))
	if err != nil || len(decoded) != 35 {
		return false
	}

	pubkey, checksum, version := decoded[:32], decoded[32:34], decoded[34]
	if version != onionV3Version {
		return false
	}
	want := v3Checksum(pubkey, version)
	return checksum[0] == want[0] && checksum[1] == want[1]
}

// AddressFromPublicKey builds the v3 onion host for a 32-byte ed25519
// public key.
func AddressFromPublicKey(pubkey []byte) (string, error) {
	if len(pubkey) != 32 {
		return "", errors.New("onion v3 public key must be 32 bytes")
	}
	raw := make([]byte, 0, 35)
	raw = append(raw, pubkey...)
	raw = append(raw, v3Checksum(pubkey, onionV3Version)...)
	raw = append(raw, onionV3Version)
	return strings.ToLower(base32.StdEncoding.EncodeToString(raw)) + OnionSuffix, nil
}

// v3Checksum is the first two bytes of
// SHA3-256(".onion checksum" || pubkey || version).
func v3Checksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)
	sum := sha3.Sum256(data)
	return sum[:2]
}
