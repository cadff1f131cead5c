// Package integrity parses and verifies the content hashes that manifests
// declare for their entries.
//
// Two declaration styles are accepted:
//
//   - a bare lowercase or uppercase hex string, read as SHA-256 (the
//     "sha256" entry field)
//   - an algorithm-prefixed string such as "sha256:<hex>", "sha512:<hex>"
//     or "sha3-256:<hex>" (the "rid" entry field)
//
// SHA-2 digests are handled by github.com/opencontainers/go-digest; SHA3-256
// uses golang.org/x/crypto/sha3.
package integrity
