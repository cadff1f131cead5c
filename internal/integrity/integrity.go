package integrity

import (
	_ "crypto/sha256" // registers SHA-256 for go-digest
	_ "crypto/sha512" // registers SHA-512 for go-digest
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
	"golang.org/x/crypto/sha3"
)

// Algorithm names a supported hash function.
type Algorithm string

// Supported algorithms.
const (
	SHA256  Algorithm = "sha256"
	SHA512  Algorithm = "sha512"
	SHA3256 Algorithm = "sha3-256"
)

var (
	// ErrMalformed is returned when a hash string cannot be parsed.
	ErrMalformed = errors.New("malformed content hash")

	// ErrUnsupportedAlgorithm is returned for an unknown algorithm prefix.
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

	// ErrMismatch is returned when content does not hash to the declared value.
	ErrMismatch = errors.New("content hash mismatch")
)

// hexLen is the encoded length of each algorithm's digest.
var hexLen = map[Algorithm]int{
	SHA256:  64,
	SHA512:  128,
	SHA3256: 64,
}

// Digest is a parsed content hash.
type Digest struct {
	Algorithm Algorithm
	// Hex is the lowercase hex encoding of the hash.
	Hex string
}

// Parse reads a declared content hash. A bare hex string is SHA-256.
func Parse(s string) (Digest, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Digest{}, fmt.Errorf("%w: empty", ErrMalformed)
	}

	alg, encoded, found := strings.Cut(s, ":")
	if !found {
		alg, encoded = string(SHA256), s
	}
	a := Algorithm(strings.ToLower(alg))
	want, ok := hexLen[a]
	if !ok {
		return Digest{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}

	encoded = strings.ToLower(encoded)
	if len(encoded) != want {
		return Digest{}, fmt.Errorf("%w: %s digest must be %d hex characters, got %d", ErrMalformed, a, want, len(encoded))
	}

	switch a {
	case SHA256, SHA512:
		if _, err := digest.Parse(string(a) + ":" + encoded); err != nil {
			return Digest{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
	default:
		if _, err := hex.DecodeString(encoded); err != nil {
			return Digest{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
	}
	return Digest{Algorithm: a, Hex: encoded}, nil
}

// MustParse is Parse that panics on error. Intended for tests and constants.
func MustParse(s string) Digest {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Compute hashes data with the given algorithm.
func Compute(alg Algorithm, data []byte) (Digest, error) {
	switch alg {
	case SHA256:
		return fromGoDigest(digest.SHA256.FromBytes(data)), nil
	case SHA512:
		return fromGoDigest(digest.SHA512.FromBytes(data)), nil
	case SHA3256:
		sum := sha3.Sum256(data)
		return Digest{Algorithm: SHA3256, Hex: hex.EncodeToString(sum[:])}, nil
	default:
		return Digest{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
}

// Sum returns the SHA-256 digest of data.
func Sum(data []byte) Digest {
	return fromGoDigest(digest.SHA256.FromBytes(data))
}

func fromGoDigest(d digest.Digest) Digest {
	return Digest{Algorithm: Algorithm(d.Algorithm()), Hex: d.Encoded()}
}

// IsZero reports whether no hash is set.
func (d Digest) IsZero() bool {
	return d.Hex == ""
}

// String returns the algorithm-prefixed form, e.g. "sha256:ab12...".
func (d Digest) String() string {
	if d.IsZero() {
		return ""
	}
	return string(d.Algorithm) + ":" + d.Hex
}

// Equal reports whether both digests name the same algorithm and value.
func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && d.Hex == other.Hex
}

// Matches reports whether data hashes to d. A zero digest matches nothing.
func (d Digest) Matches(data []byte) bool {
	return d.Verify(data) == nil
}

// Verify recomputes the hash of data and compares it with d.
func (d Digest) Verify(data []byte) error {
	if d.IsZero() {
		return fmt.Errorf("%w: no digest declared", ErrMalformed)
	}

	switch d.Algorithm {
	case SHA256, SHA512:
		v := digest.Digest(d.String()).Verifier()
		if _, err := v.Write(data); err != nil {
			return err
		}
		if v.Verified() {
			return nil
		}
	case SHA3256:
		got, err := Compute(SHA3256, data)
		if err != nil {
			return err
		}
		if got.Hex == d.Hex {
			return nil
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, d.Algorithm)
	}

	got, err := Compute(d.Algorithm, data)
	if err != nil {
		return err
	}
	return &MismatchError{Want: d, Got: got}
}

// MismatchError describes a failed verification. It matches ErrMismatch
// with errors.Is.
type MismatchError struct {
	Want Digest
	Got  Digest
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: declared %s, computed %s", ErrMismatch, e.Want, e.Got)
}

// Is reports whether target is ErrMismatch.
func (e *MismatchError) Is(target error) bool {
	return target == ErrMismatch
}
