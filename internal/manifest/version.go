package manifest

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
)

// SupportedMajorVersions lists the format major versions this client reads.
var SupportedMajorVersions = []int{0, 1}

// versionPattern matches "<namespace>/<major>.<minor>.<patch>/<kind>".
var versionPattern = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)/(\d+)\.(\d+)\.(\d+)/([a-z]+)$`)

// Version is a parsed format version string.
type Version struct {
	Namespace string
	Major     int
	Minor     int
	Patch     int
	Kind      string
}

// String returns the wire form of the version.
func (v Version) String() string {
	return fmt.Sprintf("%s/%d.%d.%d/%s", v.Namespace, v.Major, v.Minor, v.Patch, v.Kind)
}

// Supported reports whether the major version is one this client reads.
func (v Version) Supported() bool {
	return slices.Contains(SupportedMajorVersions, v.Major)
}

// ErrMalformedVersion is returned when a format version does not follow
// the "<namespace>/<major>.<minor>.<patch>/<kind>" layout.
var ErrMalformedVersion = errors.New("malformed format version")

// ParseVersion parses a format version string.
func ParseVersion(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
	}

	nums := make([]int, 3)
	for i, raw := range m[2:5] {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
		}
		nums[i] = n
	}

	return Version{
		Namespace: m[1],
		Major:     nums[0],
		Minor:     nums[1],
		Patch:     nums[2],
		Kind:      m[5],
	}, nil
}
