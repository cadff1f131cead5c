package manifest

import "strings"

// Kind is the closed set of entry variants a burrow may contain.
// Values the client does not recognize decode to KindUnknown; the raw
// string stays available on Entry.RawKind.
type Kind int

const (
	// KindUnknown is an entry kind this client does not understand.
	// Traversal treats it as terminal and flags it in the report.
	KindUnknown Kind = iota

	// KindFile is a terminal, fetchable resource.
	KindFile

	// KindDir is a location where another manifest can be discovered.
	KindDir

	// KindBurrow is a nested burrow found through discovery.
	KindBurrow

	// KindMap points directly at a manifest file; no discovery is attempted.
	KindMap

	// KindLink is an opaque external reference that is never fetched.
	KindLink
)

// kindNames maps wire names to kinds.
var kindNames = map[string]Kind{
	"file":   KindFile,
	"dir":    KindDir,
	"burrow": KindBurrow,
	"map":    KindMap,
	"link":   KindLink,
}

// ParseKind converts a wire value to a Kind. Matching is case-insensitive.
func ParseKind(s string) Kind {
	if k, ok := kindNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k
	}
	return KindUnknown
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindBurrow:
		return "burrow"
	case KindMap:
		return "map"
	case KindLink:
		return "link"
	default:
		return "unknown"
	}
}

// IsContainer reports whether entries of this kind expand into another
// manifest during traversal.
func (k Kind) IsContainer() bool {
	return k == KindDir || k == KindBurrow || k == KindMap
}

// NeedsDiscovery reports whether the entry's location is a base location
// that must go through discovery rather than being fetched directly.
func (k Kind) NeedsDiscovery() bool {
	return k == KindDir || k == KindBurrow
}
