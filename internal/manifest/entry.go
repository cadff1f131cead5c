package manifest

import (
	"encoding/json"
	"strings"
)

// Entry is one item inside a burrow.
type Entry struct {
	// ID identifies the entry within its burrow. Required.
	ID string `json:"id"`

	// Kind is the decoded variant of RawKind.
	Kind Kind `json:"-"`

	// RawKind is the kind string exactly as published.
	RawKind string `json:"kind"`

	// Location is the entry's URI, absolute or relative to the burrow's
	// base location. Published as "uri". Required.
	Location string `json:"uri"`

	Title     string   `json:"title,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	MediaType string   `json:"mediaType,omitempty"`
	SizeBytes int64    `json:"sizeBytes,omitempty"`
	Modified  string   `json:"modified,omitempty"`
	Tags      []string `json:"tags,omitempty"`

	// SHA256 is the hex SHA-256 of the entry content.
	SHA256 string `json:"sha256,omitempty"`

	// RID is an algorithm-prefixed content hash ("sha256:...",
	// "sha512:...", "sha3-256:..."). SHA256 takes precedence when both
	// are set.
	RID string `json:"rid,omitempty"`

	// Priority orders siblings during traversal; higher first.
	// Missing means 0.
	Priority int `json:"priority,omitempty"`

	// Extra holds fields this client does not know about.
	Extra map[string]json.RawMessage `json:"-"`
}

var entryKeys = keySet(
	"id", "kind", "uri", "title", "summary", "mediaType", "sizeBytes",
	"modified", "tags", "sha256", "rid", "priority",
)

// entryAlias drops the methods of Entry so encoding/json does not recurse.
type entryAlias Entry

// UnmarshalJSON decodes an entry and keeps unknown fields in Extra.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var a entryAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtra(data, entryKeys)
	if err != nil {
		return err
	}

	*e = Entry(a)
	e.Kind = ParseKind(e.RawKind)
	e.Extra = extra
	return nil
}

// MarshalJSON encodes the entry including any preserved unknown fields.
func (e Entry) MarshalJSON() ([]byte, error) {
	a := entryAlias(e)
	if a.RawKind == "" && a.Kind != KindUnknown {
		a.RawKind = a.Kind.String()
	}
	base, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return mergeExtra(base, e.Extra)
}

// ContentHash returns the declared content hash, or "" when the entry
// declares none. A bare SHA256 value is returned with its "sha256:" prefix.
func (e Entry) ContentHash() string {
	if h := strings.TrimSpace(e.SHA256); h != "" {
		if strings.Contains(h, ":") {
			return h
		}
		return "sha256:" + h
	}
	return strings.TrimSpace(e.RID)
}

// HasTag reports whether the entry carries tag (case-insensitive).
func (e Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
