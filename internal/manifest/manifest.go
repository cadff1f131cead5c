package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Document kinds.
const (
	KindNameBurrow = "burrow"
	KindNameWarren = "warren"
)

// Burrow is a manifest describing one content collection.
// A Burrow returned by Parse is treated as read-only by every consumer.
type Burrow struct {
	// FormatVersion is "<namespace>/<major>.<minor>.<patch>/burrow".
	// Decoded from "formatVersion" or, for older publishers, "specVersion".
	FormatVersion string `json:"formatVersion"`

	Kind          string          `json:"kind"`
	Title         string          `json:"title,omitempty"`
	Description   string          `json:"description,omitempty"`
	Updated       string          `json:"updated,omitempty"`
	BaseLocation  string          `json:"baseUri,omitempty"`
	Entries       []Entry         `json:"entries"`
	AgentGuidance json.RawMessage `json:"agentGuidance,omitempty"`

	// Extra holds fields this client does not know about.
	Extra map[string]json.RawMessage `json:"-"`

	// Source is the location the manifest bytes were read from.
	Source string `json:"-"`

	// ResolvedBase is the absolute location relative entry URIs are
	// resolved against. Set by Parse; discovery may override it with the
	// directory it searched.
	ResolvedBase string `json:"-"`

	// usedSpecVersion remembers which version key the publisher used.
	usedSpecVersion bool
}

// Ref is a lightweight pointer from a warren to a burrow or another warren.
type Ref struct {
	ID       string   `json:"id"`
	Location string   `json:"uri"`
	Title    string   `json:"title,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Priority int      `json:"priority,omitempty"`

	// Extra holds fields this client does not know about.
	Extra map[string]json.RawMessage `json:"-"`
}

// BurrowRef points at a burrow from a warren.
type BurrowRef = Ref

// WarrenRef points at another warren from a warren.
type WarrenRef = Ref

// Warren is a registry of burrows, optionally federating other warrens.
type Warren struct {
	FormatVersion string      `json:"formatVersion"`
	Kind          string      `json:"kind"`
	Title         string      `json:"title,omitempty"`
	Description   string      `json:"description,omitempty"`
	Updated       string      `json:"updated,omitempty"`
	Burrows       []BurrowRef `json:"burrows"`
	Warrens       []WarrenRef `json:"warrens,omitempty"`

	Extra        map[string]json.RawMessage `json:"-"`
	Source       string                     `json:"-"`
	ResolvedBase string                     `json:"-"`

	usedSpecVersion bool
}

// Document is the result of parsing a manifest file. Exactly one of
// Burrow and Warren is set.
type Document struct {
	Burrow *Burrow
	Warren *Warren
}

// Kind returns the document kind name.
func (d *Document) Kind() string {
	if d.Warren != nil {
		return KindNameWarren
	}
	return KindNameBurrow
}

// Source returns the location the document was read from.
func (d *Document) Source() string {
	if d.Warren != nil {
		return d.Warren.Source
	}
	if d.Burrow != nil {
		return d.Burrow.Source
	}
	return ""
}

var (
	burrowKeys = keySet("formatVersion", "specVersion", "kind", "title", "description",
		"updated", "baseUri", "entries", "agentGuidance")
	warrenKeys = keySet("formatVersion", "specVersion", "kind", "title", "description",
		"updated", "burrows", "warrens")
	refKeys = keySet("id", "uri", "title", "tags", "priority")
)

type burrowAlias Burrow

type burrowWire struct {
	burrowAlias
	SpecVersion string `json:"specVersion,omitempty"`
}

// UnmarshalJSON decodes a burrow and keeps unknown fields in Extra.
func (b *Burrow) UnmarshalJSON(data []byte) error {
	var w burrowWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	extra, err := splitExtra(data, burrowKeys)
	if err != nil {
		return err
	}

	*b = Burrow(w.burrowAlias)
	if b.FormatVersion == "" && w.SpecVersion != "" {
		b.FormatVersion = w.SpecVersion
		b.usedSpecVersion = true
	}
	b.Extra = extra
	return nil
}

// MarshalJSON encodes the burrow including preserved unknown fields.
func (b Burrow) MarshalJSON() ([]byte, error) {
	var w burrowWire
	w.burrowAlias = burrowAlias(b)
	if b.usedSpecVersion {
		w.SpecVersion = b.FormatVersion
		w.FormatVersion = ""
	}
	base, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	if b.usedSpecVersion {
		base, err = dropKey(base, "formatVersion")
		if err != nil {
			return nil, err
		}
	}
	return mergeExtra(base, b.Extra)
}

type warrenAlias Warren

type warrenWire struct {
	warrenAlias
	SpecVersion string `json:"specVersion,omitempty"`
}

// UnmarshalJSON decodes a warren and keeps unknown fields in Extra.
func (w *Warren) UnmarshalJSON(data []byte) error {
	var wire warrenWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	extra, err := splitExtra(data, warrenKeys)
	if err != nil {
		return err
	}

	*w = Warren(wire.warrenAlias)
	if w.FormatVersion == "" && wire.SpecVersion != "" {
		w.FormatVersion = wire.SpecVersion
		w.usedSpecVersion = true
	}
	w.Extra = extra
	return nil
}

// MarshalJSON encodes the warren including preserved unknown fields.
func (w Warren) MarshalJSON() ([]byte, error) {
	var wire warrenWire
	wire.warrenAlias = warrenAlias(w)
	if w.usedSpecVersion {
		wire.SpecVersion = w.FormatVersion
		wire.FormatVersion = ""
	}
	base, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	if w.usedSpecVersion {
		base, err = dropKey(base, "formatVersion")
		if err != nil {
			return nil, err
		}
	}
	return mergeExtra(base, w.Extra)
}

type refAlias Ref

// UnmarshalJSON decodes a reference and keeps unknown fields in Extra.
func (r *Ref) UnmarshalJSON(data []byte) error {
	var a refAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtra(data, refKeys)
	if err != nil {
		return err
	}
	*r = Ref(a)
	r.Extra = extra
	return nil
}

// MarshalJSON encodes the reference including preserved unknown fields.
func (r Ref) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(refAlias(r))
	if err != nil {
		return nil, err
	}
	return mergeExtra(base, r.Extra)
}

func dropKey(data []byte, key string) ([]byte, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	delete(all, key)
	return json.Marshal(all)
}

// Entry returns the entry with the given id.
func (b *Burrow) Entry(id string) (Entry, bool) {
	for _, e := range b.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Resolve resolves loc against the burrow's base location.
// Absolute locations pass through unchanged.
func (b *Burrow) Resolve(loc string) (string, error) {
	return Resolve(b.ResolvedBase, loc)
}

// Resolve resolves loc against the warren's base location.
func (w *Warren) Resolve(loc string) (string, error) {
	return Resolve(w.ResolvedBase, loc)
}

// ErrRelativeWithoutBase is returned when a relative location has nothing
// to resolve against.
var ErrRelativeWithoutBase = errors.New("relative location without a base location")

// Resolve resolves ref against base. Absolute references pass through
// unchanged (apart from parsing); relative references need an absolute base.
func Resolve(base, ref string) (string, error) {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("invalid location %q: %w", ref, err)
	}
	if r.IsAbs() {
		return r.String(), nil
	}
	if base == "" {
		return "", fmt.Errorf("%w: %q", ErrRelativeWithoutBase, ref)
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base location %q: %w", base, err)
	}
	if !b.IsAbs() {
		return "", fmt.Errorf("%w: base %q is not absolute", ErrRelativeWithoutBase, base)
	}
	return b.ResolveReference(r).String(), nil
}

// Dir returns the directory form of loc: the location itself when it
// already ends in "/", otherwise its parent directory.
// "https://x/docs/burrow.json" becomes "https://x/docs/".
func Dir(loc string) (string, error) {
	u, err := url.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("invalid location %q: %w", loc, err)
	}
	if strings.HasSuffix(u.Path, "/") {
		return u.String(), nil
	}
	dir := path.Dir(u.Path)
	if dir == "." {
		dir = "/"
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	u.Path = dir
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// AsDir returns loc with a trailing "/" on its path so that relative
// resolution treats it as a directory.
func AsDir(loc string) (string, error) {
	u, err := url.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("invalid location %q: %w", loc, err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
		u.RawPath = ""
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Parent returns the parent directory of the directory location loc, and
// false when loc is already at the root.
func Parent(loc string) (string, bool) {
	u, err := url.Parse(loc)
	if err != nil {
		return "", false
	}
	p := strings.TrimSuffix(u.Path, "/")
	if p == "" {
		return "", false
	}
	parent := path.Dir(p)
	if parent == "." || parent == "" {
		parent = "/"
	}
	if !strings.HasSuffix(parent, "/") {
		parent += "/"
	}
	u.Path = parent
	u.RawPath = ""
	return u.String(), true
}
