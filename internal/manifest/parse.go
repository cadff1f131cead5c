package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nao1215/burrow/internal/integrity"
)

// Manifest rejection errors. Every error returned by Parse wraps ErrInvalid
// and one of the more specific errors below.
var (
	// ErrInvalid is the umbrella error for any rejected manifest.
	ErrInvalid = errors.New("manifest invalid")

	// ErrTooLarge is returned when the manifest exceeds the size ceiling.
	ErrTooLarge = errors.New("manifest exceeds size limit")

	// ErrMalformedJSON is returned when the bytes are not a JSON object.
	ErrMalformedJSON = errors.New("manifest is not valid JSON")

	// ErrUnknownKind is returned when "kind" is neither burrow nor warren.
	ErrUnknownKind = errors.New("manifest kind must be burrow or warren")

	// ErrUnsupportedVersion is returned for a missing, malformed or
	// unsupported format version.
	ErrUnsupportedVersion = errors.New("unsupported format version")

	// ErrMissingField is returned when a required field is absent.
	ErrMissingField = errors.New("required field missing")

	// ErrDuplicateID is returned when two entries of one burrow share an id.
	ErrDuplicateID = errors.New("duplicate entry id")
)

// Severity grades a validation issue.
type Severity int

const (
	// SeverityError makes the manifest unacceptable.
	SeverityError Severity = iota
	// SeverityWarning is tolerated but worth reporting.
	SeverityWarning
)

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Issue is one problem found while checking a manifest.
type Issue struct {
	Severity Severity
	// Path is a JSON-pointer-like location such as "entries[3].uri".
	Path    string
	Message string
	// Err is the sentinel the issue maps to (errors only).
	Err error
}

// String formats the issue for display.
func (i Issue) String() string {
	if i.Path == "" {
		return fmt.Sprintf("%s: %s", i.Severity, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// Options tunes Parse and Check.
type Options struct {
	// MaxBytes rejects inputs larger than this. Zero disables the check.
	MaxBytes int64
}

// Parse decodes and validates a manifest read from source. It returns the
// first error-level issue wrapped in ErrInvalid.
func Parse(data []byte, source string) (*Document, error) {
	return ParseWithOptions(data, source, Options{})
}

// ParseWithOptions is Parse with a size ceiling.
func ParseWithOptions(data []byte, source string, opts Options) (*Document, error) {
	doc, issues := CheckWithOptions(data, source, opts)
	for _, is := range issues {
		if is.Severity == SeverityError {
			if is.Path != "" {
				return nil, fmt.Errorf("%w: %w: %s: %s", ErrInvalid, is.Err, is.Path, is.Message)
			}
			return nil, fmt.Errorf("%w: %w: %s", ErrInvalid, is.Err, is.Message)
		}
	}
	return doc, nil
}

// Check decodes data and reports every issue found. The document is nil
// only when the bytes cannot be decoded at all.
func Check(data []byte, source string) (*Document, []Issue) {
	return CheckWithOptions(data, source, Options{})
}

// CheckWithOptions is Check with a size ceiling.
func CheckWithOptions(data []byte, source string, opts Options) (*Document, []Issue) {
	if opts.MaxBytes > 0 && int64(len(data)) > opts.MaxBytes {
		return nil, []Issue{{
			Severity: SeverityError,
			Message:  fmt.Sprintf("%d bytes exceeds the %d byte limit", len(data), opts.MaxBytes),
			Err:      ErrTooLarge,
		}}
	}

	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, []Issue{{Severity: SeverityError, Message: err.Error(), Err: ErrMalformedJSON}}
	}

	base := ""
	if source != "" {
		if dir, err := Dir(source); err == nil {
			base = dir
		}
	}

	switch head.Kind {
	case KindNameBurrow:
		var b Burrow
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, []Issue{{Severity: SeverityError, Message: err.Error(), Err: ErrMalformedJSON}}
		}
		b.Source = source
		b.ResolvedBase = base
		if b.BaseLocation != "" {
			if resolved, err := Resolve(base, b.BaseLocation); err == nil {
				if dir, err := AsDir(resolved); err == nil {
					b.ResolvedBase = dir
				}
			}
		}
		return &Document{Burrow: &b}, checkBurrow(data, &b)
	case KindNameWarren:
		var w Warren
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, []Issue{{Severity: SeverityError, Message: err.Error(), Err: ErrMalformedJSON}}
		}
		w.Source = source
		w.ResolvedBase = base
		return &Document{Warren: &w}, checkWarren(data, &w)
	default:
		return nil, []Issue{{
			Severity: SeverityError,
			Path:     "kind",
			Message:  fmt.Sprintf("got %q", head.Kind),
			Err:      ErrUnknownKind,
		}}
	}
}

func checkVersion(raw, kind string) []Issue {
	if raw == "" {
		return []Issue{{Severity: SeverityError, Path: "formatVersion", Message: "missing", Err: ErrUnsupportedVersion}}
	}
	v, err := ParseVersion(raw)
	if err != nil {
		return []Issue{{Severity: SeverityError, Path: "formatVersion", Message: err.Error(), Err: ErrUnsupportedVersion}}
	}
	var issues []Issue
	if !v.Supported() {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "formatVersion",
			Message:  fmt.Sprintf("major version %d is not supported", v.Major),
			Err:      ErrUnsupportedVersion,
		})
	}
	if v.Kind != kind {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "formatVersion",
			Message:  fmt.Sprintf("version names kind %q but document kind is %q", v.Kind, kind),
			Err:      ErrUnsupportedVersion,
		})
	}
	return issues
}

func checkBurrow(data []byte, b *Burrow) []Issue {
	issues := checkVersion(b.FormatVersion, KindNameBurrow)

	var present map[string]json.RawMessage
	_ = json.Unmarshal(data, &present) //nolint:errcheck // already decoded once
	if raw, ok := present["entries"]; !ok || isNull(raw) {
		issues = append(issues, Issue{Severity: SeverityError, Path: "entries", Message: "missing", Err: ErrMissingField})
	}

	seen := make(map[string]int, len(b.Entries))
	for i, e := range b.Entries {
		p := fmt.Sprintf("entries[%d]", i)
		if strings.TrimSpace(e.ID) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: p + ".id", Message: "missing", Err: ErrMissingField})
		} else if first, dup := seen[e.ID]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     p + ".id",
				Message:  fmt.Sprintf("%q already used by entries[%d]", e.ID, first),
				Err:      ErrDuplicateID,
			})
		} else {
			seen[e.ID] = i
		}
		if strings.TrimSpace(e.RawKind) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: p + ".kind", Message: "missing", Err: ErrMissingField})
		} else if e.Kind == KindUnknown {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     p + ".kind",
				Message:  fmt.Sprintf("unknown kind %q is treated as terminal", e.RawKind),
			})
		}
		if strings.TrimSpace(e.Location) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: p + ".uri", Message: "missing", Err: ErrMissingField})
		}
		if h := e.ContentHash(); h != "" {
			if _, err := integrity.Parse(h); err != nil {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Path:     p + ".sha256",
					Message:  err.Error(),
				})
			}
		}
		if e.SizeBytes < 0 {
			issues = append(issues, Issue{Severity: SeverityWarning, Path: p + ".sizeBytes", Message: "negative size"})
		}
	}
	return issues
}

func checkWarren(data []byte, w *Warren) []Issue {
	issues := checkVersion(w.FormatVersion, KindNameWarren)

	var present map[string]json.RawMessage
	_ = json.Unmarshal(data, &present) //nolint:errcheck // already decoded once
	if raw, ok := present["burrows"]; !ok || isNull(raw) {
		issues = append(issues, Issue{Severity: SeverityError, Path: "burrows", Message: "missing", Err: ErrMissingField})
	}

	checkRefs := func(field string, refs []Ref) {
		for i, r := range refs {
			p := fmt.Sprintf("%s[%d]", field, i)
			if strings.TrimSpace(r.ID) == "" {
				issues = append(issues, Issue{Severity: SeverityError, Path: p + ".id", Message: "missing", Err: ErrMissingField})
			}
			if strings.TrimSpace(r.Location) == "" {
				issues = append(issues, Issue{Severity: SeverityError, Path: p + ".uri", Message: "missing", Err: ErrMissingField})
			}
		}
	}
	checkRefs("burrows", w.Burrows)
	checkRefs("warrens", w.Warrens)
	return issues
}
