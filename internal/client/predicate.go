package client

import (
	"net/url"
	"path/filepath"
	"slices"
	"strings"

	"github.com/nao1215/burrow/internal/manifest"
)

// Candidate is what a Predicate decides on.
type Candidate struct {
	Entry manifest.Entry

	// Location is the resolved entry location; empty when it could not
	// be resolved.
	Location string

	Depth int
}

// Predicate decides whether traversal emits and expands an entry.
// Rejected entries are counted as skipped and their subtree is not
// visited.
type Predicate func(Candidate) bool

// And returns a predicate that accepts only what every p accepts. Nil
// predicates are ignored.
func And(preds ...Predicate) Predicate {
	return func(c Candidate) bool {
		for _, p := range preds {
			if p != nil && !p(c) {
				return false
			}
		}
		return true
	}
}

// MatchPatterns filters on the path of the resolved location. An entry
// matching any ignore pattern is rejected; when follow patterns are given
// the entry must match at least one of them.
func MatchPatterns(ignore, follow []string) Predicate {
	return func(c Candidate) bool {
		p := locationPath(c)

		for _, pattern := range ignore {
			if matchPattern(pattern, p) {
				return false
			}
		}
		if len(follow) == 0 {
			return true
		}
		for _, pattern := range follow {
			if matchPattern(pattern, p) {
				return true
			}
		}
		return false
	}
}

// MatchKinds accepts entries of the given kinds. Filtering out containers
// also prunes everything below them.
func MatchKinds(kinds ...manifest.Kind) Predicate {
	return func(c Candidate) bool {
		return slices.Contains(kinds, c.Entry.Kind)
	}
}

// MatchTags accepts entries carrying at least one of tags.
func MatchTags(tags ...string) Predicate {
	return func(c Candidate) bool {
		return slices.ContainsFunc(tags, c.Entry.HasTag)
	}
}

func locationPath(c Candidate) string {
	raw := c.Location
	if raw == "" {
		raw = c.Entry.Location
	}
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// matchPattern matches a glob pattern against a location path. Besides
// filepath.Match syntax it understands "/prefix/*" as "anything below
// /prefix" and "*.ext" as "any path with that extension".
func matchPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") && strings.HasSuffix(path, strings.TrimPrefix(pattern, "*")) {
		return true
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}

	// Patterns without a slash also match the last path element.
	if !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}
	return false
}
