// Package pathfilter decides which relative paths take part in a backup.
//
// Patterns are glob strings matched with doublestar. A pattern ending in "/*"
// names a directory and matches that directory and everything beneath it.
// Any other pattern is tried against the whole relative path, against every
// ancestor of it and against every single path segment, so "*.log" or ".git"
// apply anywhere in the tree. Exclusion always wins over inclusion.
package pathfilter

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Kind tells whether a pattern includes or excludes paths
type Kind int

const (
	KindInclude Kind = iota
	KindExclude
)

func (k Kind) String() string {
	if k == KindExclude {
		return "exclude"
	}
	return "include"
}

// Pattern is a glob with its kind
type Pattern struct {
	Glob string
	Kind Kind
}

// Set is an include/exclude pattern set. An empty include list includes everything.
type Set struct {
	Include []string
	Exclude []string
}

// NewSet normalizes and validates both pattern lists
func NewSet(include, exclude []string) (*Set, error) {
	s := &Set{
		Include: normalizeAll(include),
		Exclude: normalizeAll(exclude),
	}
	for _, p := range s.Patterns() {
		if !doublestar.ValidatePattern(p.Glob) {
			return nil, fmt.Errorf("invalid %s pattern %q", p.Kind, p.Glob)
		}
	}
	return s, nil
}

// Patterns returns the set as typed patterns, excludes first
func (s *Set) Patterns() []Pattern {
	out := make([]Pattern, 0, len(s.Include)+len(s.Exclude))
	for _, g := range s.Exclude {
		out = append(out, Pattern{Glob: g, Kind: KindExclude})
	}
	for _, g := range s.Include {
		out = append(out, Pattern{Glob: g, Kind: KindInclude})
	}
	return out
}

// Allowed reports whether path survives the set: not excluded, and included
func (s *Set) Allowed(path string) bool {
	if s == nil {
		return true
	}
	if Exclude(path, s.Exclude) {
		return false
	}
	return len(s.Include) == 0 || Include(path, s.Include)
}

// Excluded reports whether path (and therefore its subtree) is excluded
func (s *Set) Excluded(path string) bool {
	return s != nil && Exclude(path, s.Exclude)
}

// HasIncludes reports whether the set restricts inclusion
func (s *Set) HasIncludes() bool {
	return s != nil && len(s.Include) > 0
}

// Include reports whether any pattern matches path
func Include(path string, patterns []string) bool {
	return matchAny(path, patterns)
}

// Exclude reports whether any pattern matches path
func Exclude(path string, patterns []string) bool {
	return matchAny(path, patterns)
}

func matchAny(path string, patterns []string) bool {
	path = Normalize(path)
	if path == "" {
		return false
	}
	segments := strings.Split(path, "/")
	for _, p := range patterns {
		if Match(Normalize(p), segments) {
			return true
		}
	}
	return false
}

// Match reports whether a normalized pattern matches the path given as segments
func Match(pattern string, segments []string) bool {
	if pattern == "" {
		return false
	}

	if dir, ok := strings.CutSuffix(pattern, "/*"); ok {
		depth := strings.Count(dir, "/") + 1
		if len(segments) < depth {
			return false
		}
		return globMatch(dir, strings.Join(segments[:depth], "/"))
	}

	for i := range segments {
		if globMatch(pattern, strings.Join(segments[:i+1], "/")) {
			return true
		}
		if i > 0 && globMatch(pattern, segments[i]) {
			return true
		}
	}
	return false
}

func globMatch(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

// Normalize converts separators to "/" and strips leading "./" and "/"
func Normalize(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	for {
		switch {
		case strings.HasPrefix(path, "./"):
			path = path[2:]
		case strings.HasPrefix(path, "/"):
			path = path[1:]
		default:
			return strings.TrimSuffix(path, "/")
		}
	}
}

func normalizeAll(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = Normalize(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
